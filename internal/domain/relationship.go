package domain

import (
	"fmt"
	"strings"
	"time"
)

// Relationship is a named, cardinality-agnostic link between two objects.
// Rows are never hard-deleted; RemovedAt/RemovedBy mark a link inactive
// while preserving history.
type Relationship struct {
	ID         string            `json:"id"`
	SourceType string            `json:"source_type"`
	SourceID   string            `json:"source_id"`
	Name       string            `json:"name"`
	TargetType string            `json:"target_type"`
	TargetID   string            `json:"target_id"`
	CreatedAt  time.Time         `json:"created_at"`
	CreatedBy  Actor             `json:"created_by"`
	RemovedAt  *time.Time        `json:"removed_at,omitempty"`
	RemovedBy  *Actor            `json:"removed_by,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Active reports whether the link has not been soft-deleted.
func (r Relationship) Active() bool {
	return r.RemovedAt == nil
}

// NewRelationship validates and builds an active relationship row.
func NewRelationship(id, sourceType, sourceID, name, targetType, targetID string, actor Actor, metadata map[string]string, now time.Time) (Relationship, error) {
	id = strings.TrimSpace(id)
	sourceType = strings.TrimSpace(sourceType)
	sourceID = strings.TrimSpace(sourceID)
	name = strings.TrimSpace(strings.ToLower(name))
	targetType = strings.TrimSpace(targetType)
	targetID = strings.TrimSpace(targetID)
	if id == "" {
		return Relationship{}, ErrInvalidID
	}
	if sourceType == "" || sourceID == "" || name == "" || targetType == "" || targetID == "" {
		return Relationship{}, ErrInvalidRelationship
	}
	actor = actor.Normalize()
	if err := actor.Validate(); err != nil {
		return Relationship{}, err
	}
	return Relationship{
		ID:         id,
		SourceType: sourceType,
		SourceID:   sourceID,
		Name:       name,
		TargetType: targetType,
		TargetID:   targetID,
		CreatedAt:  now.UTC(),
		CreatedBy:  actor,
		Metadata:   metadata,
	}, nil
}

// SyncStrategy selects how a relationship's denormalized display value is
// kept consistent with its target record.
type SyncStrategy string

// SyncStrategy values.
const (
	SyncEager     SyncStrategy = "eager"
	SyncLazy      SyncStrategy = "lazy"
	SyncScheduled SyncStrategy = "scheduled"
)

// IsValidSyncStrategy reports whether strategy is supported.
func IsValidSyncStrategy(strategy SyncStrategy) bool {
	switch strategy {
	case SyncEager, SyncLazy, SyncScheduled:
		return true
	default:
		return false
	}
}

// RelationshipDefinition configures one named relationship: which target
// field is denormalized, under which source key it is stored, and which
// synchronization strategy keeps it fresh.
type RelationshipDefinition struct {
	Name         string       `json:"name"`
	SourceType   string       `json:"source_type"`
	TargetType   string       `json:"target_type"`
	DisplayField string       `json:"display_field"`
	DisplayKey   string       `json:"display_key"`
	Strategy     SyncStrategy `json:"strategy"`
}

// Validate checks the definition is complete.
func (d RelationshipDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: definition name is required", ErrInvalidRelationship)
	}
	if strings.TrimSpace(d.SourceType) == "" || strings.TrimSpace(d.TargetType) == "" {
		return fmt.Errorf("%w: definition %q requires source and target types", ErrInvalidRelationship, d.Name)
	}
	if strings.TrimSpace(d.DisplayKey) == "" {
		return fmt.Errorf("%w: definition %q requires a display key", ErrInvalidRelationship, d.Name)
	}
	if !IsValidSyncStrategy(d.Strategy) {
		return fmt.Errorf("%w: definition %q has unknown strategy %q", ErrInvalidRelationship, d.Name, d.Strategy)
	}
	return nil
}

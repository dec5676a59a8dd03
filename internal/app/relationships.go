package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/weft/internal/domain"
)

// Relationships manages the universal association table: creation, soft
// deletion, restore-as-create, and reverse navigation. Creation and removal
// for one quadruple are serialized so two callers cannot race an identical
// active link into existence.
type Relationships struct {
	repo  Repository
	defs  map[string]domain.RelationshipDefinition
	locks *keyedMutex
	sync  *Syncer
	idGen IDGenerator
	clock Clock
}

// NewRelationships constructs the relationship service. The syncer is
// optional; when present, eager definitions are refreshed right after a
// link is created.
func NewRelationships(repo Repository, defs []domain.RelationshipDefinition, syncer *Syncer, idGen IDGenerator, clock Clock) (*Relationships, error) {
	if idGen == nil {
		idGen = uuid.NewString
	}
	if clock == nil {
		clock = time.Now
	}
	byName := make(map[string]domain.RelationshipDefinition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		name := strings.ToLower(def.Name)
		if _, ok := byName[name]; ok {
			return nil, fmt.Errorf("%w: duplicate definition %q", domain.ErrInvalidRelationship, def.Name)
		}
		byName[name] = def
	}
	return &Relationships{
		repo:  repo,
		defs:  byName,
		locks: newKeyedMutex(),
		sync:  syncer,
		idGen: idGen,
		clock: clock,
	}, nil
}

// Definition returns the configured definition for a relationship name.
func (r *Relationships) Definition(name string) (domain.RelationshipDefinition, bool) {
	def, ok := r.defs[strings.ToLower(strings.TrimSpace(name))]
	return def, ok
}

// CreateRelationshipInput holds input values for create operations.
type CreateRelationshipInput struct {
	SourceType string
	SourceID   string
	Name       string
	TargetType string
	TargetID   string
	Actor      domain.Actor
	Metadata   map[string]string
}

// Create establishes a new active link and always mints a fresh rel id. An
// identical active quadruple fails with ErrDuplicateActive; a soft-deleted
// duplicate does not block re-creation.
func (r *Relationships) Create(ctx context.Context, in CreateRelationshipInput) (domain.Relationship, error) {
	rel, err := domain.NewRelationship(r.idGen(), in.SourceType, in.SourceID, in.Name, in.TargetType, in.TargetID, in.Actor, in.Metadata, r.clock())
	if err != nil {
		return domain.Relationship{}, err
	}

	unlock := r.locks.Lock(quadrupleKey(rel))
	defer unlock()

	existing, err := r.repo.ListRelationshipsBySource(ctx, rel.SourceType, rel.SourceID, rel.Name, true)
	if err != nil {
		return domain.Relationship{}, err
	}
	for _, candidate := range existing {
		if candidate.TargetID == rel.TargetID && candidate.TargetType == rel.TargetType {
			return domain.Relationship{}, fmt.Errorf("%w: %s/%s -%s-> %s/%s", domain.ErrDuplicateActive,
				rel.SourceType, rel.SourceID, rel.Name, rel.TargetType, rel.TargetID)
		}
	}

	if err := r.repo.CreateRelationship(ctx, rel); err != nil {
		return domain.Relationship{}, err
	}
	if r.sync != nil {
		// Seed the display value; sync failures never fail the create.
		r.sync.Refresh(ctx, rel)
	}
	return rel, nil
}

// Remove soft-deletes a link. Removing an already-removed link is a no-op,
// not an error.
func (r *Relationships) Remove(ctx context.Context, relID string, actor domain.Actor) error {
	actor = actor.Normalize()
	if err := actor.Validate(); err != nil {
		return err
	}
	rel, err := r.repo.GetRelationship(ctx, relID)
	if err != nil {
		return err
	}
	if !rel.Active() {
		return nil
	}

	unlock := r.locks.Lock(quadrupleKey(rel))
	defer unlock()

	return r.repo.RemoveRelationship(ctx, relID, r.clock().UTC(), actor)
}

// Restore re-establishes a removed link as a fresh create: the uniqueness
// invariant is re-validated against active duplicates created in the
// interim, and a new rel id is minted so the audit trail stays append-only.
func (r *Relationships) Restore(ctx context.Context, relID string, actor domain.Actor) (domain.Relationship, error) {
	rel, err := r.repo.GetRelationship(ctx, relID)
	if err != nil {
		return domain.Relationship{}, err
	}
	if rel.Active() {
		return rel, nil
	}
	return r.Create(ctx, CreateRelationshipInput{
		SourceType: rel.SourceType,
		SourceID:   rel.SourceID,
		Name:       rel.Name,
		TargetType: rel.TargetType,
		TargetID:   rel.TargetID,
		Actor:      actor,
		Metadata:   rel.Metadata,
	})
}

// ListBySource returns links from a source, optionally filtered by name.
func (r *Relationships) ListBySource(ctx context.Context, sourceType, sourceID, name string, activeOnly bool) ([]domain.Relationship, error) {
	return r.repo.ListRelationshipsBySource(ctx, sourceType, sourceID, strings.ToLower(strings.TrimSpace(name)), activeOnly)
}

// ListByTarget returns links pointing at a target: the reverse navigation
// plain foreign keys cannot express without a dedicated index.
func (r *Relationships) ListByTarget(ctx context.Context, targetType, targetID, name string, activeOnly bool) ([]domain.Relationship, error) {
	return r.repo.ListRelationshipsByTarget(ctx, targetType, targetID, strings.ToLower(strings.TrimSpace(name)), activeOnly)
}

// ActiveCount reports how many active links a source holds under one name.
// Callers enforcing 1:1 or 1:N roles check this before creating.
func (r *Relationships) ActiveCount(ctx context.Context, sourceType, sourceID, name string) (int, error) {
	rels, err := r.ListBySource(ctx, sourceType, sourceID, name, true)
	if err != nil {
		return 0, err
	}
	return len(rels), nil
}

// quadrupleKey builds the per-quadruple lock key.
func quadrupleKey(rel domain.Relationship) string {
	return strings.Join([]string{rel.SourceType, rel.SourceID, rel.Name, rel.TargetType, rel.TargetID}, "/")
}

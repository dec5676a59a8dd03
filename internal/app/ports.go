package app

import (
	"context"
	"time"

	"github.com/hylla/weft/internal/domain"
)

// Repository persists tags, relationships, and transition records. All tag
// and relationship mutation goes through the engines in this package; no
// other component writes these rows directly.
type Repository interface {
	ApplyTag(context.Context, domain.Tag) error
	RemoveTag(ctx context.Context, objectType, objectID, tag string) error
	ListTags(ctx context.Context, objectType, objectID string) ([]domain.Tag, error)
	FindByTag(ctx context.Context, objectType, tag string) ([]string, error)

	// SwapTags atomically removes fromTag (when non-empty), applies toTag,
	// and appends the audit record in one transaction so no zero-or-two
	// current-state window is observable.
	SwapTags(ctx context.Context, fromTag string, toTag domain.Tag, record domain.TransitionRecord) error

	AppendTransitionRecord(context.Context, domain.TransitionRecord) error
	ListTransitionRecords(ctx context.Context, objectType, objectID string) ([]domain.TransitionRecord, error)

	CreateRelationship(context.Context, domain.Relationship) error
	GetRelationship(ctx context.Context, relID string) (domain.Relationship, error)
	RemoveRelationship(ctx context.Context, relID string, removedAt time.Time, removedBy domain.Actor) error
	ListRelationshipsBySource(ctx context.Context, sourceType, sourceID, name string, activeOnly bool) ([]domain.Relationship, error)
	ListRelationshipsByTarget(ctx context.Context, targetType, targetID, name string, activeOnly bool) ([]domain.Relationship, error)
	ListRelationshipsByName(ctx context.Context, name string, activeOnly bool) ([]domain.Relationship, error)
}

// RecordReader is the read-only view of the external entity-record store.
type RecordReader interface {
	ReadField(ctx context.Context, objectType, objectID, field string) (string, error)
	CurrentDisplayValue(ctx context.Context, objectType, objectID string) (string, error)
}

// RecordWriter writes denormalized display values back onto source records.
// Only the sync engine uses it.
type RecordWriter interface {
	WriteField(ctx context.Context, objectType, objectID, field, value string) error
}

// Notifier receives fire-and-forget timeout escalations from the scanner.
type Notifier interface {
	NotifyTimeout(ctx context.Context, objectType, objectID, state, action string)
}

// Snapshot gives custom predicates read access to the object under
// evaluation without exposing mutation.
type Snapshot struct {
	ObjectType string
	ObjectID   string
	Records    RecordReader
}

// Predicate is an injected custom_script check. An error is treated as
// unsatisfied with the error text as message, never as a hard failure.
type Predicate func(ctx context.Context, snap Snapshot) (bool, string, error)

// IDGenerator returns unique identifiers for new rows.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

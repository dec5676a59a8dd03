package domain

import "time"

// TransitionRecord is one append-only audit entry for a completed or forced
// state change. Records are never mutated or deleted.
type TransitionRecord struct {
	ID            string             `json:"id"`
	ObjectType    string             `json:"object_type"`
	ObjectID      string             `json:"object_id"`
	WorkflowID    string             `json:"workflow_id"`
	FromState     string             `json:"from_state"`
	ToState       string             `json:"to_state"`
	Actor         Actor              `json:"actor"`
	Kind          TransitionKind     `json:"kind"`
	Forced        bool               `json:"forced"`
	Justification string             `json:"justification,omitempty"`
	Report        PrerequisiteReport `json:"report,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

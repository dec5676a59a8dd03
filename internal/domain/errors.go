package domain

import "errors"

// Validation and workflow rule errors surfaced to callers.
var (
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidActor        = errors.New("invalid actor")
	ErrInvalidTag          = errors.New("invalid tag")
	ErrDuplicateTag        = errors.New("tag already applied")
	ErrInvalidWorkflow     = errors.New("invalid workflow definition")
	ErrInvalidPrerequisite = errors.New("invalid prerequisite")
	ErrInvalidRelationship = errors.New("invalid relationship")

	// ErrInvalidTransition means no from->to edge is defined for the workflow.
	// Non-recoverable: the caller must pick a valid target state.
	ErrInvalidTransition = errors.New("transition not defined")

	// ErrAmbiguousTransition means more than one edge matches and none matches
	// the caller's requested kind. A workflow configuration error.
	ErrAmbiguousTransition = errors.New("ambiguous transition")

	// ErrPrerequisitesUnsatisfied is recoverable: the caller may retry with a
	// justification to force the transition.
	ErrPrerequisitesUnsatisfied = errors.New("prerequisites unsatisfied")

	// ErrJustificationRequired accompanies ErrPrerequisitesUnsatisfied when a
	// retry with a justification would succeed. System transitions never
	// carry it since they cannot force.
	ErrJustificationRequired = errors.New("justification required")

	// ErrDuplicateActive means an active relationship with the same
	// source/name/target quadruple already exists.
	ErrDuplicateActive = errors.New("active relationship already exists")
)

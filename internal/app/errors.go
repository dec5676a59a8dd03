package app

import "errors"

// ErrNotFound and related errors describe lookup failures.
var (
	ErrNotFound         = errors.New("not found")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrStateNotFound    = errors.New("state not found")
)

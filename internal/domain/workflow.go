package domain

import (
	"fmt"
	"strings"
	"time"
)

// TransitionKind classifies how a transition may be triggered.
type TransitionKind string

// TransitionKind values.
const (
	TransitionKindManual TransitionKind = "manual"
	TransitionKindSystem TransitionKind = "system"
	TransitionKindAgent  TransitionKind = "agent"
)

// NormalizeTransitionKind canonicalizes transition kind aliases.
func NormalizeTransitionKind(kind TransitionKind) TransitionKind {
	switch strings.TrimSpace(strings.ToLower(string(kind))) {
	case "", "manual", "human", "user":
		return TransitionKindManual
	case "system", "auto":
		return TransitionKindSystem
	case "agent", "ai":
		return TransitionKindAgent
	default:
		return TransitionKind(strings.TrimSpace(strings.ToLower(string(kind))))
	}
}

// IsValidTransitionKind reports whether kind is supported.
func IsValidTransitionKind(kind TransitionKind) bool {
	switch NormalizeTransitionKind(kind) {
	case TransitionKindManual, TransitionKindSystem, TransitionKindAgent:
		return true
	default:
		return false
	}
}

// State describes one workflow state and its automatic behavior.
type State struct {
	ID       string `json:"id"`
	Initial  bool   `json:"initial"`
	Terminal bool   `json:"terminal"`

	// Timeout, when positive, bounds how long an object may sit in this
	// state before the scanner acts on it.
	Timeout time.Duration `json:"timeout,omitempty"`

	// TimeoutAction names the escalation handed to the notifier when the
	// timeout elapses and no auto transition is configured.
	TimeoutAction string `json:"timeout_action,omitempty"`

	// AutoTransitionTo, when set without a timeout, is attempted
	// unconditionally by the scanner.
	AutoTransitionTo string `json:"auto_transition_to,omitempty"`
}

// Transition defines one allowed from->to edge and its gate conditions.
type Transition struct {
	From          string         `json:"from"`
	To            string         `json:"to"`
	Kind          TransitionKind `json:"kind"`
	Prerequisites []Prerequisite `json:"prerequisites,omitempty"`
}

// WorkflowDefinition is the static state machine for one object type.
// Loaded once and treated as immutable at run time; engines receive it
// explicitly so multiple definitions can run side by side.
type WorkflowDefinition struct {
	ID          string       `json:"id"`
	ObjectType  string       `json:"object_type"`
	States      []State      `json:"states"`
	Transitions []Transition `json:"transitions"`
}

// Validate checks structural rules: at least one state, exactly one initial
// state, unique state ids, and transition endpoints that reference defined
// states.
func (w WorkflowDefinition) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidWorkflow)
	}
	if strings.TrimSpace(w.ObjectType) == "" {
		return fmt.Errorf("%w: object_type is required", ErrInvalidWorkflow)
	}
	if len(w.States) == 0 {
		return fmt.Errorf("%w: at least one state is required", ErrInvalidWorkflow)
	}

	seen := map[string]struct{}{}
	initialCount := 0
	for i, state := range w.States {
		id := strings.TrimSpace(state.ID)
		if id == "" {
			return fmt.Errorf("%w: states[%d].id is required", ErrInvalidWorkflow, i)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: duplicate state id %q", ErrInvalidWorkflow, id)
		}
		seen[id] = struct{}{}
		if state.Initial {
			initialCount++
		}
		if state.Timeout < 0 {
			return fmt.Errorf("%w: states[%d].timeout must be >= 0", ErrInvalidWorkflow, i)
		}
		if state.AutoTransitionTo != "" && state.AutoTransitionTo == id {
			return fmt.Errorf("%w: states[%d] auto transition targets itself", ErrInvalidWorkflow, i)
		}
	}
	if initialCount != 1 {
		return fmt.Errorf("%w: exactly one initial state is required, got %d", ErrInvalidWorkflow, initialCount)
	}
	for i, state := range w.States {
		if state.AutoTransitionTo == "" {
			continue
		}
		if _, ok := seen[state.AutoTransitionTo]; !ok {
			return fmt.Errorf("%w: states[%d] auto transition targets unknown state %q", ErrInvalidWorkflow, i, state.AutoTransitionTo)
		}
	}

	for i, tr := range w.Transitions {
		if _, ok := seen[tr.From]; !ok {
			return fmt.Errorf("%w: transitions[%d].from references unknown state %q", ErrInvalidWorkflow, i, tr.From)
		}
		if _, ok := seen[tr.To]; !ok {
			return fmt.Errorf("%w: transitions[%d].to references unknown state %q", ErrInvalidWorkflow, i, tr.To)
		}
		if !IsValidTransitionKind(tr.Kind) {
			return fmt.Errorf("%w: transitions[%d].kind %q", ErrInvalidWorkflow, i, tr.Kind)
		}
		for j, p := range tr.Prerequisites {
			if err := p.Validate(); err != nil {
				return fmt.Errorf("transitions[%d].prerequisites[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// Initial returns the initial state.
func (w WorkflowDefinition) Initial() (State, bool) {
	for _, state := range w.States {
		if state.Initial {
			return state, true
		}
	}
	return State{}, false
}

// State looks up a state by id.
func (w WorkflowDefinition) State(id string) (State, bool) {
	for _, state := range w.States {
		if state.ID == id {
			return state, true
		}
	}
	return State{}, false
}

// IsState reports whether tag names one of the workflow's states. The
// workflow's current state is, by convention, exactly one tag drawn from
// this set.
func (w WorkflowDefinition) IsState(tag string) bool {
	_, ok := w.State(tag)
	return ok
}

// TransitionsBetween returns every defined edge from one state to another,
// preserving definition order.
func (w WorkflowDefinition) TransitionsBetween(from, to string) []Transition {
	out := []Transition{}
	for _, tr := range w.Transitions {
		if tr.From == from && tr.To == to {
			out = append(out, tr)
		}
	}
	return out
}

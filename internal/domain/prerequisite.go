package domain

import (
	"fmt"
	"strings"
	"time"
)

// PrerequisiteKind selects one of the four condition variants.
type PrerequisiteKind string

// PrerequisiteKind values.
const (
	PrerequisiteFieldCheck   PrerequisiteKind = "field_check"
	PrerequisiteExternalAPI  PrerequisiteKind = "external_api"
	PrerequisiteTimeElapsed  PrerequisiteKind = "time_elapsed"
	PrerequisiteCustomScript PrerequisiteKind = "custom_script"
)

// FieldOp compares a live field value against the condition.
type FieldOp string

// FieldOp values.
const (
	FieldOpNotEmpty FieldOp = "not_empty"
	FieldOpEquals   FieldOp = "equals"
	FieldOpMatches  FieldOp = "matches"
)

// FieldCondition is the comparison half of a field_check prerequisite.
type FieldCondition struct {
	Op      FieldOp `json:"op"`
	Value   string  `json:"value,omitempty"`
	Pattern string  `json:"pattern,omitempty"`
}

// Prerequisite is a declarative, non-blocking gate evaluated before a
// transition. Exactly one variant is populated, selected by Kind.
type Prerequisite struct {
	Kind PrerequisiteKind `json:"kind"`

	// field_check
	Field     string         `json:"field,omitempty"`
	Condition FieldCondition `json:"condition,omitempty"`

	// external_api
	URL     string        `json:"url,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`

	// time_elapsed
	MinElapsed time.Duration `json:"min_elapsed,omitempty"`

	// custom_script names a registered predicate.
	Script string `json:"script,omitempty"`
}

// Validate checks the populated variant is structurally complete.
func (p Prerequisite) Validate() error {
	switch p.Kind {
	case PrerequisiteFieldCheck:
		if strings.TrimSpace(p.Field) == "" {
			return fmt.Errorf("%w: field_check requires a field name", ErrInvalidPrerequisite)
		}
		switch p.Condition.Op {
		case FieldOpNotEmpty:
		case FieldOpEquals:
		case FieldOpMatches:
			if strings.TrimSpace(p.Condition.Pattern) == "" {
				return fmt.Errorf("%w: matches requires a pattern", ErrInvalidPrerequisite)
			}
		default:
			return fmt.Errorf("%w: unknown field op %q", ErrInvalidPrerequisite, p.Condition.Op)
		}
	case PrerequisiteExternalAPI:
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("%w: external_api requires a url", ErrInvalidPrerequisite)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("%w: external_api timeout must be >= 0", ErrInvalidPrerequisite)
		}
	case PrerequisiteTimeElapsed:
		if p.MinElapsed <= 0 {
			return fmt.Errorf("%w: time_elapsed requires a positive duration", ErrInvalidPrerequisite)
		}
	case PrerequisiteCustomScript:
		if strings.TrimSpace(p.Script) == "" {
			return fmt.Errorf("%w: custom_script requires a script name", ErrInvalidPrerequisite)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPrerequisite, p.Kind)
	}
	return nil
}

// Describe returns a short human-readable label for report rows.
func (p Prerequisite) Describe() string {
	switch p.Kind {
	case PrerequisiteFieldCheck:
		return fmt.Sprintf("field_check(%s, %s)", p.Field, p.Condition.Op)
	case PrerequisiteExternalAPI:
		return fmt.Sprintf("external_api(%s)", p.URL)
	case PrerequisiteTimeElapsed:
		return fmt.Sprintf("time_elapsed(%s)", p.MinElapsed)
	case PrerequisiteCustomScript:
		return fmt.Sprintf("custom_script(%s)", p.Script)
	default:
		return string(p.Kind)
	}
}

// PrerequisiteResult is one evaluated gate. Failures are data, not errors.
type PrerequisiteResult struct {
	Prerequisite string `json:"prerequisite"`
	Satisfied    bool   `json:"satisfied"`
	Message      string `json:"message,omitempty"`
}

// PrerequisiteReport is the ordered evaluation snapshot for one attempt.
type PrerequisiteReport []PrerequisiteResult

// AllSatisfied reports whether every evaluated gate passed.
func (r PrerequisiteReport) AllSatisfied() bool {
	for _, result := range r {
		if !result.Satisfied {
			return false
		}
	}
	return true
}

// FailureMessages collects the messages of unsatisfied gates in order.
func (r PrerequisiteReport) FailureMessages() []string {
	out := []string{}
	for _, result := range r {
		if result.Satisfied {
			continue
		}
		msg := result.Message
		if msg == "" {
			msg = result.Prerequisite
		}
		out = append(out, msg)
	}
	return out
}

package domain

import (
	"testing"
	"time"
)

func TestPrerequisiteValidate(t *testing.T) {
	valid := []Prerequisite{
		{Kind: PrerequisiteFieldCheck, Field: "title", Condition: FieldCondition{Op: FieldOpNotEmpty}},
		{Kind: PrerequisiteFieldCheck, Field: "priority", Condition: FieldCondition{Op: FieldOpEquals, Value: "high"}},
		{Kind: PrerequisiteFieldCheck, Field: "title", Condition: FieldCondition{Op: FieldOpMatches, Pattern: "^Fix"}},
		{Kind: PrerequisiteExternalAPI, URL: "https://example.com/health"},
		{Kind: PrerequisiteExternalAPI, URL: "https://example.com/health", Timeout: 2 * time.Second},
		{Kind: PrerequisiteTimeElapsed, MinElapsed: time.Hour},
		{Kind: PrerequisiteCustomScript, Script: "has_approvals"},
	}
	for i, p := range valid {
		if err := p.Validate(); err != nil {
			t.Fatalf("valid[%d] rejected: %v", i, err)
		}
	}

	invalid := []Prerequisite{
		{Kind: "unknown"},
		{Kind: PrerequisiteFieldCheck, Condition: FieldCondition{Op: FieldOpNotEmpty}},
		{Kind: PrerequisiteFieldCheck, Field: "title", Condition: FieldCondition{Op: "weird"}},
		{Kind: PrerequisiteFieldCheck, Field: "title", Condition: FieldCondition{Op: FieldOpMatches}},
		{Kind: PrerequisiteExternalAPI},
		{Kind: PrerequisiteExternalAPI, URL: "https://example.com", Timeout: -time.Second},
		{Kind: PrerequisiteTimeElapsed},
		{Kind: PrerequisiteCustomScript},
	}
	for i, p := range invalid {
		if err := p.Validate(); err == nil {
			t.Fatalf("invalid[%d] accepted: %#v", i, p)
		}
	}
}

func TestPrerequisiteDescribe(t *testing.T) {
	p := Prerequisite{Kind: PrerequisiteFieldCheck, Field: "title", Condition: FieldCondition{Op: FieldOpNotEmpty}}
	if got := p.Describe(); got != "field_check(title, not_empty)" {
		t.Fatalf("unexpected description %q", got)
	}
	s := Prerequisite{Kind: PrerequisiteCustomScript, Script: "has_approvals"}
	if got := s.Describe(); got != "custom_script(has_approvals)" {
		t.Fatalf("unexpected description %q", got)
	}
}

func TestPrerequisiteReport(t *testing.T) {
	report := PrerequisiteReport{
		{Prerequisite: "a", Satisfied: true},
		{Prerequisite: "b", Satisfied: false, Message: "field empty"},
		{Prerequisite: "c", Satisfied: false},
	}
	if report.AllSatisfied() {
		t.Fatal("report with failures must not be satisfied")
	}
	msgs := report.FailureMessages()
	if len(msgs) != 2 || msgs[0] != "field empty" || msgs[1] != "c" {
		t.Fatalf("unexpected failure messages %v", msgs)
	}

	if !(PrerequisiteReport{}).AllSatisfied() {
		t.Fatal("empty report must be satisfied")
	}
}

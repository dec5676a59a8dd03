package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/weft/internal/domain"
)

// Engine validates and executes single state changes against immutable
// workflow definitions. Each object's tag swap runs under a per-object lock
// so a concurrent manual transition and a scanner pass cannot both observe
// the same current state and race to apply two different next tags.
type Engine struct {
	repo      Repository
	checker   *Checker
	workflows map[string]domain.WorkflowDefinition
	locks     *keyedMutex
	idGen     IDGenerator
	clock     Clock
}

// NewEngine constructs a transition engine over validated workflow
// definitions. Definitions are copied and treated as immutable afterward.
func NewEngine(repo Repository, checker *Checker, workflows []domain.WorkflowDefinition, idGen IDGenerator, clock Clock) (*Engine, error) {
	if idGen == nil {
		idGen = uuid.NewString
	}
	if clock == nil {
		clock = time.Now
	}
	byID := make(map[string]domain.WorkflowDefinition, len(workflows))
	for _, wf := range workflows {
		if err := wf.Validate(); err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wf.ID, err)
		}
		if _, ok := byID[wf.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate workflow id %q", domain.ErrInvalidWorkflow, wf.ID)
		}
		byID[wf.ID] = wf
	}
	return &Engine{
		repo:      repo,
		checker:   checker,
		workflows: byID,
		locks:     newKeyedMutex(),
		idGen:     idGen,
		clock:     clock,
	}, nil
}

// Workflow returns a definition by id.
func (e *Engine) Workflow(id string) (domain.WorkflowDefinition, bool) {
	wf, ok := e.workflows[id]
	return wf, ok
}

// Workflows returns every definition sorted by id.
func (e *Engine) Workflows() []domain.WorkflowDefinition {
	out := make([]domain.WorkflowDefinition, 0, len(e.workflows))
	for _, wf := range e.workflows {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AttemptInput holds input values for one transition attempt.
type AttemptInput struct {
	WorkflowID    string
	ObjectType    string
	ObjectID      string
	ToState       string
	Actor         domain.Actor
	Kind          domain.TransitionKind
	Justification string
}

// AttemptResult reports the outcome of one transition attempt. On a blocked
// attempt the report is still populated so callers can display it.
type AttemptResult struct {
	Success   bool                      `json:"success"`
	Forced    bool                      `json:"forced"`
	NoOp      bool                      `json:"no_op"`
	FromState string                    `json:"from_state"`
	ToState   string                    `json:"to_state"`
	Report    domain.PrerequisiteReport `json:"report,omitempty"`
}

// Attempt executes one state change following the warn-not-block policy: a
// transition with unsatisfied prerequisites proceeds only when the caller
// supplies a justification, and system-kind transitions never force.
func (e *Engine) Attempt(ctx context.Context, in AttemptInput) (AttemptResult, error) {
	wf, ok := e.workflows[in.WorkflowID]
	if !ok {
		return AttemptResult{}, ErrWorkflowNotFound
	}
	if !wf.IsState(in.ToState) {
		return AttemptResult{}, fmt.Errorf("%w: %q", ErrStateNotFound, in.ToState)
	}
	actor := in.Actor.Normalize()
	if err := actor.Validate(); err != nil {
		return AttemptResult{}, err
	}
	kind := resolveKind(in.Kind, actor)
	justification := strings.TrimSpace(in.Justification)

	unlock := e.locks.Lock(objectKey(in.ObjectType, in.ObjectID))
	defer unlock()

	fromState, err := e.currentState(ctx, wf, in.ObjectType, in.ObjectID)
	if err != nil {
		return AttemptResult{}, err
	}

	// Re-requesting the current state is a no-op success: no duplicate tag,
	// no audit entry.
	if fromState == in.ToState {
		return AttemptResult{Success: true, NoOp: true, FromState: fromState, ToState: in.ToState}, nil
	}

	edge, err := resolveEdge(wf, fromState, in.ToState, kind)
	if err != nil {
		return AttemptResult{FromState: fromState, ToState: in.ToState}, err
	}

	report := e.checker.EvaluateAll(ctx, in.ObjectType, in.ObjectID, wf.ID, edge.Prerequisites)
	forced := false
	if !report.AllSatisfied() {
		blocked := AttemptResult{FromState: fromState, ToState: in.ToState, Report: report}
		if kind == domain.TransitionKindSystem {
			return blocked, domain.ErrPrerequisitesUnsatisfied
		}
		if justification == "" {
			return blocked, fmt.Errorf("%w: %w", domain.ErrPrerequisitesUnsatisfied, domain.ErrJustificationRequired)
		}
		forced = true
	}

	now := e.clock()
	toTag, err := domain.NewTag(in.ObjectType, in.ObjectID, in.ToState, actor, now)
	if err != nil {
		return AttemptResult{}, err
	}
	record := domain.TransitionRecord{
		ID:            e.idGen(),
		ObjectType:    in.ObjectType,
		ObjectID:      in.ObjectID,
		WorkflowID:    wf.ID,
		FromState:     fromState,
		ToState:       in.ToState,
		Actor:         actor,
		Kind:          kind,
		Forced:        forced,
		Justification: justification,
		Report:        report,
		OccurredAt:    now.UTC(),
	}
	if err := e.repo.SwapTags(ctx, fromState, toTag, record); err != nil {
		return AttemptResult{}, fmt.Errorf("swap state tags: %w", err)
	}
	return AttemptResult{Success: true, Forced: forced, FromState: fromState, ToState: in.ToState, Report: report}, nil
}

// CheckResult is the dry-run view used by UIs before committing.
type CheckResult struct {
	Allowed bool                      `json:"allowed"`
	Warning string                    `json:"warning,omitempty"`
	Report  domain.PrerequisiteReport `json:"report,omitempty"`
}

// Check evaluates a prospective transition without mutating anything. The
// kind defaults from the actor exactly as Attempt does, so the dry run
// resolves the same edge the commit will. The actor is not required to
// carry an id since nothing is written.
func (e *Engine) Check(ctx context.Context, workflowID, objectType, objectID, toState string, actor domain.Actor, kind domain.TransitionKind) (CheckResult, error) {
	wf, ok := e.workflows[workflowID]
	if !ok {
		return CheckResult{}, ErrWorkflowNotFound
	}
	if !wf.IsState(toState) {
		return CheckResult{}, fmt.Errorf("%w: %q", ErrStateNotFound, toState)
	}
	fromState, err := e.currentState(ctx, wf, objectType, objectID)
	if err != nil {
		return CheckResult{}, err
	}
	if fromState == toState {
		return CheckResult{Allowed: true}, nil
	}
	edge, err := resolveEdge(wf, fromState, toState, resolveKind(kind, actor.Normalize()))
	if err != nil {
		return CheckResult{Allowed: false, Warning: err.Error()}, nil
	}
	report := e.checker.EvaluateAll(ctx, objectType, objectID, wf.ID, edge.Prerequisites)
	result := CheckResult{Allowed: true, Report: report}
	if !report.AllSatisfied() {
		result.Warning = "prerequisites unsatisfied: transition requires a justification"
	}
	return result, nil
}

// Start places an untagged object into the workflow's initial state and
// records the entry. Objects already in the workflow are left untouched.
func (e *Engine) Start(ctx context.Context, workflowID, objectType, objectID string, actor domain.Actor) (AttemptResult, error) {
	wf, ok := e.workflows[workflowID]
	if !ok {
		return AttemptResult{}, ErrWorkflowNotFound
	}
	actor = actor.Normalize()
	if err := actor.Validate(); err != nil {
		return AttemptResult{}, err
	}
	initial, ok := wf.Initial()
	if !ok {
		return AttemptResult{}, fmt.Errorf("%w: workflow %q has no initial state", domain.ErrInvalidWorkflow, wf.ID)
	}

	unlock := e.locks.Lock(objectKey(objectType, objectID))
	defer unlock()

	current, err := e.stateTag(ctx, wf, objectType, objectID)
	if err != nil {
		return AttemptResult{}, err
	}
	if current != "" {
		return AttemptResult{Success: true, NoOp: true, FromState: current, ToState: current}, nil
	}

	now := e.clock()
	toTag, err := domain.NewTag(objectType, objectID, initial.ID, actor, now)
	if err != nil {
		return AttemptResult{}, err
	}
	record := domain.TransitionRecord{
		ID:         e.idGen(),
		ObjectType: objectType,
		ObjectID:   objectID,
		WorkflowID: wf.ID,
		ToState:    initial.ID,
		Actor:      actor,
		Kind:       resolveKind("", actor),
		OccurredAt: now.UTC(),
	}
	if err := e.repo.SwapTags(ctx, "", toTag, record); err != nil {
		return AttemptResult{}, fmt.Errorf("apply initial state tag: %w", err)
	}
	return AttemptResult{Success: true, ToState: initial.ID}, nil
}

// History returns the object's transition records ordered by timestamp.
func (e *Engine) History(ctx context.Context, objectType, objectID string) ([]domain.TransitionRecord, error) {
	return e.repo.ListTransitionRecords(ctx, objectType, objectID)
}

// ListObjectsInState returns the ids of objects currently tagged with the
// given workflow state.
func (e *Engine) ListObjectsInState(ctx context.Context, workflowID, state string) ([]string, error) {
	wf, ok := e.workflows[workflowID]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	if !wf.IsState(state) {
		return nil, fmt.Errorf("%w: %q", ErrStateNotFound, state)
	}
	return e.repo.FindByTag(ctx, wf.ObjectType, state)
}

// CurrentState resolves the object's current state in the workflow.
func (e *Engine) CurrentState(ctx context.Context, workflowID, objectType, objectID string) (string, error) {
	wf, ok := e.workflows[workflowID]
	if !ok {
		return "", ErrWorkflowNotFound
	}
	return e.currentState(ctx, wf, objectType, objectID)
}

// currentState returns the single workflow tag applied to the object, or
// ErrNotFound when the object has not entered the workflow.
func (e *Engine) currentState(ctx context.Context, wf domain.WorkflowDefinition, objectType, objectID string) (string, error) {
	state, err := e.stateTag(ctx, wf, objectType, objectID)
	if err != nil {
		return "", err
	}
	if state == "" {
		return "", fmt.Errorf("%w: object %s/%s has no %q state", ErrNotFound, objectType, objectID, wf.ID)
	}
	return state, nil
}

// stateTag scans the object's tags for workflow state tags. More than one is
// an invariant violation the store should have prevented.
func (e *Engine) stateTag(ctx context.Context, wf domain.WorkflowDefinition, objectType, objectID string) (string, error) {
	tags, err := e.repo.ListTags(ctx, objectType, objectID)
	if err != nil {
		return "", err
	}
	current := ""
	for _, tag := range tags {
		if !wf.IsState(tag.Tag) {
			continue
		}
		if current != "" {
			return "", fmt.Errorf("object %s/%s holds two %q states (%q, %q)", objectType, objectID, wf.ID, current, tag.Tag)
		}
		current = tag.Tag
	}
	return current, nil
}

// resolveKind derives a transition kind from the actor when the caller does
// not set one explicitly.
func resolveKind(kind domain.TransitionKind, actor domain.Actor) domain.TransitionKind {
	if strings.TrimSpace(string(kind)) != "" {
		return domain.NormalizeTransitionKind(kind)
	}
	switch actor.Kind {
	case domain.ActorKindAgent:
		return domain.TransitionKindAgent
	case domain.ActorKindSystem:
		return domain.TransitionKindSystem
	default:
		return domain.TransitionKindManual
	}
}

// resolveEdge picks the transition matching the requested kind, preferring
// an exact kind match and rejecting ambiguous configurations.
func resolveEdge(wf domain.WorkflowDefinition, from, to string, kind domain.TransitionKind) (domain.Transition, error) {
	edges := wf.TransitionsBetween(from, to)
	if len(edges) == 0 {
		return domain.Transition{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	matching := []domain.Transition{}
	for _, edge := range edges {
		if domain.NormalizeTransitionKind(edge.Kind) == kind {
			matching = append(matching, edge)
		}
	}
	switch {
	case len(matching) == 1:
		return matching[0], nil
	case len(matching) > 1:
		return domain.Transition{}, fmt.Errorf("%w: %d %s edges %s -> %s", domain.ErrAmbiguousTransition, len(matching), kind, from, to)
	case len(edges) == 1:
		return edges[0], nil
	default:
		return domain.Transition{}, fmt.Errorf("%w: %d edges %s -> %s, none matching kind %s", domain.ErrAmbiguousTransition, len(edges), from, to, kind)
	}
}

// objectKey builds the per-object lock key.
func objectKey(objectType, objectID string) string {
	return objectType + "/" + objectID
}

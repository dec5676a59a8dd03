package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hylla/weft/internal/domain"
)

type fakeRepo struct {
	mu      sync.Mutex
	tags    map[string][]domain.Tag
	history map[string][]domain.TransitionRecord
	rels    map[string]domain.Relationship
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tags:    map[string][]domain.Tag{},
		history: map[string][]domain.TransitionRecord{},
		rels:    map[string]domain.Relationship{},
	}
}

func fakeKey(objectType, objectID string) string {
	return objectType + "/" + objectID
}

func (f *fakeRepo) ApplyTag(_ context.Context, tag domain.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applyTagLocked(tag)
}

func (f *fakeRepo) applyTagLocked(tag domain.Tag) error {
	key := fakeKey(tag.ObjectType, tag.ObjectID)
	for _, existing := range f.tags[key] {
		if existing.Tag == tag.Tag {
			return domain.ErrDuplicateTag
		}
	}
	f.tags[key] = append(f.tags[key], tag)
	return nil
}

func (f *fakeRepo) RemoveTag(_ context.Context, objectType, objectID, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeTagLocked(objectType, objectID, tag)
	return nil
}

func (f *fakeRepo) removeTagLocked(objectType, objectID, tag string) {
	key := fakeKey(objectType, objectID)
	kept := f.tags[key][:0]
	for _, existing := range f.tags[key] {
		if existing.Tag != tag {
			kept = append(kept, existing)
		}
	}
	f.tags[key] = kept
}

func (f *fakeRepo) ListTags(_ context.Context, objectType, objectID string) ([]domain.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Tag(nil), f.tags[fakeKey(objectType, objectID)]...), nil
}

func (f *fakeRepo) FindByTag(_ context.Context, objectType, tag string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, tags := range f.tags {
		for _, existing := range tags {
			if existing.ObjectType == objectType && existing.Tag == tag {
				out = append(out, existing.ObjectID)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) SwapTags(_ context.Context, fromTag string, toTag domain.Tag, record domain.TransitionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fromTag != "" {
		f.removeTagLocked(toTag.ObjectType, toTag.ObjectID, fromTag)
	}
	if err := f.applyTagLocked(toTag); err != nil {
		return err
	}
	key := fakeKey(record.ObjectType, record.ObjectID)
	f.history[key] = append(f.history[key], record)
	return nil
}

func (f *fakeRepo) AppendTransitionRecord(_ context.Context, record domain.TransitionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeKey(record.ObjectType, record.ObjectID)
	f.history[key] = append(f.history[key], record)
	return nil
}

func (f *fakeRepo) ListTransitionRecords(_ context.Context, objectType, objectID string) ([]domain.TransitionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TransitionRecord(nil), f.history[fakeKey(objectType, objectID)]...), nil
}

func (f *fakeRepo) CreateRelationship(_ context.Context, rel domain.Relationship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rels {
		if existing.Active() &&
			existing.SourceType == rel.SourceType && existing.SourceID == rel.SourceID &&
			existing.Name == rel.Name &&
			existing.TargetType == rel.TargetType && existing.TargetID == rel.TargetID {
			return domain.ErrDuplicateActive
		}
	}
	f.rels[rel.ID] = rel
	return nil
}

func (f *fakeRepo) GetRelationship(_ context.Context, relID string) (domain.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rel, ok := f.rels[relID]
	if !ok {
		return domain.Relationship{}, ErrNotFound
	}
	return rel, nil
}

func (f *fakeRepo) RemoveRelationship(_ context.Context, relID string, removedAt time.Time, removedBy domain.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rel, ok := f.rels[relID]
	if !ok {
		return ErrNotFound
	}
	if rel.RemovedAt != nil {
		return nil
	}
	rel.RemovedAt = &removedAt
	rel.RemovedBy = &removedBy
	f.rels[relID] = rel
	return nil
}

func (f *fakeRepo) ListRelationshipsBySource(_ context.Context, sourceType, sourceID, name string, activeOnly bool) ([]domain.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Relationship{}
	for _, rel := range f.rels {
		if rel.SourceType != sourceType || rel.SourceID != sourceID {
			continue
		}
		if name != "" && rel.Name != name {
			continue
		}
		if activeOnly && !rel.Active() {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

func (f *fakeRepo) ListRelationshipsByTarget(_ context.Context, targetType, targetID, name string, activeOnly bool) ([]domain.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Relationship{}
	for _, rel := range f.rels {
		if rel.TargetType != targetType || rel.TargetID != targetID {
			continue
		}
		if name != "" && rel.Name != name {
			continue
		}
		if activeOnly && !rel.Active() {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

func (f *fakeRepo) ListRelationshipsByName(_ context.Context, name string, activeOnly bool) ([]domain.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Relationship{}
	for _, rel := range f.rels {
		if rel.Name != name {
			continue
		}
		if activeOnly && !rel.Active() {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

type fakeRecords struct {
	mu     sync.Mutex
	fields map[string]map[string]string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{fields: map[string]map[string]string{}}
}

func (f *fakeRecords) put(objectType, objectID, field, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeKey(objectType, objectID)
	if f.fields[key] == nil {
		f.fields[key] = map[string]string{}
	}
	f.fields[key][field] = value
}

func (f *fakeRecords) ReadField(_ context.Context, objectType, objectID, field string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.fields[fakeKey(objectType, objectID)]
	if !ok {
		return "", ErrNotFound
	}
	return record[field], nil
}

func (f *fakeRecords) CurrentDisplayValue(ctx context.Context, objectType, objectID string) (string, error) {
	return f.ReadField(ctx, objectType, objectID, "display")
}

func (f *fakeRecords) WriteField(_ context.Context, objectType, objectID, field, value string) error {
	f.put(objectType, objectID, field, value)
	return nil
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) IDGenerator {
	counter := 0
	return func() string {
		counter++
		return fmt.Sprintf("%s-%d", prefix, counter)
	}
}

func ticketWorkflow() domain.WorkflowDefinition {
	return domain.WorkflowDefinition{
		ID:         "ticket",
		ObjectType: "ticket",
		States: []domain.State{
			{ID: "new", Initial: true},
			{ID: "in_progress"},
			{ID: "review"},
			{ID: "done", Terminal: true},
		},
		Transitions: []domain.Transition{
			{From: "new", To: "in_progress", Kind: domain.TransitionKindManual},
			{From: "in_progress", To: "new", Kind: domain.TransitionKindManual},
			{From: "in_progress", To: "review", Kind: domain.TransitionKindManual, Prerequisites: []domain.Prerequisite{
				{Kind: domain.PrerequisiteFieldCheck, Field: "description", Condition: domain.FieldCondition{Op: domain.FieldOpNotEmpty}},
			}},
			{From: "review", To: "done", Kind: domain.TransitionKindManual},
		},
	}
}

func newTestEngine(t *testing.T, repo *fakeRepo, records *fakeRecords, workflows ...domain.WorkflowDefinition) *Engine {
	t.Helper()
	if len(workflows) == 0 {
		workflows = []domain.WorkflowDefinition{ticketWorkflow()}
	}
	checker := NewChecker(records, repo, fixedClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)))
	engine, err := NewEngine(repo, checker, workflows, sequentialIDs("rec"), fixedClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func TestStartAppliesInitialState(t *testing.T) {
	repo := newFakeRepo()
	engine := newTestEngine(t, repo, newFakeRecords())

	result, err := engine.Start(context.Background(), "ticket", "ticket", "t1", domain.HumanActor("alice"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !result.Success || result.ToState != "new" {
		t.Fatalf("unexpected start result %#v", result)
	}

	state, err := engine.CurrentState(context.Background(), "ticket", "ticket", "t1")
	if err != nil {
		t.Fatalf("CurrentState() error = %v", err)
	}
	if state != "new" {
		t.Fatalf("expected state new, got %q", state)
	}

	// Starting twice leaves the object where it is.
	again, err := engine.Start(context.Background(), "ticket", "ticket", "t1", domain.HumanActor("alice"))
	if err != nil {
		t.Fatalf("Start() second call error = %v", err)
	}
	if !again.NoOp {
		t.Fatalf("expected no-op on second start, got %#v", again)
	}
	history, err := engine.History(context.Background(), "ticket", "t1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(history))
	}
}

func TestAttemptMovesStateAndRecordsAudit(t *testing.T) {
	repo := newFakeRepo()
	engine := newTestEngine(t, repo, newFakeRecords())
	ctx := context.Background()

	if _, err := engine.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	result, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket",
		ObjectType: "ticket",
		ObjectID:   "t1",
		ToState:    "in_progress",
		Actor:      domain.HumanActor("alice"),
	})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if !result.Success || result.FromState != "new" || result.ToState != "in_progress" {
		t.Fatalf("unexpected attempt result %#v", result)
	}

	// Exactly one workflow state tag remains after the swap.
	tags, err := repo.ListTags(ctx, "ticket", "t1")
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(tags) != 1 || tags[0].Tag != "in_progress" {
		t.Fatalf("expected single in_progress tag, got %#v", tags)
	}

	ids, err := engine.ListObjectsInState(ctx, "ticket", "in_progress")
	if err != nil {
		t.Fatalf("ListObjectsInState() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "t1" {
		t.Fatalf("unexpected objects in state %v", ids)
	}

	history, err := engine.History(ctx, "ticket", "t1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(history))
	}
	last := history[len(history)-1]
	if last.FromState != "new" || last.ToState != "in_progress" || last.Actor.ID != "alice" {
		t.Fatalf("unexpected audit record %#v", last)
	}
	if last.Kind != domain.TransitionKindManual {
		t.Fatalf("expected manual kind, got %q", last.Kind)
	}
}

func TestAttemptSameStateIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	engine := newTestEngine(t, repo, newFakeRecords())
	ctx := context.Background()

	if _, err := engine.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	result, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket",
		ObjectType: "ticket",
		ObjectID:   "t1",
		ToState:    "new",
		Actor:      domain.HumanActor("alice"),
	})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if !result.NoOp || !result.Success {
		t.Fatalf("expected no-op success, got %#v", result)
	}
	history, _ := engine.History(ctx, "ticket", "t1")
	if len(history) != 1 {
		t.Fatalf("no-op must not append audit records, got %d", len(history))
	}
}

func TestAttemptUndefinedEdgeFails(t *testing.T) {
	repo := newFakeRepo()
	engine := newTestEngine(t, repo, newFakeRecords())
	ctx := context.Background()

	if _, err := engine.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket",
		ObjectType: "ticket",
		ObjectID:   "t1",
		ToState:    "done",
		Actor:      domain.HumanActor("alice"),
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	state, _ := engine.CurrentState(ctx, "ticket", "ticket", "t1")
	if state != "new" {
		t.Fatalf("state must be unchanged, got %q", state)
	}
}

func TestWarnNotBlockRequiresJustification(t *testing.T) {
	repo := newFakeRepo()
	records := newFakeRecords()
	records.put("ticket", "t1", "description", "")
	engine := newTestEngine(t, repo, records)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "in_progress",
		Actor: domain.HumanActor("alice"),
	}); err != nil {
		t.Fatalf("Attempt(new->in_progress) error = %v", err)
	}

	// Unsatisfied prerequisite without a justification blocks and reports.
	result, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "review",
		Actor: domain.HumanActor("alice"),
	})
	if !errors.Is(err, domain.ErrPrerequisitesUnsatisfied) {
		t.Fatalf("expected ErrPrerequisitesUnsatisfied, got %v", err)
	}
	if !errors.Is(err, domain.ErrJustificationRequired) {
		t.Fatalf("blocked manual attempt must signal a justification would help, got %v", err)
	}
	if len(result.Report) != 1 || result.Report.AllSatisfied() {
		t.Fatalf("expected failing report, got %#v", result.Report)
	}
	if state, _ := engine.CurrentState(ctx, "ticket", "ticket", "t1"); state != "in_progress" {
		t.Fatalf("blocked attempt must not change state, got %q", state)
	}

	// The same attempt with a justification forces through.
	forced, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "review",
		Actor:         domain.HumanActor("alice"),
		Justification: "customer escalation, description pending",
	})
	if err != nil {
		t.Fatalf("forced Attempt() error = %v", err)
	}
	if !forced.Success || !forced.Forced {
		t.Fatalf("expected forced success, got %#v", forced)
	}

	history, _ := engine.History(ctx, "ticket", "t1")
	last := history[len(history)-1]
	if !last.Forced || last.Justification == "" || len(last.Report) != 1 {
		t.Fatalf("forced transition must record justification and report, got %#v", last)
	}
}

func TestSatisfiedPrerequisiteNeedsNoJustification(t *testing.T) {
	repo := newFakeRepo()
	records := newFakeRecords()
	records.put("ticket", "t1", "description", "fix the flaky login test")
	engine := newTestEngine(t, repo, records)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "in_progress",
		Actor: domain.HumanActor("alice"),
	}); err != nil {
		t.Fatalf("Attempt(new->in_progress) error = %v", err)
	}

	result, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "review",
		Actor: domain.HumanActor("alice"),
	})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if !result.Success || result.Forced {
		t.Fatalf("expected clean success, got %#v", result)
	}
}

func TestSystemKindNeverForces(t *testing.T) {
	repo := newFakeRepo()
	records := newFakeRecords()
	records.put("ticket", "t1", "description", "")
	engine := newTestEngine(t, repo, records)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "in_progress",
		Actor: domain.HumanActor("alice"),
	}); err != nil {
		t.Fatalf("Attempt(new->in_progress) error = %v", err)
	}

	_, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "review",
		Actor:         domain.SystemActor(),
		Kind:          domain.TransitionKindSystem,
		Justification: "system justification must be ignored",
	})
	if !errors.Is(err, domain.ErrPrerequisitesUnsatisfied) {
		t.Fatalf("system transition with failing prerequisite must block, got %v", err)
	}
	if errors.Is(err, domain.ErrJustificationRequired) {
		t.Fatalf("system transitions cannot be forced, yet error suggests a justification: %v", err)
	}
}

func TestAmbiguousEdgesRejected(t *testing.T) {
	wf := ticketWorkflow()
	wf.Transitions = append(wf.Transitions, domain.Transition{
		From: "new", To: "in_progress", Kind: domain.TransitionKindManual,
	})
	repo := newFakeRepo()
	engine := newTestEngine(t, repo, newFakeRecords(), wf)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "in_progress",
		Actor: domain.HumanActor("alice"),
	})
	if !errors.Is(err, domain.ErrAmbiguousTransition) {
		t.Fatalf("expected ErrAmbiguousTransition, got %v", err)
	}
}

func TestKindDisambiguatesParallelEdges(t *testing.T) {
	wf := ticketWorkflow()
	// A second automatic edge over the same endpoints with a gate.
	wf.Transitions = append(wf.Transitions, domain.Transition{
		From: "new", To: "in_progress", Kind: domain.TransitionKindSystem,
		Prerequisites: []domain.Prerequisite{
			{Kind: domain.PrerequisiteFieldCheck, Field: "triaged", Condition: domain.FieldCondition{Op: domain.FieldOpEquals, Value: "yes"}},
		},
	})
	repo := newFakeRepo()
	records := newFakeRecords()
	records.put("ticket", "t1", "triaged", "no")
	engine := newTestEngine(t, repo, records, wf)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// System kind resolves to the gated system edge and blocks there.
	_, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "in_progress",
		Actor: domain.SystemActor(), Kind: domain.TransitionKindSystem,
	})
	if !errors.Is(err, domain.ErrPrerequisitesUnsatisfied) {
		t.Fatalf("expected system edge to block, got %v", err)
	}

	// Manual kind resolves to the ungated manual edge and passes.
	result, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "in_progress",
		Actor: domain.HumanActor("alice"),
	})
	if err != nil || !result.Success {
		t.Fatalf("expected manual edge to pass, got result=%#v err=%v", result, err)
	}
}

func TestCheckResolvesSameEdgeAsAttempt(t *testing.T) {
	wf := ticketWorkflow()
	// A second automatic edge over the same endpoints with a gate.
	wf.Transitions = append(wf.Transitions, domain.Transition{
		From: "new", To: "in_progress", Kind: domain.TransitionKindSystem,
		Prerequisites: []domain.Prerequisite{
			{Kind: domain.PrerequisiteFieldCheck, Field: "triaged", Condition: domain.FieldCondition{Op: domain.FieldOpEquals, Value: "yes"}},
		},
	})
	repo := newFakeRepo()
	records := newFakeRecords()
	records.put("ticket", "t1", "triaged", "no")
	engine := newTestEngine(t, repo, records, wf)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A human caller with no explicit kind takes the ungated manual edge;
	// the dry run must predict that, not warn about the system edge's gate.
	check, err := engine.Check(ctx, "ticket", "ticket", "t1", "in_progress", domain.HumanActor("alice"), "")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !check.Allowed || check.Warning != "" || len(check.Report) != 0 {
		t.Fatalf("dry run must match the manual attempt, got %#v", check)
	}
	result, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "in_progress",
		Actor: domain.HumanActor("alice"),
	})
	if err != nil || !result.Success || result.Forced {
		t.Fatalf("expected clean success matching the dry run, got result=%#v err=%v", result, err)
	}

	// A system caller resolves to the gated system edge on both paths.
	repo2 := newFakeRepo()
	engine2 := newTestEngine(t, repo2, records, wf)
	if _, err := engine2.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	check, err = engine2.Check(ctx, "ticket", "ticket", "t1", "in_progress", domain.SystemActor(), "")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !check.Allowed || check.Warning == "" || len(check.Report) != 1 {
		t.Fatalf("dry run must evaluate the system edge's gate, got %#v", check)
	}
	if _, err := engine2.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "in_progress",
		Actor: domain.SystemActor(),
	}); !errors.Is(err, domain.ErrPrerequisitesUnsatisfied) {
		t.Fatalf("expected system attempt to block like its dry run, got %v", err)
	}
}

func TestCheckIsDryRun(t *testing.T) {
	repo := newFakeRepo()
	records := newFakeRecords()
	records.put("ticket", "t1", "description", "")
	engine := newTestEngine(t, repo, records)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "ticket", "ticket", "t1", domain.HumanActor("alice")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := engine.Attempt(ctx, AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "in_progress",
		Actor: domain.HumanActor("alice"),
	}); err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}

	result, err := engine.Check(ctx, "ticket", "ticket", "t1", "review", domain.HumanActor("alice"), domain.TransitionKindManual)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !result.Allowed || result.Warning == "" {
		t.Fatalf("expected allowed-with-warning, got %#v", result)
	}
	if state, _ := engine.CurrentState(ctx, "ticket", "ticket", "t1"); state != "in_progress" {
		t.Fatalf("Check() must not change state, got %q", state)
	}

	undefined, err := engine.Check(ctx, "ticket", "ticket", "t1", "done", domain.HumanActor("alice"), domain.TransitionKindManual)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if undefined.Allowed || undefined.Warning == "" {
		t.Fatalf("undefined edge must report not allowed, got %#v", undefined)
	}
}

func TestUnknownWorkflowAndState(t *testing.T) {
	engine := newTestEngine(t, newFakeRepo(), newFakeRecords())
	ctx := context.Background()

	if _, err := engine.Attempt(ctx, AttemptInput{WorkflowID: "nope", ObjectType: "ticket", ObjectID: "t1", ToState: "new", Actor: domain.HumanActor("a")}); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
	if _, err := engine.Attempt(ctx, AttemptInput{WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "t1", ToState: "nope", Actor: domain.HumanActor("a")}); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
	if _, err := engine.ListObjectsInState(ctx, "ticket", "nope"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestCurrentStateDetectsDoubleTag(t *testing.T) {
	repo := newFakeRepo()
	engine := newTestEngine(t, repo, newFakeRecords())
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for _, state := range []string{"new", "review"} {
		tag, err := domain.NewTag("ticket", "t1", state, domain.HumanActor("alice"), now)
		if err != nil {
			t.Fatalf("NewTag() error = %v", err)
		}
		if err := repo.ApplyTag(ctx, tag); err != nil {
			t.Fatalf("ApplyTag() error = %v", err)
		}
	}
	if _, err := engine.CurrentState(ctx, "ticket", "ticket", "t1"); err == nil {
		t.Fatal("expected error for object holding two workflow states")
	}
}

func TestAttemptWithoutEnteringWorkflow(t *testing.T) {
	engine := newTestEngine(t, newFakeRepo(), newFakeRecords())
	_, err := engine.Attempt(context.Background(), AttemptInput{
		WorkflowID: "ticket", ObjectType: "ticket", ObjectID: "ghost", ToState: "in_progress",
		Actor: domain.HumanActor("alice"),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveKindDerivesFromActor(t *testing.T) {
	if got := resolveKind("", domain.AgentActor("bot")); got != domain.TransitionKindAgent {
		t.Fatalf("expected agent kind, got %q", got)
	}
	if got := resolveKind("", domain.SystemActor()); got != domain.TransitionKindSystem {
		t.Fatalf("expected system kind, got %q", got)
	}
	if got := resolveKind("", domain.HumanActor("alice")); got != domain.TransitionKindManual {
		t.Fatalf("expected manual kind, got %q", got)
	}
	if got := resolveKind("auto", domain.HumanActor("alice")); got != domain.TransitionKindSystem {
		t.Fatalf("explicit kind must win, got %q", got)
	}
}

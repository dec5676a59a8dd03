package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hylla/weft/internal/domain"
)

// defaultExternalTimeout bounds external_api calls when the prerequisite
// does not set its own timeout.
const defaultExternalTimeout = 5 * time.Second

// maxExternalTimeout caps per-prerequisite timeouts so a misconfigured
// check can never hang a caller.
const maxExternalTimeout = 30 * time.Second

// Checker evaluates declarative prerequisites against an object's live
// field values, its transition history, or an external check. Evaluation
// never mutates state and never raises past its boundary: every outcome is
// a result value, so scan loops keep making progress across many objects.
type Checker struct {
	records    RecordReader
	repo       Repository
	scripts    map[string]Predicate
	httpClient *http.Client
	clock      Clock
}

// NewChecker constructs a checker over the record reader and history store.
func NewChecker(records RecordReader, repo Repository, clock Clock) *Checker {
	if clock == nil {
		clock = time.Now
	}
	return &Checker{
		records:    records,
		repo:       repo,
		scripts:    map[string]Predicate{},
		httpClient: &http.Client{},
		clock:      clock,
	}
}

// RegisterScript installs a named predicate for custom_script prerequisites.
func (c *Checker) RegisterScript(name string, predicate Predicate) {
	name = strings.TrimSpace(name)
	if name == "" || predicate == nil {
		return
	}
	c.scripts[name] = predicate
}

// EvaluateAll evaluates every prerequisite in order without short-circuiting;
// the full report is needed for the forced-transition flow and the audit
// record.
func (c *Checker) EvaluateAll(ctx context.Context, objectType, objectID, workflowID string, prereqs []domain.Prerequisite) domain.PrerequisiteReport {
	report := make(domain.PrerequisiteReport, 0, len(prereqs))
	for _, p := range prereqs {
		report = append(report, c.Evaluate(ctx, objectType, objectID, workflowID, p))
	}
	return report
}

// Evaluate runs one prerequisite and returns its result. Failures of any
// kind, including transport errors and timeouts, count as unsatisfied.
func (c *Checker) Evaluate(ctx context.Context, objectType, objectID, workflowID string, p domain.Prerequisite) domain.PrerequisiteResult {
	result := domain.PrerequisiteResult{Prerequisite: p.Describe()}
	switch p.Kind {
	case domain.PrerequisiteFieldCheck:
		result.Satisfied, result.Message = c.evaluateFieldCheck(ctx, objectType, objectID, p)
	case domain.PrerequisiteExternalAPI:
		result.Satisfied, result.Message = c.evaluateExternalAPI(ctx, p)
	case domain.PrerequisiteTimeElapsed:
		result.Satisfied, result.Message = c.evaluateTimeElapsed(ctx, objectType, objectID, workflowID, p)
	case domain.PrerequisiteCustomScript:
		result.Satisfied, result.Message = c.evaluateCustomScript(ctx, objectType, objectID, p)
	default:
		result.Message = fmt.Sprintf("unknown prerequisite kind %q", p.Kind)
	}
	return result
}

// evaluateFieldCheck compares the live field value at evaluation time.
func (c *Checker) evaluateFieldCheck(ctx context.Context, objectType, objectID string, p domain.Prerequisite) (bool, string) {
	value, err := c.records.ReadField(ctx, objectType, objectID, p.Field)
	if err != nil {
		return false, fmt.Sprintf("read field %q: %v", p.Field, err)
	}
	switch p.Condition.Op {
	case domain.FieldOpNotEmpty:
		if strings.TrimSpace(value) == "" {
			return false, fmt.Sprintf("field %q is empty", p.Field)
		}
		return true, ""
	case domain.FieldOpEquals:
		if value != p.Condition.Value {
			return false, fmt.Sprintf("field %q is %q, expected %q", p.Field, value, p.Condition.Value)
		}
		return true, ""
	case domain.FieldOpMatches:
		re, err := regexp.Compile(p.Condition.Pattern)
		if err != nil {
			return false, fmt.Sprintf("invalid pattern %q: %v", p.Condition.Pattern, err)
		}
		if !re.MatchString(value) {
			return false, fmt.Sprintf("field %q does not match %q", p.Field, p.Condition.Pattern)
		}
		return true, ""
	default:
		return false, fmt.Sprintf("unknown field op %q", p.Condition.Op)
	}
}

// evaluateExternalAPI issues a bounded GET; any non-2xx response, transport
// error, or timeout counts as unsatisfied.
func (c *Checker) evaluateExternalAPI(ctx context.Context, p domain.Prerequisite) (bool, string) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultExternalTimeout
	}
	if timeout > maxExternalTimeout {
		timeout = maxExternalTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false, fmt.Sprintf("build external check request: %v", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return false, fmt.Sprintf("external check timed out after %s", timeout)
		}
		return false, fmt.Sprintf("external check failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Sprintf("external check returned status %d", resp.StatusCode)
	}
	return true, ""
}

// evaluateTimeElapsed compares now against the timestamp the current-state
// tag was applied, taken from transition history rather than object creation.
func (c *Checker) evaluateTimeElapsed(ctx context.Context, objectType, objectID, workflowID string, p domain.Prerequisite) (bool, string) {
	enteredAt, ok, err := LatestStateEntry(ctx, c.repo, objectType, objectID, workflowID)
	if err != nil {
		return false, fmt.Sprintf("read transition history: %v", err)
	}
	if !ok {
		return false, "no transition history for object"
	}
	elapsed := c.clock().Sub(enteredAt)
	if elapsed < p.MinElapsed {
		return false, fmt.Sprintf("in state for %s, requires %s", elapsed.Truncate(time.Second), p.MinElapsed)
	}
	return true, ""
}

// evaluateCustomScript delegates to an injected predicate and propagates its
// result verbatim. A missing or erroring predicate is unsatisfied.
func (c *Checker) evaluateCustomScript(ctx context.Context, objectType, objectID string, p domain.Prerequisite) (bool, string) {
	predicate, ok := c.scripts[p.Script]
	if !ok {
		return false, fmt.Sprintf("no predicate registered for %q", p.Script)
	}
	satisfied, message, err := predicate(ctx, Snapshot{
		ObjectType: objectType,
		ObjectID:   objectID,
		Records:    c.records,
	})
	if err != nil {
		return false, err.Error()
	}
	return satisfied, message
}

// LatestStateEntry returns when the object entered its current workflow
// state, based on the most recent transition record for that workflow.
func LatestStateEntry(ctx context.Context, repo Repository, objectType, objectID, workflowID string) (time.Time, bool, error) {
	history, err := repo.ListTransitionRecords(ctx, objectType, objectID)
	if err != nil {
		return time.Time{}, false, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].WorkflowID == workflowID {
			return history[i].OccurredAt, true, nil
		}
	}
	return time.Time{}, false, nil
}

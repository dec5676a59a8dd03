package app

import (
	"context"
	"errors"
	"io"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/weft/internal/domain"
)

// maxCascade bounds consecutive auto-transitions for one object within a
// single scan pass, so a misconfigured chain of zero-duration auto states
// cannot loop; further progress waits for the next scan.
const maxCascade = 3

// defaultScanInterval is used when the caller does not configure one.
const defaultScanInterval = 30 * time.Second

// AutoEngine periodically scans objects in non-terminal states and drives
// timeout-driven and unconditional auto-transitions through the transition
// engine. Each object is processed independently: one object's failure never
// aborts the scan for others.
type AutoEngine struct {
	engine   *Engine
	repo     Repository
	notifier Notifier
	interval time.Duration
	clock    Clock
	logger   *charmLog.Logger
}

// NewAutoEngine constructs the scanner. A nil notifier disables timeout
// escalation; a nil logger discards output.
func NewAutoEngine(engine *Engine, repo Repository, notifier Notifier, interval time.Duration, clock Clock, logger *charmLog.Logger) *AutoEngine {
	if interval <= 0 {
		interval = defaultScanInterval
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = charmLog.New(io.Discard)
	}
	return &AutoEngine{
		engine:   engine,
		repo:     repo,
		notifier: notifier,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Run loops Scan on the configured interval until the context is canceled.
func (a *AutoEngine) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("auto transition scan loop started", "interval", a.interval)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("auto transition scan loop stopped")
			return
		case <-ticker.C:
			a.Scan(ctx)
		}
	}
}

// Scan runs one pass over every workflow. Cancellation is checked between
// objects, never mid-transition: a started transition always reaches its
// atomic commit point.
func (a *AutoEngine) Scan(ctx context.Context) {
	for _, wf := range a.engine.Workflows() {
		hops := map[string]int{}
		for _, state := range wf.States {
			if state.Terminal {
				continue
			}
			if state.AutoTransitionTo == "" && state.Timeout <= 0 {
				continue
			}
			objectIDs, err := a.engine.ListObjectsInState(ctx, wf.ID, state.ID)
			if err != nil {
				a.logger.Error("list objects in state failed", "workflow", wf.ID, "state", state.ID, "err", err)
				continue
			}
			for _, objectID := range objectIDs {
				if ctx.Err() != nil {
					return
				}
				a.followChain(ctx, wf, objectID, hops)
			}
		}
	}
}

// followChain advances one object through consecutive auto-transitions,
// stopping at the cascade bound, a terminal or non-auto state, or a blocked
// transition.
func (a *AutoEngine) followChain(ctx context.Context, wf domain.WorkflowDefinition, objectID string, hops map[string]int) {
	for hops[objectID] < maxCascade {
		current, err := a.engine.CurrentState(ctx, wf.ID, wf.ObjectType, objectID)
		if err != nil {
			a.logger.Error("resolve current state failed", "workflow", wf.ID, "object_id", objectID, "err", err)
			return
		}
		state, ok := wf.State(current)
		if !ok || state.Terminal {
			return
		}

		toState := ""
		switch {
		case state.AutoTransitionTo != "" && state.Timeout <= 0:
			// Unconditional auto transition.
			toState = state.AutoTransitionTo
		case state.Timeout > 0:
			enteredAt, found, err := LatestStateEntry(ctx, a.repo, wf.ObjectType, objectID, wf.ID)
			if err != nil {
				a.logger.Error("read state entry time failed", "workflow", wf.ID, "object_id", objectID, "err", err)
				return
			}
			if !found || a.clock().Sub(enteredAt) < state.Timeout {
				return
			}
			if state.AutoTransitionTo == "" {
				a.escalate(ctx, wf.ObjectType, objectID, state)
				return
			}
			toState = state.AutoTransitionTo
		default:
			return
		}

		result, err := a.engine.Attempt(ctx, AttemptInput{
			WorkflowID: wf.ID,
			ObjectType: wf.ObjectType,
			ObjectID:   objectID,
			ToState:    toState,
			Actor:      domain.SystemActor(),
			Kind:       domain.TransitionKindSystem,
		})
		if err != nil {
			// System transitions never force past unsatisfied prerequisites.
			if errors.Is(err, domain.ErrPrerequisitesUnsatisfied) {
				a.logger.Debug("auto transition blocked", "workflow", wf.ID, "object_id", objectID, "to_state", toState, "failures", result.Report.FailureMessages())
			} else {
				a.logger.Error("auto transition failed", "workflow", wf.ID, "object_id", objectID, "to_state", toState, "err", err)
			}
			return
		}
		hops[objectID]++
		a.logger.Info("auto transition applied", "workflow", wf.ID, "object_id", objectID, "from", result.FromState, "to", result.ToState, "hop", hops[objectID])
	}
}

// escalate hands the timeout action to the notifier, fire-and-forget.
func (a *AutoEngine) escalate(ctx context.Context, objectType, objectID string, state domain.State) {
	if a.notifier == nil || state.TimeoutAction == "" {
		return
	}
	a.logger.Info("state timeout escalation", "object_type", objectType, "object_id", objectID, "state", state.ID, "action", state.TimeoutAction)
	a.notifier.NotifyTimeout(ctx, objectType, objectID, state.ID, state.TimeoutAction)
}

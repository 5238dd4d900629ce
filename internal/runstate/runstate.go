// Package runstate owns run identity and the per-step checkpoint rows that
// make interrupted runs resumable.
package runstate

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"riskradar/internal/clock"
	"riskradar/internal/core"
	"riskradar/internal/logger"
)

// Store is the manager's slice of the store.
type Store interface {
	InitRunSteps(runID string) error
	MarkStepRunning(runID string, step core.StepName, now time.Time) error
	CompleteStep(runID string, step core.StepName, status core.StepStatus,
		articleCount, matchCount int, metadata string, errMsg string, now time.Time) error
	PauseRunningSteps(runID, reason string, now time.Time) (int64, error)
	StepStates(runID string) ([]core.PipelineStepState, error)
}

// Manager tracks step lifecycles for one or more runs.
type Manager struct {
	store Store
	clock clock.Clock
}

// New creates a run manager.
func New(store Store, clk clock.Clock) *Manager {
	return &Manager{store: store, clock: clk}
}

// NewRunID allocates a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Begin inserts pending checkpoint rows for every canonical step. Calling
// it again for an existing run (a resume) leaves prior rows untouched.
func (m *Manager) Begin(runID string) error {
	return m.store.InitRunSteps(runID)
}

// StepCounts is what a step reports on completion.
type StepCounts struct {
	Articles int
	Matches  int
	Metadata string
}

// RunStep executes one step under checkpoint tracking: running on entry,
// completed or failed on exit. A context cancellation leaves the row to the
// pause path and propagates the error unchanged.
func (m *Manager) RunStep(ctx context.Context, runID string, step core.StepName,
	fn func(ctx context.Context) (StepCounts, error)) error {
	if err := m.store.MarkStepRunning(runID, step, m.clock.Now()); err != nil {
		return err
	}
	logger.Info("Step started", "run_id", runID, "step", string(step))

	counts, err := fn(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if cerr := m.store.CompleteStep(runID, step, core.StepFailed,
			counts.Articles, counts.Matches, counts.Metadata, err.Error(), m.clock.Now()); cerr != nil {
			logger.Error("Failed to record step failure", cerr, "step", string(step))
		}
		logger.Error("Step failed", err, "run_id", runID, "step", string(step))
		return err
	}

	if err := m.store.CompleteStep(runID, step, core.StepCompleted,
		counts.Articles, counts.Matches, counts.Metadata, "", m.clock.Now()); err != nil {
		return err
	}
	logger.Info("Step completed", "run_id", runID, "step", string(step),
		"articles", counts.Articles, "matches", counts.Matches)
	return nil
}

// Pause transitions the run's running steps to paused. Returns how many
// steps were paused.
func (m *Manager) Pause(runID, reason string) (int64, error) {
	return m.store.PauseRunningSteps(runID, reason, m.clock.Now())
}

// NextResumableStep returns the earliest step in canonical order that is
// not completed. A running row counts as resumable too: the only way to
// observe one here is a previous process that died before its pause write
// landed. ok is false when the run is fully completed.
func (m *Manager) NextResumableStep(runID string) (core.StepName, bool, error) {
	states, err := m.store.StepStates(runID)
	if err != nil {
		return "", false, err
	}
	for _, st := range states {
		switch st.Status {
		case core.StepPending, core.StepRunning, core.StepFailed, core.StepPaused:
			return st.StepName, true, nil
		}
	}
	return "", false, nil
}

// WithInterrupt derives a context cancelled on SIGINT/SIGTERM. The caller
// pauses the run after the cancellation has unwound; doing it here would
// race process exit.
func (m *Manager) WithInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// PauseInterrupted marks the run's running steps paused after a
// cancellation and logs how to resume. Called synchronously once the run
// has returned, so the write cannot be lost to process exit.
func (m *Manager) PauseInterrupted(runID string) {
	n, err := m.Pause(runID, "interrupted by signal")
	if err != nil {
		logger.Error("Failed to pause steps on interrupt", err, "run_id", runID)
		return
	}
	if n > 0 {
		logger.Warn("Run interrupted",
			"run_id", runID, "paused_steps", n,
			"resume", "re-run with --run-id "+runID)
	}
}

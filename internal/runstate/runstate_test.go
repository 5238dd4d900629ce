package runstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"riskradar/internal/clock"
	"riskradar/internal/core"
)

type stepRecord struct {
	status   core.StepStatus
	articles int
	matches  int
	errMsg   string
}

type runStore struct {
	steps map[core.StepName]*stepRecord
}

func newRunStore() *runStore {
	return &runStore{steps: make(map[core.StepName]*stepRecord)}
}

func (s *runStore) InitRunSteps(runID string) error {
	for _, step := range core.StepOrder {
		if _, ok := s.steps[step]; !ok {
			s.steps[step] = &stepRecord{status: core.StepPending}
		}
	}
	return nil
}

func (s *runStore) MarkStepRunning(runID string, step core.StepName, now time.Time) error {
	s.steps[step].status = core.StepRunning
	return nil
}

func (s *runStore) CompleteStep(runID string, step core.StepName, status core.StepStatus,
	articleCount, matchCount int, metadata string, errMsg string, now time.Time) error {
	rec := s.steps[step]
	rec.status = status
	rec.articles = articleCount
	rec.matches = matchCount
	rec.errMsg = errMsg
	return nil
}

func (s *runStore) PauseRunningSteps(runID, reason string, now time.Time) (int64, error) {
	var n int64
	for _, rec := range s.steps {
		if rec.status == core.StepRunning {
			rec.status = core.StepPaused
			rec.errMsg = reason
			n++
		}
	}
	return n, nil
}

func (s *runStore) StepStates(runID string) ([]core.PipelineStepState, error) {
	var states []core.PipelineStepState
	for _, step := range core.StepOrder {
		rec, ok := s.steps[step]
		if !ok {
			continue
		}
		states = append(states, core.PipelineStepState{
			RunID: runID, StepName: step, Status: rec.status,
		})
	}
	return states, nil
}

func newManager(store Store) *Manager {
	return New(store, &clock.Fake{Current: time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)})
}

func TestRunStepCompleted(t *testing.T) {
	store := newRunStore()
	m := newManager(store)
	if err := m.Begin("run-1"); err != nil {
		t.Fatal(err)
	}

	err := m.RunStep(context.Background(), "run-1", core.StepCollection,
		func(ctx context.Context) (StepCounts, error) {
			return StepCounts{Articles: 12, Matches: 3}, nil
		})
	if err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	rec := store.steps[core.StepCollection]
	if rec.status != core.StepCompleted || rec.articles != 12 || rec.matches != 3 {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestRunStepFailed(t *testing.T) {
	store := newRunStore()
	m := newManager(store)
	if err := m.Begin("run-1"); err != nil {
		t.Fatal(err)
	}

	stepErr := errors.New("feed unreachable")
	err := m.RunStep(context.Background(), "run-1", core.StepCollection,
		func(ctx context.Context) (StepCounts, error) {
			return StepCounts{}, stepErr
		})
	if !errors.Is(err, stepErr) {
		t.Fatalf("expected step error, got %v", err)
	}
	rec := store.steps[core.StepCollection]
	if rec.status != core.StepFailed || rec.errMsg != "feed unreachable" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestRunStepCancellationLeavesRunning(t *testing.T) {
	store := newRunStore()
	m := newManager(store)
	if err := m.Begin("run-1"); err != nil {
		t.Fatal(err)
	}

	err := m.RunStep(context.Background(), "run-1", core.StepScraping,
		func(ctx context.Context) (StepCounts, error) {
			return StepCounts{}, context.Canceled
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// The pause path owns the transition; RunStep must not mark it failed.
	if store.steps[core.StepScraping].status != core.StepRunning {
		t.Errorf("expected step left running, got %s", store.steps[core.StepScraping].status)
	}

	if n, err := m.Pause("run-1", "interrupted"); err != nil || n != 1 {
		t.Fatalf("Pause = (%d, %v), want (1, nil)", n, err)
	}
	if store.steps[core.StepScraping].status != core.StepPaused {
		t.Error("expected step paused after Pause")
	}
}

func TestNextResumableStep(t *testing.T) {
	store := newRunStore()
	m := newManager(store)
	if err := m.Begin("run-1"); err != nil {
		t.Fatal(err)
	}

	store.steps[core.StepCollection].status = core.StepCompleted
	store.steps[core.StepFiltering].status = core.StepCompleted
	store.steps[core.StepScraping].status = core.StepPaused
	store.steps[core.StepSummarization].status = core.StepPending

	step, ok, err := m.NextResumableStep("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || step != core.StepScraping {
		t.Errorf("expected scraping, got %s (ok=%v)", step, ok)
	}

	for _, rec := range store.steps {
		rec.status = core.StepCompleted
	}
	if _, ok, _ := m.NextResumableStep("run-1"); ok {
		t.Error("fully completed run must not be resumable")
	}
}

func TestStaleRunningStepIsResumable(t *testing.T) {
	store := newRunStore()
	m := newManager(store)
	if err := m.Begin("run-1"); err != nil {
		t.Fatal(err)
	}

	// A process killed before its pause write lands leaves the step running.
	store.steps[core.StepCollection].status = core.StepCompleted
	store.steps[core.StepFiltering].status = core.StepRunning

	step, ok, err := m.NextResumableStep("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || step != core.StepFiltering {
		t.Errorf("expected the stale running step, got %s (ok=%v)", step, ok)
	}
}

func TestPauseInterrupted(t *testing.T) {
	store := newRunStore()
	m := newManager(store)
	if err := m.Begin("run-1"); err != nil {
		t.Fatal(err)
	}
	store.steps[core.StepScraping].status = core.StepRunning

	m.PauseInterrupted("run-1")
	if store.steps[core.StepScraping].status != core.StepPaused {
		t.Error("expected running step paused")
	}
	if store.steps[core.StepScraping].errMsg != "interrupted by signal" {
		t.Errorf("unexpected pause reason %q", store.steps[core.StepScraping].errMsg)
	}
}

func TestNewRunIDUnique(t *testing.T) {
	if NewRunID() == NewRunID() {
		t.Error("run ids must be unique")
	}
}

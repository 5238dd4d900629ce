package store

import (
	"database/sql"
	"fmt"
	"time"

	"riskradar/internal/core"
)

// InitRunSteps inserts a pending row for every canonical step of a run.
// Already-present rows (a resumed run) are left untouched.
func (s *Store) InitRunSteps(runID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, step := range core.StepOrder {
		if _, err := tx.Exec(`
			INSERT INTO pipeline_step_state (run_id, step_name, status)
			VALUES (?, ?, ?)
			ON CONFLICT(run_id, step_name) DO NOTHING`,
			runID, step, core.StepPending); err != nil {
			return fmt.Errorf("failed to init step %s: %w", step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step init: %w", err)
	}
	return nil
}

// MarkStepRunning transitions a step to running and stamps its start time.
func (s *Store) MarkStepRunning(runID string, step core.StepName, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE pipeline_step_state
		SET status = ?, started_at = ?, error_message = NULL
		WHERE run_id = ? AND step_name = ?`,
		core.StepRunning, now.UTC(), runID, step)
	if err != nil {
		return fmt.Errorf("failed to mark step %s running: %w", step, err)
	}
	return nil
}

// CompleteStep records a terminal status with counts and metadata.
func (s *Store) CompleteStep(runID string, step core.StepName, status core.StepStatus,
	articleCount, matchCount int, metadata string, errMsg string, now time.Time) error {
	if metadata == "" {
		metadata = "{}"
	}
	_, err := s.db.Exec(`
		UPDATE pipeline_step_state
		SET status = ?, completed_at = ?, article_count = ?, match_count = ?, metadata = ?, error_message = ?
		WHERE run_id = ? AND step_name = ?`,
		status, now.UTC(), articleCount, matchCount, metadata, nullString(errMsg), runID, step)
	if err != nil {
		return fmt.Errorf("failed to complete step %s: %w", step, err)
	}
	return nil
}

// PauseRunningSteps transitions any running steps of the run to paused.
// Used on interrupt; the reason lands in error_message.
func (s *Store) PauseRunningSteps(runID, reason string, now time.Time) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE pipeline_step_state
		SET status = ?, error_message = ?, completed_at = ?
		WHERE run_id = ? AND status = ?`,
		core.StepPaused, reason, now.UTC(), runID, core.StepRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to pause running steps: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// StepStates returns all step rows of a run in canonical order.
func (s *Store) StepStates(runID string) ([]core.PipelineStepState, error) {
	rows, err := s.db.Query(`
		SELECT run_id, step_name, status, started_at, completed_at, metadata,
		       article_count, match_count, error_message, can_resume
		FROM pipeline_step_state WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step states: %w", err)
	}
	defer rows.Close()

	byName := make(map[core.StepName]core.PipelineStepState)
	for rows.Next() {
		var st core.PipelineStepState
		var started, completed sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&st.RunID, &st.StepName, &st.Status, &started, &completed,
			&st.Metadata, &st.ArticleCount, &st.MatchCount, &errMsg, &st.CanResume); err != nil {
			return nil, fmt.Errorf("failed to scan step state: %w", err)
		}
		if started.Valid {
			t := started.Time.UTC()
			st.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time.UTC()
			st.CompletedAt = &t
		}
		st.ErrorMessage = errMsg.String
		byName[st.StepName] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var ordered []core.PipelineStepState
	for _, name := range core.StepOrder {
		if st, ok := byName[name]; ok {
			ordered = append(ordered, st)
		}
	}
	return ordered, nil
}

// PurgeStepStatesBefore removes rows of runs whose steps all completed
// before the cutoff. Running or paused steps are never purged.
func (s *Store) PurgeStepStatesBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM pipeline_step_state
		WHERE status NOT IN (?, ?)
		  AND COALESCE(completed_at, started_at) < ?
		  AND run_id NOT IN (
			SELECT DISTINCT run_id FROM pipeline_step_state WHERE status IN (?, ?)
		  )`,
		core.StepRunning, core.StepPaused, cutoff.UTC(), core.StepRunning, core.StepPaused)
	if err != nil {
		return 0, fmt.Errorf("failed to purge step states: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

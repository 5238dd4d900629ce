package store

import (
	"database/sql"
	"fmt"
	"time"

	"riskradar/internal/core"
)

const itemColumns = `id, source, raw_url, normalized_url, url_hash, title, published_at,
	first_seen_at, pipeline_stage, pipeline_run_id, triage_topic, triage_confidence,
	is_match, selected_for_processing, selection_rank`

// scanItem reads one item row.
func scanItem(row interface{ Scan(...any) error }) (core.Item, error) {
	var item core.Item
	var title, runID, topic sql.NullString
	var published sql.NullTime
	var confidence sql.NullFloat64
	var rank sql.NullInt64

	err := row.Scan(
		&item.ID, &item.Source, &item.RawURL, &item.NormalizedURL, &item.URLHash,
		&title, &published, &item.FirstSeenAt, &item.PipelineStage, &runID,
		&topic, &confidence, &item.IsMatch, &item.SelectedForProcessing, &rank,
	)
	if err != nil {
		return core.Item{}, err
	}

	item.Title = title.String
	item.PipelineRunID = runID.String
	item.TriageTopic = topic.String
	if published.Valid {
		t := published.Time.UTC()
		item.PublishedAt = &t
	}
	if confidence.Valid {
		c := confidence.Float64
		item.TriageConfidence = &c
	}
	if rank.Valid {
		r := int(rank.Int64)
		item.SelectionRank = &r
	}
	return item, nil
}

func (s *Store) queryItems(query string, args ...any) ([]core.Item, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// InsertItems inserts candidate items, ignoring normalized-URL conflicts.
// It returns how many rows were actually inserted.
func (s *Store) InsertItems(items []core.Item) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO items (source, raw_url, normalized_url, url_hash, title, published_at, first_seen_at, pipeline_stage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_url) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, item := range items {
		res, err := stmt.Exec(
			item.Source, item.RawURL, item.NormalizedURL, item.URLHash,
			nullString(item.Title), nullTime(item.PublishedAt),
			item.FirstSeenAt.UTC(), core.StageCollected,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert item %s: %w", item.NormalizedURL, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit items: %w", err)
	}
	return inserted, nil
}

// ItemByID fetches a single item.
func (s *Store) ItemByID(id int64) (*core.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item %d: %w", id, err)
	}
	return &item, nil
}

// UnclassifiedItems returns items never triaged (triage_topic IS NULL),
// newest first.
func (s *Store) UnclassifiedItems(limit int) ([]core.Item, error) {
	return s.queryItems(`
		SELECT `+itemColumns+` FROM items
		WHERE triage_topic IS NULL
		ORDER BY first_seen_at DESC
		LIMIT ?`, limit)
}

// RecentItems returns items first seen at or after the cutoff, newest first.
// Used by the force-refresh classifier mode.
func (s *Store) RecentItems(since time.Time, limit int) ([]core.Item, error) {
	return s.queryItems(`
		SELECT `+itemColumns+` FROM items
		WHERE first_seen_at >= ?
		ORDER BY first_seen_at DESC
		LIMIT ?`, since.UTC(), limit)
}

// UpdateItemTriage records the classifier verdict on an item and advances
// its stage to matched or filtered_out.
func (s *Store) UpdateItemTriage(id int64, topic string, confidence float64, isMatch bool, runID string) error {
	stage := core.StageFilteredOut
	if isMatch {
		stage = core.StageMatched
	}
	_, err := s.db.Exec(`
		UPDATE items
		SET triage_topic = ?, triage_confidence = ?, is_match = ?, pipeline_run_id = ?, pipeline_stage = ?
		WHERE id = ?`,
		topic, confidence, isMatch, runID, stage, id)
	if err != nil {
		return fmt.Errorf("failed to update triage for item %d: %w", id, err)
	}
	return nil
}

// MatchedItemsForRun returns matched items of a run at or above the
// confidence threshold, ordered by confidence desc then first_seen desc.
func (s *Store) MatchedItemsForRun(runID string, threshold float64) ([]core.Item, error) {
	return s.queryItems(`
		SELECT `+itemColumns+` FROM items
		WHERE pipeline_run_id = ? AND is_match = 1 AND triage_confidence >= ?
		ORDER BY triage_confidence DESC, first_seen_at DESC`, runID, threshold)
}

// AssignSelection ranks the given item ids 1..N inside one serial
// transaction and marks everything else matched in the run as
// matched_not_selected. The ids must already be in rank order.
func (s *Store) AssignSelection(runID string, rankedIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Clear any previous ranks for the run so re-execution stays contiguous.
	if _, err := tx.Exec(`
		UPDATE items SET selection_rank = NULL, selected_for_processing = 0
		WHERE pipeline_run_id = ? AND selection_rank IS NOT NULL`, runID); err != nil {
		return fmt.Errorf("failed to clear previous ranks: %w", err)
	}

	for rank, id := range rankedIDs {
		if _, err := tx.Exec(`
			UPDATE items
			SET selection_rank = ?, selected_for_processing = 1, pipeline_stage = ?
			WHERE id = ? AND pipeline_run_id = ?`,
			rank+1, core.StageSelected, id, runID); err != nil {
			return fmt.Errorf("failed to assign rank %d to item %d: %w", rank+1, id, err)
		}
	}

	if _, err := tx.Exec(`
		UPDATE items SET pipeline_stage = ?
		WHERE pipeline_run_id = ? AND is_match = 1 AND selected_for_processing = 0 AND pipeline_stage = ?`,
		core.StageMatchedNotChosen, runID, core.StageMatched); err != nil {
		return fmt.Errorf("failed to mark not-selected items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit selection: %w", err)
	}
	return nil
}

// ItemsNeedingExtraction returns matched items without a successful
// extraction. Failed attempts do not block a retry.
func (s *Store) ItemsNeedingExtraction() ([]core.Item, error) {
	return s.queryItems(`
		SELECT ` + itemColumns + ` FROM items i
		WHERE i.is_match = 1
		  AND i.pipeline_stage = 'selected'
		  AND NOT EXISTS (
			SELECT 1 FROM extracted_articles e
			WHERE e.item_id = i.id AND e.extraction_method != 'failed'
		  )
		ORDER BY i.selection_rank ASC`)
}

// UpdateItemStage advances an item's stage.
func (s *Store) UpdateItemStage(id int64, stage core.Stage) error {
	_, err := s.db.Exec(`UPDATE items SET pipeline_stage = ? WHERE id = ?`, stage, id)
	if err != nil {
		return fmt.Errorf("failed to update stage for item %d: %w", id, err)
	}
	return nil
}

// MatchedItemsWithExtractBetween returns matched items with a successful
// extraction whose published_at (or first_seen_at when unpublished) falls in
// [start, end). Input of the title-cluster deduplicator.
func (s *Store) MatchedItemsWithExtractBetween(start, end time.Time) ([]core.Item, error) {
	return s.queryItems(`
		SELECT `+itemColumns+` FROM items i
		WHERE i.is_match = 1
		  AND EXISTS (
			SELECT 1 FROM extracted_articles e
			WHERE e.item_id = i.id AND e.extraction_method != 'failed'
		  )
		  AND COALESCE(i.published_at, i.first_seen_at) >= ?
		  AND COALESCE(i.published_at, i.first_seen_at) < ?`,
		start.UTC(), end.UTC())
}

// FunnelCounts returns per-stage item counts for one run.
func (s *Store) FunnelCounts(runID string) (map[core.Stage]int, error) {
	rows, err := s.db.Query(`
		SELECT pipeline_stage, COUNT(*) FROM items
		WHERE pipeline_run_id = ?
		GROUP BY pipeline_stage`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query funnel counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.Stage]int)
	for rows.Next() {
		var stage core.Stage
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("failed to scan funnel count: %w", err)
		}
		counts[stage] = n
	}
	return counts, rows.Err()
}

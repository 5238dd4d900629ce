package store

import (
	"database/sql"
	"fmt"
	"time"

	"riskradar/internal/core"
)

// SaveExtractedArticle persists a successful extraction and advances the
// item to the scraped stage in the same transaction.
func (s *Store) SaveExtractedArticle(a core.ExtractedArticle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO extracted_articles (item_id, extracted_text, extraction_method, extracted_at, failure_count, last_failure_reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			extracted_text = excluded.extracted_text,
			extraction_method = excluded.extraction_method,
			extracted_at = excluded.extracted_at`,
		a.ItemID, a.ExtractedText, a.ExtractionMethod, a.ExtractedAt.UTC(),
		a.FailureCount, nullString(a.LastFailureReason))
	if err != nil {
		return fmt.Errorf("failed to save extracted article %d: %w", a.ItemID, err)
	}

	if _, err := tx.Exec(`UPDATE items SET pipeline_stage = ? WHERE id = ?`,
		core.StageScraped, a.ItemID); err != nil {
		return fmt.Errorf("failed to advance item %d to scraped: %w", a.ItemID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit extraction: %w", err)
	}
	return nil
}

// RecordExtractionFailure increments the failure counter for an item.
// The item stays at stage selected and can be retried on a later run.
func (s *Store) RecordExtractionFailure(itemID int64, reason string, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO extracted_articles (item_id, extracted_text, extraction_method, extracted_at, failure_count, last_failure_reason)
		VALUES (?, '', 'failed', ?, 1, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			failure_count = failure_count + 1,
			last_failure_reason = excluded.last_failure_reason,
			extracted_at = excluded.extracted_at`,
		itemID, now.UTC(), reason)
	if err != nil {
		return fmt.Errorf("failed to record extraction failure for item %d: %w", itemID, err)
	}
	return nil
}

// GetExtractedArticle returns the extraction row for an item, or nil if the
// item has never produced text (failure-only rows are still returned, with
// method failed).
func (s *Store) GetExtractedArticle(itemID int64) (*core.ExtractedArticle, error) {
	row := s.db.QueryRow(`
		SELECT item_id, extracted_text, extraction_method, extracted_at, failure_count, last_failure_reason
		FROM extracted_articles WHERE item_id = ?`, itemID)

	var a core.ExtractedArticle
	var extractedAt sql.NullTime
	var reason sql.NullString
	err := row.Scan(&a.ItemID, &a.ExtractedText, &a.ExtractionMethod, &extractedAt, &a.FailureCount, &reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan extracted article %d: %w", itemID, err)
	}
	if extractedAt.Valid {
		a.ExtractedAt = extractedAt.Time.UTC()
	}
	a.LastFailureReason = reason.String
	return &a, nil
}

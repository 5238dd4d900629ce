package store

import (
	"fmt"
	"time"

	"riskradar/internal/core"
)

// SignaturesForDate returns topic signatures of a day ordered by
// (run_sequence, created_at) ascending.
func (s *Store) SignaturesForDate(date string) ([]core.TopicSignature, error) {
	rows, err := s.db.Query(`
		SELECT signature_id, date, article_summary, topic_theme, source_article_id, run_sequence, created_at
		FROM topic_signatures WHERE date = ?
		ORDER BY run_sequence ASC, created_at ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures: %w", err)
	}
	defer rows.Close()

	var sigs []core.TopicSignature
	for rows.Next() {
		var sig core.TopicSignature
		if err := rows.Scan(&sig.SignatureID, &sig.Date, &sig.ArticleSummary,
			&sig.TopicTheme, &sig.SourceArticleID, &sig.RunSequence, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		sig.CreatedAt = sig.CreatedAt.UTC()
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// MaxRunSequence returns the highest run_sequence stored for a day, 0 when
// none exist.
func (s *Store) MaxRunSequence(date string) (int, error) {
	var seq int
	err := s.db.QueryRow(`
		SELECT COALESCE(MAX(run_sequence), 0) FROM topic_signatures WHERE date = ?`, date).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to query max run sequence: %w", err)
	}
	return seq, nil
}

// InsertSignatures stores a batch of new topic signatures.
func (s *Store) InsertSignatures(sigs []core.TopicSignature) error {
	if len(sigs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO topic_signatures (signature_id, date, article_summary, topic_theme, source_article_id, run_sequence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare signature insert: %w", err)
	}
	defer stmt.Close()

	for _, sig := range sigs {
		if _, err := stmt.Exec(sig.SignatureID, sig.Date, sig.ArticleSummary,
			sig.TopicTheme, sig.SourceArticleID, sig.RunSequence, sig.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert signature %s: %w", sig.SignatureID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit signatures: %w", err)
	}
	return nil
}

// PurgeSignaturesBefore removes signatures with date strictly before the
// cutoff day (YYYY-MM-DD). Returns the number of removed rows.
func (s *Store) PurgeSignaturesBefore(cutoffDate string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM topic_signatures WHERE date < ?`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to purge signatures: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LogDeduplication appends one cross-run dedup audit row.
func (s *Store) LogDeduplication(entry core.DeduplicationLogEntry) error {
	var confidence any
	if entry.ConfidenceScore != nil {
		confidence = *entry.ConfidenceScore
	}
	_, err := s.db.Exec(`
		INSERT INTO dedup_log (date, new_article_id, matched_signature_id, decision, confidence_score, processing_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Date, entry.NewArticleID, nullString(entry.MatchedSignatureID),
		entry.Decision, confidence, entry.ProcessingTime.Milliseconds(), entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to log dedup decision: %w", err)
	}
	return nil
}

// SignatureRetentionCutoff computes the cutoff day for a retention window.
func SignatureRetentionCutoff(today time.Time, days int) string {
	return today.AddDate(0, 0, -days).Format("2006-01-02")
}

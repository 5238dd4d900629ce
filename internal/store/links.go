package store

import (
	"database/sql"
	"fmt"
	"time"

	"riskradar/internal/core"
)

// GetProcessedLink returns the memoized triage decision for a
// (url_hash, topic) pair. Absence means "unknown", never "rejected".
func (s *Store) GetProcessedLink(urlHash, topic string) (*core.ProcessedLink, error) {
	row := s.db.QueryRow(`
		SELECT url_hash, url, topic, processed_at, result, confidence
		FROM processed_links WHERE url_hash = ? AND topic = ?`, urlHash, topic)

	var link core.ProcessedLink
	err := row.Scan(&link.URLHash, &link.URL, &link.Topic, &link.ProcessedAt, &link.Result, &link.Confidence)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan processed link: %w", err)
	}
	link.ProcessedAt = link.ProcessedAt.UTC()
	return &link, nil
}

// UpsertProcessedLink records a triage decision. Concurrent inserts for the
// same pair resolve by last write.
func (s *Store) UpsertProcessedLink(link core.ProcessedLink) error {
	_, err := s.db.Exec(`
		INSERT INTO processed_links (url_hash, url, topic, processed_at, result, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_hash, topic) DO UPDATE SET
			processed_at = excluded.processed_at,
			result = excluded.result,
			confidence = excluded.confidence`,
		link.URLHash, link.URL, link.Topic, link.ProcessedAt.UTC(), link.Result, link.Confidence)
	if err != nil {
		return fmt.Errorf("failed to upsert processed link %s: %w", link.URLHash, err)
	}
	return nil
}

// PurgeProcessedLinksBefore removes memoized decisions older than the cutoff.
func (s *Store) PurgeProcessedLinksBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM processed_links WHERE processed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge processed links: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

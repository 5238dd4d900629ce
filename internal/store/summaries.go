package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"riskradar/internal/core"
)

// SaveSummary persists a structured summary and advances the item to the
// summarized stage in the same transaction.
func (s *Store) SaveSummary(sum core.Summary) error {
	keyPoints, err := json.Marshal(sum.KeyPoints)
	if err != nil {
		return fmt.Errorf("failed to marshal key points: %w", err)
	}
	entities, err := json.Marshal(sum.Entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO summaries (item_id, topic, model, summary, key_points, entities, created_at, topic_already_covered, cross_run_cluster_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			topic = excluded.topic,
			model = excluded.model,
			summary = excluded.summary,
			key_points = excluded.key_points,
			entities = excluded.entities,
			created_at = excluded.created_at`,
		sum.ItemID, sum.Topic, sum.Model, sum.Summary, string(keyPoints), string(entities),
		sum.CreatedAt.UTC(), sum.TopicAlreadyCovered, nullString(sum.CrossRunClusterID))
	if err != nil {
		return fmt.Errorf("failed to save summary for item %d: %w", sum.ItemID, err)
	}

	if _, err := tx.Exec(`UPDATE items SET pipeline_stage = ? WHERE id = ?`,
		core.StageSummarized, sum.ItemID); err != nil {
		return fmt.Errorf("failed to advance item %d to summarized: %w", sum.ItemID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit summary: %w", err)
	}
	return nil
}

func scanSummary(row interface{ Scan(...any) error }) (core.Summary, error) {
	var sum core.Summary
	var keyPoints, entities string
	var clusterID sql.NullString

	err := row.Scan(&sum.ItemID, &sum.Topic, &sum.Model, &sum.Summary,
		&keyPoints, &entities, &sum.CreatedAt, &sum.TopicAlreadyCovered, &clusterID)
	if err != nil {
		return core.Summary{}, err
	}

	if err := json.Unmarshal([]byte(keyPoints), &sum.KeyPoints); err != nil {
		return core.Summary{}, fmt.Errorf("failed to unmarshal key points: %w", err)
	}
	if err := json.Unmarshal([]byte(entities), &sum.Entities); err != nil {
		return core.Summary{}, fmt.Errorf("failed to unmarshal entities: %w", err)
	}
	sum.CrossRunClusterID = clusterID.String
	sum.CreatedAt = sum.CreatedAt.UTC()
	return sum, nil
}

const summaryColumns = `item_id, topic, model, summary, key_points, entities, created_at, topic_already_covered, cross_run_cluster_id`

func (s *Store) querySummaries(query string, args ...any) ([]core.Summary, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var sums []core.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

// GetSummary fetches one summary by item id.
func (s *Store) GetSummary(itemID int64) (*core.Summary, error) {
	row := s.db.QueryRow(`SELECT `+summaryColumns+` FROM summaries WHERE item_id = ?`, itemID)
	sum, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary %d: %w", itemID, err)
	}
	return &sum, nil
}

// SummarizationCandidate pairs an item with its extracted text.
type SummarizationCandidate struct {
	Item core.Item
	Text string
}

// SummarizationCandidates returns matched items with a successful extraction
// of at least minLength characters, no summary yet, that are either
// unclustered or primary within their title cluster. Ordered by triage
// confidence descending.
func (s *Store) SummarizationCandidates(minLength int) ([]SummarizationCandidate, error) {
	rows, err := s.db.Query(`
		SELECT `+itemColumns+`, e.extracted_text
		FROM items i
		JOIN extracted_articles e ON e.item_id = i.id AND e.extraction_method != 'failed'
		WHERE i.is_match = 1
		  AND LENGTH(e.extracted_text) >= ?
		  AND NOT EXISTS (SELECT 1 FROM summaries s WHERE s.item_id = i.id)
		  AND NOT EXISTS (
			SELECT 1 FROM article_clusters c
			WHERE c.article_id = i.id AND c.clustering_method = ? AND c.is_primary = 0
		  )
		ORDER BY i.triage_confidence DESC`,
		minLength, core.ClusteringGPTTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to query summarization candidates: %w", err)
	}
	defer rows.Close()

	var candidates []SummarizationCandidate
	for rows.Next() {
		var c SummarizationCandidate
		var title, runID, topic sql.NullString
		var published sql.NullTime
		var confidence sql.NullFloat64
		var rank sql.NullInt64
		err := rows.Scan(
			&c.Item.ID, &c.Item.Source, &c.Item.RawURL, &c.Item.NormalizedURL, &c.Item.URLHash,
			&title, &published, &c.Item.FirstSeenAt, &c.Item.PipelineStage, &runID,
			&topic, &confidence, &c.Item.IsMatch, &c.Item.SelectedForProcessing, &rank,
			&c.Text,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Item.Title = title.String
		c.Item.PipelineRunID = runID.String
		c.Item.TriageTopic = topic.String
		if published.Valid {
			t := published.Time.UTC()
			c.Item.PublishedAt = &t
		}
		if confidence.Valid {
			f := confidence.Float64
			c.Item.TriageConfidence = &f
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// UncoveredSummariesBetween returns summaries created in [start, end) that
// are not marked as covering an earlier topic and have not produced a topic
// signature yet. Signed summaries were already handled by an earlier
// deduplication pass and must not be re-compared against their own
// signatures.
func (s *Store) UncoveredSummariesBetween(start, end time.Time) ([]core.Summary, error) {
	return s.querySummaries(`
		SELECT `+summaryColumns+` FROM summaries
		WHERE created_at >= ? AND created_at < ?
		  AND topic_already_covered = 0
		  AND NOT EXISTS (
			SELECT 1 FROM topic_signatures ts WHERE ts.source_article_id = item_id
		  )
		ORDER BY created_at ASC`, start.UTC(), end.UTC())
}

// MarkTopicCovered flags a summary as a cross-run duplicate of the matched
// signature.
func (s *Store) MarkTopicCovered(itemID int64, signatureID string) error {
	_, err := s.db.Exec(`
		UPDATE summaries SET topic_already_covered = 1, cross_run_cluster_id = ?
		WHERE item_id = ?`, signatureID, itemID)
	if err != nil {
		return fmt.Errorf("failed to mark summary %d covered: %w", itemID, err)
	}
	return nil
}

// DigestCandidates returns digest-eligible summaries for a topic created in
// [start, end): not already covered, and either unclustered or primary in
// their title cluster. Ordered by triage confidence desc, then created_at
// desc.
func (s *Store) DigestCandidates(topic string, start, end time.Time) ([]core.Summary, error) {
	return s.querySummaries(`
		SELECT `+summaryColumns+` FROM summaries s
		WHERE s.topic = ?
		  AND s.created_at >= ? AND s.created_at < ?
		  AND s.topic_already_covered = 0
		  AND NOT EXISTS (
			SELECT 1 FROM article_clusters c
			WHERE c.article_id = s.item_id AND c.clustering_method = ? AND c.is_primary = 0
		  )
		ORDER BY (SELECT i.triage_confidence FROM items i WHERE i.id = s.item_id) DESC,
		         s.created_at DESC`,
		topic, start.UTC(), end.UTC(), core.ClusteringGPTTitle)
}

// TopicsWithSummariesBetween lists distinct topics having summaries created
// in [start, end). Used to auto-discover digest topics.
func (s *Store) TopicsWithSummariesBetween(start, end time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT topic FROM summaries
		WHERE created_at >= ? AND created_at < ? ORDER BY topic`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

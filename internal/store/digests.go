package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"riskradar/internal/core"
)

// GetDigestState loads the accumulated digest for one (date, topic), or nil
// if no run has produced one yet.
func (s *Store) GetDigestState(date, topic string) (*core.DigestState, error) {
	row := s.db.QueryRow(`
		SELECT digest_date, topic, processed_article_ids, digest_content, article_count, created_at, updated_at
		FROM digest_states WHERE digest_date = ? AND topic = ?`, date, topic)

	var st core.DigestState
	var ids, content string
	err := row.Scan(&st.DigestDate, &st.Topic, &ids, &content, &st.ArticleCount, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan digest state: %w", err)
	}

	if err := json.Unmarshal([]byte(ids), &st.ProcessedArticleIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processed ids: %w", err)
	}
	if err := json.Unmarshal([]byte(content), &st.Content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal digest content: %w", err)
	}
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

// UpsertDigestState persists the evolved digest. created_at survives
// updates; updated_at always moves.
func (s *Store) UpsertDigestState(st core.DigestState) error {
	ids, err := json.Marshal(st.ProcessedArticleIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal processed ids: %w", err)
	}
	content, err := json.Marshal(st.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal digest content: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO digest_states (digest_date, topic, processed_article_ids, digest_content, article_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest_date, topic) DO UPDATE SET
			processed_article_ids = excluded.processed_article_ids,
			digest_content = excluded.digest_content,
			article_count = excluded.article_count,
			updated_at = excluded.updated_at`,
		st.DigestDate, st.Topic, string(ids), string(content),
		st.ArticleCount, st.CreatedAt.UTC(), st.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert digest state (%s, %s): %w", st.DigestDate, st.Topic, err)
	}
	return nil
}

// DigestStatesOn returns all topic digests for one day.
func (s *Store) DigestStatesOn(date string) ([]core.DigestState, error) {
	rows, err := s.db.Query(`
		SELECT digest_date, topic, processed_article_ids, digest_content, article_count, created_at, updated_at
		FROM digest_states WHERE digest_date = ? ORDER BY topic`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query digest states: %w", err)
	}
	defer rows.Close()

	var states []core.DigestState
	for rows.Next() {
		var st core.DigestState
		var ids, content string
		if err := rows.Scan(&st.DigestDate, &st.Topic, &ids, &content,
			&st.ArticleCount, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan digest state: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &st.ProcessedArticleIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal processed ids: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &st.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal digest content: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// LogDigestGeneration appends one digest-generation audit row.
func (s *Store) LogDigestGeneration(entry core.DigestGenerationLog) error {
	_, err := s.db.Exec(`
		INSERT INTO digest_generation_log
		(digest_date, generation_type, topics_processed, total_articles, new_articles, api_calls_made, execution_time_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.DigestDate, entry.GenerationType, entry.TopicsProcessed, entry.TotalArticles,
		entry.NewArticles, entry.APICallsMade, entry.ExecutionTime, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to log digest generation: %w", err)
	}
	return nil
}

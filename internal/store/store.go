// Package store is the single durable home for pipeline state: items,
// extracted text, summaries, clusters, triage memoization, run checkpoints,
// digest state and the dedup audit log. All components are stateless across
// restarts; everything that must survive lives here.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the embedded SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the idempotent schema. Column additions on existing
// deployments go through addColumnIfMissing so re-running is always safe.
func (s *Store) migrate() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			raw_url TEXT NOT NULL,
			normalized_url TEXT NOT NULL UNIQUE,
			url_hash TEXT NOT NULL,
			title TEXT,
			published_at DATETIME,
			first_seen_at DATETIME NOT NULL,
			pipeline_stage TEXT NOT NULL DEFAULT 'collected',
			pipeline_run_id TEXT,
			triage_topic TEXT,
			triage_confidence REAL,
			is_match INTEGER NOT NULL DEFAULT 0,
			selected_for_processing INTEGER NOT NULL DEFAULT 0,
			selection_rank INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS extracted_articles (
			item_id INTEGER PRIMARY KEY REFERENCES items(id),
			extracted_text TEXT NOT NULL DEFAULT '',
			extraction_method TEXT NOT NULL,
			extracted_at DATETIME,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_failure_reason TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS summaries (
			item_id INTEGER PRIMARY KEY REFERENCES items(id),
			topic TEXT NOT NULL,
			model TEXT NOT NULL,
			summary TEXT NOT NULL,
			key_points TEXT NOT NULL DEFAULT '[]',
			entities TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			topic_already_covered INTEGER NOT NULL DEFAULT 0,
			cross_run_cluster_id TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS article_clusters (
			cluster_id TEXT NOT NULL,
			article_id INTEGER NOT NULL REFERENCES items(id),
			is_primary INTEGER NOT NULL DEFAULT 0,
			similarity_score REAL NOT NULL DEFAULT 0,
			clustering_method TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (cluster_id, article_id)
		);`,
		`CREATE TABLE IF NOT EXISTS processed_links (
			url_hash TEXT NOT NULL,
			url TEXT NOT NULL,
			topic TEXT NOT NULL,
			processed_at DATETIME NOT NULL,
			result TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (url_hash, topic)
		);`,
		`CREATE TABLE IF NOT EXISTS pipeline_step_state (
			run_id TEXT NOT NULL,
			step_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			started_at DATETIME,
			completed_at DATETIME,
			metadata TEXT NOT NULL DEFAULT '{}',
			article_count INTEGER NOT NULL DEFAULT 0,
			match_count INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			can_resume INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (run_id, step_name)
		);`,
		`CREATE TABLE IF NOT EXISTS digest_states (
			digest_date TEXT NOT NULL,
			topic TEXT NOT NULL,
			processed_article_ids TEXT NOT NULL DEFAULT '[]',
			digest_content TEXT NOT NULL DEFAULT '{}',
			article_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (digest_date, topic)
		);`,
		`CREATE TABLE IF NOT EXISTS topic_signatures (
			signature_id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			article_summary TEXT NOT NULL,
			topic_theme TEXT NOT NULL,
			source_article_id INTEGER NOT NULL,
			run_sequence INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS dedup_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			new_article_id INTEGER NOT NULL,
			matched_signature_id TEXT,
			decision TEXT NOT NULL,
			confidence_score REAL,
			processing_time_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS digest_generation_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			digest_date TEXT NOT NULL,
			generation_type TEXT NOT NULL,
			topics_processed INTEGER NOT NULL DEFAULT 0,
			total_articles INTEGER NOT NULL DEFAULT 0,
			new_articles INTEGER NOT NULL DEFAULT 0,
			api_calls_made INTEGER NOT NULL DEFAULT 0,
			execution_time_seconds REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
	}

	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_items_run_stage ON items(pipeline_run_id, pipeline_stage);`,
		`CREATE INDEX IF NOT EXISTS idx_items_match_topic ON items(is_match, triage_topic);`,
		`CREATE INDEX IF NOT EXISTS idx_items_url_hash ON items(url_hash);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_run_rank ON items(pipeline_run_id, selection_rank)
			WHERE selection_rank IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_signatures_date_seq ON topic_signatures(date, run_sequence, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_topic_date ON summaries(topic, created_at);`,
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Stats holds row counts per table for the stats command.
type Stats struct {
	ItemCount      int
	ExtractedCount int
	SummaryCount   int
	ClusterCount   int
	SignatureCount int
	DigestCount    int
	DBSize         int64
	LastUpdated    time.Time
}

// GetStats returns row counts and the database file size.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	queries := map[string]*int{
		"SELECT COUNT(*) FROM items":                                              &stats.ItemCount,
		"SELECT COUNT(*) FROM extracted_articles WHERE extraction_method != 'failed'": &stats.ExtractedCount,
		"SELECT COUNT(*) FROM summaries":                                          &stats.SummaryCount,
		"SELECT COUNT(DISTINCT cluster_id) FROM article_clusters":                 &stats.ClusterCount,
		"SELECT COUNT(*) FROM topic_signatures":                                   &stats.SignatureCount,
		"SELECT COUNT(*) FROM digest_states":                                      &stats.DigestCount,
	}
	for query, target := range queries {
		if err := s.db.QueryRow(query).Scan(target); err != nil {
			return nil, fmt.Errorf("failed to get count: %w", err)
		}
	}

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.DBSize = fileInfo.Size()
		stats.LastUpdated = fileInfo.ModTime()
	}
	return stats, nil
}

// nullTime converts an optional time for storage.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// nullString converts an optional string for storage.
func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

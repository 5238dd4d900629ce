package store

import (
	"fmt"

	"riskradar/internal/core"
)

// SaveClusterRows writes all membership rows of one cluster in a single
// transaction. Callers guarantee exactly one primary per cluster id.
func (s *Store) SaveClusterRows(rows []core.ArticleCluster) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO article_clusters (cluster_id, article_id, is_primary, similarity_score, clustering_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cluster_id, article_id) DO UPDATE SET
			is_primary = excluded.is_primary,
			similarity_score = excluded.similarity_score`)
	if err != nil {
		return fmt.Errorf("failed to prepare cluster insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.ClusterID, r.ArticleID, r.IsPrimary,
			r.SimilarityScore, r.ClusteringMethod, r.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert cluster row (%s, %d): %w", r.ClusterID, r.ArticleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cluster rows: %w", err)
	}
	return nil
}

// ClusterRows returns all membership rows for one cluster id.
func (s *Store) ClusterRows(clusterID string) ([]core.ArticleCluster, error) {
	rows, err := s.db.Query(`
		SELECT cluster_id, article_id, is_primary, similarity_score, clustering_method, created_at
		FROM article_clusters WHERE cluster_id = ?
		ORDER BY is_primary DESC, article_id ASC`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster %s: %w", clusterID, err)
	}
	defer rows.Close()

	var result []core.ArticleCluster
	for rows.Next() {
		var r core.ArticleCluster
		if err := rows.Scan(&r.ClusterID, &r.ArticleID, &r.IsPrimary,
			&r.SimilarityScore, &r.ClusteringMethod, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cluster row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ClusterMembership returns the membership row of an article within the
// given clustering namespace, or nil if the article is unclustered there.
func (s *Store) ClusterMembership(articleID int64, method core.ClusteringMethod) (*core.ArticleCluster, error) {
	rows, err := s.db.Query(`
		SELECT cluster_id, article_id, is_primary, similarity_score, clustering_method, created_at
		FROM article_clusters WHERE article_id = ? AND clustering_method = ?
		LIMIT 1`, articleID, method)
	if err != nil {
		return nil, fmt.Errorf("failed to query membership for article %d: %w", articleID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var r core.ArticleCluster
	if err := rows.Scan(&r.ClusterID, &r.ArticleID, &r.IsPrimary,
		&r.SimilarityScore, &r.ClusteringMethod, &r.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}
	return &r, nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"codementor/internal/embedding"
	"codementor/internal/logging"
)

// =============================================================================
// NOVELTY INDEX (previously surfaced negative feedback)
// =============================================================================
// Remarks are appended with their embedding and never evicted; the index
// grows for the lifetime of the installation. Searches use euclidean
// distance, where LOWER means MORE similar. This is the opposite polarity of
// the relevance index's cosine scores and the experience model depends on it.

// NoveltyMatch is the nearest stored remark to a query embedding.
type NoveltyMatch struct {
	ID       int64
	Remark   string
	Distance float64
}

// AppendNovelty stores a remark with its embedding in the novelty index.
func (s *LocalStore) AppendNovelty(ctx context.Context, remark string, vector []float32) error {
	timer := logging.StartTimer(logging.CategoryStore, "AppendNovelty")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	embJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO novelty (remark, embedding) VALUES (?, ?)",
		remark, string(embJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store novelty entry: %w", err)
	}

	logging.StoreDebug("Novelty entry stored (remark length=%d)", len(remark))
	return nil
}

// NearestNovelty scans the index for the closest remark to the query vector.
// Returns false when the index is empty. Entries with mismatched dimensions
// are skipped.
func (s *LocalStore) NearestNovelty(ctx context.Context, query []float32) (NoveltyMatch, bool, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NearestNovelty")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, remark, embedding FROM novelty")
	if err != nil {
		return NoveltyMatch{}, false, fmt.Errorf("novelty query failed: %w", err)
	}
	defer rows.Close()

	best := NoveltyMatch{}
	found := false

	for rows.Next() {
		var id int64
		var remark, embJSON string
		if err := rows.Scan(&id, &remark, &embJSON); err != nil {
			continue
		}

		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue
		}

		dist, err := embedding.EuclideanDistance(query, vec)
		if err != nil {
			continue
		}

		if !found || dist < best.Distance {
			best = NoveltyMatch{ID: id, Remark: remark, Distance: dist}
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return NoveltyMatch{}, false, fmt.Errorf("novelty scan failed: %w", err)
	}

	if found {
		logging.StoreDebug("Nearest novelty id=%d distance=%.4f", best.ID, best.Distance)
	}
	return best, found, nil
}

// NoveltyCount returns the number of remarks in the novelty index.
func (s *LocalStore) NoveltyCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM novelty").Scan(&count); err != nil {
		return 0, fmt.Errorf("novelty count failed: %w", err)
	}
	return count, nil
}

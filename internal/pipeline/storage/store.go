// internal/pipeline/storage/store.go
package storage

import (
	"context"
	"time"

	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/models"
)

// Store writes results to PostgreSQL and, best effort, to the search index.
type Store struct {
	repo   *Repository
	index  *ResultIndex
	logger logger.Logger
}

// New builds a Store; index may be nil when search is not configured.
func New(repo *Repository, index *ResultIndex, log logger.Logger) *Store {
	return &Store{
		repo:   repo,
		index:  index,
		logger: logger.ForComponent(log, "storage"),
	}
}

// Save persists one item. Only a PostgreSQL failure is returned; index
// failures are logged and counted.
func (s *Store) Save(ctx context.Context, rec *models.AnalysisRecord, results []models.SuitabilityResult) (int, error) {
	inserted, err := s.repo.SaveItem(ctx, rec, results)
	if err != nil {
		return 0, errors.NewStorageWriteFailedError(rec.Hotspot.ID, err)
	}

	if s.index != nil {
		for _, r := range results {
			if err := s.index.Index(ctx, r); err != nil {
				metrics.ResultIndexFailures.Inc()
				s.logger.Warn("failed to index suitability result", map[string]interface{}{
					"hotspotId": r.HotspotID,
					"platform":  r.Platform,
					"index":     s.index.Name(),
					"error":     err.Error(),
				})
			}
		}
	}
	return inserted, nil
}

func (s *Store) LatestAnalysis(ctx context.Context, hotspotID string) (*models.AnalysisRecord, error) {
	return s.repo.LatestAnalysis(ctx, hotspotID)
}

func (s *Store) ResultsFor(ctx context.Context, hotspotID string, analyzedAt time.Time) ([]models.SuitabilityResult, error) {
	return s.repo.ResultsFor(ctx, hotspotID, analyzedAt)
}

// Index exposes the search side for the query worker; nil when not configured.
func (s *Store) Index() *ResultIndex {
	return s.index
}

// internal/workers/data-access/query-suitability/queries/registry.go
package queries

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/models"
	"hotspot-selection/internal/pipeline/storage"
)

var (
	ErrUnknownQueryType = stderrors.New("unknown query type")
	ErrMissingParam     = stderrors.New("missing required parameter")
)

type QueryType string

const (
	QueryTypeTopResults     QueryType = "top_results"
	QueryTypeHotspotResults QueryType = "hotspot_results"
	QueryTypeCategoryStats  QueryType = "category_stats"
	QueryTypeStoredAnalysis QueryType = "stored_analysis"
)

// SearchIndex is satisfied by *storage.ResultIndex.
type SearchIndex interface {
	TopResults(ctx context.Context, q storage.TopQuery) (*storage.SearchResult, error)
	HotspotResults(ctx context.Context, hotspotID string, size int) (*storage.SearchResult, error)
	CategoryStats(ctx context.Context, q storage.TopQuery) ([]storage.CategoryStat, error)
}

// AnalysisStore is satisfied by *storage.Store.
type AnalysisStore interface {
	LatestAnalysis(ctx context.Context, hotspotID string) (*models.AnalysisRecord, error)
	ResultsFor(ctx context.Context, hotspotID string, analyzedAt time.Time) ([]models.SuitabilityResult, error)
}

// Sources holds the backends a query can read; either may be nil.
type Sources struct {
	Index SearchIndex
	Store AnalysisStore
}

type Params struct {
	Platform        string
	Category        string
	HotspotID       string
	From            time.Time
	To              time.Time
	RecommendedOnly bool
	MinScore        float64
	Size            int
}

func (p Params) topQuery() storage.TopQuery {
	return storage.TopQuery{
		Platform:        p.Platform,
		Category:        p.Category,
		From:            p.From,
		To:              p.To,
		RecommendedOnly: p.RecommendedOnly,
		MinScore:        p.MinScore,
		Size:            p.Size,
	}
}

type Result struct {
	Results    []models.SuitabilityResult
	Categories []storage.CategoryStat
	Analysis   *models.AnalysisRecord
	TotalHits  int64
	Took       int64
}

// QueryFunc runs one query type against src.
type QueryFunc func(ctx context.Context, src Sources, p Params) (*Result, error)

var Registry = map[QueryType]QueryFunc{
	QueryTypeTopResults:     TopResults,
	QueryTypeHotspotResults: HotspotResults,
	QueryTypeCategoryStats:  CategoryStats,
	QueryTypeStoredAnalysis: StoredAnalysis,
}

func Execute(ctx context.Context, src Sources, queryType QueryType, p Params) (*Result, error) {
	fn, exists := Registry[queryType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueryType, queryType)
	}
	return fn(ctx, src, p)
}

func TopResults(ctx context.Context, src Sources, p Params) (*Result, error) {
	if src.Index == nil {
		return nil, errNoIndex()
	}
	res, err := src.Index.TopResults(ctx, p.topQuery())
	if err != nil {
		return nil, err
	}
	return &Result{Results: res.Results, TotalHits: res.TotalHits, Took: res.Took}, nil
}

func HotspotResults(ctx context.Context, src Sources, p Params) (*Result, error) {
	if p.HotspotID == "" {
		return nil, fmt.Errorf("%w: hotspotId", ErrMissingParam)
	}
	if src.Index == nil {
		return nil, errNoIndex()
	}
	res, err := src.Index.HotspotResults(ctx, p.HotspotID, p.Size)
	if err != nil {
		return nil, err
	}
	return &Result{Results: res.Results, TotalHits: res.TotalHits, Took: res.Took}, nil
}

func CategoryStats(ctx context.Context, src Sources, p Params) (*Result, error) {
	if src.Index == nil {
		return nil, errNoIndex()
	}
	start := time.Now()
	stats, err := src.Index.CategoryStats(ctx, p.topQuery())
	if err != nil {
		return nil, err
	}

	var total int64
	for _, s := range stats {
		total += s.Count
	}
	return &Result{Categories: stats, TotalHits: total, Took: time.Since(start).Milliseconds()}, nil
}

// StoredAnalysis reads the latest persisted analysis of a hotspot and the
// results written with it.
func StoredAnalysis(ctx context.Context, src Sources, p Params) (*Result, error) {
	if p.HotspotID == "" {
		return nil, fmt.Errorf("%w: hotspotId", ErrMissingParam)
	}
	if src.Store == nil {
		return nil, errors.NewConfigInvalidError("postgres", "analysis store not configured")
	}

	start := time.Now()
	rec, err := src.Store.LatestAnalysis(ctx, p.HotspotID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.NewHotspotNotFoundError(p.HotspotID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError(string(QueryTypeStoredAnalysis), err)
	}

	results, err := src.Store.ResultsFor(ctx, p.HotspotID, rec.AnalyzedAt)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError(string(QueryTypeStoredAnalysis), err)
	}
	if p.Platform != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.Platform == p.Platform {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	return &Result{
		Results:   results,
		Analysis:  rec,
		TotalHits: int64(len(results)),
		Took:      time.Since(start).Milliseconds(),
	}, nil
}

func errNoIndex() error {
	return errors.NewConfigInvalidError("elasticsearch", "result index not configured")
}

// internal/pipeline/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hotspot-selection/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("analysis not found")

// Repository is the system of record. Rows are only ever inserted; a repeated
// key is ignored so a retried item cannot overwrite an earlier result.
type Repository struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// SaveItem writes one analysis and its suitability results in a single
// transaction. It returns how many result rows were new. JSON columns are sent
// as text; lib/pq would encode []byte as bytea.
func (r *Repository) SaveItem(ctx context.Context, rec *models.AnalysisRecord, results []models.SuitabilityResult) (int, error) {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return 0, fmt.Errorf("marshal features: %w", err)
	}
	classification, err := json.Marshal(rec.Classification)
	if err != nil {
		return 0, fmt.Errorf("marshal classification: %w", err)
	}
	hotspot, err := json.Marshal(rec.Hotspot)
	if err != nil {
		return 0, fmt.Errorf("marshal hotspot: %w", err)
	}

	analysisSQL, analysisArgs, err := r.psql.Insert("hotspot_analysis").
		Columns("hotspot_id", "analyzed_at", "run_id", "extraction_status", "features", "classification", "hotspot").
		Values(rec.Hotspot.ID, rec.AnalyzedAt, rec.RunID, string(rec.ExtractionStatus),
			string(features), string(classification), string(hotspot)).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var resultSQL string
	var resultArgs []interface{}
	if len(results) > 0 {
		insert := r.psql.Insert("suitability_results").
			Columns("hotspot_id", "platform", "analysis_timestamp", "run_id", "total_score",
				"recommended", "recommended_strategy", "content_angle", "result")
		for _, res := range results {
			doc, err := json.Marshal(res)
			if err != nil {
				return 0, fmt.Errorf("marshal result: %w", err)
			}
			insert = insert.Values(res.HotspotID, res.Platform, res.AnalysisTimestamp, res.RunID, res.TotalScore,
				res.Recommended, res.RecommendedStrategy, res.ContentAngle, string(doc))
		}
		resultSQL, resultArgs, err = insert.Suffix("ON CONFLICT DO NOTHING").ToSql()
		if err != nil {
			return 0, fmt.Errorf("failed to build query: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, analysisSQL, analysisArgs...); err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}

	inserted := 0
	if resultSQL != "" {
		res, err := tx.ExecContext(ctx, resultSQL, resultArgs...)
		if err != nil {
			return 0, fmt.Errorf("insert results: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted = int(n)
		}
	}

	// The caller may have given up on this item while the inserts ran.
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("commit skipped: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// LatestAnalysis returns the most recent stored analysis of a hotspot.
func (r *Repository) LatestAnalysis(ctx context.Context, hotspotID string) (*models.AnalysisRecord, error) {
	query, args, err := r.psql.
		Select("hotspot", "extraction_status", "features", "classification", "analyzed_at", "run_id").
		From("hotspot_analysis").
		Where(sq.Eq{"hotspot_id": hotspotID}).
		OrderBy("analyzed_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var (
		rec                               models.AnalysisRecord
		status                            string
		hotspot, features, classification []byte
	)
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&hotspot, &status, &features, &classification, &rec.AnalyzedAt, &rec.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}

	rec.ExtractionStatus = models.ExtractionStatus(status)
	if err := json.Unmarshal(hotspot, &rec.Hotspot); err != nil {
		return nil, fmt.Errorf("decode hotspot: %w", err)
	}
	if err := json.Unmarshal(features, &rec.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal(classification, &rec.Classification); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	return &rec, nil
}

// ResultsFor lists stored results for a hotspot, newest first. A non-zero
// analyzedAt restricts the list to that analysis.
func (r *Repository) ResultsFor(ctx context.Context, hotspotID string, analyzedAt time.Time) ([]models.SuitabilityResult, error) {
	builder := r.psql.Select("result").
		From("suitability_results").
		Where(sq.Eq{"hotspot_id": hotspotID})
	if !analyzedAt.IsZero() {
		builder = builder.Where(sq.Eq{"analysis_timestamp": analyzedAt})
	}
	query, args, err := builder.OrderBy("analysis_timestamp DESC", "platform ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []models.SuitabilityResult
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		var res models.SuitabilityResult
		if err := json.Unmarshal(doc, &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	return out, nil
}

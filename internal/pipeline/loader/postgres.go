// internal/pipeline/loader/postgres.go
package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"hotspot-selection/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var hotspotColumns = []string{
	"id", "title", "source", "url", "hot_value", "rank", "category", "publish_time", "collect_time",
}

// PostgresStore reads the hotspots table. Page tokens are row offsets.
type PostgresStore struct {
	db    *sql.DB
	table string
	psql  sq.StatementBuilderType
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = "hotspots"
	}
	return &PostgresStore{
		db:    db,
		table: table,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PostgresStore) ListRecords(ctx context.Context, q Query) (*Page, error) {
	offset := 0
	if q.PageToken != "" {
		n, err := strconv.Atoi(q.PageToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid page token %q", q.PageToken)
		}
		offset = n
	}
	size := q.PageSize
	if size <= 0 {
		size = 100
	}

	builder := s.psql.Select(hotspotColumns...).From(s.table)
	if q.StartDate != "" {
		builder = builder.Where(sq.GtOrEq{"collect_date": q.StartDate})
	}
	if q.EndDate != "" {
		builder = builder.Where(sq.LtOrEq{"collect_date": q.EndDate})
	}
	query, args, err := builder.
		OrderBy("rank ASC", "id ASC").
		Limit(uint64(size)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hotspots: %w", err)
	}
	defer rows.Close()

	page := &Page{}
	for rows.Next() {
		h, err := scanHotspot(rows)
		if err != nil {
			return nil, err
		}
		page.Records = append(page.Records, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hotspots: %w", err)
	}

	if len(page.Records) == size {
		page.NextPageToken = strconv.Itoa(offset + size)
	}
	return page, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*models.Hotspot, error) {
	query, args, err := s.psql.Select(hotspotColumns...).
		From(s.table).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	h, err := scanHotspot(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return h, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHotspot(row rowScanner) (*models.Hotspot, error) {
	var (
		h        models.Hotspot
		category sql.NullString
		publish  sql.NullTime
		collect  sql.NullTime
	)
	err := row.Scan(&h.ID, &h.Title, &h.Source, &h.URL, &h.HotValue, &h.Rank, &category, &publish, &collect)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan hotspot: %w", err)
	}
	h.Category = category.String
	if publish.Valid {
		h.PublishTime = publish.Time
	}
	if collect.Valid {
		h.CollectTime = collect.Time
	}
	return &h, nil
}

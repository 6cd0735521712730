// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hotspot-selection/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres creates a new PostgreSQL client
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// schema holds the tables owned by this service. The hotspots table is
// written by the collector; it is created here only so a fresh database works.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS hotspots (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL,
		source       TEXT NOT NULL,
		url          TEXT NOT NULL DEFAULT '',
		hot_value    DOUBLE PRECISION NOT NULL DEFAULT 0,
		rank         INTEGER NOT NULL,
		category     TEXT NOT NULL DEFAULT '',
		publish_time TIMESTAMPTZ,
		collect_time TIMESTAMPTZ NOT NULL,
		collect_date DATE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hotspots_collect_date ON hotspots (collect_date, rank)`,
	`CREATE TABLE IF NOT EXISTS hotspot_analysis (
		hotspot_id        TEXT NOT NULL,
		analyzed_at       TIMESTAMPTZ NOT NULL,
		run_id            TEXT NOT NULL DEFAULT '',
		extraction_status TEXT NOT NULL,
		features          JSONB NOT NULL,
		classification    JSONB NOT NULL,
		hotspot           JSONB NOT NULL,
		PRIMARY KEY (hotspot_id, analyzed_at)
	)`,
	`CREATE TABLE IF NOT EXISTS suitability_results (
		hotspot_id           TEXT NOT NULL,
		platform             TEXT NOT NULL,
		analysis_timestamp   TIMESTAMPTZ NOT NULL,
		run_id               TEXT NOT NULL DEFAULT '',
		total_score          DOUBLE PRECISION NOT NULL,
		recommended          BOOLEAN NOT NULL,
		recommended_strategy TEXT NOT NULL,
		content_angle        TEXT NOT NULL,
		result               JSONB NOT NULL,
		PRIMARY KEY (hotspot_id, platform, analysis_timestamp)
	)`,
}

// Migrate creates the service tables when they do not exist yet.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

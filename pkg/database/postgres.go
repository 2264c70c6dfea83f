package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/signalhub/pkg/config"
)

// DB wraps the pgxpool.Pool and provides additional functionality
// ⭐ SSOT: DB 연결은 이 패키지에서만 생성
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool
// ⭐ SSOT: 유일하게 pgxpool.NewWithConfig()를 호출하는 함수
func New(ctx context.Context, cfg *config.Config) (*DB, error) {
	if !cfg.Database.Enabled() {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database is accessible
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Migrate creates the signal tables when they do not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}

// schema 는 멱등(IF NOT EXISTS) DDL 만 포함
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS signals`,
	`CREATE TABLE IF NOT EXISTS signals.canonical_signals (
		id               UUID PRIMARY KEY,
		platform         TEXT NOT NULL,
		source_id        TEXT NOT NULL,
		message_id       TEXT NOT NULL,
		asset            TEXT NOT NULL,
		direction        TEXT NOT NULL,
		entry_low        DOUBLE PRECISION,
		entry_high       DOUBLE PRECISION,
		targets          DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
		stop             DOUBLE PRECISION,
		stop_synthesized BOOLEAN NOT NULL DEFAULT FALSE,
		leverage         INTEGER,
		timeframe        TEXT,
		raw_text         TEXT NOT NULL,
		extraction_conf  DOUBLE PRECISION NOT NULL,
		confidence       DOUBLE PRECISION NOT NULL,
		config_hash      TEXT NOT NULL,
		state            TEXT NOT NULL,
		group_id         UUID,
		created_at       TIMESTAMPTZ NOT NULL,
		expires_at       TIMESTAMPTZ,
		resolved_at      TIMESTAMPTZ,
		resolution_price DOUBLE PRECISION,
		return_pct       DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_canonical_signals_source ON signals.canonical_signals (source_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS signals.transitions (
		signal_id  UUID NOT NULL,
		from_state TEXT NOT NULL,
		to_state   TEXT NOT NULL,
		price      DOUBLE PRECISION NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		at         TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (signal_id, to_state)
	)`,
	`CREATE TABLE IF NOT EXISTS signals.groups (
		id              UUID PRIMARY KEY,
		asset           TEXT NOT NULL,
		direction       TEXT NOT NULL,
		member_ids      UUID[] NOT NULL,
		primary_id      UUID NOT NULL,
		consensus_score DOUBLE PRECISION NOT NULL,
		classification  TEXT NOT NULL,
		mean_entry      DOUBLE PRECISION,
		closed          BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS signals.source_reputation (
		source_id      TEXT PRIMARY KEY,
		total_resolved INTEGER NOT NULL,
		successes      INTEGER NOT NULL,
		voided         INTEGER NOT NULL,
		success_rate   DOUBLE PRECISION NOT NULL,
		avg_return     DOUBLE PRECISION NOT NULL,
		drawdown       DOUBLE PRECISION NOT NULL,
		risk_adjusted  DOUBLE PRECISION NOT NULL,
		composite_rank DOUBLE PRECISION NOT NULL,
		category       TEXT NOT NULL,
		last_updated   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS signals.advisories (
		id      BIGSERIAL PRIMARY KEY,
		kind    TEXT NOT NULL,
		subject TEXT NOT NULL,
		message TEXT NOT NULL,
		at      TIMESTAMPTZ NOT NULL
	)`,
}

// HealthCheck returns detailed health information about the database
func (db *DB) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{
		Healthy:   false,
		Timestamp: time.Now(),
	}

	start := time.Now()
	if err := db.Pool.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.ResponseTime = time.Since(start)
	status.Stats = db.Stats()
	status.Healthy = true
	return status, nil
}

// HealthStatus represents the health status of the database
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	Timestamp    time.Time     `json:"timestamp"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
}

// PoolStats represents connection pool statistics
type PoolStats struct {
	AcquireCount  int64 `json:"acquire_count"`
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	MaxConns      int32 `json:"max_conns"`
	TotalConns    int32 `json:"total_conns"`
}

// Stats returns the current pool statistics
func (db *DB) Stats() PoolStats {
	stats := db.Pool.Stat()
	return PoolStats{
		AcquireCount:  stats.AcquireCount(),
		AcquiredConns: stats.AcquiredConns(),
		IdleConns:     stats.IdleConns(),
		MaxConns:      stats.MaxConns(),
		TotalConns:    stats.TotalConns(),
	}
}

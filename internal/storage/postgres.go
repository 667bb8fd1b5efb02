package storage

import (
	"context"
	"fmt"
	"math"

	"dipsim/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// postgresSchema is idempotent.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id     TEXT PRIMARY KEY,
		seq        BIGINT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		source     TEXT NOT NULL,
		symbols    TEXT[] NOT NULL,
		levels     DOUBLE PRECISION[] NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dip_events (
		run_id              TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		symbol              TEXT NOT NULL,
		date                DATE NOT NULL,
		level               DOUBLE PRECISION NOT NULL,
		limit_price         DOUBLE PRECISION NOT NULL,
		executed_price      DOUBLE PRECISION NOT NULL,
		shares_purchased    BIGINT NOT NULL,
		dollars_invested    DOUBLE PRECISION NOT NULL,
		cumulative_shares   BIGINT NOT NULL,
		cumulative_invested DOUBLE PRECISION NOT NULL,
		cumulative_value    DOUBLE PRECISION,
		close               DOUBLE PRECISION,
		previous_close      DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, symbol, date, level)
	)`,
	`CREATE TABLE IF NOT EXISTS dca_purchases (
		run_id              TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		symbol              TEXT NOT NULL,
		strategy            TEXT NOT NULL,
		date                DATE NOT NULL,
		buy_price           DOUBLE PRECISION NOT NULL,
		shares_purchased    DOUBLE PRECISION NOT NULL,
		dollars_invested    DOUBLE PRECISION NOT NULL,
		cumulative_shares   DOUBLE PRECISION NOT NULL,
		cumulative_invested DOUBLE PRECISION NOT NULL,
		cumulative_value    DOUBLE PRECISION,
		close               DOUBLE PRECISION,
		PRIMARY KEY (run_id, symbol, strategy, date)
	)`,
}

// Migrate applies the schema.
func (p *Pool) Migrate(ctx context.Context) error {
	for i, stmt := range postgresSchema {
		if _, err := p.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

var (
	eventColumns = []string{
		"run_id", "symbol", "date", "level", "limit_price", "executed_price", "shares_purchased",
		"dollars_invested", "cumulative_shares", "cumulative_invested", "cumulative_value", "close", "previous_close",
	}
	dcaColumns = []string{
		"run_id", "symbol", "strategy", "date", "buy_price", "shares_purchased", "dollars_invested",
		"cumulative_shares", "cumulative_invested", "cumulative_value", "close",
	}
)

// PostgresSink bulk-loads run results with COPY. Rewriting a run replaces its rows.
type PostgresSink struct {
	pool *Pool
}

// NewPostgresSink creates a sink on pool; call Pool.Migrate first.
func NewPostgresSink(pool *Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) WriteEvents(ctx context.Context, run models.RunInfo, events []models.DipEvent) error {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{
			run.ID, e.Symbol, e.Date, e.Level, e.LimitPrice, e.ExecutedPrice, e.SharesPurchased,
			e.DollarsInvested, e.CumulativeShares, e.CumulativeInvested, pgFloat(e.CumulativeValue), pgFloat(e.Close), e.PreviousClose,
		}
	}
	return s.replace(ctx, run, "dip_events", eventColumns, rows)
}

func (s *PostgresSink) WriteDCA(ctx context.Context, run models.RunInfo, purchases []models.DCAPurchase) error {
	rows := make([][]any, len(purchases))
	for i, p := range purchases {
		rows[i] = []any{
			run.ID, p.Symbol, p.Strategy, p.Date, p.BuyPrice, p.SharesPurchased, p.DollarsInvested,
			p.CumulativeShares, p.CumulativeInvested, pgFloat(p.CumulativeValue), pgFloat(p.Close),
		}
	}
	return s.replace(ctx, run, "dca_purchases", dcaColumns, rows)
}

// Close closes the pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

// replace upserts the run and swaps the run's rows in table for rows, atomically.
func (s *PostgresSink) replace(ctx context.Context, run models.RunInfo, table string, columns []string, rows [][]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (run_id, seq, started_at, source, symbols, levels)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			seq = EXCLUDED.seq, started_at = EXCLUDED.started_at, source = EXCLUDED.source,
			symbols = EXCLUDED.symbols, levels = EXCLUDED.levels
	`, run.ID, run.Seq, run.StartedAt, run.Source, nonNil(run.Symbols), nonNilFloats(run.Levels))
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE run_id = $1", run.ID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy %s: %w", table, err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("copy %s: wrote %d of %d rows", table, n, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CountRows returns the rows a run has in table.
func (p *Pool) CountRows(ctx context.Context, table, runID string) (int, error) {
	var n int
	err := p.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgx.Identifier{table}.Sanitize()+" WHERE run_id = $1", runID).Scan(&n)
	return n, err
}

func pgFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilFloats(s []float64) []float64 {
	if s == nil {
		return []float64{}
	}
	return s
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"dipsim/internal/models"

	_ "modernc.org/sqlite" // Import the sqlite driver
)

// InitDB initializes the database connection and creates necessary tables.
func InitDB(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases and the run counter consistent.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary database tables if they don't exist.
func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id     TEXT PRIMARY KEY,
			seq        INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			source     TEXT NOT NULL,
			symbols    TEXT NOT NULL,
			levels     TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS dip_events (
			run_id              TEXT NOT NULL,
			symbol              TEXT NOT NULL,
			date                TEXT NOT NULL,
			level               REAL NOT NULL,
			limit_price         REAL NOT NULL,
			executed_price      REAL NOT NULL,
			shares_purchased    INTEGER NOT NULL,
			dollars_invested    REAL NOT NULL,
			cumulative_shares   INTEGER NOT NULL,
			cumulative_invested REAL NOT NULL,
			cumulative_value    REAL,
			close               REAL,
			previous_close      REAL NOT NULL,
			PRIMARY KEY (run_id, symbol, date, level)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dip_events_symbol ON dip_events(symbol, date)`,

		`CREATE TABLE IF NOT EXISTS dca_purchases (
			run_id              TEXT NOT NULL,
			symbol              TEXT NOT NULL,
			strategy            TEXT NOT NULL,
			date                TEXT NOT NULL,
			buy_price           REAL NOT NULL,
			shares_purchased    REAL NOT NULL,
			dollars_invested    REAL NOT NULL,
			cumulative_shares   REAL NOT NULL,
			cumulative_invested REAL NOT NULL,
			cumulative_value    REAL,
			close               REAL,
			PRIMARY KEY (run_id, symbol, strategy, date)
		)`,

		// Simple key-value metadata.
		`CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`INSERT OR IGNORE INTO metadata (key, value) VALUES ('run_counter', '0')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// GetNextRunID atomically retrieves and increments the run counter.
func GetNextRunID(db *sql.DB) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for run ID: %w", err)
	}
	defer tx.Rollback() // Rollback on any error

	var counterStr string
	err = tx.QueryRow("SELECT value FROM metadata WHERE key = 'run_counter'").Scan(&counterStr)
	if err != nil {
		return 0, fmt.Errorf("failed to read run_counter: %w", err)
	}

	counter, err := strconv.ParseInt(counterStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse run_counter value '%s': %w", counterStr, err)
	}

	nextCounter := counter + 1

	_, err = tx.Exec("UPDATE metadata SET value = ? WHERE key = 'run_counter'", strconv.FormatInt(nextCounter, 10))
	if err != nil {
		return 0, fmt.Errorf("failed to update run_counter: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run_counter transaction: %w", err)
	}

	return nextCounter, nil
}

// RunSummary is a stored run with its row counts.
type RunSummary struct {
	models.RunInfo
	Events    int
	Purchases int
}

// RecentRuns returns up to limit runs, newest first.
func RecentRuns(db *sql.DB, limit int) ([]RunSummary, error) {
	query := `
	SELECT r.run_id, r.seq, r.started_at, r.source, r.symbols, r.levels,
		(SELECT COUNT(*) FROM dip_events e WHERE e.run_id = r.run_id),
		(SELECT COUNT(*) FROM dca_purchases p WHERE p.run_id = r.run_id)
	FROM runs r
	ORDER BY r.seq DESC
	LIMIT ?`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s               RunSummary
			started         int64
			symbols, levels string
		)
		if err := rows.Scan(&s.ID, &s.Seq, &started, &s.Source, &symbols, &levels, &s.Events, &s.Purchases); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		s.StartedAt = time.Unix(started, 0).UTC()
		s.Symbols = splitList(symbols)
		for _, l := range splitList(levels) {
			if v, err := strconv.ParseFloat(l, 64); err == nil {
				s.Levels = append(s.Levels, v)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SQLiteSink stores run results in SQLite. Rewriting a run replaces its rows.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink wraps an initialized database.
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

func (s *SQLiteSink) Name() string { return "sqlite" }

// WriteEvents inserts the run row and every event in one transaction.
func (s *SQLiteSink) WriteEvents(ctx context.Context, run models.RunInfo, events []models.DipEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveRun(ctx, tx, run); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM dip_events WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear events of run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO dip_events (run_id, symbol, date, level, limit_price, executed_price, shares_purchased,
		dollars_invested, cumulative_shares, cumulative_invested, cumulative_value, close, previous_close)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.ExecContext(ctx,
			run.ID, e.Symbol, e.Date.Format(models.DateLayout), e.Level, e.LimitPrice, e.ExecutedPrice,
			e.SharesPurchased, e.DollarsInvested, e.CumulativeShares, e.CumulativeInvested,
			nullFloat(e.CumulativeValue), nullFloat(e.Close), e.PreviousClose,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event %s %s %v: %w", e.Symbol, e.Date.Format(models.DateLayout), e.Level, err)
		}
	}
	return tx.Commit()
}

// WriteDCA inserts the run row and every DCA purchase in one transaction.
func (s *SQLiteSink) WriteDCA(ctx context.Context, run models.RunInfo, purchases []models.DCAPurchase) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveRun(ctx, tx, run); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM dca_purchases WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear dca purchases of run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO dca_purchases (run_id, symbol, strategy, date, buy_price, shares_purchased, dollars_invested,
		cumulative_shares, cumulative_invested, cumulative_value, close)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range purchases {
		_, err := stmt.ExecContext(ctx,
			run.ID, p.Symbol, p.Strategy, p.Date.Format(models.DateLayout), p.BuyPrice, p.SharesPurchased,
			p.DollarsInvested, p.CumulativeShares, p.CumulativeInvested, nullFloat(p.CumulativeValue), nullFloat(p.Close),
		)
		if err != nil {
			return fmt.Errorf("failed to insert dca purchase %s %s: %w", p.Symbol, p.Date.Format(models.DateLayout), err)
		}
	}
	return tx.Commit()
}

// Close is a no-op; the caller owns the database.
func (s *SQLiteSink) Close() error { return nil }

// LoadEvents returns the stored events of a run in insertion order.
func LoadEvents(db *sql.DB, runID string) ([]models.DipEvent, error) {
	rows, err := db.Query(`
	SELECT symbol, date, level, limit_price, executed_price, shares_purchased, dollars_invested,
		cumulative_shares, cumulative_invested, cumulative_value, close, previous_close
	FROM dip_events WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []models.DipEvent
	for rows.Next() {
		var (
			e              models.DipEvent
			date           string
			value, closePx sql.NullFloat64
		)
		if err := rows.Scan(&e.Symbol, &date, &e.Level, &e.LimitPrice, &e.ExecutedPrice, &e.SharesPurchased,
			&e.DollarsInvested, &e.CumulativeShares, &e.CumulativeInvested, &value, &closePx, &e.PreviousClose); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if e.Date, err = time.Parse(models.DateLayout, date); err != nil {
			return nil, fmt.Errorf("bad event date %q: %w", date, err)
		}
		e.CumulativeValue = floatOrNaN(value)
		e.Close = floatOrNaN(closePx)
		out = append(out, e)
	}
	return out, rows.Err()
}

// saveRun creates or updates the run row.
func saveRun(ctx context.Context, tx *sql.Tx, run models.RunInfo) error {
	levels := make([]string, len(run.Levels))
	for i, l := range run.Levels {
		levels[i] = strconv.FormatFloat(l, 'f', -1, 64)
	}
	_, err := tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, seq, started_at, source, symbols, levels)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		seq = excluded.seq,
		started_at = excluded.started_at,
		source = excluded.source,
		symbols = excluded.symbols,
		levels = excluded.levels`,
		run.ID, run.Seq, run.StartedAt.Unix(), run.Source,
		strings.Join(run.Symbols, ","), strings.Join(levels, ","),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

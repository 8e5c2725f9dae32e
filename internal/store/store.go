// Package store records training runs, per-epoch results and best-epoch
// summaries in a SQL database. SQLite (modernc.org/sqlite) and PostgreSQL
// (lib/pq) are supported.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/cnclabs/trafficvol/internal/results"
	"github.com/cnclabs/trafficvol/internal/trainer"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		state      TEXT NOT NULL,
		config     TEXT NOT NULL,
		started_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS epochs (
		run_id TEXT NOT NULL REFERENCES runs(id),
		epoch  INTEGER NOT NULL,
		loss   DOUBLE PRECISION NOT NULL,
		metric TEXT NOT NULL,
		train  DOUBLE PRECISION,
		valid  DOUBLE PRECISION,
		test   DOUBLE PRECISION,
		PRIMARY KEY (run_id, epoch, metric)
	)`,
	`CREATE TABLE IF NOT EXISTS summaries (
		run_id   TEXT NOT NULL REFERENCES runs(id),
		metric   TEXT NOT NULL,
		polarity TEXT NOT NULL,
		epoch    INTEGER NOT NULL,
		train    DOUBLE PRECISION,
		valid    DOUBLE PRECISION,
		test     DOUBLE PRECISION,
		PRIMARY KEY (run_id, metric)
	)`,
}

// Run describes one training session
type Run struct {
	ID        string `db:"id"`
	State     string `db:"state"`
	Config    string `db:"config"`
	StartedAt string `db:"started_at"`
}

// EpochRow is one metric of one evaluation epoch. Undefined values (NaN)
// are stored as NULL.
type EpochRow struct {
	RunID  string          `db:"run_id"`
	Epoch  int             `db:"epoch"`
	Loss   float64         `db:"loss"`
	Metric string          `db:"metric"`
	Train  sql.NullFloat64 `db:"train"`
	Valid  sql.NullFloat64 `db:"valid"`
	Test   sql.NullFloat64 `db:"test"`
}

// SummaryRow is the best epoch of one metric
type SummaryRow struct {
	RunID    string          `db:"run_id"`
	Metric   string          `db:"metric"`
	Polarity string          `db:"polarity"`
	Epoch    int             `db:"epoch"`
	Train    sql.NullFloat64 `db:"train"`
	Valid    sql.NullFloat64 `db:"valid"`
	Test     sql.NullFloat64 `db:"test"`
}

// Store writes training results through sqlx
type Store struct {
	db *sqlx.DB
}

// Open connects with driver ("sqlite" or "postgres") and creates the schema
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one connection keeps ":memory:" databases alive and writes serialized
		db.SetMaxOpenConns(1)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates missing tables
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

// NewRun registers a session and returns its id
func (s *Store) NewRun(ctx context.Context, state, config string) (string, error) {
	run := Run{
		ID:        uuid.NewString(),
		State:     state,
		Config:    config,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}

	const query = `INSERT INTO runs (id, state, config, started_at)
		VALUES (:id, :state, :config, :started_at)`
	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

// RecordEpoch writes every metric of one evaluation epoch in a transaction
func (s *Store) RecordEpoch(ctx context.Context, runID string, r trainer.EpochResult) error {
	query := s.db.Rebind(`INSERT INTO epochs (run_id, epoch, loss, metric, train, valid, test)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for name, t := range r.Results {
			if _, err := tx.ExecContext(ctx, query,
				runID, r.Epoch, r.Loss, name,
				nullable(t.Train), nullable(t.Valid), nullable(t.Test),
			); err != nil {
				return fmt.Errorf("insert epoch %d %s: %w", r.Epoch, name, err)
			}
		}
		return nil
	})
}

// RecordSummaries writes the best-epoch summary of every metric
func (s *Store) RecordSummaries(ctx context.Context, runID string, summaries []results.Summary) error {
	query := s.db.Rebind(`INSERT INTO summaries (run_id, metric, polarity, epoch, train, valid, test)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, sum := range summaries {
			if _, err := tx.ExecContext(ctx, query,
				runID, sum.Metric, sum.Polarity.String(), sum.Epoch,
				nullable(sum.Train), nullable(sum.Valid), nullable(sum.Test),
			); err != nil {
				return fmt.Errorf("insert summary %s: %w", sum.Metric, err)
			}
		}
		return nil
	})
}

// Runs lists every run, oldest first
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := s.db.SelectContext(ctx, &runs, `SELECT id, state, config, started_at FROM runs ORDER BY started_at, id`)
	return runs, err
}

// Epochs returns the epoch rows of a run ordered by epoch and metric
func (s *Store) Epochs(ctx context.Context, runID string) ([]EpochRow, error) {
	var rows []EpochRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT run_id, epoch, loss, metric, train, valid, test
		FROM epochs WHERE run_id = ? ORDER BY epoch, metric`), runID)
	return rows, err
}

// Summaries returns the summary rows of a run ordered by metric
func (s *Store) Summaries(ctx context.Context, runID string) ([]SummaryRow, error) {
	var rows []SummaryRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT run_id, metric, polarity, epoch, train, valid, test
		FROM summaries WHERE run_id = ? ORDER BY metric`), runID)
	return rows, err
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ringsim/internal/engine"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id           UUID PRIMARY KEY,
    seed         BIGINT NOT NULL,
    frames       INTEGER NOT NULL,
    sim_time     DOUBLE PRECISION NOT NULL,
    cleared      INTEGER NOT NULL,
    escaped      BOOLEAN NOT NULL,
    escape_time  DOUBLE PRECISION,
    end_reason   TEXT NOT NULL,
    substeps     INTEGER NOT NULL,
    collisions   INTEGER NOT NULL,
    passes       INTEGER NOT NULL,
    resets       INTEGER NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    wall_ms      BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_events (
    run_id    UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq       INTEGER NOT NULL,
    kind      TEXT NOT NULL,
    sim_time  DOUBLE PRECISION NOT NULL,
    x         DOUBLE PRECISION NOT NULL,
    y         DOUBLE PRECISION NOT NULL,
    body      INTEGER NOT NULL,
    barrier   INTEGER NOT NULL,
    speed     DOUBLE PRECISION NOT NULL,
    note      INTEGER NOT NULL,
    octave    INTEGER NOT NULL,
    pitch     DOUBLE PRECISION NOT NULL,
    bonus     BOOLEAN NOT NULL,
    message   TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS run_events_kind_idx ON run_events (kind);
`

const insertRunSQL = `
INSERT INTO runs (id, seed, frames, sim_time, cleared, escaped, escape_time, end_reason,
                  substeps, collisions, passes, resets, started_at, wall_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
`

const recentRunsSQL = `
SELECT id::text, seed, cleared, escaped, end_reason, started_at
FROM runs
ORDER BY started_at DESC
LIMIT $1;
`

var eventColumns = []string{
	"run_id", "seq", "kind", "sim_time", "x", "y", "body", "barrier",
	"speed", "note", "octave", "pitch", "bonus", "message",
}

// Store persists batch runs to PostgreSQL.
type Store struct {
	pool  DBPool
	log   *zap.Logger
	close func()
}

// New creates a store on top of an existing pool.
func New(pool DBPool, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("database pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:  pool,
		log:   logger.Named("store"),
		close: func() {},
	}, nil
}

// Open connects to url, verifies the connection and returns a store that owns the pool.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s, err := New(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.close = pool.Close
	return s, nil
}

// Close releases the pool when the store owns it.
func (s *Store) Close() {
	s.close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Record implements engine.Recorder by persisting the run and its events in one transaction.
func (s *Store) Record(ctx context.Context, result *engine.RunResult) error {
	if result == nil {
		return errors.New("run result cannot be nil")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, insertRunSQL, runArgs(result)...); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	if len(result.Events) > 0 {
		if err := s.persistEvents(ctx, tx, result); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run persisted", zap.String("run_id", result.RunID.String()), zap.Int("events", len(result.Events)))
	return nil
}

func runArgs(r *engine.RunResult) []any {
	var escapeTime any
	if r.Escaped {
		escapeTime = r.EscapeTime
	}
	return []any{
		r.RunID.String(), r.Seed, r.Frames, r.SimTime,
		r.Cleared, r.Escaped, escapeTime, string(r.End),
		r.Stats.Substeps, r.Stats.Collisions, r.Stats.Passes, r.Stats.Resets,
		r.StartedAt.UTC(), r.Wall.Milliseconds(),
	}
}

func (s *Store) persistEvents(ctx context.Context, tx pgx.Tx, r *engine.RunResult) error {
	runID := r.RunID.String()
	rows := make([][]any, len(r.Events))
	for i, e := range r.Events {
		rows[i] = []any{
			runID, i, e.Kind.String(), e.Time,
			e.Position.X, e.Position.Y, e.Body, e.Barrier,
			e.Speed, e.Note, e.Octave, e.Pitch, e.Bonus, e.Message,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"run_events"}, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy run events: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied events count: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID        string
	Seed      int64
	Cleared   int
	Escaped   bool
	End       string
	StartedAt time.Time
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Seed, &r.Cleared, &r.Escaped, &r.End, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

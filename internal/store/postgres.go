package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/relief-ops/checklist-cli/internal/model"
	"github.com/relief-ops/checklist-cli/internal/resilience"
)

// Pool abstracts the pgx pool so tests can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS node_quarantine (
	id             TEXT NOT NULL,
	run_id         TEXT NOT NULL,
	node_id        TEXT NOT NULL,
	node_title     TEXT,
	error          TEXT NOT NULL,
	error_class    TEXT NOT NULL,
	retry_count    INT NOT NULL DEFAULT 0,
	max_retries    INT NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	last_failed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, node_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, document string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Document:  document,
		Status:    model.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, document, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Document, run.Status, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create run")
	}
	return run, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	return eris.Wrap(err, "postgres: update run status")
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id string, status model.RunStatus, result string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, result = $2, updated_at = $3 WHERE id = $4`,
		status, result, time.Now().UTC(), id,
	)
	return eris.Wrap(err, "postgres: complete run")
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, document, status, COALESCE(result, ''), created_at, updated_at FROM runs WHERE id = $1`, id)

	var run model.Run
	err := row.Scan(&run.ID, &run.Document, &run.Status, &run.Result, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, document, status, COALESCE(result, ''), created_at, updated_at
		 FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var run model.Run
		if err := rows.Scan(&run.ID, &run.Document, &run.Status, &run.Result, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) CreateStage(ctx context.Context, runID, name string) (*model.StageRecord, error) {
	rec := &model.StageRecord{
		ID:        uuid.New().String(),
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.RunID, rec.Name, rec.Status, rec.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create stage")
	}
	return rec, nil
}

func (s *PostgresStore) CompleteStage(ctx context.Context, stageID, status string, durationMs int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE run_stages SET status = $1, duration_ms = $2, error = $3 WHERE id = $4`,
		status, durationMs, errMsg, stageID,
	)
	return eris.Wrap(err, "postgres: complete stage")
}

func (s *PostgresStore) ListStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, name, status, COALESCE(error, ''), duration_ms, started_at
		 FROM run_stages WHERE run_id = $1 ORDER BY started_at`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stages")
	}
	defer rows.Close()

	var out []model.StageRecord
	for rows.Next() {
		var rec model.StageRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Name, &rec.Status, &rec.Error, &rec.Duration, &rec.StartedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list stages")
}

func (s *PostgresStore) EnqueueQuarantine(ctx context.Context, entry resilience.QuarantinedNode) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO node_quarantine
		 (id, run_id, node_id, node_title, error, error_class, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (run_id, node_id) DO UPDATE SET
		   error = EXCLUDED.error, error_class = EXCLUDED.error_class,
		   retry_count = EXCLUDED.retry_count,
		   next_retry_at = EXCLUDED.next_retry_at, last_failed_at = EXCLUDED.last_failed_at`,
		entry.ID, entry.RunID, entry.NodeID, entry.NodeTitle, entry.Error, entry.ErrorClass,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue quarantine")
}

func (s *PostgresStore) ListQuarantine(ctx context.Context, filter resilience.QuarantineFilter) ([]resilience.QuarantinedNode, error) {
	query := `SELECT id, run_id, node_id, COALESCE(node_title, ''), error, error_class, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM node_quarantine`
	var args []any
	var where []string
	if filter.RunID != "" {
		args = append(args, filter.RunID)
		where = append(where, "run_id = $"+strconv.Itoa(len(args)))
	}
	if filter.ErrorClass != "" {
		args = append(args, filter.ErrorClass)
		where = append(where, "error_class = $"+strconv.Itoa(len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY next_retry_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quarantine")
	}
	defer rows.Close()

	var out []resilience.QuarantinedNode
	for rows.Next() {
		var q resilience.QuarantinedNode
		if err := rows.Scan(&q.ID, &q.RunID, &q.NodeID, &q.NodeTitle, &q.Error, &q.ErrorClass,
			&q.RetryCount, &q.MaxRetries, &q.NextRetryAt, &q.CreatedAt, &q.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quarantine")
		}
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list quarantine")
}

func (s *PostgresStore) DeleteQuarantine(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM node_quarantine WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: delete quarantine")
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/relief-ops/checklist-cli/internal/model"
	"github.com/relief-ops/checklist-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	error      TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS node_quarantine (
	id             TEXT NOT NULL,
	run_id         TEXT NOT NULL,
	node_id        TEXT NOT NULL,
	node_title     TEXT,
	error          TEXT NOT NULL,
	error_class    TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, node_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
CREATE INDEX IF NOT EXISTS idx_quarantine_next_retry ON node_quarantine(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, document string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Document:  document,
		Status:    model.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, document, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Document, run.Status, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create run")
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	return eris.Wrap(err, "sqlite: update run status")
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status model.RunStatus, result string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		status, result, time.Now().UTC(), id,
	)
	return eris.Wrap(err, "sqlite: complete run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document, status, COALESCE(result, ''), created_at, updated_at FROM runs WHERE id = ?`, id)

	var run model.Run
	err := row.Scan(&run.ID, &run.Document, &run.Status, &run.Result, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, status, COALESCE(result, ''), created_at, updated_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var run model.Run
		if err := rows.Scan(&run.ID, &run.Document, &run.Status, &run.Result, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) CreateStage(ctx context.Context, runID, name string) (*model.StageRecord, error) {
	rec := &model.StageRecord{
		ID:        uuid.New().String(),
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Name, rec.Status, rec.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create stage")
	}
	return rec, nil
}

func (s *SQLiteStore) CompleteStage(ctx context.Context, stageID, status string, durationMs int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_stages SET status = ?, duration_ms = ?, error = ? WHERE id = ?`,
		status, durationMs, errMsg, stageID,
	)
	return eris.Wrap(err, "sqlite: complete stage")
}

func (s *SQLiteStore) ListStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, name, status, COALESCE(error, ''), duration_ms, started_at
		 FROM run_stages WHERE run_id = ? ORDER BY started_at`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stages")
	}
	defer rows.Close()

	var out []model.StageRecord
	for rows.Next() {
		var rec model.StageRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Name, &rec.Status, &rec.Error, &rec.Duration, &rec.StartedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list stages")
}

func (s *SQLiteStore) EnqueueQuarantine(ctx context.Context, entry resilience.QuarantinedNode) error {
	// Keyed on (run_id, node_id): a node that fails again within the same
	// run updates its own row and never clobbers another node's entry.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO node_quarantine
		 (id, run_id, node_id, node_title, error, error_class, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, node_id) DO UPDATE SET
		   error = excluded.error, error_class = excluded.error_class,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.RunID, entry.NodeID, entry.NodeTitle, entry.Error, entry.ErrorClass,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue quarantine")
}

func (s *SQLiteStore) ListQuarantine(ctx context.Context, filter resilience.QuarantineFilter) ([]resilience.QuarantinedNode, error) {
	query := `SELECT id, run_id, node_id, COALESCE(node_title, ''), error, error_class, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM node_quarantine WHERE 1=1`
	var args []any
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.ErrorClass != "" {
		query += ` AND error_class = ?`
		args = append(args, filter.ErrorClass)
	}
	query += ` ORDER BY next_retry_at`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quarantine")
	}
	defer rows.Close()

	var out []resilience.QuarantinedNode
	for rows.Next() {
		var q resilience.QuarantinedNode
		if err := rows.Scan(&q.ID, &q.RunID, &q.NodeID, &q.NodeTitle, &q.Error, &q.ErrorClass,
			&q.RetryCount, &q.MaxRetries, &q.NextRetryAt, &q.CreatedAt, &q.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quarantine")
		}
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list quarantine")
}

func (s *SQLiteStore) DeleteQuarantine(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM node_quarantine WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: delete quarantine")
}

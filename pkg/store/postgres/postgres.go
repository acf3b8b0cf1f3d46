// Package postgres implements the Store on PostgreSQL, with embedded
// golang-migrate migrations applied on startup.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/store"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the pgx-compatible connection string.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode,
	)
}

// Store is the PostgreSQL-backed store.
type Store struct {
	db *sql.DB
}

// Open connects, verifies the connection, and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %v", store.ErrUnavailable, err)
	}
	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// runMigrations applies all pending embedded migrations.
func runMigrations(db *sql.DB, database string) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create postgres migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, database, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Close only the source; closing m would also close the shared *sql.DB.
	if err := source.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// SaveTask implements store.Store by upsert.
func (s *Store) SaveTask(ctx context.Context, task *models.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, payload, repository_id, priority, state,
			enqueued_at, processing_started_at, completed_at, attempts, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			priority = EXCLUDED.priority,
			processing_started_at = EXCLUDED.processing_started_at,
			completed_at = EXCLUDED.completed_at,
			attempts = EXCLUDED.attempts,
			error_message = EXCLUDED.error_message`,
		task.ID, task.Kind, nullableJSON(task.Payload), task.RepositoryID, task.Priority,
		task.State, task.EnqueuedAt, nullableTime(task.ProcessingStartedAt),
		nullableTime(task.CompletedAt), task.Attempts, task.ErrorMessage)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask implements store.Store.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, payload, repository_id, priority, state,
			enqueued_at, processing_started_at, completed_at, attempts, error_message
		FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

// ListTasks implements store.Store.
func (s *Store) ListTasks(ctx context.Context, states ...models.TaskState) ([]*models.Task, error) {
	query := `
		SELECT id, kind, payload, repository_id, priority, state,
			enqueued_at, processing_started_at, completed_at, attempts, error_message
		FROM tasks`
	var args []any
	if len(states) > 0 {
		placeholders := make([]string, len(states))
		for i, st := range states {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, st)
		}
		query += " WHERE state IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY enqueued_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// SaveLoopRun implements store.Store by upsert.
func (s *Store) SaveLoopRun(ctx context.Context, run *models.LoopRun) error {
	invocations, err := json.Marshal(run.Invocations)
	if err != nil {
		return fmt.Errorf("encode invocations: %w", err)
	}
	history, err := json.Marshal(run.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO loop_runs (id, task_id, scope, iterations, invocations, score, history, status, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			iterations = EXCLUDED.iterations,
			invocations = EXCLUDED.invocations,
			score = EXCLUDED.score,
			history = EXCLUDED.history,
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at`,
		run.ID, run.TaskID, run.Scope, run.Iterations, invocations, run.Score,
		history, run.Status, run.StartedAt, nullableTime(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("save loop run %s: %w", run.ID, err)
	}
	return nil
}

// ListLoopRuns implements store.Store.
func (s *Store) ListLoopRuns(ctx context.Context, taskID string) ([]*models.LoopRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, scope, iterations, invocations, score, history, status, started_at, completed_at
		FROM loop_runs WHERE task_id = $1 ORDER BY started_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list loop runs: %w", err)
	}
	defer rows.Close()

	var out []*models.LoopRun
	for rows.Next() {
		var run models.LoopRun
		var invocations, history []byte
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.TaskID, &run.Scope, &run.Iterations,
			&invocations, &run.Score, &history, &run.Status, &run.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan loop run: %w", err)
		}
		if len(invocations) > 0 {
			if err := json.Unmarshal(invocations, &run.Invocations); err != nil {
				return nil, fmt.Errorf("decode invocations: %w", err)
			}
		}
		if len(history) > 0 {
			if err := json.Unmarshal(history, &run.History); err != nil {
				return nil, fmt.Errorf("decode history: %w", err)
			}
		}
		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}

// SaveCheckpoint implements store.Store by upsert on (task, reviewer).
func (s *Store) SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	issues, err := json.Marshal(cp.Issues)
	if err != nil {
		return fmt.Errorf("encode issues: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (task_id, reviewer, completed, issues, score, iterations, status, saved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (task_id, reviewer) DO UPDATE SET
			completed = EXCLUDED.completed,
			issues = EXCLUDED.issues,
			score = EXCLUDED.score,
			iterations = EXCLUDED.iterations,
			status = EXCLUDED.status,
			saved_at = EXCLUDED.saved_at`,
		cp.TaskID, cp.Reviewer, cp.Completed, issues, cp.Score, cp.Iterations, cp.Status, cp.SavedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint %s/%s: %w", cp.TaskID, cp.Reviewer, err)
	}
	return nil
}

// LoadCheckpoints implements store.Store.
func (s *Store) LoadCheckpoints(ctx context.Context, taskID string) (map[string]*models.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, reviewer, completed, issues, score, iterations, status, saved_at
		FROM checkpoints WHERE task_id = $1`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*models.Checkpoint)
	for rows.Next() {
		var cp models.Checkpoint
		var issues []byte
		if err := rows.Scan(&cp.TaskID, &cp.Reviewer, &cp.Completed, &issues,
			&cp.Score, &cp.Iterations, &cp.Status, &cp.SavedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if len(issues) > 0 {
			if err := json.Unmarshal(issues, &cp.Issues); err != nil {
				return nil, fmt.Errorf("decode issues: %w", err)
			}
		}
		out[cp.Reviewer] = &cp
	}
	return out, rows.Err()
}

// ClearCheckpoints implements store.Store.
func (s *Store) ClearCheckpoints(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("clear checkpoints: %w", err)
	}
	return nil
}

// SaveFinalReport implements store.Store. The report is stored whole as
// JSONB; the core never queries inside it.
func (s *Store) SaveFinalReport(ctx context.Context, report *models.FinalReport) error {
	return s.saveReport(ctx, "final_reports", report.ID, report.TaskID, report)
}

// GetFinalReport implements store.Store.
func (s *Store) GetFinalReport(ctx context.Context, id string) (*models.FinalReport, error) {
	var report models.FinalReport
	if err := s.getReport(ctx, "final_reports", id, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GetFinalReportByTask implements store.Store.
func (s *Store) GetFinalReportByTask(ctx context.Context, taskID string) (*models.FinalReport, error) {
	var report models.FinalReport
	if err := s.getReportByTask(ctx, "final_reports", taskID, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// SaveFixReport implements store.Store.
func (s *Store) SaveFixReport(ctx context.Context, report *models.FixReport) error {
	return s.saveReport(ctx, "fix_reports", report.ID, report.TaskID, report)
}

// GetFixReport implements store.Store.
func (s *Store) GetFixReport(ctx context.Context, id string) (*models.FixReport, error) {
	var report models.FixReport
	if err := s.getReport(ctx, "fix_reports", id, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GetFixReportByTask implements store.Store.
func (s *Store) GetFixReportByTask(ctx context.Context, taskID string) (*models.FixReport, error) {
	var report models.FixReport
	if err := s.getReportByTask(ctx, "fix_reports", taskID, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Store) saveReport(ctx context.Context, table, id, taskID string, report any) error {
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, task_id, report) VALUES ($1,$2,$3)
		 ON CONFLICT (id) DO UPDATE SET report = EXCLUDED.report`,
		id, taskID, blob)
	if err != nil {
		return fmt.Errorf("save report %s: %w", id, err)
	}
	return nil
}

func (s *Store) getReport(ctx context.Context, table, id string, out any) error {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM `+table+` WHERE id = $1`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get report %s: %w", id, err)
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode report %s: %w", id, err)
	}
	return nil
}

func (s *Store) getReportByTask(ctx context.Context, table, taskID string, out any) error {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM `+table+` WHERE task_id = $1 ORDER BY id DESC LIMIT 1`, taskID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get report for task %s: %w", taskID, err)
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode report for task %s: %w", taskID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var payload []byte
	var processingStartedAt, completedAt sql.NullTime
	err := row.Scan(&task.ID, &task.Kind, &payload, &task.RepositoryID, &task.Priority,
		&task.State, &task.EnqueuedAt, &processingStartedAt, &completedAt,
		&task.Attempts, &task.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Payload = payload
	if processingStartedAt.Valid {
		t := processingStartedAt.Time
		task.ProcessingStartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return &task, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/taskweaver/internal/domain"
)

// TaskStore persists tasks and their lifecycle transitions.
type TaskStore struct {
	db *DB
}

// NewTaskStore creates a task store using the given database.
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, user_id, agent_id, input, data_source_ids, status, output, error, error_kind, model,
	tokens_used, cost_cents, duration_ms, created_at, updated_at, started_at, completed_at`

// Create inserts a new pending task.
func (s *TaskStore) Create(ctx context.Context, t *domain.Task) error {
	s.prepare(t)
	return s.insert(ctx, s.db.sql, t)
}

// prepare assigns the ID, initial status and timestamps of a new task.
func (s *TaskStore) prepare(t *domain.Task) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = domain.TaskPending
	}
	now, _ := s.db.timestamp()
	t.CreatedAt, t.UpdatedAt = now, now
}

// CreateCapped inserts a new pending task unless the user already has max
// tasks created at or after since, in which case it returns ErrCapReached.
// The count and the insert run in one immediate transaction, so concurrent
// callers cannot both take the last slot.
func (s *TaskStore) CreateCapped(ctx context.Context, t *domain.Task, since time.Time, max int) (err error) {
	conn, err := s.db.sql.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("beginning task insert: %w", err)
	}
	defer func() {
		if err != nil {
			conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		}
	}()

	var n int
	err = conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE user_id = ? AND created_at >= ?`,
		t.UserID, formatTime(since)).Scan(&n)
	if err != nil {
		return err
	}
	if n >= max {
		return fmt.Errorf("%w: %d of %d tasks", ErrCapReached, n, max)
	}

	s.prepare(t)
	if err = s.insert(ctx, conn, t); err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, "COMMIT")
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *TaskStore) insert(ctx context.Context, db execer, t *domain.Task) error {
	ids, err := encodeIDs(t.DataSourceIDs)
	if err != nil {
		return err
	}
	ts := formatTime(t.CreatedAt)
	_, err = db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, agent_id, input, data_source_ids, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.AgentID, t.Input, ids, string(t.Status), ts, ts,
	)
	return err
}

// Get returns a task by ID.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.sql.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// List returns tasks matching filter, newest first. A zero limit returns
// every match.
func (s *TaskStore) List(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	var where []string
	var args []any
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	q := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Start atomically moves a pending task to running. It returns ErrConflict
// when the task exists but is not pending.
func (s *TaskStore) Start(ctx context.Context, id string) (*domain.Task, error) {
	_, ts := s.db.timestamp()
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE tasks SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(domain.TaskRunning), ts, ts, id, string(domain.TaskPending))
	if err := affectedOne(res, err); err != nil {
		if errors.Is(err, ErrNotFound) {
			if _, getErr := s.Get(ctx, id); getErr == nil {
				return nil, ErrConflict
			}
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Finish records the terminal outcome of a running task. The status must
// be completed or failed.
func (s *TaskStore) Finish(ctx context.Context, t *domain.Task) error {
	if !domain.CanTransition(domain.TaskRunning, t.Status) {
		return fmt.Errorf("finishing task %s: invalid terminal status %q", t.ID, t.Status)
	}
	now, ts := s.db.timestamp()
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE tasks SET status = ?, output = ?, error = ?, error_kind = ?, model = ?,
		   tokens_used = ?, cost_cents = ?, duration_ms = ?, updated_at = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(t.Status), t.Output, t.Error, t.ErrorKind, t.Model,
		t.TokensUsed, t.CostCents, t.DurationMs, ts, ts,
		t.ID, string(domain.TaskRunning))
	if err := affectedOne(res, err); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrConflict
		}
		return err
	}
	t.UpdatedAt = now
	t.CompletedAt = &now
	return nil
}

// FailStale marks tasks still running that started before cutoff as
// failed with the given kind and message, and returns how many it changed.
func (s *TaskStore) FailStale(ctx context.Context, cutoff time.Time, kind, message string) (int, error) {
	_, ts := s.db.timestamp()
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error = ?, error_kind = ?, updated_at = ?, completed_at = ?
		 WHERE status = ? AND started_at < ?`,
		string(domain.TaskFailed), message, kind, ts, ts,
		string(domain.TaskRunning), formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountSince counts a user's tasks created at or after since.
func (s *TaskStore) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE user_id = ? AND created_at >= ?`,
		userID, formatTime(since)).Scan(&n)
	return n, err
}

func scanTask(r rowScanner) (*domain.Task, error) {
	var t domain.Task
	var ids sql.NullString
	var status, createdAt, updatedAt string
	var startedAt, completedAt sql.NullString
	if err := r.Scan(&t.ID, &t.UserID, &t.AgentID, &t.Input, &ids, &status,
		&t.Output, &t.Error, &t.ErrorKind, &t.Model,
		&t.TokensUsed, &t.CostCents, &t.DurationMs,
		&createdAt, &updatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	t.Status = domain.TaskStatus(status)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	t.StartedAt = parseNullTime(startedAt)
	t.CompletedAt = parseNullTime(completedAt)
	if ids.Valid && ids.String != "" {
		if err := json.Unmarshal([]byte(ids.String), &t.DataSourceIDs); err != nil {
			return nil, fmt.Errorf("decoding data source ids of task %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

func encodeIDs(ids []string) (sql.NullString, error) {
	if len(ids) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

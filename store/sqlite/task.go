package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/schedule"
	"github.com/xraph/simbank/task"
)

const taskColumns = `id, kind, status, schedule_kind, lineage, window_start, window_end,
	stage, seed, max_retries, retry_count, last_error, next_run_at, started_at,
	completed_at, last_success_at, created_at, updated_at`

// CreateTask persists a new task.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO simbank_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), string(t.Kind), string(t.Status), string(t.ScheduleKind),
		t.Lineage, fmtTime(t.Window.Start), fmtTime(t.Window.End),
		t.Stage, t.Seed, t.MaxRetries, t.RetryCount, t.LastError,
		fmtTimePtr(t.NextRunAt), fmtTimePtr(t.StartedAt),
		fmtTimePtr(t.CompletedAt), fmtTimePtr(t.LastSuccessAt),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return simbank.ErrTaskAlreadyExists
		}
		return fmt.Errorf("simbank/sqlite: create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM simbank_tasks WHERE id = ?`,
		taskID.String(),
	)
	t, err := scanTask(row)
	if isNoRows(err) {
		return nil, simbank.ErrTaskNotFound
	}
	return t, err
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE simbank_tasks SET
			status = ?, stage = ?, retry_count = ?, last_error = ?,
			next_run_at = ?, started_at = ?, completed_at = ?,
			last_success_at = ?, updated_at = ?
		WHERE id = ?`,
		string(t.Status), t.Stage, t.RetryCount, t.LastError,
		fmtTimePtr(t.NextRunAt), fmtTimePtr(t.StartedAt),
		fmtTimePtr(t.CompletedAt), fmtTimePtr(t.LastSuccessAt),
		fmtTime(t.UpdatedAt), t.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("simbank/sqlite: update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("simbank/sqlite: update task: %w", err)
	}
	if n == 0 {
		return simbank.ErrTaskNotFound
	}
	return nil
}

// ListTasks returns tasks matching opts, newest first.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM simbank_tasks`
	var conds []string
	var args []any
	if opts.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(opts.Kind))
	}
	if opts.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(opts.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("simbank/sqlite: list tasks: %w", err)
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RunningTask returns the running task of the given kind.
func (s *Store) RunningTask(ctx context.Context, kind task.Kind) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM simbank_tasks
		WHERE kind = ? AND status = ? LIMIT 1`,
		string(kind), string(task.StatusRunning),
	)
	t, err := scanTask(row)
	if isNoRows(err) {
		return nil, simbank.ErrTaskNotFound
	}
	return t, err
}

// LatestCompleted returns the most recently completed task of the given kind.
func (s *Store) LatestCompleted(ctx context.Context, kind task.Kind) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM simbank_tasks
		WHERE kind = ? AND status = ? AND completed_at IS NOT NULL
		ORDER BY completed_at DESC LIMIT 1`,
		string(kind), string(task.StatusCompleted),
	)
	t, err := scanTask(row)
	if isNoRows(err) {
		return nil, simbank.ErrTaskNotFound
	}
	return t, err
}

// DeleteTasksBefore removes terminal tasks completed before cutoff.
func (s *Store) DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM simbank_tasks
		WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(task.StatusCompleted), string(task.StatusFailed), string(task.StatusCancelled),
		fmtTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("simbank/sqlite: delete tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("simbank/sqlite: delete tasks: %w", err)
	}
	return int(n), nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*task.Task, error) {
	var (
		t                    task.Task
		taskID, kind, status string
		scheduleKind         string
		winStart, winEnd     string
		stage, lastError     sql.NullString
		nextRun, started     sql.NullString
		completed, lastOK    sql.NullString
		createdAt, updatedAt string
	)
	err := sc.Scan(
		&taskID, &kind, &status, &scheduleKind, &t.Lineage,
		&winStart, &winEnd, &stage, &t.Seed, &t.MaxRetries, &t.RetryCount,
		&lastError, &nextRun, &started, &completed, &lastOK,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ID, err = id.ParseWithPrefix(taskID, id.PrefixTask)
	if err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan task id: %w", err)
	}
	t.Kind = task.Kind(kind)
	t.Status = task.Status(status)
	t.ScheduleKind = task.ScheduleKind(scheduleKind)
	t.Stage = stage.String
	t.LastError = lastError.String

	var win schedule.Window
	if win.Start, err = parseTime(winStart); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan window start: %w", err)
	}
	if win.End, err = parseTime(winEnd); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan window end: %w", err)
	}
	t.Window = win

	for _, pair := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{nextRun, &t.NextRunAt},
		{started, &t.StartedAt},
		{completed, &t.CompletedAt},
		{lastOK, &t.LastSuccessAt},
	} {
		v, err := parseTimePtr(pair.src)
		if err != nil {
			return nil, fmt.Errorf("simbank/sqlite: scan task time: %w", err)
		}
		*pair.dst = v
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan updated_at: %w", err)
	}
	return &t, nil
}

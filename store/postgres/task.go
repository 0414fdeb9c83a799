package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/task"
)

const taskColumns = `id, kind, status, schedule_kind, lineage, window_start, window_end,
	stage, seed, max_retries, retry_count, last_error, next_run_at, started_at,
	completed_at, last_success_at, created_at, updated_at`

// CreateTask persists a new task.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO simbank_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		t.ID.String(), string(t.Kind), string(t.Status), string(t.ScheduleKind),
		t.Lineage, t.Window.Start, t.Window.End,
		t.Stage, t.Seed, t.MaxRetries, t.RetryCount, t.LastError,
		t.NextRunAt, t.StartedAt, t.CompletedAt, t.LastSuccessAt,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return simbank.ErrTaskAlreadyExists
		}
		return fmt.Errorf("simbank/postgres: create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM simbank_tasks WHERE id = $1`,
		taskID.String(),
	)
	t, err := scanTask(row)
	if isNoRows(err) {
		return nil, simbank.ErrTaskNotFound
	}
	return t, err
}

// UpdateTask persists changes to an existing task. Moving a task to
// running trips the partial unique index when another task of the kind is
// already running, which surfaces as ErrLineageRunning.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE simbank_tasks SET
			status = $1, stage = $2, retry_count = $3, last_error = $4,
			next_run_at = $5, started_at = $6, completed_at = $7,
			last_success_at = $8, updated_at = $9
		WHERE id = $10`,
		string(t.Status), t.Stage, t.RetryCount, t.LastError,
		t.NextRunAt, t.StartedAt, t.CompletedAt,
		t.LastSuccessAt, t.UpdatedAt, t.ID.String(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return simbank.ErrLineageRunning
		}
		return fmt.Errorf("simbank/postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
		args = append(args, string(opts.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("simbank/postgres: list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// RunningTask returns the running task of the given kind.
func (s *Store) RunningTask(ctx context.Context, kind task.Kind) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM simbank_tasks
		WHERE kind = $1 AND status = $2 LIMIT 1`,
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
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM simbank_tasks
		WHERE kind = $1 AND status = $2 AND completed_at IS NOT NULL
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
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM simbank_tasks
		WHERE status = ANY($1) AND completed_at IS NOT NULL AND completed_at < $2`,
		[]string{
			string(task.StatusCompleted),
			string(task.StatusFailed),
			string(task.StatusCancelled),
		},
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("simbank/postgres: delete tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
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

func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t                    task.Task
		taskID, kind, status string
		scheduleKind         string
		stage, lastError     *string
	)
	err := row.Scan(
		&taskID, &kind, &status, &scheduleKind, &t.Lineage,
		&t.Window.Start, &t.Window.End, &stage, &t.Seed,
		&t.MaxRetries, &t.RetryCount, &lastError,
		&t.NextRunAt, &t.StartedAt, &t.CompletedAt, &t.LastSuccessAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.ID, err = id.ParseWithPrefix(taskID, id.PrefixTask); err != nil {
		return nil, fmt.Errorf("simbank/postgres: scan task id: %w", err)
	}
	t.Kind = task.Kind(kind)
	t.Status = task.Status(status)
	t.ScheduleKind = task.ScheduleKind(scheduleKind)
	if stage != nil {
		t.Stage = *stage
	}
	if lastError != nil {
		t.LastError = *lastError
	}
	return &t, nil
}

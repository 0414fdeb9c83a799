package task

import (
	"context"
	"time"

	"github.com/xraph/simbank/id"
)

// ListOpts controls filtering for task list queries.
type ListOpts struct {
	// Kind filters by lineage kind. Empty means all kinds.
	Kind Kind
	// Status filters by lifecycle status. Empty means all statuses.
	Status Status
	// Limit is the maximum number of tasks to return. Zero means no limit.
	Limit int
}

// Store defines the persistence contract for tasks.
type Store interface {
	// CreateTask persists a new task in pending state.
	CreateTask(ctx context.Context, t *Task) error

	// GetTask retrieves a task by ID. Returns simbank.ErrTaskNotFound when
	// no such task exists.
	GetTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// UpdateTask persists changes to an existing task.
	UpdateTask(ctx context.Context, t *Task) error

	// ListTasks returns tasks matching opts, newest first.
	ListTasks(ctx context.Context, opts ListOpts) ([]*Task, error)

	// RunningTask returns the running task of the given kind, or
	// simbank.ErrTaskNotFound when none is running.
	RunningTask(ctx context.Context, kind Kind) (*Task, error)

	// LatestCompleted returns the most recently completed task of the given
	// kind, or simbank.ErrTaskNotFound when none has completed yet.
	LatestCompleted(ctx context.Context, kind Kind) (*Task, error)

	// DeleteTasksBefore removes terminal tasks whose completion time is
	// older than cutoff and returns how many were removed.
	DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int, error)
}

package task

import (
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/schedule"
)

// Kind distinguishes the two generation lineages. At most one task of a
// given kind may be running at any time.
type Kind string

const (
	// KindHistorical backfills a long past window, typically one year.
	KindHistorical Kind = "historical"
	// KindRealtime covers a single half-day trigger window.
	KindRealtime Kind = "realtime"
)

// Lineage returns the checkpoint lineage shared by all tasks of this kind.
func (k Kind) Lineage() string { return string(k) }

// ScheduleKind records how a task came to exist.
type ScheduleKind string

const (
	// ScheduleFixedTime means the task was created by a trigger firing on time.
	ScheduleFixedTime ScheduleKind = "fixed_time"
	// ScheduleManual means the task was created by an operator.
	ScheduleManual ScheduleKind = "manual"
	// ScheduleCatchUp means the task was created to cover missed triggers.
	ScheduleCatchUp ScheduleKind = "manual_catchup"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	// StatusPending means the task is waiting to be started.
	StatusPending Status = "pending"
	// StatusRunning means the task is currently generating records.
	StatusRunning Status = "running"
	// StatusPaused means the task was suspended at a checkpoint boundary.
	StatusPaused Status = "paused"
	// StatusCompleted means the task finished and all records were written.
	StatusCompleted Status = "completed"
	// StatusFailed means the task exhausted its retry budget.
	StatusFailed Status = "failed"
	// StatusCancelled means the task was explicitly cancelled.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// transitions lists the legal status moves. Pending→Pending covers a retry
// reschedule where only NextRunAt changes.
var transitions = map[Status][]Status{
	StatusPending: {StatusPending, StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusPaused, StatusCancelled, StatusPending},
	StatusPaused:  {StatusPending, StatusCancelled},
}

// CanTransition reports whether moving from to next is legal.
func CanTransition(from, next Status) bool {
	for _, s := range transitions[from] {
		if s == next {
			return true
		}
	}
	return false
}

// Task is one generation run over a time window. Its lineage ties it to the
// checkpoint chain that records cross-run cursor state.
type Task struct {
	simbank.Entity

	ID           id.TaskID       `json:"id"`
	Kind         Kind            `json:"kind"`
	Status       Status          `json:"status"`
	ScheduleKind ScheduleKind    `json:"schedule_kind"`
	Lineage      string          `json:"lineage"`
	Window       schedule.Window `json:"window"`
	// Stage names the dependency layer currently generating, for reporting.
	Stage         string     `json:"stage,omitempty"`
	Seed          int64      `json:"seed"`
	MaxRetries    int        `json:"max_retries"`
	RetryCount    int        `json:"retry_count"`
	LastError     string     `json:"last_error,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}

// New builds a pending task for the given kind and window.
func New(kind Kind, sk ScheduleKind, window schedule.Window, seed int64, maxRetries int) *Task {
	return &Task{
		Entity:       simbank.NewEntity(),
		ID:           id.NewTaskID(),
		Kind:         kind,
		Status:       StatusPending,
		ScheduleKind: sk,
		Lineage:      kind.Lineage(),
		Window:       window,
		Seed:         seed,
		MaxRetries:   maxRetries,
	}
}

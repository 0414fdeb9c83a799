package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/backoff"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/progress"
	"github.com/xraph/simbank/schedule"
	"github.com/xraph/simbank/validation"
)

// Runner executes a task to completion. The orchestrator provides the
// implementation; the indirection breaks the import cycle.
type Runner interface {
	// Run generates all records for the task's window. It returns
	// simbank.ErrTaskPaused or simbank.ErrTaskCancelled when the control
	// request took effect, nil on completion, any other error on failure.
	Run(ctx context.Context, t *Task, ctl *Control) error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the wall clock. Useful in tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(strategy backoff.Strategy) ManagerOption {
	return func(m *Manager) { m.backoff = strategy }
}

// WithProgress attaches a progress tracker used by QueryStatus.
func WithProgress(tracker *progress.Tracker) ManagerOption {
	return func(m *Manager) { m.tracker = tracker }
}

// WithRecorder attaches a validation recorder used by QueryStatus.
func WithRecorder(rec *validation.Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = rec }
}

// WithPollInterval sets how often the manager checks for due pending tasks.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pollInterval = d }
}

// lineageState serializes transitions within one lineage and tracks the
// control handle of the currently running execution.
type lineageState struct {
	mu       sync.Mutex
	ctl      *Control
	activeID id.TaskID
}

// Manager owns the task lifecycle: creation, the single-running-per-lineage
// invariant, retries, and the trigger loop that creates real-time tasks on
// schedule and catch-up tasks after downtime.
type Manager struct {
	store    Store
	runner   Runner
	rule     *schedule.TimeRule
	cfg      simbank.Config
	backoff  backoff.Strategy
	tracker  *progress.Tracker
	recorder *validation.Recorder
	logger   *slog.Logger
	now      func() time.Time

	pollInterval time.Duration

	mu       sync.Mutex
	lineages map[string]*lineageState

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a Manager. store and runner are required.
func NewManager(store Store, runner Runner, rule *schedule.TimeRule, cfg simbank.Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:        store,
		runner:       runner,
		rule:         rule,
		cfg:          cfg,
		backoff:      backoff.NewExponential(cfg.RetryBackoffInitial, cfg.RetryBackoffMax),
		logger:       slog.Default(),
		now:          time.Now,
		pollInterval: 5 * time.Second,
		lineages:     make(map[string]*lineageState),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lineage(name string) *lineageState {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.lineages[name]
	if !ok {
		ls = &lineageState{}
		m.lineages[name] = ls
	}
	return ls
}

// CreateTask persists a new pending task. It fails with ErrLineageRunning
// when a task of the same kind is already running.
func (m *Manager) CreateTask(ctx context.Context, kind Kind, sk ScheduleKind, window schedule.Window) (*Task, error) {
	ls := m.lineage(kind.Lineage())
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if _, err := m.store.RunningTask(ctx, kind); err == nil {
		return nil, fmt.Errorf("create %s task: %w", kind, simbank.ErrLineageRunning)
	} else if !errors.Is(err, simbank.ErrTaskNotFound) {
		return nil, err
	}

	t := New(kind, sk, window, m.cfg.RandomSeed, m.cfg.MaxTaskRetries)
	if err := m.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	m.logger.Info("task created",
		slog.String("task_id", t.ID.String()),
		slog.String("kind", string(kind)),
		slog.String("schedule_kind", string(sk)),
		slog.Time("window_start", window.Start),
		slog.Time("window_end", window.End),
	)
	return t, nil
}

// CreateHistoricalTask creates a pending backfill task over the default
// historical window ending yesterday.
func (m *Manager) CreateHistoricalTask(ctx context.Context) (*Task, error) {
	return m.CreateTask(ctx, KindHistorical, ScheduleManual, m.rule.HistoricalWindow(m.now()))
}

// CreateRealtimeTask creates a pending task covering the trigger window of
// the given trigger time.
func (m *Manager) CreateRealtimeTask(ctx context.Context, trigger time.Time, sk ScheduleKind) (*Task, error) {
	return m.CreateTask(ctx, KindRealtime, sk, m.rule.TriggerWindow(trigger))
}

// StartTask transitions a pending task to running and launches its
// execution. The transition is persisted before the execution goroutine
// starts, so a crash between the two leaves a visibly running task rather
// than a silently lost one.
func (m *Manager) StartTask(ctx context.Context, taskID id.TaskID) error {
	t, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	ls := m.lineage(t.Lineage)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if t.Status != StatusPending {
		return fmt.Errorf("start task %s from %s: %w", t.ID, t.Status, simbank.ErrInvalidState)
	}
	if _, err := m.store.RunningTask(ctx, t.Kind); err == nil {
		return fmt.Errorf("start %s task: %w", t.Kind, simbank.ErrLineageRunning)
	} else if !errors.Is(err, simbank.ErrTaskNotFound) {
		return err
	}

	now := m.now()
	t.Status = StatusRunning
	t.StartedAt = &now
	t.NextRunAt = nil
	t.Touch()
	if err := m.store.UpdateTask(ctx, t); err != nil {
		return err
	}

	ctl := NewControl()
	ls.ctl = ctl
	ls.activeID = t.ID

	m.wg.Add(1)
	go m.execute(t, ctl)
	return nil
}

// execute runs the task on a background context so that the execution
// outlives the caller's request context.
func (m *Manager) execute(t *Task, ctl *Control) {
	defer m.wg.Done()

	m.logger.Info("task started",
		slog.String("task_id", t.ID.String()),
		slog.String("kind", string(t.Kind)),
	)
	err := m.runner.Run(context.Background(), t, ctl)
	m.finalize(t, err)

	ls := m.lineage(t.Lineage)
	ls.mu.Lock()
	if ls.activeID == t.ID {
		ls.ctl = nil
		ls.activeID = id.ID{}
	}
	ls.mu.Unlock()
}

// finalize persists the terminal (or retry) transition after an execution
// returns.
func (m *Manager) finalize(t *Task, runErr error) {
	now := m.now()
	t.Touch()
	switch {
	case runErr == nil:
		t.Status = StatusCompleted
		t.CompletedAt = &now
		t.LastSuccessAt = &now
		t.LastError = ""
		m.logger.Info("task completed", slog.String("task_id", t.ID.String()))
	case errors.Is(runErr, simbank.ErrTaskPaused):
		t.Status = StatusPaused
		m.logger.Info("task paused", slog.String("task_id", t.ID.String()))
	case errors.Is(runErr, simbank.ErrTaskCancelled):
		t.Status = StatusCancelled
		t.CompletedAt = &now
		m.logger.Info("task cancelled", slog.String("task_id", t.ID.String()))
	default:
		t.LastError = runErr.Error()
		t.RetryCount++
		if t.RetryCount <= t.MaxRetries {
			delay := m.backoff.Delay(t.RetryCount)
			runAt := now.Add(delay)
			t.Status = StatusPending
			t.NextRunAt = &runAt
			m.logger.Warn("task failed, retry scheduled",
				slog.String("task_id", t.ID.String()),
				slog.Int("retry_count", t.RetryCount),
				slog.Duration("delay", delay),
				slog.String("error", runErr.Error()),
			)
		} else {
			t.Status = StatusFailed
			t.CompletedAt = &now
			m.logger.Error("task failed permanently",
				slog.String("task_id", t.ID.String()),
				slog.Int("retry_count", t.RetryCount),
				slog.String("error", runErr.Error()),
			)
		}
	}
	// The transition must land: a task left running in the store wedges
	// its lineage. Storage blips are retried with backoff before giving up.
	var err error
	for attempt := 0; attempt <= m.cfg.BatchMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(m.backoff.Delay(attempt))
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StoreTimeout)
		err = m.store.UpdateTask(ctx, t)
		cancel()
		if err == nil {
			return
		}
		m.logger.Warn("persist task transition failed",
			slog.String("task_id", t.ID.String()),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	m.logger.Error("task transition lost, reclaimed on next start",
		slog.String("task_id", t.ID.String()),
		slog.String("error", err.Error()),
	)
}

// PauseTask requests a cooperative pause of a running task. The task moves
// to paused once the execution reaches its next batch boundary and writes a
// final checkpoint.
func (m *Manager) PauseTask(ctx context.Context, taskID id.TaskID) error {
	t, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != StatusRunning {
		return fmt.Errorf("pause task %s from %s: %w", t.ID, t.Status, simbank.ErrInvalidState)
	}

	ls := m.lineage(t.Lineage)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.ctl == nil || ls.activeID != t.ID {
		return fmt.Errorf("pause task %s: no live execution: %w", t.ID, simbank.ErrInvalidState)
	}
	ls.ctl.RequestPause()
	return nil
}

// ResumeTask moves a paused task back to pending and starts it. Generation
// resumes from the last persisted checkpoint, producing no duplicates.
func (m *Manager) ResumeTask(ctx context.Context, taskID id.TaskID) error {
	t, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	ls := m.lineage(t.Lineage)
	ls.mu.Lock()
	if t.Status != StatusPaused {
		ls.mu.Unlock()
		return fmt.Errorf("resume task %s from %s: %w", t.ID, t.Status, simbank.ErrInvalidState)
	}
	t.Status = StatusPending
	t.Touch()
	if err := m.store.UpdateTask(ctx, t); err != nil {
		ls.mu.Unlock()
		return err
	}
	ls.mu.Unlock()

	return m.StartTask(ctx, taskID)
}

// CancelTask cancels a task. Pending and paused tasks are cancelled
// immediately; running tasks are requested to stop at the next batch
// boundary. Records already written stay written.
func (m *Manager) CancelTask(ctx context.Context, taskID id.TaskID) error {
	t, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	ls := m.lineage(t.Lineage)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	switch t.Status {
	case StatusPending, StatusPaused:
		now := m.now()
		t.Status = StatusCancelled
		t.CompletedAt = &now
		t.Touch()
		return m.store.UpdateTask(ctx, t)
	case StatusRunning:
		if ls.ctl == nil || ls.activeID != t.ID {
			return fmt.Errorf("cancel task %s: no live execution: %w", t.ID, simbank.ErrInvalidState)
		}
		ls.ctl.RequestCancel()
		return nil
	default:
		return fmt.Errorf("cancel task %s from %s: %w", t.ID, t.Status, simbank.ErrInvalidState)
	}
}

// TaskStatus is the full answer to a status query: the task record, a
// derived progress snapshot, and any validation warnings raised so far.
type TaskStatus struct {
	Task     *Task              `json:"task"`
	Progress *progress.Snapshot `json:"progress,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
}

// QueryStatus returns the task together with derived progress and
// validation warnings. It works for tasks in any status.
func (m *Manager) QueryStatus(ctx context.Context, taskID id.TaskID) (*TaskStatus, error) {
	t, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	st := &TaskStatus{Task: t}
	if m.tracker != nil {
		started := time.Time{}
		if t.StartedAt != nil {
			started = *t.StartedAt
		}
		snap, err := m.tracker.Snapshot(ctx, t.ID, t.Lineage, t.Window, started)
		if err != nil {
			return nil, err
		}
		st.Progress = snap
	}
	if m.recorder != nil {
		st.Warnings = m.recorder.Warnings(t.ID)
	}
	return st, nil
}

// CleanupCompleted deletes terminal tasks older than the configured
// retention age and returns how many were removed.
func (m *Manager) CleanupCompleted(ctx context.Context) (int, error) {
	if m.cfg.CleanupAge <= 0 {
		return 0, nil
	}
	cutoff := m.now().Add(-m.cfg.CleanupAge)
	n, err := m.store.DeleteTasksBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("cleaned up tasks", slog.Int("count", n), slog.Time("cutoff", cutoff))
	}
	return n, nil
}

// Start reclaims tasks stranded by a previous process, performs the
// catch-up check, and launches the trigger and poll loops.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.reclaim(ctx); err != nil {
		return err
	}
	if err := m.catchUp(ctx); err != nil {
		return err
	}
	m.wg.Add(2)
	go m.triggerLoop()
	go m.pollLoop()
	m.logger.Info("task manager started")
	return nil
}

// Stop shuts down the loops and waits for in-flight executions to return.
// Running tasks are asked to cancel; their progress survives in checkpoints.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.mu.Lock()
	for _, ls := range m.lineages {
		ls.mu.Lock()
		if ls.ctl != nil {
			ls.ctl.RequestCancel()
		}
		ls.mu.Unlock()
	}
	m.mu.Unlock()
	m.wg.Wait()
	m.logger.Info("task manager stopped")
}

// reclaim sweeps tasks persisted as running with no live execution back to
// pending. A crash mid-run leaves such a task behind, and its lineage would
// otherwise reject every future create. The reclaimed task restarts through
// the poll loop and resumes from its last checkpoint.
func (m *Manager) reclaim(ctx context.Context) error {
	running, err := m.store.ListTasks(ctx, ListOpts{Status: StatusRunning})
	if err != nil {
		return err
	}
	for _, t := range running {
		ls := m.lineage(t.Lineage)
		ls.mu.Lock()
		if ls.ctl != nil && ls.activeID == t.ID {
			ls.mu.Unlock()
			continue
		}
		t.Status = StatusPending
		t.NextRunAt = nil
		t.Touch()
		err := m.store.UpdateTask(ctx, t)
		ls.mu.Unlock()
		if err != nil {
			return err
		}
		m.logger.Warn("reclaimed stranded task",
			slog.String("task_id", t.ID.String()),
			slog.String("kind", string(t.Kind)),
		)
	}
	return nil
}

// catchUp creates tasks covering triggers missed while the process was
// down. With CollapseCatchUp only the most recent missed trigger is
// covered; otherwise one task per missed trigger is queued.
func (m *Manager) catchUp(ctx context.Context) error {
	last, err := m.store.LatestCompleted(ctx, KindRealtime)
	if errors.Is(err, simbank.ErrTaskNotFound) {
		// Fresh deployment: no baseline, nothing to catch up.
		return nil
	}
	if err != nil {
		return err
	}
	anchor := last.CreatedAt
	if last.CompletedAt != nil {
		anchor = *last.CompletedAt
	}

	missed := m.rule.MissedTriggers(anchor, m.now())
	if len(missed) == 0 {
		return nil
	}
	if m.cfg.CollapseCatchUp {
		missed = missed[len(missed)-1:]
	}
	m.logger.Warn("missed triggers detected",
		slog.Int("count", len(missed)),
		slog.Time("since", anchor),
	)
	for _, trigger := range missed {
		t, err := m.CreateRealtimeTask(ctx, trigger, ScheduleCatchUp)
		if err != nil {
			return fmt.Errorf("catch up trigger %s: %w", trigger.Format(time.RFC3339), err)
		}
		// Start only the first; the poll loop drains the rest once the
		// lineage frees up.
		if err := m.StartTask(ctx, t.ID); err != nil && !errors.Is(err, simbank.ErrLineageRunning) {
			return err
		}
	}
	return nil
}

// triggerLoop sleeps until the next fixed trigger, creates the real-time
// task for its window, and repeats.
func (m *Manager) triggerLoop() {
	defer m.wg.Done()
	for {
		next := m.rule.NextTrigger(m.now())
		timer := time.NewTimer(next.Sub(m.now()))
		select {
		case <-m.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StoreTimeout)
		t, err := m.CreateRealtimeTask(ctx, next, ScheduleFixedTime)
		if err != nil {
			cancel()
			if errors.Is(err, simbank.ErrLineageRunning) {
				m.logger.Warn("trigger skipped, lineage busy", slog.Time("trigger", next))
				continue
			}
			m.logger.Error("create triggered task failed", slog.String("error", err.Error()))
			continue
		}
		if err := m.StartTask(ctx, t.ID); err != nil && !errors.Is(err, simbank.ErrLineageRunning) {
			m.logger.Error("start triggered task failed",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

// pollLoop starts due pending tasks: retry reschedules whose NextRunAt has
// passed and queued catch-up tasks waiting for a free lineage.
func (m *Manager) pollLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.startDue()
		}
	}
}

func (m *Manager) startDue() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StoreTimeout)
	defer cancel()

	pending, err := m.store.ListTasks(ctx, ListOpts{Status: StatusPending})
	if err != nil {
		m.logger.Error("list pending tasks failed", slog.String("error", err.Error()))
		return
	}
	now := m.now()
	// ListTasks returns newest first; start oldest first so sequential
	// catch-up tasks run in trigger order.
	for i := len(pending) - 1; i >= 0; i-- {
		t := pending[i]
		if t.NextRunAt != nil && t.NextRunAt.After(now) {
			continue
		}
		err := m.StartTask(ctx, t.ID)
		if err != nil && !errors.Is(err, simbank.ErrLineageRunning) && !errors.Is(err, simbank.ErrInvalidState) {
			m.logger.Error("start pending task failed",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

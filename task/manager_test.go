package task_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/backoff"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/schedule"
	"github.com/xraph/simbank/task"
)

// memStore is a minimal in-memory task store for manager tests.
type memStore struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]*task.Task)}
}

func (s *memStore) CreateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID.String()]; ok {
		return simbank.ErrTaskAlreadyExists
	}
	cp := *t
	s.tasks[t.ID.String()] = &cp
	return nil
}

func (s *memStore) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID.String()]
	if !ok {
		return nil, simbank.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) UpdateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID.String()]; !ok {
		return simbank.ErrTaskNotFound
	}
	cp := *t
	s.tasks[t.ID.String()] = &cp
	return nil
}

func (s *memStore) ListTasks(_ context.Context, opts task.ListOpts) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Task
	for _, t := range s.tasks {
		if opts.Kind != "" && t.Kind != opts.Kind {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) RunningTask(_ context.Context, kind task.Kind) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Kind == kind && t.Status == task.StatusRunning {
			cp := *t
			return &cp, nil
		}
	}
	return nil, simbank.ErrTaskNotFound
}

func (s *memStore) LatestCompleted(_ context.Context, kind task.Kind) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *task.Task
	for _, t := range s.tasks {
		if t.Kind != kind || t.Status != task.StatusCompleted || t.CompletedAt == nil {
			continue
		}
		if latest == nil || t.CompletedAt.After(*latest.CompletedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, simbank.ErrTaskNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *memStore) DeleteTasksBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, t := range s.tasks {
		if t.Status.Terminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(s.tasks, key)
			n++
		}
	}
	return n, nil
}

// fakeRunner lets tests control how each execution behaves.
type fakeRunner struct {
	mu   sync.Mutex
	runs int
	// run is invoked for each execution. Default completes immediately.
	run func(ctx context.Context, t *task.Task, ctl *task.Control) error
}

func (r *fakeRunner) Run(ctx context.Context, t *task.Task, ctl *task.Control) error {
	r.mu.Lock()
	r.runs++
	fn := r.run
	r.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, t, ctl)
}

func (r *fakeRunner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func testRule(t *testing.T) *schedule.TimeRule {
	t.Helper()
	return schedule.NewTimeRule()
}

func waitStatus(t *testing.T, store task.Store, taskID id.TaskID, want task.Status) *task.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.GetTask(context.Background(), taskID)
		if err != nil {
			t.Fatalf("GetTask() error = %v", err)
		}
		if got.Status == want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := store.GetTask(context.Background(), taskID)
	t.Fatalf("task %s never reached %s, last status %s", taskID, want, got.Status)
	return nil
}

func TestCreateTask_RejectsSecondWhileRunning(t *testing.T) {
	store := newMemStore()
	block := make(chan struct{})
	runner := &fakeRunner{run: func(ctx context.Context, _ *task.Task, _ *task.Control) error {
		<-block
		return nil
	}}
	m := task.NewManager(store, runner, testRule(t), simbank.DefaultConfig())
	ctx := context.Background()

	first, err := m.CreateTask(ctx, task.KindRealtime, task.ScheduleManual, schedule.Window{})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if err := m.StartTask(ctx, first.ID); err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}
	waitStatus(t, store, first.ID, task.StatusRunning)

	if _, err := m.CreateTask(ctx, task.KindRealtime, task.ScheduleManual, schedule.Window{}); !errors.Is(err, simbank.ErrLineageRunning) {
		t.Errorf("second CreateTask error = %v, want ErrLineageRunning", err)
	}

	// A different kind is a different lineage and must not be blocked.
	if _, err := m.CreateTask(ctx, task.KindHistorical, task.ScheduleManual, schedule.Window{}); err != nil {
		t.Errorf("historical CreateTask error = %v", err)
	}

	close(block)
	waitStatus(t, store, first.ID, task.StatusCompleted)
}

func TestStartTask_ConcurrentOnlyOneWins(t *testing.T) {
	store := newMemStore()
	block := make(chan struct{})
	runner := &fakeRunner{run: func(ctx context.Context, _ *task.Task, _ *task.Control) error {
		<-block
		return nil
	}}
	m := task.NewManager(store, runner, testRule(t), simbank.DefaultConfig())
	ctx := context.Background()

	a, err := m.CreateTask(ctx, task.KindRealtime, task.ScheduleManual, schedule.Window{})
	if err != nil {
		t.Fatal(err)
	}
	b := task.New(task.KindRealtime, task.ScheduleManual, schedule.Window{}, 42, 3)
	if err := store.CreateTask(ctx, b); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, tid := range []id.TaskID{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, tid id.TaskID) {
			defer wg.Done()
			errs[i] = m.StartTask(ctx, tid)
		}(i, tid)
	}
	wg.Wait()

	started, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			started++
		case errors.Is(err, simbank.ErrLineageRunning):
			conflicts++
		default:
			t.Fatalf("unexpected StartTask error: %v", err)
		}
	}
	if started != 1 || conflicts != 1 {
		t.Errorf("started = %d conflicts = %d, want 1 and 1", started, conflicts)
	}
	close(block)
}

func TestRetry_BudgetExhaustion(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{run: func(ctx context.Context, _ *task.Task, _ *task.Control) error {
		return errors.New("generator blew up")
	}}
	cfg := simbank.DefaultConfig()
	cfg.MaxTaskRetries = 2
	m := task.NewManager(store, runner, testRule(t), cfg,
		task.WithBackoff(backoff.NewConstant(time.Millisecond)),
	)
	ctx := context.Background()

	tk, err := m.CreateTask(ctx, task.KindRealtime, task.ScheduleManual, schedule.Window{})
	if err != nil {
		t.Fatal(err)
	}

	// Drive attempts manually: each failure reschedules as pending until
	// the budget runs out.
	for attempt := 0; attempt <= cfg.MaxTaskRetries; attempt++ {
		if err := m.StartTask(ctx, tk.ID); err != nil {
			t.Fatalf("StartTask() attempt %d error = %v", attempt, err)
		}
		if attempt < cfg.MaxTaskRetries {
			got := waitStatus(t, store, tk.ID, task.StatusPending)
			if got.RetryCount != attempt+1 {
				t.Errorf("attempt %d: RetryCount = %d, want %d", attempt, got.RetryCount, attempt+1)
			}
			if got.NextRunAt == nil {
				t.Errorf("attempt %d: NextRunAt not set", attempt)
			}
			if got.LastError == "" {
				t.Errorf("attempt %d: LastError not recorded", attempt)
			}
		}
	}

	final := waitStatus(t, store, tk.ID, task.StatusFailed)
	if final.RetryCount != cfg.MaxTaskRetries+1 {
		t.Errorf("final RetryCount = %d, want %d", final.RetryCount, cfg.MaxTaskRetries+1)
	}
	if runner.Runs() != cfg.MaxTaskRetries+1 {
		t.Errorf("runs = %d, want %d", runner.Runs(), cfg.MaxTaskRetries+1)
	}
}

func TestPauseResume(t *testing.T) {
	store := newMemStore()
	paused := make(chan struct{}, 4)
	runner := &fakeRunner{run: func(ctx context.Context, _ *task.Task, ctl *task.Control) error {
		for {
			if ctl.PauseRequested() {
				paused <- struct{}{}
				return simbank.ErrTaskPaused
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Millisecond):
			}
		}
	}}
	m := task.NewManager(store, runner, testRule(t), simbank.DefaultConfig())
	ctx := context.Background()

	tk, err := m.CreateTask(ctx, task.KindRealtime, task.ScheduleManual, schedule.Window{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.StartTask(ctx, tk.ID); err != nil {
		t.Fatal(err)
	}
	waitStatus(t, store, tk.ID, task.StatusRunning)

	if err := m.PauseTask(ctx, tk.ID); err != nil {
		t.Fatalf("PauseTask() error = %v", err)
	}
	waitStatus(t, store, tk.ID, task.StatusPaused)

	// Second execution completes immediately.
	runner.mu.Lock()
	runner.run = nil
	runner.mu.Unlock()

	if err := m.ResumeTask(ctx, tk.ID); err != nil {
		t.Fatalf("ResumeTask() error = %v", err)
	}
	waitStatus(t, store, tk.ID, task.StatusCompleted)
	if runner.Runs() != 2 {
		t.Errorf("runs = %d, want 2", runner.Runs())
	}
}

func TestCancel_PendingAndRunning(t *testing.T) {
	store := newMemStore()
	block := make(chan struct{})
	runner := &fakeRunner{run: func(ctx context.Context, _ *task.Task, ctl *task.Control) error {
		<-block
		if ctl.CancelRequested() {
			return simbank.ErrTaskCancelled
		}
		return nil
	}}
	m := task.NewManager(store, runner, testRule(t), simbank.DefaultConfig())
	ctx := context.Background()

	pending, err := m.CreateTask(ctx, task.KindHistorical, task.ScheduleManual, schedule.Window{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CancelTask(ctx, pending.ID); err != nil {
		t.Fatalf("CancelTask(pending) error = %v", err)
	}
	got, _ := store.GetTask(ctx, pending.ID)
	if got.Status != task.StatusCancelled {
		t.Errorf("pending task status = %s, want cancelled", got.Status)
	}

	running, err := m.CreateTask(ctx, task.KindRealtime, task.ScheduleManual, schedule.Window{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.StartTask(ctx, running.ID); err != nil {
		t.Fatal(err)
	}
	waitStatus(t, store, running.ID, task.StatusRunning)
	if err := m.CancelTask(ctx, running.ID); err != nil {
		t.Fatalf("CancelTask(running) error = %v", err)
	}
	close(block)
	waitStatus(t, store, running.ID, task.StatusCancelled)
}

func TestStart_ReclaimsStrandedRunningTask(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	// A previous process crashed mid-run: the task is persisted as running
	// but nothing is executing it.
	stranded := task.New(task.KindRealtime, task.ScheduleFixedTime, schedule.Window{}, 42, 3)
	stranded.Status = task.StatusRunning
	startedAt := time.Date(2026, 3, 12, 1, 0, 30, 0, time.UTC)
	stranded.StartedAt = &startedAt
	if err := store.CreateTask(ctx, stranded); err != nil {
		t.Fatal(err)
	}
	prior := task.New(task.KindRealtime, task.ScheduleFixedTime, schedule.Window{}, 42, 3)
	prior.Status = task.StatusCompleted
	done := time.Date(2026, 3, 12, 1, 30, 0, 0, time.UTC)
	prior.CompletedAt = &done
	if err := store.CreateTask(ctx, prior); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 12, 2, 0, 0, 0, time.UTC)
	rule := schedule.NewTimeRule(schedule.WithLocation(time.UTC))
	m := task.NewManager(store, &fakeRunner{}, rule, simbank.DefaultConfig(),
		task.WithClock(func() time.Time { return now }),
		task.WithPollInterval(5*time.Millisecond),
	)
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	// The stranded task is swept back to pending, picked up by the poll
	// loop, and runs to completion from its checkpoint.
	waitStatus(t, store, stranded.ID, task.StatusCompleted)

	// The lineage accepts new tasks again.
	if _, err := m.CreateRealtimeTask(ctx, now, task.ScheduleManual); err != nil {
		t.Errorf("CreateRealtimeTask() after reclaim error = %v", err)
	}
}

// flakyUpdateStore fails UpdateTask a fixed number of times once armed.
type flakyUpdateStore struct {
	*memStore
	fmu      sync.Mutex
	failures int
}

func (s *flakyUpdateStore) UpdateTask(ctx context.Context, t *task.Task) error {
	s.fmu.Lock()
	if s.failures > 0 {
		s.failures--
		s.fmu.Unlock()
		return errors.New("store connection reset")
	}
	s.fmu.Unlock()
	return s.memStore.UpdateTask(ctx, t)
}

func TestFinalize_RetriesTerminalTransition(t *testing.T) {
	store := &flakyUpdateStore{memStore: newMemStore()}
	block := make(chan struct{})
	runner := &fakeRunner{run: func(context.Context, *task.Task, *task.Control) error {
		<-block
		return nil
	}}
	cfg := simbank.DefaultConfig()
	cfg.BatchMaxRetries = 2
	m := task.NewManager(store, runner, testRule(t), cfg,
		task.WithBackoff(backoff.NewConstant(time.Millisecond)),
	)
	ctx := context.Background()

	tk, err := m.CreateTask(ctx, task.KindRealtime, task.ScheduleManual, schedule.Window{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.StartTask(ctx, tk.ID); err != nil {
		t.Fatal(err)
	}
	waitStatus(t, store, tk.ID, task.StatusRunning)

	// A storage blip on the terminal write must not leave the task running
	// forever; the transition is retried until it lands.
	store.fmu.Lock()
	store.failures = 2
	store.fmu.Unlock()
	close(block)

	waitStatus(t, store, tk.ID, task.StatusCompleted)
}

func TestCatchUp_CollapsedToMostRecentMissed(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{}
	cfg := simbank.DefaultConfig()

	// Last success on March 10th at 14:00; the process wakes up on the
	// 12th at 02:00 having missed three triggers. Collapsed catch-up
	// covers only the most recent one: the 12th 01:00 night trigger.
	loc := time.UTC
	lastDone := time.Date(2026, 3, 10, 14, 0, 0, 0, loc)
	now := time.Date(2026, 3, 12, 2, 0, 0, 0, loc)

	prior := task.New(task.KindRealtime, task.ScheduleFixedTime, schedule.Window{}, 42, 3)
	prior.Status = task.StatusCompleted
	prior.CompletedAt = &lastDone
	if err := store.CreateTask(context.Background(), prior); err != nil {
		t.Fatal(err)
	}

	rule := schedule.NewTimeRule(schedule.WithLocation(loc))
	m := task.NewManager(store, runner, rule, cfg,
		task.WithClock(func() time.Time { return now }),
	)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Stop()

	created, err := store.ListTasks(context.Background(), task.ListOpts{Kind: task.KindRealtime})
	if err != nil {
		t.Fatal(err)
	}
	var catchup *task.Task
	for _, tk := range created {
		if tk.ScheduleKind == task.ScheduleCatchUp {
			if catchup != nil {
				t.Fatal("more than one catch-up task created")
			}
			catchup = tk
		}
	}
	if catchup == nil {
		t.Fatal("no catch-up task created")
	}
	wantStart := time.Date(2026, 3, 11, 13, 0, 0, 0, loc)
	wantEnd := time.Date(2026, 3, 12, 0, 0, 0, 0, loc)
	if !catchup.Window.Start.Equal(wantStart) || !catchup.Window.End.Equal(wantEnd) {
		t.Errorf("catch-up window = [%s, %s), want [%s, %s)",
			catchup.Window.Start, catchup.Window.End, wantStart, wantEnd)
	}
}

func TestCatchUp_FreshDeploymentCreatesNothing(t *testing.T) {
	store := newMemStore()
	m := task.NewManager(store, &fakeRunner{}, testRule(t), simbank.DefaultConfig())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Stop()

	created, err := store.ListTasks(context.Background(), task.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 0 {
		t.Errorf("created %d tasks on fresh deployment, want 0", len(created))
	}
}

func TestCleanupCompleted(t *testing.T) {
	store := newMemStore()
	cfg := simbank.DefaultConfig()
	cfg.CleanupAge = 24 * time.Hour
	now := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)
	m := task.NewManager(store, &fakeRunner{}, testRule(t), cfg,
		task.WithClock(func() time.Time { return now }),
	)

	old := task.New(task.KindRealtime, task.ScheduleFixedTime, schedule.Window{}, 42, 3)
	old.Status = task.StatusCompleted
	oldDone := now.Add(-48 * time.Hour)
	old.CompletedAt = &oldDone

	fresh := task.New(task.KindRealtime, task.ScheduleFixedTime, schedule.Window{}, 42, 3)
	fresh.Status = task.StatusCompleted
	freshDone := now.Add(-1 * time.Hour)
	fresh.CompletedAt = &freshDone

	ctx := context.Background()
	for _, tk := range []*task.Task{old, fresh} {
		if err := store.CreateTask(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}

	n, err := m.CleanupCompleted(ctx)
	if err != nil {
		t.Fatalf("CleanupCompleted() error = %v", err)
	}
	if n != 1 {
		t.Errorf("cleaned = %d, want 1", n)
	}
	if _, err := store.GetTask(ctx, fresh.ID); err != nil {
		t.Errorf("fresh task removed: %v", err)
	}
	if _, err := store.GetTask(ctx, old.ID); !errors.Is(err, simbank.ErrTaskNotFound) {
		t.Errorf("old task still present, err = %v", err)
	}
}

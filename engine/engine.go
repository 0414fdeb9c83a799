// Package engine wires all simbank subsystems together. It builds the
// generator set, validation recorder, progress tracker, orchestrator, and
// task manager over a single store backend, and exposes the operations an
// application calls: seeding, scheduling, pause/resume/cancel, and status.
//
// This package exists to break the import cycle: the root simbank package
// defines Entity and Config (imported by task, orchestrator, etc.) and so
// cannot import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/generator"
	"github.com/xraph/simbank/generator/synth"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/orchestrator"
	"github.com/xraph/simbank/progress"
	"github.com/xraph/simbank/schedule"
	"github.com/xraph/simbank/store"
	"github.com/xraph/simbank/task"
	"github.com/xraph/simbank/validation"
)

// Engine is the composition root. Build one with New, call Migrate once,
// then Start to begin scheduled generation.
type Engine struct {
	store   store.Store
	cfg     simbank.Config
	logger  *slog.Logger
	gens    []generator.Generator
	rule    *schedule.TimeRule
	rec     *validation.Recorder
	tracker *progress.Tracker
	orch    *orchestrator.Orchestrator
	manager *task.Manager

	location *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by every subsystem.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithGenerators replaces the built-in generator set. Dependency ordering
// is derived from entity type declarations, so any set whose dependencies
// are acyclic works.
func WithGenerators(gens ...generator.Generator) Option {
	return func(e *Engine) { e.gens = gens }
}

// WithVolumes sets the planned record volumes for the built-in generator
// set. Ignored when WithGenerators is used.
func WithVolumes(v synth.Volumes) Option {
	return func(e *Engine) { e.gens = synth.Generators(v) }
}

// WithLocation sets the time zone the daily trigger times are evaluated
// in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.location = loc }
}

// New builds an Engine over a store backend. The caller owns the store
// lifecycle; Stop does not close it.
func New(st store.Store, cfg simbank.Config, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, simbank.ErrNoStore
	}

	e := &Engine{
		store:  st,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.gens == nil {
		e.gens = synth.Generators(synth.DefaultVolumes())
	}
	if len(e.gens) == 0 {
		return nil, fmt.Errorf("simbank/engine: no generators configured: %w", simbank.ErrGenerator)
	}

	ruleOpts := []schedule.Option{schedule.WithLogger(e.logger)}
	if e.location != nil {
		ruleOpts = append(ruleOpts, schedule.WithLocation(e.location))
	}
	if !cfg.HistoricalStart.IsZero() {
		ruleOpts = append(ruleOpts, schedule.WithHistoricalStart(cfg.HistoricalStart))
	}
	e.rule = schedule.NewTimeRule(ruleOpts...)

	e.rec = validation.NewRecorder(st, cfg.FailureRateThreshold,
		validation.WithLogger(e.logger),
	)
	e.tracker = progress.NewTracker(st, e.plan)
	e.orch = orchestrator.New(st, st, e.gens, cfg,
		orchestrator.WithLogger(e.logger),
		orchestrator.WithRecorder(e.rec),
		orchestrator.WithTaskStore(st),
	)
	e.manager = task.NewManager(st, e.orch, e.rule, cfg,
		task.WithLogger(e.logger),
		task.WithProgress(e.tracker),
		task.WithRecorder(e.rec),
	)

	return e, nil
}

// plan is the progress.PlanFunc for the configured generator set.
func (e *Engine) plan(w schedule.Window) map[simbank.EntityType]int64 {
	out := make(map[simbank.EntityType]int64, len(e.gens))
	for _, g := range e.gens {
		out[g.EntityType()] = g.Plan(w)
	}
	return out
}

// Migrate runs the store's schema migrations.
func (e *Engine) Migrate(ctx context.Context) error {
	return e.store.Migrate(ctx)
}

// Start verifies store connectivity, performs catch-up for triggers missed
// while the process was down, and begins scheduled task creation.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("simbank/engine: store ping: %w", err)
	}
	return e.manager.Start(ctx)
}

// Stop gracefully shuts down scheduling and cancels running tasks. Each
// running task writes a final checkpoint before returning, so a later
// Start resumes where generation left off.
func (e *Engine) Stop() {
	e.manager.Stop()
}

// ──────────────────────────────────────────────────
// Task operations
// ──────────────────────────────────────────────────

// SeedHistorical creates and starts the one-year historical backfill task.
// It returns immediately; the task runs in the background.
func (e *Engine) SeedHistorical(ctx context.Context) (*task.Task, error) {
	t, err := e.manager.CreateHistoricalTask(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.manager.StartTask(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// RunRealtime creates and starts a manual realtime task covering the data
// window of the given trigger time.
func (e *Engine) RunRealtime(ctx context.Context, trigger time.Time) (*task.Task, error) {
	t, err := e.manager.CreateRealtimeTask(ctx, trigger, task.ScheduleManual)
	if err != nil {
		return nil, err
	}
	if err := e.manager.StartTask(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// Pause requests a cooperative pause of a running task.
func (e *Engine) Pause(ctx context.Context, taskID id.TaskID) error {
	return e.manager.PauseTask(ctx, taskID)
}

// Resume restarts a paused task from its latest checkpoint.
func (e *Engine) Resume(ctx context.Context, taskID id.TaskID) error {
	return e.manager.ResumeTask(ctx, taskID)
}

// Cancel stops a task. Running tasks stop at the next batch boundary.
func (e *Engine) Cancel(ctx context.Context, taskID id.TaskID) error {
	return e.manager.CancelTask(ctx, taskID)
}

// Status returns a task with its live progress snapshot and any
// data-quality warnings.
func (e *Engine) Status(ctx context.Context, taskID id.TaskID) (*task.TaskStatus, error) {
	return e.manager.QueryStatus(ctx, taskID)
}

// Tasks lists tasks, newest first.
func (e *Engine) Tasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	return e.store.ListTasks(ctx, opts)
}

// Validations returns the per-batch validation records for a task.
func (e *Engine) Validations(ctx context.Context, taskID id.TaskID) ([]*validation.Record, error) {
	return e.store.ListValidations(ctx, taskID)
}

// CleanupCompleted deletes terminal tasks older than the configured
// retention age and returns how many were removed.
func (e *Engine) CleanupCompleted(ctx context.Context) (int, error) {
	return e.manager.CleanupCompleted(ctx)
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Manager returns the task manager.
func (e *Engine) Manager() *task.Manager { return e.manager }

// Orchestrator returns the generation orchestrator.
func (e *Engine) Orchestrator() *orchestrator.Orchestrator { return e.orch }

// Rule returns the schedule rule.
func (e *Engine) Rule() *schedule.TimeRule { return e.rule }

// Config returns the engine configuration.
func (e *Engine) Config() simbank.Config { return e.cfg }

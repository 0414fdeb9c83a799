// Package orchestrator executes generation tasks: it orders entity types
// into dependency stages, fans generators out within each stage, writes
// record batches to the sink, and folds advanced cursors into periodic
// checkpoints so an interrupted run resumes without duplicates or gaps.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/generator"
	"github.com/xraph/simbank/registry"
	"github.com/xraph/simbank/task"
	"github.com/xraph/simbank/validation"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithRecorder attaches a validation recorder. Without one, batches are
// written unvalidated.
func WithRecorder(rec *validation.Recorder) Option {
	return func(o *Orchestrator) { o.rec = rec }
}

// WithTaskStore lets the orchestrator persist mid-run task state, such as
// the current stage label. Without one, stage changes become visible only
// with the terminal transition.
func WithTaskStore(st task.Store) Option {
	return func(o *Orchestrator) { o.tasks = st }
}

// Orchestrator runs tasks against a fixed generator set. It satisfies
// task.Runner and is safe for sequential reuse across tasks.
type Orchestrator struct {
	gens    map[simbank.EntityType]generator.Generator
	sink    generator.Sink
	ckpts   checkpoint.Store
	tasks   task.Store
	rec     *validation.Recorder
	cfg     simbank.Config
	logger  *slog.Logger
	limiter *rate.Limiter
}

var _ task.Runner = (*Orchestrator)(nil)

// New creates an Orchestrator over the given generators.
func New(sink generator.Sink, ckpts checkpoint.Store, gens []generator.Generator, cfg simbank.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gens:   make(map[simbank.EntityType]generator.Generator, len(gens)),
		sink:   sink,
		ckpts:  ckpts,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, g := range gens {
		o.gens[g.EntityType()] = g
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < cfg.BatchSize {
			// WaitN reserves whole batches; the bucket must hold one.
			burst = cfg.BatchSize
		}
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the task to completion. It returns simbank.ErrTaskPaused or
// simbank.ErrTaskCancelled when the control request takes effect at a batch
// boundary; in both cases a final checkpoint is persisted first.
func (o *Orchestrator) Run(ctx context.Context, t *task.Task, ctl *task.Control) error {
	types := make([]simbank.EntityType, 0, len(o.gens))
	for et := range o.gens {
		types = append(types, et)
	}
	stages, err := Stages(types)
	if err != nil {
		return err
	}

	st, reg, err := o.restore(ctx, t)
	if err != nil {
		return err
	}

	var runErr error
	for i, stage := range stages {
		t.Stage = fmt.Sprintf("%d/%d", i+1, len(stages))
		o.persistStage(ctx, t)
		o.logger.Info("stage started",
			slog.String("task_id", t.ID.String()),
			slog.String("stage", t.Stage),
			slog.Any("entity_types", stage),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.StageConcurrency)
		for _, et := range stage {
			gen := o.gens[et]
			g.Go(func() error {
				return o.generate(gctx, t, ctl, gen, st, reg)
			})
		}
		if err := g.Wait(); err != nil {
			runErr = err
			break
		}
	}

	// Persist progress on every exit path. A pause, cancel, or failure
	// must leave the lineage resumable at the last batch boundary.
	if err := st.save(context.WithoutCancel(ctx)); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			o.logger.Error("final checkpoint write failed",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if runErr != nil {
		return runErr
	}
	if _, err := o.ckpts.PruneCheckpoints(ctx, t.Lineage, o.cfg.KeepCheckpoints); err != nil {
		o.logger.Warn("checkpoint prune failed",
			slog.String("lineage", t.Lineage),
			slog.String("error", err.Error()),
		)
	}
	o.logger.Info("task generation finished",
		slog.String("task_id", t.ID.String()),
		slog.Int64("records", st.total()),
	)
	return nil
}

// restore loads the task's latest checkpoint and rebuilds the identifier
// registry from it. A checkpoint written by a different task of the same
// lineage belongs to a previous window and is ignored.
func (o *Orchestrator) restore(ctx context.Context, t *task.Task) (*runState, *registry.Registry, error) {
	st := &runState{o: o, t: t, payload: checkpoint.Payload{}}
	reg := registry.New()

	cp, err := o.ckpts.LatestCheckpoint(ctx, t.Lineage)
	switch {
	case errors.Is(err, simbank.ErrCheckpointNotFound):
		return st, reg, nil
	case err != nil:
		return nil, nil, err
	case cp.TaskID != t.ID:
		return st, reg, nil
	}

	st.payload = cp.Payload.Clone()
	for et, cur := range st.payload {
		gen, ok := o.gens[et]
		if !ok {
			continue
		}
		reg.Register(et, gen.ReplayIDs(t.Window, cur, t.Seed)...)
	}
	o.logger.Info("resuming from checkpoint",
		slog.String("task_id", t.ID.String()),
		slog.String("checkpoint_id", cp.ID.String()),
		slog.Int64("records", st.payload.TotalProduced()),
	)
	return st, reg, nil
}

// generate drives one generator from its restored cursor to its planned
// volume, one batch at a time.
func (o *Orchestrator) generate(
	ctx context.Context,
	t *task.Task,
	ctl *task.Control,
	gen generator.Generator,
	st *runState,
	reg *registry.Registry,
) error {
	et := gen.EntityType()
	cur := st.cursor(et)
	plan := gen.Plan(t.Window)
	if cur.Produced >= plan {
		return nil
	}

	for cur.Produced < plan {
		if ctl != nil {
			if ctl.CancelRequested() {
				return simbank.ErrTaskCancelled
			}
			if ctl.PauseRequested() {
				return simbank.ErrTaskPaused
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		want := plan - cur.Produced
		if want > int64(o.cfg.BatchSize) {
			want = int64(o.cfg.BatchSize)
		}
		if o.limiter != nil {
			if err := o.limiter.WaitN(ctx, int(want)); err != nil {
				return err
			}
		}

		batch, next, err := o.nextBatch(ctx, gen, generator.Request{
			Cursor:   cur,
			Window:   t.Window,
			Seed:     t.Seed,
			Size:     int(want),
			Registry: reg,
		})
		if err != nil {
			return err
		}
		if next.Produced == cur.Produced {
			// Early exhaustion: the generator had nothing left below plan.
			break
		}

		if err := o.checkIntegrity(et, batch.Records, reg); err != nil {
			return err
		}
		if o.rec != nil {
			o.validateBatch(ctx, t, et, batch.Records)
		}
		if err := o.writeBatch(ctx, t, et, batch.Records); err != nil {
			return err
		}

		ids := make([]string, len(batch.Records))
		for i, rec := range batch.Records {
			ids[i] = rec.ID
		}
		reg.Register(et, ids...)

		if err := st.fold(ctx, et, next); err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// nextBatch asks the generator for its next batch, retrying transient
// failures up to the per-batch budget. Integrity violations fail fast;
// budget exhaustion escalates to a task-level generator error.
func (o *Orchestrator) nextBatch(ctx context.Context, gen generator.Generator, req generator.Request) (*generator.Batch, checkpoint.Cursor, error) {
	et := gen.EntityType()
	var lastErr error
	for attempt := 0; attempt <= o.cfg.BatchMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, checkpoint.Cursor{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		batch, next, err := gen.NextBatch(ctx, req)
		if err == nil {
			return batch, next, nil
		}
		var ie *simbank.IntegrityError
		if errors.As(err, &ie) {
			return nil, checkpoint.Cursor{}, err
		}
		lastErr = err
		o.logger.Warn("batch generation failed",
			slog.String("entity_type", string(et)),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return nil, checkpoint.Cursor{}, &simbank.GeneratorError{EntityType: et, Err: lastErr}
}

// persistStage writes the task's stage label so status queries see it
// mid-run. Best effort: a failed write never stops generation.
func (o *Orchestrator) persistStage(ctx context.Context, t *task.Task) {
	if o.tasks == nil {
		return
	}
	t.Touch()
	uctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	if err := o.tasks.UpdateTask(uctx, t); err != nil {
		o.logger.Warn("persist stage failed",
			slog.String("task_id", t.ID.String()),
			slog.String("stage", t.Stage),
			slog.String("error", err.Error()),
		)
	}
}

// checkIntegrity verifies that every document and event record references
// a registered base identifier. A violation is fatal: it means generation
// would seed dangling references.
func (o *Orchestrator) checkIntegrity(et simbank.EntityType, records []generator.Record, reg *registry.Registry) error {
	p := simbank.ParadigmOf(et)
	if p != simbank.ParadigmDocument && p != simbank.ParadigmEvent {
		return nil
	}
	deps := simbank.DependenciesOf(et)
	if len(deps) == 0 {
		return nil
	}
	baseType := deps[0]
	for _, rec := range records {
		if rec.BaseID == "" || !reg.Has(baseType, rec.BaseID) {
			return &simbank.IntegrityError{EntityType: et, BaseID: rec.BaseID}
		}
	}
	return nil
}

// validateBatch applies the record-level quality rules and reports the
// result. Validation failures never stop generation; they surface as
// warnings on the task.
func (o *Orchestrator) validateBatch(ctx context.Context, t *task.Task, et simbank.EntityType, records []generator.Record) {
	var failed int
	var samples []string
	for _, rec := range records {
		switch {
		case rec.ID == "":
			failed++
			samples = append(samples, "record with empty identifier")
		case !t.Window.Contains(rec.At):
			failed++
			samples = append(samples, fmt.Sprintf("%s: timestamp %s outside window", rec.ID, rec.At.Format(time.RFC3339)))
		}
	}
	o.rec.RecordBatch(ctx, t.ID, et, len(records), len(records)-failed, failed, nil, samples)
}

// writeBatch appends records to the sink, retrying transient failures up
// to the per-batch budget.
func (o *Orchestrator) writeBatch(ctx context.Context, t *task.Task, et simbank.EntityType, records []generator.Record) error {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.BatchMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		wctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
		lastErr = o.sink.WriteRecords(wctx, t.ID, et, records)
		cancel()
		if lastErr == nil {
			return nil
		}
		o.logger.Warn("batch write failed",
			slog.String("task_id", t.ID.String()),
			slog.String("entity_type", string(et)),
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()),
		)
	}
	return fmt.Errorf("write %s batch: %w: %w", et, simbank.ErrPersistence, lastErr)
}

// ──────────────────────────────────────────────────
// Run state
// ──────────────────────────────────────────────────

// runState folds concurrently advanced cursors into one payload and writes
// a checkpoint every CheckpointInterval batches. Folding is serialized;
// generators never block each other for longer than a map update unless a
// checkpoint write is due.
type runState struct {
	o *Orchestrator
	t *task.Task

	mu        sync.Mutex
	payload   checkpoint.Payload
	sinceSave int
}

func (s *runState) cursor(et simbank.EntityType) checkpoint.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, _ := s.payload.CursorFor(et)
	return cur
}

func (s *runState) total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload.TotalProduced()
}

func (s *runState) fold(ctx context.Context, et simbank.EntityType, cur checkpoint.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload[et] = cur
	s.sinceSave++
	if s.sinceSave < s.o.cfg.CheckpointInterval {
		return nil
	}
	return s.saveLocked(ctx)
}

func (s *runState) save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sinceSave == 0 {
		return nil
	}
	return s.saveLocked(ctx)
}

func (s *runState) saveLocked(ctx context.Context) error {
	cp := checkpoint.New(s.t.ID, s.t.Lineage, s.payload)
	sctx, cancel := context.WithTimeout(ctx, s.o.cfg.StoreTimeout)
	defer cancel()
	if err := s.o.ckpts.SaveCheckpoint(sctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w: %w", simbank.ErrPersistence, err)
	}
	s.sinceSave = 0
	return nil
}

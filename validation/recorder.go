package validation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/id"
)

// Recorder appends batch validation results and escalates data-quality
// threshold breaches to task-level warnings. Safe for concurrent use.
type Recorder struct {
	store      Store
	thresholds map[simbank.EntityType]float64
	defaultThr float64
	logger     *slog.Logger

	mu       sync.Mutex
	warnings map[string][]string // task ID → warnings
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithThreshold overrides the failure-rate warning threshold for one
// entity type.
func WithThreshold(et simbank.EntityType, rate float64) RecorderOption {
	return func(r *Recorder) { r.thresholds[et] = rate }
}

// WithLogger sets the recorder's logger.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// NewRecorder creates a Recorder. defaultThreshold applies to entity types
// without an explicit override; zero disables escalation.
func NewRecorder(store Store, defaultThreshold float64, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:      store,
		thresholds: make(map[simbank.EntityType]float64),
		defaultThr: defaultThreshold,
		logger:     slog.Default(),
		warnings:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordBatch appends one batch's validation result. Store failures are
// logged and swallowed; validation is never allowed to fail generation.
func (r *Recorder) RecordBatch(
	ctx context.Context,
	taskID id.TaskID,
	et simbank.EntityType,
	total, passed, failed int,
	details map[string]any,
	errorSamples []string,
) {
	if len(errorSamples) > MaxErrorSamples {
		errorSamples = errorSamples[:MaxErrorSamples]
	}

	rec := &Record{
		Entity:       simbank.NewEntity(),
		ID:           id.NewValidationID(),
		TaskID:       taskID,
		EntityType:   et,
		Total:        total,
		Passed:       passed,
		Failed:       failed,
		Details:      details,
		ErrorSamples: errorSamples,
		At:           time.Now().UTC(),
	}

	if err := r.store.AppendValidation(ctx, rec); err != nil {
		r.logger.Warn("validation record append failed",
			slog.String("task_id", taskID.String()),
			slog.String("entity_type", string(et)),
			slog.String("error", err.Error()),
		)
	}

	r.escalate(taskID, rec)
}

// escalate raises a task-level warning when the batch failure rate exceeds
// the entity type's threshold.
func (r *Recorder) escalate(taskID id.TaskID, rec *Record) {
	thr, ok := r.thresholds[rec.EntityType]
	if !ok {
		thr = r.defaultThr
	}
	if thr <= 0 || rec.FailureRate() <= thr {
		return
	}

	warning := fmt.Sprintf("%s: batch failure rate %.1f%% exceeds threshold %.1f%% (%d/%d failed)",
		rec.EntityType, rec.FailureRate()*100, thr*100, rec.Failed, rec.Total)

	r.mu.Lock()
	r.warnings[taskID.String()] = append(r.warnings[taskID.String()], warning)
	r.mu.Unlock()

	r.logger.Warn("data-quality threshold exceeded",
		slog.String("task_id", taskID.String()),
		slog.String("entity_type", string(rec.EntityType)),
		slog.Int("failed", rec.Failed),
		slog.Int("total", rec.Total),
	)
}

// Warnings returns the task-level data-quality warnings raised so far for
// a task, in order of occurrence.
func (r *Recorder) Warnings(taskID id.TaskID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws := r.warnings[taskID.String()]
	out := make([]string, len(ws))
	copy(out, ws)
	return out
}

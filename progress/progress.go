// Package progress computes read-only progress snapshots for generation
// runs from planned volumes and the latest persisted checkpoint.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/schedule"
)

// PlanFunc reports the planned record count per entity type for a window.
type PlanFunc func(window schedule.Window) map[simbank.EntityType]int64

// EntityProgress is the produced/planned pair for a single entity type.
type EntityProgress struct {
	Produced int64 `json:"produced"`
	Planned  int64 `json:"planned"`
}

// Snapshot is a point-in-time view of a run. All fields are derived; a
// snapshot is never written back to the store.
type Snapshot struct {
	Produced         int64                                  `json:"produced"`
	Planned          int64                                  `json:"planned"`
	PercentComplete  float64                                `json:"percent_complete"`
	RecordsPerSecond float64                                `json:"records_per_second"`
	ETASeconds       float64                                `json:"eta_seconds"`
	Entities         map[simbank.EntityType]*EntityProgress `json:"entities"`
	TakenAt          time.Time                              `json:"taken_at"`
}

// Tracker derives snapshots from a checkpoint store. It holds no mutable
// state and is safe for concurrent use.
type Tracker struct {
	ckpts checkpoint.Store
	plan  PlanFunc
	now   func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the wall clock. Useful in tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns a tracker reading from ckpts and planning with plan.
func NewTracker(ckpts checkpoint.Store, plan PlanFunc, opts ...TrackerOption) *Tracker {
	t := &Tracker{ckpts: ckpts, plan: plan, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Snapshot computes the current progress of the task identified by taskID.
// A task with no checkpoint of its own yet reports zero produced, even when
// the lineage's latest checkpoint belongs to a previous task. startedAt
// anchors the throughput estimate; a zero startedAt disables rate and ETA.
func (t *Tracker) Snapshot(ctx context.Context, taskID id.TaskID, lineage string, window schedule.Window, startedAt time.Time) (*Snapshot, error) {
	payload := checkpoint.Payload{}
	cp, err := t.ckpts.LatestCheckpoint(ctx, lineage)
	switch {
	case err == nil && cp.TaskID == taskID:
		payload = cp.Payload
	case err == nil:
		// An earlier task of this lineage wrote the latest checkpoint; the
		// queried task has produced nothing yet.
	case errors.Is(err, simbank.ErrCheckpointNotFound):
		// Not started, or no checkpoint written yet.
	default:
		return nil, err
	}

	planned := t.plan(window)
	snap := &Snapshot{
		Entities: make(map[simbank.EntityType]*EntityProgress, len(planned)),
		TakenAt:  t.now(),
	}
	for et, n := range planned {
		ep := &EntityProgress{Planned: n}
		if cur, ok := payload[et]; ok {
			ep.Produced = cur.Produced
		}
		snap.Entities[et] = ep
		snap.Planned += n
		snap.Produced += ep.Produced
	}

	if snap.Planned > 0 {
		snap.PercentComplete = 100 * float64(snap.Produced) / float64(snap.Planned)
	}
	if !startedAt.IsZero() && snap.Produced > 0 {
		elapsed := snap.TakenAt.Sub(startedAt).Seconds()
		if elapsed > 0 {
			snap.RecordsPerSecond = float64(snap.Produced) / elapsed
			remaining := snap.Planned - snap.Produced
			if remaining > 0 {
				snap.ETASeconds = float64(remaining) / snap.RecordsPerSecond
			}
		}
	}
	return snap, nil
}

// Package memory provides a fully in-memory store backend. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/generator"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/task"
	"github.com/xraph/simbank/validation"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ task.Store       = (*Store)(nil)
	_ checkpoint.Store = (*Store)(nil)
	_ validation.Store = (*Store)(nil)
	_ generator.Sink   = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	tasks       map[string]*task.Task
	checkpoints []*checkpoint.Checkpoint
	validations map[string][]*validation.Record
	records     map[simbank.EntityType][]generator.Record
	recordIDs   map[simbank.EntityType]map[string]int
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		tasks:       make(map[string]*task.Task),
		validations: make(map[string][]*validation.Record),
		records:     make(map[simbank.EntityType][]generator.Record),
		recordIDs:   make(map[simbank.EntityType]map[string]int),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Task Store
// ──────────────────────────────────────────────────

// CreateTask persists a new task.
func (m *Store) CreateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, exists := m.tasks[key]; exists {
		return simbank.ErrTaskAlreadyExists
	}
	cp := *t
	m.tasks[key] = &cp
	return nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, simbank.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// UpdateTask persists changes to an existing task.
func (m *Store) UpdateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, ok := m.tasks[key]; !ok {
		return simbank.ErrTaskNotFound
	}
	cp := *t
	m.tasks[key] = &cp
	return nil
}

// ListTasks returns tasks matching opts, newest first.
func (m *Store) ListTasks(_ context.Context, opts task.ListOpts) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if opts.Kind != "" && t.Kind != opts.Kind {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// RunningTask returns the running task of the given kind.
func (m *Store) RunningTask(_ context.Context, kind task.Kind) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.tasks {
		if t.Kind == kind && t.Status == task.StatusRunning {
			cp := *t
			return &cp, nil
		}
	}
	return nil, simbank.ErrTaskNotFound
}

// LatestCompleted returns the most recently completed task of the given kind.
func (m *Store) LatestCompleted(_ context.Context, kind task.Kind) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *task.Task
	for _, t := range m.tasks {
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

// DeleteTasksBefore removes terminal tasks completed before cutoff.
func (m *Store) DeleteTasksBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, t := range m.tasks {
		if t.Status.Terminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(m.tasks, key)
			delete(m.validations, key)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Checkpoint Store
// ──────────────────────────────────────────────────

// SaveCheckpoint appends a checkpoint. Checkpoints are never updated.
func (m *Store) SaveCheckpoint(_ context.Context, cp *checkpoint.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *cp
	clone.Payload = cp.Payload.Clone()
	m.checkpoints = append(m.checkpoints, &clone)
	return nil
}

// LatestCheckpoint returns the most recent checkpoint for a lineage.
func (m *Store) LatestCheckpoint(_ context.Context, lineage string) (*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.checkpoints) - 1; i >= 0; i-- {
		if m.checkpoints[i].Lineage == lineage {
			clone := *m.checkpoints[i]
			clone.Payload = m.checkpoints[i].Payload.Clone()
			return &clone, nil
		}
	}
	return nil, simbank.ErrCheckpointNotFound
}

// ListCheckpoints returns checkpoints for a lineage, newest first.
func (m *Store) ListCheckpoints(_ context.Context, lineage string, limit int) ([]*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*checkpoint.Checkpoint
	for i := len(m.checkpoints) - 1; i >= 0; i-- {
		if m.checkpoints[i].Lineage != lineage {
			continue
		}
		clone := *m.checkpoints[i]
		clone.Payload = m.checkpoints[i].Payload.Clone()
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// PruneCheckpoints deletes all but the newest keep checkpoints of a lineage.
func (m *Store) PruneCheckpoints(_ context.Context, lineage string, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.checkpoints[:0]
	seen := 0
	// Walk newest to oldest to decide, then restore order.
	var survivors []*checkpoint.Checkpoint
	for i := len(m.checkpoints) - 1; i >= 0; i-- {
		cp := m.checkpoints[i]
		if cp.Lineage == lineage {
			seen++
			if seen > keep {
				continue
			}
		}
		survivors = append(survivors, cp)
	}
	pruned := len(m.checkpoints) - len(survivors)
	for i := len(survivors) - 1; i >= 0; i-- {
		kept = append(kept, survivors[i])
	}
	m.checkpoints = kept
	return pruned, nil
}

// ──────────────────────────────────────────────────
// Validation Store
// ──────────────────────────────────────────────────

// AppendValidation persists a validation record.
func (m *Store) AppendValidation(_ context.Context, rec *validation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	key := rec.TaskID.String()
	m.validations[key] = append(m.validations[key], &cp)
	return nil
}

// ListValidations returns all validation records for a task, oldest first.
func (m *Store) ListValidations(_ context.Context, taskID id.TaskID) ([]*validation.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.validations[taskID.String()]
	out := make([]*validation.Record, len(recs))
	for i, rec := range recs {
		cp := *rec
		out[i] = &cp
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Record Sink
// ──────────────────────────────────────────────────

// WriteRecords appends generated records. A record whose identifier was
// already written for the entity type is overwritten in place, so a batch
// replayed after a crash does not duplicate rows.
func (m *Store) WriteRecords(_ context.Context, _ id.TaskID, et simbank.EntityType, records []generator.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, ok := m.recordIDs[et]
	if !ok {
		index = make(map[string]int)
		m.recordIDs[et] = index
	}
	for _, rec := range records {
		if at, exists := index[rec.ID]; exists {
			m.records[et][at] = rec
			continue
		}
		index[rec.ID] = len(m.records[et])
		m.records[et] = append(m.records[et], rec)
	}
	return nil
}

// Records returns a copy of all written records for an entity type, in
// write order. Test and inspection helper.
func (m *Store) Records(et simbank.EntityType) []generator.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generator.Record, len(m.records[et]))
	copy(out, m.records[et])
	return out
}

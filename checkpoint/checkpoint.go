// Package checkpoint defines the durable progress snapshots a generation
// task writes at batch boundaries, and the store contract for appending,
// loading, and pruning them.
//
// Checkpoints for a lineage form a totally ordered sequence by creation
// time; the latest one is authoritative for resume. They are never mutated.
// Superseded checkpoints may be pruned but are never required for
// correctness once a newer one exists.
package checkpoint

import (
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/id"
)

// Cursor marks how much of one entity type's planned output has been
// produced, plus the generator-internal state needed to resume.
type Cursor struct {
	// LastID is the identifier of the last produced record.
	LastID string `json:"last_id" msgpack:"last_id"`

	// LastTime is the logical timestamp of the last produced record.
	LastTime time.Time `json:"last_time" msgpack:"last_time"`

	// Produced is the count of records produced so far. It is also the
	// pseudo-random stream position: generation at position n is a pure
	// function of (entity type, n, task seed).
	Produced int64 `json:"produced" msgpack:"produced"`
}

// Payload maps each entity type to its resume cursor. Entity types absent
// from the payload have not started; unknown entity types from an older
// schema are carried through untouched and ignored by the orchestrator.
type Payload map[simbank.EntityType]Cursor

// CursorFor returns the cursor for an entity type and whether one exists.
// A missing cursor means "not yet started".
func (p Payload) CursorFor(et simbank.EntityType) (Cursor, bool) {
	c, ok := p[et]
	return c, ok
}

// Clone returns a deep copy of the payload.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for et, c := range p {
		out[et] = c
	}
	return out
}

// TotalProduced sums produced counts across all entity types.
func (p Payload) TotalProduced() int64 {
	var total int64
	for _, c := range p {
		total += c.Produced
	}
	return total
}

// Checkpoint is an immutable snapshot of generation progress for one task.
type Checkpoint struct {
	simbank.Entity

	ID      id.CheckpointID `json:"id"`
	TaskID  id.TaskID       `json:"task_id"`
	Lineage string          `json:"lineage"`
	Payload Payload         `json:"payload"`
}

// New creates a checkpoint for the given task and lineage. The payload is
// deep-copied so later cursor updates cannot alter a written checkpoint.
func New(taskID id.TaskID, lineage string, payload Payload) *Checkpoint {
	return &Checkpoint{
		Entity:  simbank.NewEntity(),
		ID:      id.NewCheckpointID(),
		TaskID:  taskID,
		Lineage: lineage,
		Payload: payload.Clone(),
	}
}

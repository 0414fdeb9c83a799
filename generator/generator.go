// Package generator defines the capability contract between the
// orchestration core and entity generators.
//
// A generator is a deterministic function of (entity type, cursor position,
// task seed): generating the batch at a given cursor always produces the
// same records and the same advanced cursor. The orchestrator relies on
// this contract for exactly-once production across restarts — it never
// re-requests a cursor position it has already advanced past, and a resumed
// run must be indistinguishable from an uninterrupted one.
package generator

import (
	"context"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/registry"
	"github.com/xraph/simbank/schedule"
)

// Record is one generated logical record.
type Record struct {
	// ID identifies the record. Must be a deterministic function of the
	// generator's cursor position and seed.
	ID string `json:"id"`

	// BaseID is the subject identifier this record belongs to. For
	// profile and archive records it equals ID; for document and event
	// records it references a dependency record produced earlier.
	BaseID string `json:"base_id"`

	// At is the record's logical business timestamp, inside the task's
	// data window.
	At time.Time `json:"at"`

	// Fields carries the entity-specific attributes.
	Fields map[string]any `json:"fields,omitempty"`
}

// Request carries everything a generator needs to produce its next batch.
type Request struct {
	// Cursor is the resume position. The zero cursor means start from the
	// beginning of the window.
	Cursor checkpoint.Cursor

	// Window is the task's data window; every produced record timestamp
	// falls inside it.
	Window schedule.Window

	// Seed is the task's configured random seed.
	Seed int64

	// Size is the maximum number of records to produce.
	Size int

	// Registry is the read-only dependency lookup surface. Generators
	// must be pure with respect to it.
	Registry registry.View
}

// Batch is the result of one generator invocation.
type Batch struct {
	EntityType simbank.EntityType `json:"entity_type"`
	Records    []Record           `json:"records"`
}

// Generator produces records for one entity type.
type Generator interface {
	// EntityType names the entity type this generator produces.
	EntityType() simbank.EntityType

	// Plan returns the planned record volume for a data window. The
	// orchestrator drives NextBatch until the cursor's Produced count
	// reaches this volume.
	Plan(window schedule.Window) int64

	// NextBatch deterministically produces the next batch after the
	// request cursor and returns the advanced cursor. An empty batch with
	// an unchanged cursor signals early exhaustion.
	NextBatch(ctx context.Context, req Request) (*Batch, checkpoint.Cursor, error)

	// ReplayIDs re-derives the identifiers of the first cursor.Produced
	// records of the window, used to rebuild the identifier registry on
	// resume. Generators whose identifiers nothing depends on may return
	// nil.
	ReplayIDs(window schedule.Window, cur checkpoint.Cursor, seed int64) []string
}

// Sink is the external persistence collaborator that durably appends
// generated records.
type Sink interface {
	WriteRecords(ctx context.Context, taskID id.TaskID, et simbank.EntityType, records []Record) error
}

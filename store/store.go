// Package store defines the aggregate persistence interface. Each
// subsystem (task, checkpoint, validation) defines its own store
// interface and the record sink comes from generator. The composite Store
// composes them all. Backends: Postgres, SQLite, and Memory.
package store

import (
	"context"

	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/generator"
	"github.com/xraph/simbank/task"
	"github.com/xraph/simbank/validation"
)

// Store is the aggregate persistence interface. A single backend
// implements every subsystem contract plus the generated-record sink.
type Store interface {
	task.Store
	checkpoint.Store
	validation.Store
	generator.Sink

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

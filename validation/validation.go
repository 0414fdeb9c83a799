// Package validation records pass/fail counts and error samples per
// generation batch. Recording is informational: a storage failure here
// never blocks the orchestrator, and a data-quality threshold breach
// raises a task-level warning without failing the task.
package validation

import (
	"context"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/id"
)

// MaxErrorSamples bounds how many error samples one record retains.
const MaxErrorSamples = 10

// Record is the append-only validation result for one generated batch.
type Record struct {
	simbank.Entity

	ID           id.ValidationID    `json:"id"`
	TaskID       id.TaskID          `json:"task_id"`
	EntityType   simbank.EntityType `json:"entity_type"`
	Total        int                `json:"total"`
	Passed       int                `json:"passed"`
	Failed       int                `json:"failed"`
	Details      map[string]any     `json:"details,omitempty"`
	ErrorSamples []string           `json:"error_samples,omitempty"`
	At           time.Time          `json:"at"`
}

// FailureRate returns Failed / Total, or 0 for an empty batch.
func (r *Record) FailureRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Failed) / float64(r.Total)
}

// Store defines the persistence contract for validation records.
type Store interface {
	// AppendValidation persists a validation record. Never updated.
	AppendValidation(ctx context.Context, rec *Record) error

	// ListValidations returns all validation records for a task, oldest
	// first.
	ListValidations(ctx context.Context, taskID id.TaskID) ([]*Record, error)
}

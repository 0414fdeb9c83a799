package simbank

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("simbank: no store configured")
	ErrStoreClosed = errors.New("simbank: store closed")
	ErrPersistence = errors.New("simbank: persistence failure")

	// Not found errors.
	ErrTaskNotFound       = errors.New("simbank: task not found")
	ErrCheckpointNotFound = errors.New("simbank: checkpoint not found")

	// Conflict errors.
	ErrLineageRunning    = errors.New("simbank: a task for this lineage is already running")
	ErrTaskAlreadyExists = errors.New("simbank: task already exists")

	// State errors.
	ErrInvalidState       = errors.New("simbank: invalid state transition")
	ErrMaxRetriesExceeded = errors.New("simbank: max retries exceeded")

	// Cooperative suspension signals returned by the orchestrator when a
	// pause or cancel request takes effect at a batch boundary.
	ErrTaskPaused    = errors.New("simbank: task paused")
	ErrTaskCancelled = errors.New("simbank: task cancelled")

	// Generation errors.
	ErrIntegrity = errors.New("simbank: referential integrity violation")
	ErrGenerator = errors.New("simbank: generator failure")
)

// IntegrityError reports a document or event record that referenced a
// subject identifier missing from the registry. This is a paradigm-ordering
// defect, always fatal to the task, never retried.
type IntegrityError struct {
	EntityType EntityType
	BaseID     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("simbank: %s record references unknown subject %q", e.EntityType, e.BaseID)
}

// Unwrap makes errors.Is(err, ErrIntegrity) work.
func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// GeneratorError wraps a failure from an external entity generator for a
// single batch. Retried at batch granularity up to the per-batch limit.
type GeneratorError struct {
	EntityType EntityType
	Err        error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("simbank: generator %s: %v", e.EntityType, e.Err)
}

func (e *GeneratorError) Unwrap() error { return ErrGenerator }

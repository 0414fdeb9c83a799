package checkpoint

import "context"

// Store defines the persistence contract for checkpoints.
//
// Saves are append-only. A save failure is fatal for the current batch: the
// orchestrator must retry the save before advancing its cursors.
type Store interface {
	// SaveCheckpoint appends a new checkpoint; it never overwrites.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error

	// LatestCheckpoint returns the most recent checkpoint across all task
	// executions sharing a lineage, enabling resume across retries and
	// restarts, not just within one task. Returns
	// simbank.ErrCheckpointNotFound when the lineage has none.
	LatestCheckpoint(ctx context.Context, lineage string) (*Checkpoint, error)

	// ListCheckpoints returns checkpoints for a lineage, newest first.
	// A limit of zero or less returns all of them.
	ListCheckpoints(ctx context.Context, lineage string, limit int) ([]*Checkpoint, error)

	// PruneCheckpoints retains only the keep most recent checkpoints for
	// the lineage and returns how many were deleted.
	PruneCheckpoints(ctx context.Context, lineage string, keep int) (int, error)
}

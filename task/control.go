package task

import "sync/atomic"

// Control carries cooperative pause and cancel requests into a running
// execution. Requests are honored at batch boundaries, never mid-batch.
type Control struct {
	pause  atomic.Bool
	cancel atomic.Bool
}

// NewControl returns a control with no requests set.
func NewControl() *Control { return &Control{} }

// RequestPause asks the execution to stop after its current batch and
// persist a final checkpoint.
func (c *Control) RequestPause() { c.pause.Store(true) }

// RequestCancel asks the execution to stop after its current batch.
// Records already written stay written.
func (c *Control) RequestCancel() { c.cancel.Store(true) }

// PauseRequested reports whether a pause has been requested.
func (c *Control) PauseRequested() bool { return c.pause.Load() }

// CancelRequested reports whether a cancel has been requested.
func (c *Control) CancelRequested() bool { return c.cancel.Load() }

package simbank

import "time"

// Config holds configuration for the orchestration core. It is the explicit
// context object passed into the task manager and the generation
// orchestrator at construction; there is no ambient global state.
type Config struct {
	// RandomSeed seeds every entity generator. Generation is a
	// deterministic function of (entity type, cursor position, seed).
	RandomSeed int64

	// BatchSize is the number of records produced per generator batch.
	BatchSize int

	// CheckpointInterval is how many batches to fold into one checkpoint
	// save. 1 checkpoints after every batch.
	CheckpointInterval int

	// KeepCheckpoints is how many checkpoints to retain per lineage when
	// pruning. Older ones are provably unnecessary once a newer exists.
	KeepCheckpoints int

	// StageConcurrency bounds how many dependency-free entity types
	// generate concurrently within one ordering stage.
	StageConcurrency int

	// RateLimit caps sustained records per second across a running task.
	// Zero disables throttling. RateBurst defaults to BatchSize.
	RateLimit float64
	RateBurst int

	// MaxTaskRetries is the task-level retry budget after orchestrator
	// failure. Exhausting it leaves the task failed for operator attention.
	MaxTaskRetries int

	// RetryBackoffInitial and RetryBackoffMax bound the exponential
	// backoff between task retry attempts.
	RetryBackoffInitial time.Duration
	RetryBackoffMax     time.Duration

	// BatchMaxRetries is how many times a failing generator or store call
	// is retried at batch granularity before escalating to task failure.
	BatchMaxRetries int

	// StoreTimeout bounds every storage call made during generation.
	// Exceeding it is a retryable batch failure.
	StoreTimeout time.Duration

	// HistoricalStart is the configured start of the historical window.
	// Zero means one year before the current day.
	HistoricalStart time.Time

	// CollapseCatchUp controls the policy for multiple consecutively
	// missed triggers: true collapses them into one catch-up task for the
	// most recent missed trigger; false runs one task per missed trigger,
	// oldest first.
	CollapseCatchUp bool

	// FailureRateThreshold is the default validation failure rate per
	// entity type above which a task-level warning is raised. Data-quality
	// issues never fail the task.
	FailureRateThreshold float64

	// CleanupAge is how old a completed task must be before cleanup
	// deletes it. Zero disables cleanup.
	CleanupAge time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RandomSeed:           42,
		BatchSize:            1000,
		CheckpointInterval:   5,
		KeepCheckpoints:      10,
		StageConcurrency:     4,
		MaxTaskRetries:       3,
		RetryBackoffInitial:  30 * time.Second,
		RetryBackoffMax:      10 * time.Minute,
		BatchMaxRetries:      3,
		StoreTimeout:         30 * time.Second,
		CollapseCatchUp:      true,
		FailureRateThreshold: 0.05,
	}
}

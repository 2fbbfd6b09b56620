package jobqueue

import "time"

// Config holds configuration for the Dispatcher.
type Config struct {
	// Concurrency is the number of worker goroutines draining due jobs.
	Concurrency int

	// Client tags this process. Pools only claim jobs whose client is empty
	// or equal to this value.
	Client string

	// PollInterval is how often an idle worker polls for due jobs.
	PollInterval time.Duration

	// BatchSize caps how many due jobs a single poll fetches.
	BatchSize int

	// ShutdownTimeout is the maximum time to wait for in-flight jobs.
	ShutdownTimeout time.Duration

	// ExecutionTimeout bounds a single target invocation. Zero disables it.
	ExecutionTimeout time.Duration

	// HeartbeatInterval is how often a running job reports that its worker
	// is alive. Zero disables heartbeats.
	HeartbeatInterval time.Duration

	// StaleJobThreshold is how long a RUNNING job may go without a
	// heartbeat before the pool queues it again. Zero disables reaping.
	// Keep it well above HeartbeatInterval.
	StaleJobThreshold time.Duration

	// SoftDeleteAfter is the age after which finished jobs are soft-deleted.
	SoftDeleteAfter time.Duration

	// PurgeAfter is the age after which finished jobs are removed.
	PurgeAfter time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		PollInterval:      1 * time.Second,
		BatchSize:         10,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		StaleJobThreshold: 5 * time.Minute,
		SoftDeleteAfter:   10 * 24 * time.Hour,
		PurgeAfter:        100 * 24 * time.Hour,
	}
}

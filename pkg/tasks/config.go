package tasks

import "time"

// Config controls the task queue and its workers.
type Config struct {
	Concurrency   int           // Max concurrent workers. Default 2.
	MaxRetries    int           // Max retry attempts per task. Default 3.
	PollInterval  time.Duration // Fallback poll interval when no wake signal arrives. Default 5s.
	ClaimTimeout  time.Duration // Max time a task can be running before it is requeued. Default 10m.
	RetentionDays int           // How long to keep finished tasks. Default 7.
	Enabled       bool          // Whether workers are started. Default true.
}

// DefaultConfig returns the default task configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:   2,
		MaxRetries:    3,
		PollInterval:  5 * time.Second,
		ClaimTimeout:  10 * time.Minute,
		RetentionDays: 7,
		Enabled:       true,
	}
}

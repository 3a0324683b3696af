package config

import (
	"errors"
	"time"

	"github.com/RezaEskandarii/gomq/custom_errors"
)

type QueueConfig struct {
	MaxQueueSize         int           // Pending jobs accepted before Add starts rejecting
	MaxCompletedJobs     int           // Dedupe keys remembered after their job finished
	MaxJobStatuses       int           // Status records kept for JobStatus and subscribers
	MaxProcessIterations int           // Loop iterations a single drain may run before it gives up
	MaxDelayWait         time.Duration // Longest single sleep while waiting for a delayed job

	// CompletedRetention is how long a finished dedupe key keeps suppressing
	// new jobs with the same key.
	CompletedRetention time.Duration

	// StatusRetention is how long terminal status records are kept,
	// measured from the job's creation time.
	StatusRetention time.Duration
}

// ConfigOption type for functional options pattern
type ConfigOption func(*QueueConfig) error

// DefaultQueueConfig returns a QueueConfig populated with the package defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxQueueSize:         DefaultMaxQueueSize,
		MaxCompletedJobs:     DefaultMaxCompletedJobs,
		MaxJobStatuses:       DefaultMaxJobStatuses,
		MaxProcessIterations: DefaultMaxProcessIterations,
		MaxDelayWait:         DefaultMaxDelayWait,
		CompletedRetention:   DefaultCompletedRetention,
		StatusRetention:      DefaultStatusRetention,
	}
}

// NewQueueConfig creates a QueueConfig with default values and applies opts.
// Every failing option is collected and returned as a single ValidationError.
func NewQueueConfig(opts ...ConfigOption) (*QueueConfig, error) {
	cfg := DefaultQueueConfig()
	validationErrs := &custom_errors.ValidationError{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			validationErrs.Add(err)
		}
	}

	if validationErrs.HasError() {
		return nil, validationErrs
	}
	return cfg, nil
}

func WithMaxQueueSize(n int) ConfigOption {
	return func(c *QueueConfig) error {
		if n < 1 {
			return errors.New("max queue size must be positive")
		}
		c.MaxQueueSize = n
		return nil
	}
}

func WithMaxCompletedJobs(n int) ConfigOption {
	return func(c *QueueConfig) error {
		if n < 1 {
			return errors.New("max completed jobs must be positive")
		}
		c.MaxCompletedJobs = n
		return nil
	}
}

func WithMaxJobStatuses(n int) ConfigOption {
	return func(c *QueueConfig) error {
		if n < 1 {
			return errors.New("max job statuses must be positive")
		}
		c.MaxJobStatuses = n
		return nil
	}
}

func WithMaxProcessIterations(n int) ConfigOption {
	return func(c *QueueConfig) error {
		if n < 1 {
			return errors.New("max process iterations must be positive")
		}
		c.MaxProcessIterations = n
		return nil
	}
}

func WithMaxDelayWait(d time.Duration) ConfigOption {
	return func(c *QueueConfig) error {
		if d <= 0 {
			return errors.New("max delay wait must be positive")
		}
		c.MaxDelayWait = d
		return nil
	}
}

func WithCompletedRetention(d time.Duration) ConfigOption {
	return func(c *QueueConfig) error {
		if d <= 0 {
			return errors.New("completed retention must be positive")
		}
		c.CompletedRetention = d
		return nil
	}
}

func WithStatusRetention(d time.Duration) ConfigOption {
	return func(c *QueueConfig) error {
		if d <= 0 {
			return errors.New("status retention must be positive")
		}
		c.StatusRetention = d
		return nil
	}
}

package config

import "time"

const (
	DefaultMaxQueueSize         = 10000
	DefaultMaxCompletedJobs     = 1000
	DefaultMaxJobStatuses       = 1000
	DefaultMaxProcessIterations = 10000
	DefaultMaxDelayWait         = time.Second
	DefaultCompletedRetention   = time.Hour
	DefaultStatusRetention      = 5 * time.Minute
)

package types

import (
	"github.com/RezaEskandarii/gomq/internal/state"
)

type JobStatus = state.JobStatus

const (
	StatusPending    = state.StatusPending
	StatusProcessing = state.StatusProcessing
	StatusCompleted  = state.StatusCompleted
	StatusFailed     = state.StatusFailed
)

// StatusRecord is the latest known lifecycle snapshot of one job.
// Result is set only for completed jobs, Err only for failed ones.
type StatusRecord struct {
	Status JobStatus `json:"status"`
	Result any       `json:"result,omitempty"`
	Err    error     `json:"-"`
	Job    *Job      `json:"job,omitempty"`
}

// StatusCallback is notified about every status change.
type StatusCallback func(jobID string, rec StatusRecord)

// JobStatusView is the reduced status a watcher exposes.
// The zero value means "nothing is being watched".
type JobStatusView struct {
	Status JobStatus
	Result any
	Err    error
}

package state

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

func (s JobStatus) String() string {
	return string(s)
}

var AllStatuses = []JobStatus{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

// ValidTransitions lists every allowed status change.
// pending -> pending is the re-publish a queued job gets when a newer job
// with the same dedupe key replaces it.
var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusPending},
	{From: StatusPending, To: StatusProcessing},
	{From: StatusProcessing, To: StatusCompleted},
	{From: StatusProcessing, To: StatusFailed},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s JobStatus) bool {
	return s == StatusCompleted || s == StatusFailed
}

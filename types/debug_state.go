package types

// DebugJob is a pending job annotated with its current eligibility.
type DebugJob struct {
	Job
	DelayMs         int64 `json:"delayMs"`
	RequirementsMet bool  `json:"requirementsMet"`
	DelayElapsed    bool  `json:"delayElapsed"`
	Eligible        bool  `json:"eligible"`
	HasProcessor    bool  `json:"hasProcessor"`
}

// DebugState is a read-only snapshot of a queue for inspection tooling.
type DebugState struct {
	Queue              []DebugJob `json:"queue"`
	IsProcessing       bool       `json:"isProcessing"`
	ProcessorReady     bool       `json:"processorReady"`
	CompletedJobsCount int        `json:"completedJobsCount"`
	TrackedStatusCount int        `json:"trackedStatusCount"`
}

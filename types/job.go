package types

import (
	"context"
	"io"
	"time"
)

// Job is a unit of work handed to the processor.
// The queue never inspects Payload; its shape is defined per Type by the caller.
type Job struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Payload      any           `json:"payload,omitempty"`
	Requirements []string      `json:"requirements,omitempty"`
	DedupeKey    string        `json:"dedupeKey,omitempty"`
	Delay        time.Duration `json:"-"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// DelayMillis is Delay in whole milliseconds, the unit used on the wire.
func (j Job) DelayMillis() int64 {
	return j.Delay.Milliseconds()
}

// ReadyAt is the earliest time the job may run.
func (j Job) ReadyAt() time.Time {
	return j.CreatedAt.Add(j.Delay)
}

// NewJob describes a job to enqueue. It mirrors the arguments of JobQueue.Add.
type NewJob struct {
	Type         string
	Payload      any
	Requirements []string
	DedupeKey    string
	Delay        time.Duration
}

// Processor executes a job. It is the single entry point for every job type
// and is expected to route on job.Type.
type Processor func(ctx context.Context, job Job) (any, error)

// Renderable is a processor result that should be handed to the render callback.
type Renderable interface {
	Render(w io.Writer) error
}

// RenderCallback receives renderable processor results together with the job id.
type RenderCallback func(artifact Renderable, jobID string)

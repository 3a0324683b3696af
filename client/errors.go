package client

import "errors"

var (
	ErrNilProcessor    = errors.New("gomq: processor must not be nil")
	ErrQueueFull       = errors.New("gomq: queue is full")
	ErrQueueClosed     = errors.New("gomq: queue is closed")
	ErrRunawayDrain    = errors.New("gomq: process loop exceeded maximum iterations")
	ErrProcessorPanic  = errors.New("gomq: processor panicked")
	ErrUnknownJobType  = errors.New("gomq: unknown job type")
	ErrDuplicateRoute  = errors.New("gomq: job type already routed")
	ErrInvalidRouteDoc = errors.New("gomq: invalid routes document")
)

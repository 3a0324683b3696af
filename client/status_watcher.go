package client

import (
	"sync"

	"github.com/RezaEskandarii/gomq/internal/state"
	"github.com/RezaEskandarii/gomq/types"
)

// StatusWatcher follows the status of a single job.
//
// Current always reflects the latest known status. Updates delivers the same
// views as they change; a slow reader only ever sees the most recent one.
type StatusWatcher struct {
	q *JobQueue

	mu          sync.Mutex
	jobID       string
	current     types.JobStatusView
	unsubscribe func()
	updates     chan types.JobStatusView
	closed      bool
}

// WatchJobStatus starts watching jobID on q. An empty jobID watches nothing
// until SetJobID is called.
func WatchJobStatus(q *JobQueue, jobID string) *StatusWatcher {
	if q == nil {
		panic("gomq: WatchJobStatus requires a job queue")
	}

	w := &StatusWatcher{
		q:       q,
		updates: make(chan types.JobStatusView, 1),
	}
	w.SetJobID(jobID)
	return w
}

// Current returns the latest view of the watched job. With no job the view is
// empty; a job the queue has not seen yet reads as pending.
func (w *StatusWatcher) Current() types.JobStatusView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// JobID returns the id being watched.
func (w *StatusWatcher) JobID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jobID
}

// Updates returns a channel of status views for the watched job.
// It is closed by Close.
func (w *StatusWatcher) Updates() <-chan types.JobStatusView {
	return w.updates
}

// SetJobID switches the watched job. The previous subscription is released
// before the new one is made.
func (w *StatusWatcher) SetJobID(jobID string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	prev := w.unsubscribe
	w.unsubscribe = nil
	w.jobID = jobID
	w.mu.Unlock()

	if prev != nil {
		prev()
	}

	if jobID == "" {
		w.publish(jobID, types.JobStatusView{})
		return
	}

	view := types.JobStatusView{Status: state.StatusPending}
	if rec, ok := w.q.JobStatus(jobID); ok {
		view = viewOf(rec)
	}
	w.publish(jobID, view)

	unsubscribe := w.q.SubscribeToJobStatus(func(id string, rec types.StatusRecord) {
		if id == jobID {
			w.publish(jobID, viewOf(rec))
		}
	})

	w.mu.Lock()
	if w.closed || w.jobID != jobID {
		w.mu.Unlock()
		unsubscribe()
		return
	}
	w.unsubscribe = unsubscribe
	w.mu.Unlock()
}

// Close releases the subscription and closes the updates channel.
func (w *StatusWatcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	close(w.updates)
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// publish stores view if jobID is still the watched job and offers it on the
// updates channel, replacing any value nobody has read yet.
func (w *StatusWatcher) publish(jobID string, view types.JobStatusView) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.jobID != jobID {
		return
	}
	w.current = view

	select {
	case <-w.updates:
	default:
	}
	w.updates <- view
}

func viewOf(rec types.StatusRecord) types.JobStatusView {
	return types.JobStatusView{
		Status: rec.Status,
		Result: rec.Result,
		Err:    rec.Err,
	}
}

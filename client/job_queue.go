package client

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/RezaEskandarii/gomq/internal/state"
	"github.com/RezaEskandarii/gomq/requirements"
	"github.com/RezaEskandarii/gomq/types"
	"github.com/RezaEskandarii/gomq/types/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// JobQueue runs jobs one at a time through a single processor.
//
// A job is eligible once all of its requirements are set in the flag store
// and its delay has elapsed. Among eligible jobs the one added first runs
// first. Jobs sharing a dedupe key replace each other while queued, and a
// key that already finished suppresses later jobs with the same key.
type JobQueue struct {
	flags  *requirements.Store
	cfg    config.QueueConfig
	logger zerolog.Logger
	clock  func() time.Time
	newID  func() string

	mu             sync.Mutex
	queue          []types.Job
	processor      types.Processor
	renderCallback types.RenderCallback
	completed      map[string]time.Time
	completedOrder []string
	statuses       map[string]types.StatusRecord
	statusOrder    []string
	rescan         bool
	draining       bool
	closed         bool

	// running has weight 1; holding it means a drain goroutine is active.
	running *semaphore.Weighted
	wake    chan struct{}
	drains  sync.WaitGroup

	notifier         *statusNotifier
	unsubscribeFlags func()
	processCtx       context.Context
	stopCtx          context.Context
	stop             context.CancelFunc
}

// Option configures a JobQueue.
type Option func(*JobQueue)

// WithLogger sets the logger used for queue diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(q *JobQueue) {
		q.logger = logger
	}
}

// WithClock overrides the clock used for job timestamps, delays and retention.
func WithClock(clock func() time.Time) Option {
	return func(q *JobQueue) {
		if clock != nil {
			q.clock = clock
		}
	}
}

// WithIDGenerator overrides how job IDs are generated.
func WithIDGenerator(fn func() string) Option {
	return func(q *JobQueue) {
		if fn != nil {
			q.newID = fn
		}
	}
}

// WithProcessContext sets the context passed to every processor call.
// The queue never cancels it.
func WithProcessContext(ctx context.Context) Option {
	return func(q *JobQueue) {
		if ctx != nil {
			q.processCtx = ctx
		}
	}
}

// NewJobQueue creates a queue gated by flags. A nil cfg uses the defaults.
// The queue subscribes to flags and re-evaluates pending jobs on every change.
func NewJobQueue(flags *requirements.Store, cfg *config.QueueConfig, opts ...Option) *JobQueue {
	if flags == nil {
		panic("gomq: NewJobQueue requires a requirements store")
	}
	if cfg == nil {
		cfg = config.DefaultQueueConfig()
	}

	stopCtx, stop := context.WithCancel(context.Background())
	q := &JobQueue{
		flags:      flags,
		cfg:        *cfg,
		logger:     log.Logger,
		clock:      time.Now,
		newID:      uuid.NewString,
		completed:  make(map[string]time.Time),
		statuses:   make(map[string]types.StatusRecord),
		running:    semaphore.NewWeighted(1),
		wake:       make(chan struct{}, 1),
		processCtx: context.Background(),
		stopCtx:    stopCtx,
		stop:       stop,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.notifier = newStatusNotifier(q.logger)
	q.unsubscribeFlags = flags.Subscribe(q.process)
	return q
}

// SetProcessor registers the function that executes every job and starts
// draining the queue. A nil processor is reported and ignored.
func (q *JobQueue) SetProcessor(processor types.Processor) {
	if processor == nil {
		q.logger.Error().Err(ErrNilProcessor).Msg("SetProcessor requires a function that routes jobs to handlers")
		return
	}

	q.mu.Lock()
	q.processor = processor
	q.mu.Unlock()

	q.process()
}

// SetRenderCallback registers cb to receive Renderable processor results.
// Passing nil removes the callback.
func (q *JobQueue) SetRenderCallback(cb types.RenderCallback) {
	q.mu.Lock()
	q.renderCallback = cb
	q.mu.Unlock()
}

// Add enqueues a job and returns its ID.
//
// It returns false without enqueueing when the queue is full or closed, or
// when a job with the same dedupeKey has already finished. A queued job with
// the same dedupeKey is replaced, so combining dedupeKey with delay debounces:
// only the last call within the delay window runs.
func (q *JobQueue) Add(jobType string, payload any, requirements []string, dedupeKey string, delay time.Duration) (string, bool) {
	return q.AddJob(types.NewJob{
		Type:         jobType,
		Payload:      payload,
		Requirements: requirements,
		DedupeKey:    dedupeKey,
		Delay:        delay,
	})
}

// AddJob is the struct form of Add.
func (q *JobQueue) AddJob(nj types.NewJob) (string, bool) {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		q.logger.Warn().Err(ErrQueueClosed).Str("job_type", nj.Type).Msg("job rejected")
		return "", false
	}

	if len(q.queue) >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		q.logger.Warn().
			Err(ErrQueueFull).
			Str("job_type", nj.Type).
			Int("max_queue_size", q.cfg.MaxQueueSize).
			Msg("job rejected")
		return "", false
	}

	now := q.clock()

	if nj.DedupeKey != "" {
		if _, done := q.completed[nj.DedupeKey]; done {
			q.mu.Unlock()
			q.logger.Debug().
				Str("job_type", nj.Type).
				Str("dedupe_key", nj.DedupeKey).
				Msg("job skipped, dedupe key already processed")
			return "", false
		}

		q.evictCompletedLocked(now)

		if idx := q.indexOfDedupeKeyLocked(nj.DedupeKey); idx != -1 {
			replaced := q.queue[idx]
			q.queue = append(q.queue[:idx], q.queue[idx+1:]...)
			q.setStatusLocked(replaced.ID, types.StatusRecord{Status: state.StatusPending, Job: &replaced}, now)
			q.logger.Debug().
				Str("job_type", nj.Type).
				Str("dedupe_key", nj.DedupeKey).
				Str("replaced_job_id", replaced.ID).
				Msg("queued job replaced by newer job with the same dedupe key")
		}
	}

	delay := nj.Delay
	if delay < 0 {
		delay = 0
	}
	var reqs []string
	if len(nj.Requirements) > 0 {
		reqs = append([]string(nil), nj.Requirements...)
	}

	job := types.Job{
		ID:           q.newID(),
		Type:         nj.Type,
		Payload:      nj.Payload,
		Requirements: reqs,
		DedupeKey:    nj.DedupeKey,
		Delay:        delay,
		CreatedAt:    now,
	}
	q.setStatusLocked(job.ID, types.StatusRecord{Status: state.StatusPending, Job: &job}, now)
	q.queue = append(q.queue, job)
	q.mu.Unlock()

	q.notifier.flush()
	q.process()
	return job.ID, true
}

// JobStatus returns the last recorded status of the job.
func (q *JobQueue) JobStatus(jobID string) (types.StatusRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.statuses[jobID]
	return rec, ok
}

// SubscribeToJobStatus calls cb for every status change. The current status
// of every tracked job is replayed to cb before any later change.
func (q *JobQueue) SubscribeToJobStatus(cb types.StatusCallback) func() {
	if cb == nil {
		return func() {}
	}

	q.mu.Lock()
	current := make([]statusEvent, 0, len(q.statusOrder))
	for _, id := range q.statusOrder {
		current = append(current, statusEvent{jobID: id, rec: q.statuses[id]})
	}
	sub := q.notifier.subscribe(cb, current)
	q.mu.Unlock()

	q.notifier.flush()

	var once sync.Once
	return func() {
		once.Do(func() { q.notifier.unsubscribe(sub) })
	}
}

// DebugState returns a snapshot of the queue for inspection tooling.
func (q *JobQueue) DebugState() types.DebugState {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock()
	hasProcessor := q.processor != nil
	jobs := make([]types.DebugJob, 0, len(q.queue))
	for _, job := range q.queue {
		met := q.flags.AllSet(job.Requirements)
		elapsed := delayElapsed(job, now)
		jobs = append(jobs, types.DebugJob{
			Job:             job,
			DelayMs:         job.DelayMillis(),
			RequirementsMet: met,
			DelayElapsed:    elapsed,
			Eligible:        met && elapsed,
			HasProcessor:    hasProcessor,
		})
	}

	return types.DebugState{
		Queue:              jobs,
		IsProcessing:       q.draining,
		ProcessorReady:     hasProcessor,
		CompletedJobsCount: len(q.completed),
		TrackedStatusCount: len(q.statuses),
	}
}

// Sweep evicts expired dedupe keys and terminal status records.
func (q *JobQueue) Sweep() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock()
	q.evictCompletedLocked(now)
	q.evictStatusesLocked(now)
}

// Close stops the queue. A job that is already processing runs to completion;
// pending jobs stay pending and new jobs are rejected.
func (q *JobQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.unsubscribeFlags()
	q.stop()
	q.drains.Wait()
}

// process starts a drain unless one is already running, in which case the
// running drain is told to rescan.
func (q *JobQueue) process() {
	q.mu.Lock()
	if q.closed || q.processor == nil {
		q.mu.Unlock()
		return
	}
	q.rescan = true
	if !q.running.TryAcquire(1) {
		q.mu.Unlock()
		select {
		case q.wake <- struct{}{}:
		default:
		}
		return
	}
	q.draining = true
	q.drains.Add(1)
	q.mu.Unlock()

	go q.drain()
}

func (q *JobQueue) drain() {
	defer q.drains.Done()

	iterations := 0
	q.mu.Lock()
	for {
		q.rescan = false

		if q.closed || q.processor == nil || len(q.queue) == 0 {
			if q.finishLocked() {
				return
			}
			continue
		}

		now := q.clock()
		idx := q.nextEligibleLocked(now)
		if idx == -1 {
			if wait, ok := q.nearestDelayLocked(now); ok {
				q.mu.Unlock()
				q.sleep(wait)
				q.mu.Lock()
				continue
			}
			if q.finishLocked() {
				return
			}
			continue
		}

		iterations++
		if iterations > q.cfg.MaxProcessIterations {
			dropped := len(q.queue)
			q.queue = nil
			q.draining = false
			q.running.Release(1)
			q.mu.Unlock()
			q.logger.Error().
				Err(ErrRunawayDrain).
				Int("max_iterations", q.cfg.MaxProcessIterations).
				Int("dropped_jobs", dropped).
				Msg("pending queue cleared")
			return
		}

		job := q.queue[idx]
		q.queue = append(q.queue[:idx], q.queue[idx+1:]...)
		processor := q.processor
		q.setStatusLocked(job.ID, types.StatusRecord{Status: state.StatusProcessing, Job: &job}, now)
		q.mu.Unlock()
		q.notifier.flush()

		result, err := q.run(processor, job)

		q.mu.Lock()
		finishedAt := q.clock()
		if job.DedupeKey != "" {
			q.recordCompletedLocked(job.DedupeKey, finishedAt)
		}
		var renderCallback types.RenderCallback
		if err != nil {
			q.setStatusLocked(job.ID, types.StatusRecord{Status: state.StatusFailed, Err: err, Job: &job}, finishedAt)
		} else {
			q.setStatusLocked(job.ID, types.StatusRecord{Status: state.StatusCompleted, Result: result, Job: &job}, finishedAt)
			renderCallback = q.renderCallback
		}
		q.mu.Unlock()
		q.notifier.flush()

		if err != nil {
			q.logger.Error().
				Err(err).
				Str("job_id", job.ID).
				Str("job_type", job.Type).
				Msg("job processing failed")
		} else if artifact, ok := result.(types.Renderable); ok && artifact != nil && renderCallback != nil {
			q.render(renderCallback, artifact, job)
		}

		runtime.Gosched()
		q.mu.Lock()
	}
}

// finishLocked releases the drain token unless a rescan was requested since
// the last scan. It returns true when the drain is over; the lock is released
// in that case and kept otherwise.
func (q *JobQueue) finishLocked() bool {
	if q.rescan && !q.closed {
		return false
	}
	q.draining = false
	q.running.Release(1)
	q.mu.Unlock()
	return true
}

func (q *JobQueue) run(processor types.Processor, job types.Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().
				Str("job_id", job.ID).
				Str("job_type", job.Type).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("processor panicked")
			result = nil
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		}
	}()
	return processor(q.processCtx, job)
}

func (q *JobQueue) render(cb types.RenderCallback, artifact types.Renderable, job types.Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().
				Str("job_id", job.ID).
				Interface("panic", r).
				Msg("render callback panicked")
		}
	}()
	cb(artifact, job.ID)
}

func (q *JobQueue) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-q.wake:
	case <-q.stopCtx.Done():
	}
}

func (q *JobQueue) nextEligibleLocked(now time.Time) int {
	for i, job := range q.queue {
		if q.flags.AllSet(job.Requirements) && delayElapsed(job, now) {
			return i
		}
	}
	return -1
}

// nearestDelayLocked reports how long to wait for the first job whose
// requirements are met but whose delay has not elapsed, capped at MaxDelayWait.
func (q *JobQueue) nearestDelayLocked(now time.Time) (time.Duration, bool) {
	found := false
	var nearest time.Duration
	for _, job := range q.queue {
		if delayElapsed(job, now) || !q.flags.AllSet(job.Requirements) {
			continue
		}
		remaining := job.ReadyAt().Sub(now)
		if !found || remaining < nearest {
			nearest = remaining
			found = true
		}
	}
	if !found {
		return 0, false
	}
	if nearest > q.cfg.MaxDelayWait {
		nearest = q.cfg.MaxDelayWait
	}
	if nearest < 0 {
		nearest = 0
	}
	return nearest, true
}

func (q *JobQueue) indexOfDedupeKeyLocked(key string) int {
	for i, job := range q.queue {
		if job.DedupeKey == key {
			return i
		}
	}
	return -1
}

func (q *JobQueue) recordCompletedLocked(key string, at time.Time) {
	if _, exists := q.completed[key]; !exists {
		if len(q.completed) >= q.cfg.MaxCompletedJobs && len(q.completedOrder) > 0 {
			oldest := q.completedOrder[0]
			q.completedOrder = q.completedOrder[1:]
			delete(q.completed, oldest)
		}
		q.completedOrder = append(q.completedOrder, key)
	}
	q.completed[key] = at
}

func (q *JobQueue) evictCompletedLocked(now time.Time) {
	cutoff := now.Add(-q.cfg.CompletedRetention)
	kept := q.completedOrder[:0]
	for _, key := range q.completedOrder {
		if q.completed[key].Before(cutoff) {
			delete(q.completed, key)
			continue
		}
		kept = append(kept, key)
	}
	q.completedOrder = kept
}

// setStatusLocked records rec for jobID and queues a notification.
// Transitions the lifecycle does not allow are logged and dropped.
func (q *JobQueue) setStatusLocked(jobID string, rec types.StatusRecord, now time.Time) {
	prev, exists := q.statuses[jobID]
	if exists && !state.IsValidTransition(prev.Status, rec.Status) {
		q.logger.Error().
			Str("job_id", jobID).
			Str("from", prev.Status.String()).
			Str("to", rec.Status.String()).
			Msg("invalid job status transition")
		return
	}

	if !exists {
		if len(q.statuses) >= q.cfg.MaxJobStatuses && len(q.statusOrder) > 0 {
			oldest := q.statusOrder[0]
			q.statusOrder = q.statusOrder[1:]
			delete(q.statuses, oldest)
		}
		q.statusOrder = append(q.statusOrder, jobID)
	}
	q.statuses[jobID] = rec
	q.evictStatusesLocked(now)

	q.notifier.publish(jobID, rec)
}

func (q *JobQueue) evictStatusesLocked(now time.Time) {
	cutoff := now.Add(-q.cfg.StatusRetention)
	kept := q.statusOrder[:0]
	for _, id := range q.statusOrder {
		rec := q.statuses[id]
		if state.IsTerminal(rec.Status) && rec.Job != nil && rec.Job.CreatedAt.Before(cutoff) {
			delete(q.statuses, id)
			continue
		}
		kept = append(kept, id)
	}
	q.statusOrder = kept
}

func delayElapsed(job types.Job, now time.Time) bool {
	if job.Delay <= 0 {
		return true
	}
	return !now.Before(job.ReadyAt())
}

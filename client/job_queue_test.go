package client_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/gomq/client"
	"github.com/RezaEskandarii/gomq/requirements"
	"github.com/RezaEskandarii/gomq/types"
	"github.com/RezaEskandarii/gomq/types/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// recorder collects processor calls from the drain goroutine.
type recorder struct {
	mu    sync.Mutex
	jobs  []types.Job
	errOn map[string]error
}

func (r *recorder) process(_ context.Context, job types.Job) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	if err, ok := r.errOn[job.Type]; ok {
		return nil, err
	}
	return job.Type + ":done", nil
}

func (r *recorder) jobTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Type)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func (r *recorder) last() types.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[len(r.jobs)-1]
}

func newTestQueue(t *testing.T, flags *requirements.Store, cfg *config.QueueConfig, opts ...client.Option) *client.JobQueue {
	t.Helper()
	if flags == nil {
		flags = requirements.New()
	}
	opts = append([]client.Option{client.WithLogger(zerolog.Nop())}, opts...)
	q := client.NewJobQueue(flags, cfg, opts...)
	t.Cleanup(q.Close)
	return q
}

func waitForStatus(t *testing.T, q *client.JobQueue, id string, want types.JobStatus) types.StatusRecord {
	t.Helper()
	var rec types.StatusRecord
	require.Eventually(t, func() bool {
		r, ok := q.JobStatus(id)
		rec = r
		return ok && r.Status == want
	}, waitFor, tick)
	return rec
}

func TestNewJobQueue_NilFlagsPanics(t *testing.T) {
	assert.Panics(t, func() { client.NewJobQueue(nil, nil) })
}

func TestJobQueue_ProcessesInInsertionOrder(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	rec := &recorder{}

	_, ok := q.Add("job.a", nil, nil, "", 0)
	require.True(t, ok)
	_, ok = q.Add("job.b", nil, nil, "", 0)
	require.True(t, ok)

	q.SetProcessor(rec.process)

	require.Eventually(t, func() bool { return rec.count() == 2 }, waitFor, tick)
	assert.Equal(t, []string{"job.a", "job.b"}, rec.jobTypes())
}

func TestJobQueue_WaitsForRequirements(t *testing.T) {
	flags := requirements.New()
	q := newTestQueue(t, flags, nil)
	rec := &recorder{}
	q.SetProcessor(rec.process)

	id, ok := q.Add("cart.add", map[string]any{"sku": "A1"}, []string{"user:ready"}, "", 0)
	require.True(t, ok)

	assert.Never(t, func() bool { return rec.count() > 0 }, 50*time.Millisecond, tick)
	st, _ := q.JobStatus(id)
	assert.Equal(t, types.StatusPending, st.Status)

	flags.Set("user:ready", true)

	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)
	assert.Equal(t, id, rec.last().ID)
	waitForStatus(t, q, id, types.StatusCompleted)
}

func TestJobQueue_LaterJobRunsWhileEarlierIsBlocked(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	rec := &recorder{}
	q.SetProcessor(rec.process)

	_, ok := q.Add("blocked", nil, []string{"never"}, "", 0)
	require.True(t, ok)
	_, ok = q.Add("free", nil, nil, "", 0)
	require.True(t, ok)

	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)
	assert.Equal(t, []string{"free"}, rec.jobTypes())
	assert.Len(t, q.DebugState().Queue, 1)
}

func TestJobQueue_HonorsDelay(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	rec := &recorder{}
	q.SetProcessor(rec.process)

	start := time.Now()
	_, ok := q.Add("analytics.track", nil, nil, "", 100*time.Millisecond)
	require.True(t, ok)

	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestJobQueue_DelayedJobDoesNotBlockLaterJobs(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	rec := &recorder{}
	q.SetProcessor(rec.process)

	_, ok := q.Add("slow", nil, nil, "", 150*time.Millisecond)
	require.True(t, ok)
	_, ok = q.Add("fast", nil, nil, "", 0)
	require.True(t, ok)

	require.Eventually(t, func() bool { return rec.count() == 2 }, waitFor, tick)
	assert.Equal(t, []string{"fast", "slow"}, rec.jobTypes())
}

func TestJobQueue_DedupeSkipsProcessedKey(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	rec := &recorder{}
	q.SetProcessor(rec.process)

	id, ok := q.Add("cart.add", nil, nil, "cart-1", 0)
	require.True(t, ok)
	waitForStatus(t, q, id, types.StatusCompleted)

	id2, ok := q.Add("cart.add", nil, nil, "cart-1", 0)
	assert.False(t, ok)
	assert.Empty(t, id2)
	assert.Never(t, func() bool { return rec.count() > 1 }, 50*time.Millisecond, tick)
}

func TestJobQueue_DedupeSkipsKeyAfterFailure(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	rec := &recorder{errOn: map[string]error{"cart.add": errors.New("out of stock")}}
	q.SetProcessor(rec.process)

	id, ok := q.Add("cart.add", nil, nil, "cart-1", 0)
	require.True(t, ok)
	waitForStatus(t, q, id, types.StatusFailed)

	_, ok = q.Add("cart.add", nil, nil, "cart-1", 0)
	assert.False(t, ok)
}

func TestJobQueue_DebouncesWithDedupeKeyAndDelay(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	rec := &recorder{}
	q.SetProcessor(rec.process)

	first, ok := q.Add("search.perform", map[string]string{"q": "a"}, nil, "search", 300*time.Millisecond)
	require.True(t, ok)

	time.Sleep(150 * time.Millisecond)
	secondAdded := time.Now()
	second, ok := q.Add("search.perform", map[string]string{"q": "ab"}, nil, "search", 300*time.Millisecond)
	require.True(t, ok)
	require.NotEqual(t, first, second)

	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)
	assert.GreaterOrEqual(t, time.Since(secondAdded), 300*time.Millisecond)

	job := rec.last()
	assert.Equal(t, second, job.ID)
	assert.Equal(t, map[string]string{"q": "ab"}, job.Payload)

	assert.Never(t, func() bool { return rec.count() > 1 }, 200*time.Millisecond, tick)
	st, ok := q.JobStatus(first)
	require.True(t, ok)
	assert.Equal(t, types.StatusPending, st.Status)
}

func TestJobQueue_FailureDoesNotStopLaterJobs(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	boom := errors.New("boom")
	rec := &recorder{errOn: map[string]error{"bad": boom}}

	bad, _ := q.Add("bad", nil, nil, "", 0)
	good, _ := q.Add("good", nil, nil, "", 0)
	q.SetProcessor(rec.process)

	failed := waitForStatus(t, q, bad, types.StatusFailed)
	assert.ErrorIs(t, failed.Err, boom)
	assert.Nil(t, failed.Result)

	done := waitForStatus(t, q, good, types.StatusCompleted)
	assert.Equal(t, "good:done", done.Result)
	assert.NoError(t, done.Err)
}

func TestJobQueue_RecoversProcessorPanic(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	q.SetProcessor(func(_ context.Context, job types.Job) (any, error) {
		if job.Type == "explode" {
			panic("kaboom")
		}
		return "ok", nil
	})

	bad, _ := q.Add("explode", nil, nil, "", 0)
	good, _ := q.Add("calm", nil, nil, "", 0)

	rec := waitForStatus(t, q, bad, types.StatusFailed)
	assert.ErrorIs(t, rec.Err, client.ErrProcessorPanic)
	waitForStatus(t, q, good, types.StatusCompleted)
}

func TestJobQueue_StatusTransitionsAreOrdered(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	rec := &recorder{errOn: map[string]error{"job.b": errors.New("nope")}}

	var mu sync.Mutex
	seen := map[string][]types.JobStatus{}
	unsubscribe := q.SubscribeToJobStatus(func(jobID string, r types.StatusRecord) {
		mu.Lock()
		defer mu.Unlock()
		seen[jobID] = append(seen[jobID], r.Status)
	})
	defer unsubscribe()

	a, _ := q.Add("job.a", nil, nil, "", 0)
	b, _ := q.Add("job.b", nil, nil, "", 0)
	q.SetProcessor(rec.process)

	waitForStatus(t, q, a, types.StatusCompleted)
	waitForStatus(t, q, b, types.StatusFailed)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen[a]) == 3 && len(seen[b]) == 3
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []types.JobStatus{types.StatusPending, types.StatusProcessing, types.StatusCompleted}, seen[a])
	assert.Equal(t, []types.JobStatus{types.StatusPending, types.StatusProcessing, types.StatusFailed}, seen[b])
}

func TestJobQueue_SubscribeReplaysCurrentStatuses(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	id, _ := q.Add("pending.job", nil, []string{"never"}, "", 0)

	var got []string
	unsubscribe := q.SubscribeToJobStatus(func(jobID string, r types.StatusRecord) {
		got = append(got, jobID+"="+r.Status.String())
	})
	defer unsubscribe()

	assert.Equal(t, []string{id + "=pending"}, got)
}

func TestJobQueue_UnsubscribeStopsDelivery(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	var mu sync.Mutex
	calls := 0
	unsubscribe := q.SubscribeToJobStatus(func(string, types.StatusRecord) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	unsubscribe()
	unsubscribe()

	q.Add("job", nil, nil, "", 0)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestJobQueue_SubscriberPanicIsContained(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	rec := &recorder{}
	q.SetProcessor(rec.process)

	var mu sync.Mutex
	var statuses []types.JobStatus
	q.SubscribeToJobStatus(func(string, types.StatusRecord) { panic("subscriber bug") })
	q.SubscribeToJobStatus(func(_ string, r types.StatusRecord) {
		mu.Lock()
		statuses = append(statuses, r.Status)
		mu.Unlock()
	})

	var id string
	require.NotPanics(t, func() { id, _ = q.Add("job", nil, nil, "", 0) })
	waitForStatus(t, q, id, types.StatusCompleted)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 3
	}, waitFor, tick)
}

func TestJobQueue_RejectsWhenFull(t *testing.T) {
	cfg, err := config.NewQueueConfig(config.WithMaxQueueSize(2))
	require.NoError(t, err)
	q := newTestQueue(t, nil, cfg)

	_, ok := q.Add("a", nil, nil, "", 0)
	require.True(t, ok)
	_, ok = q.Add("b", nil, nil, "", 0)
	require.True(t, ok)

	id, ok := q.Add("c", nil, nil, "", 0)
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Len(t, q.DebugState().Queue, 2)
	assert.Equal(t, 2, q.DebugState().TrackedStatusCount)
}

func TestJobQueue_RejectsAfterClose(t *testing.T) {
	q := client.NewJobQueue(requirements.New(), nil, client.WithLogger(zerolog.Nop()))
	q.Close()
	q.Close()

	_, ok := q.Add("a", nil, nil, "", 0)
	assert.False(t, ok)
}

func TestJobQueue_NilProcessorIsIgnored(t *testing.T) {
	q := newTestQueue(t, nil, nil)
	q.SetProcessor(nil)

	_, ok := q.Add("a", nil, nil, "", 0)
	require.True(t, ok)
	assert.False(t, q.DebugState().ProcessorReady)
	assert.Len(t, q.DebugState().Queue, 1)
}

type textArtifact string

func (a textArtifact) Render(w io.Writer) error {
	_, err := io.WriteString(w, string(a))
	return err
}

func TestJobQueue_RenderCallbackReceivesArtifacts(t *testing.T) {
	q := newTestQueue(t, nil, nil)

	var mu sync.Mutex
	rendered := map[string]types.Renderable{}
	q.SetRenderCallback(func(artifact types.Renderable, jobID string) {
		mu.Lock()
		rendered[jobID] = artifact
		mu.Unlock()
	})
	q.SetProcessor(func(_ context.Context, job types.Job) (any, error) {
		if job.Type == "toast" {
			return textArtifact("added to cart"), nil
		}
		return "plain", nil
	})

	toast, _ := q.Add("toast", nil, nil, "", 0)
	plain, _ := q.Add("plain", nil, nil, "", 0)
	waitForStatus(t, q, plain, types.StatusCompleted)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return rendered[toast] != nil
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, rendered, 1)
	assert.Equal(t, textArtifact("added to cart"), rendered[toast])
}

func TestJobQueue_DebugState(t *testing.T) {
	flags := requirements.New()
	q := newTestQueue(t, flags, nil)

	_, _ = q.Add("gated", nil, []string{"user:ready"}, "", 0)
	_, _ = q.Add("delayed", nil, nil, "", time.Hour)
	_, _ = q.Add("free", nil, nil, "", 0)

	ds := q.DebugState()
	require.Len(t, ds.Queue, 3)
	assert.False(t, ds.ProcessorReady)
	assert.False(t, ds.IsProcessing)
	assert.Equal(t, 3, ds.TrackedStatusCount)
	assert.Zero(t, ds.CompletedJobsCount)

	assert.False(t, ds.Queue[0].RequirementsMet)
	assert.True(t, ds.Queue[0].DelayElapsed)
	assert.False(t, ds.Queue[0].Eligible)

	assert.True(t, ds.Queue[1].RequirementsMet)
	assert.False(t, ds.Queue[1].DelayElapsed)
	assert.False(t, ds.Queue[1].Eligible)

	assert.True(t, ds.Queue[2].Eligible)
	assert.False(t, ds.Queue[2].HasProcessor)

	flags.Set("user:ready", true)
	assert.True(t, q.DebugState().Queue[0].Eligible)
}

func TestJobQueue_RunawayDrainClearsQueue(t *testing.T) {
	cfg, err := config.NewQueueConfig(config.WithMaxProcessIterations(2))
	require.NoError(t, err)
	q := newTestQueue(t, nil, cfg)
	rec := &recorder{}

	for i := 0; i < 5; i++ {
		_, ok := q.Add("job", nil, nil, "", 0)
		require.True(t, ok)
	}
	q.SetProcessor(rec.process)

	require.Eventually(t, func() bool { return len(q.DebugState().Queue) == 0 }, waitFor, tick)
	assert.Equal(t, 2, rec.count())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestJobQueue_SweepEvictsExpiredRecords(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := newTestQueue(t, nil, nil, client.WithClock(clock.Now))
	rec := &recorder{}
	q.SetProcessor(rec.process)

	id, ok := q.Add("cart.add", nil, nil, "cart-1", 0)
	require.True(t, ok)
	waitForStatus(t, q, id, types.StatusCompleted)
	assert.Equal(t, 1, q.DebugState().CompletedJobsCount)

	clock.Advance(2 * time.Hour)
	q.Sweep()

	ds := q.DebugState()
	assert.Zero(t, ds.CompletedJobsCount)
	assert.Zero(t, ds.TrackedStatusCount)
	_, ok = q.JobStatus(id)
	assert.False(t, ok)

	_, ok = q.Add("cart.add", nil, nil, "cart-1", 0)
	assert.True(t, ok)
}

func TestJobQueue_SweepKeepsRecentRecords(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := newTestQueue(t, nil, nil, client.WithClock(clock.Now))
	rec := &recorder{}
	q.SetProcessor(rec.process)

	id, _ := q.Add("cart.add", nil, nil, "cart-1", 0)
	waitForStatus(t, q, id, types.StatusCompleted)

	clock.Advance(time.Minute)
	q.Sweep()

	ds := q.DebugState()
	assert.Equal(t, 1, ds.CompletedJobsCount)
	assert.Equal(t, 1, ds.TrackedStatusCount)
}

func TestJobQueue_CompletedKeysAreCapped(t *testing.T) {
	cfg, err := config.NewQueueConfig(config.WithMaxCompletedJobs(2))
	require.NoError(t, err)
	q := newTestQueue(t, nil, cfg)
	rec := &recorder{}
	q.SetProcessor(rec.process)

	for _, key := range []string{"k1", "k2", "k3"} {
		id, ok := q.Add("job", nil, nil, key, 0)
		require.True(t, ok)
		waitForStatus(t, q, id, types.StatusCompleted)
	}

	assert.Equal(t, 2, q.DebugState().CompletedJobsCount)
	_, ok := q.Add("job", nil, nil, "k1", 0)
	assert.True(t, ok, "oldest key should have been evicted")
	_, ok = q.Add("job", nil, nil, "k3", 0)
	assert.False(t, ok)
}

func TestJobQueue_StatusRecordsAreCapped(t *testing.T) {
	cfg, err := config.NewQueueConfig(config.WithMaxJobStatuses(2))
	require.NoError(t, err)
	q := newTestQueue(t, nil, cfg)

	ids := make([]string, 0, 3)
	for _, jobType := range []string{"a", "b", "c"} {
		id, ok := q.Add(jobType, nil, []string{"never"}, "", 0)
		require.True(t, ok)
		ids = append(ids, id)
	}

	_, ok := q.JobStatus(ids[0])
	assert.False(t, ok)
	for _, id := range ids[1:] {
		_, ok := q.JobStatus(id)
		assert.True(t, ok)
	}
	assert.Equal(t, 2, q.DebugState().TrackedStatusCount)

	var replayed []string
	unsubscribe := q.SubscribeToJobStatus(func(jobID string, _ types.StatusRecord) {
		replayed = append(replayed, jobID)
	})
	defer unsubscribe()
	assert.Equal(t, ids[1:], replayed)
}

func TestJobQueue_UsesInjectedIDs(t *testing.T) {
	n := 0
	q := newTestQueue(t, nil, nil, client.WithIDGenerator(func() string {
		n++
		return "job-" + string(rune('0'+n))
	}))

	id, ok := q.Add("a", nil, nil, "", 0)
	require.True(t, ok)
	assert.Equal(t, "job-1", id)
}

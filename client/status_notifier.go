package client

import (
	"sync"

	"github.com/RezaEskandarii/gomq/types"
	"github.com/rs/zerolog"
)

type statusEvent struct {
	seq    uint64
	jobID  string
	rec    types.StatusRecord
	target *statusSubscriber
}

type statusSubscriber struct {
	fn      types.StatusCallback
	since   uint64
	removed bool
}

// statusNotifier delivers status events to subscribers in publish order.
// Whichever goroutine finds the outbox idle drains it; concurrent and
// reentrant publishers only append, so a subscriber never sees a job's
// statuses out of order.
type statusNotifier struct {
	mu          sync.Mutex
	seq         uint64
	outbox      []statusEvent
	subscribers []*statusSubscriber
	flushing    bool
	logger      zerolog.Logger
}

func newStatusNotifier(logger zerolog.Logger) *statusNotifier {
	return &statusNotifier{logger: logger}
}

// publish queues an event for every current subscriber. It does not deliver.
func (n *statusNotifier) publish(jobID string, rec types.StatusRecord) {
	n.mu.Lock()
	n.seq++
	n.outbox = append(n.outbox, statusEvent{seq: n.seq, jobID: jobID, rec: rec})
	n.mu.Unlock()
}

// subscribe registers fn and queues a replay of current. Events published
// before this call are not delivered to fn; current already reflects them.
func (n *statusNotifier) subscribe(fn types.StatusCallback, current []statusEvent) *statusSubscriber {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub := &statusSubscriber{fn: fn, since: n.seq}
	n.subscribers = append(n.subscribers, sub)
	for _, ev := range current {
		ev.target = sub
		n.outbox = append(n.outbox, ev)
	}
	return sub
}

func (n *statusNotifier) unsubscribe(sub *statusSubscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub.removed = true
	for i, s := range n.subscribers {
		if s == sub {
			n.subscribers = append(n.subscribers[:i:i], n.subscribers[i+1:]...)
			return
		}
	}
}

func (n *statusNotifier) flush() {
	n.mu.Lock()
	if n.flushing {
		n.mu.Unlock()
		return
	}
	n.flushing = true

	for len(n.outbox) > 0 {
		ev := n.outbox[0]
		n.outbox[0] = statusEvent{}
		n.outbox = n.outbox[1:]

		var targets []*statusSubscriber
		if ev.target != nil {
			if !ev.target.removed {
				targets = append(targets, ev.target)
			}
		} else {
			for _, s := range n.subscribers {
				if ev.seq > s.since {
					targets = append(targets, s)
				}
			}
		}
		n.mu.Unlock()

		for _, s := range targets {
			n.deliver(s, ev)
		}

		n.mu.Lock()
	}

	n.outbox = nil
	n.flushing = false
	n.mu.Unlock()
}

func (n *statusNotifier) deliver(s *statusSubscriber, ev statusEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().
				Str("job_id", ev.jobID).
				Interface("panic", r).
				Msg("job status subscriber panicked")
		}
	}()
	s.fn(ev.jobID, ev.rec)
}

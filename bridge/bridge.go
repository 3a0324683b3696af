package bridge

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultBufferSize = 1000

// Bridge turns broadcasts on a Window into intake callbacks. Broadcasts that
// arrive before a callback is registered are buffered and replayed, in
// arrival order, once one is.
type Bridge struct {
	eventName  string
	bufferSize int
	logger     zerolog.Logger
	clock      func() time.Time

	mu       sync.Mutex
	callback func(Detail)
	buffer   []BufferedEvent
	flushing bool
	window   *Window
	remove   func()
}

// BufferedEvent is a broadcast waiting for the intake callback.
type BufferedEvent struct {
	Type         string    `json:"type"`
	Payload      any       `json:"payload,omitempty"`
	Requirements []string  `json:"requirements,omitempty"`
	Timestamp    time.Time `json:"timestamp"`

	detail Detail
}

// BufferState is a read-only view of undelivered broadcasts.
type BufferState struct {
	Buffer         []BufferedEvent `json:"buffer"`
	BufferLength   int             `json:"bufferLength"`
	ProcessorReady bool            `json:"processorReady"`
}

type Option func(*Bridge)

// WithEventName sets the broadcast name the bridge listens on.
func WithEventName(name string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.eventName = name
		}
	}
}

// WithBufferSize caps how many broadcasts are kept while no callback is set.
func WithBufferSize(size int) Option {
	return func(b *Bridge) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *Bridge) {
		if clock != nil {
			b.clock = clock
		}
	}
}

func New(opts ...Option) *Bridge {
	b := &Bridge{
		eventName:  DefaultEventName,
		bufferSize: DefaultBufferSize,
		logger:     log.Logger,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EventName returns the broadcast name the bridge listens on.
func (b *Bridge) EventName() string {
	return b.eventName
}

// Attach starts listening on w. Attaching to another window moves the listener.
func (b *Bridge) Attach(w *Window) {
	if w == nil {
		return
	}

	b.mu.Lock()
	if b.window == w {
		b.mu.Unlock()
		return
	}
	prev := b.remove
	b.window = w
	b.remove = w.Listen(b.eventName, b.handle)
	b.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Detach stops listening. Buffered broadcasts are kept.
func (b *Bridge) Detach() {
	b.mu.Lock()
	remove := b.remove
	b.remove = nil
	b.window = nil
	b.mu.Unlock()

	if remove != nil {
		remove()
	}
}

// SetCallback registers fn as the intake callback and delivers every buffered
// broadcast to it before returning.
func (b *Bridge) SetCallback(fn func(Detail)) {
	b.mu.Lock()
	b.callback = fn
	b.mu.Unlock()

	if fn != nil {
		b.flush()
	}
}

// ClearCallback removes the intake callback. Later broadcasts are buffered.
func (b *Bridge) ClearCallback() {
	b.mu.Lock()
	b.callback = nil
	b.mu.Unlock()
}

// Snapshot returns the broadcasts still waiting for delivery.
func (b *Bridge) Snapshot() BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := make([]BufferedEvent, len(b.buffer))
	copy(buf, b.buffer)
	return BufferState{
		Buffer:         buf,
		BufferLength:   len(buf),
		ProcessorReady: b.callback != nil,
	}
}

// ClearBuffer drops every buffered broadcast.
func (b *Bridge) ClearBuffer() {
	b.mu.Lock()
	b.buffer = nil
	b.mu.Unlock()
}

func (b *Bridge) handle(raw any) {
	d, err := parseDetail(raw)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("event", b.eventName).
			Msg(`invalid broadcast, expected detail {"type": "job.type", "payload": {...}, "requirements": [...]}`)
		return
	}

	b.mu.Lock()
	// The cap only applies while no callback is set. A live callback drains
	// the buffer, so broadcasts queued behind a flush are never dropped.
	if b.callback == nil && len(b.buffer) >= b.bufferSize {
		dropped := b.buffer[0]
		b.buffer[0] = BufferedEvent{}
		b.buffer = b.buffer[1:]
		b.logger.Warn().
			Str("dropped_type", dropped.Type).
			Int("buffer_size", b.bufferSize).
			Msg("event buffer is full, dropping oldest event")
	}
	b.buffer = append(b.buffer, BufferedEvent{
		Type:         d.Type,
		Payload:      d.Payload,
		Requirements: d.Requirements,
		Timestamp:    b.clock(),
		detail:       d,
	})
	if b.callback == nil {
		b.logger.Debug().
			Str("job_type", d.Type).
			Msg("event buffered, waiting for intake callback")
	}
	b.mu.Unlock()

	b.flush()
}

// flush delivers buffered broadcasts while a callback is set. A broadcast
// raised from inside the callback is appended and delivered by the same loop,
// so arrival order holds.
func (b *Bridge) flush() {
	b.mu.Lock()
	if b.flushing {
		b.mu.Unlock()
		return
	}
	b.flushing = true

	for len(b.buffer) > 0 && b.callback != nil {
		ev := b.buffer[0]
		b.buffer[0] = BufferedEvent{}
		b.buffer = b.buffer[1:]
		cb := b.callback
		b.mu.Unlock()

		b.deliver(cb, ev.detail)

		b.mu.Lock()
	}

	if len(b.buffer) == 0 {
		b.buffer = nil
	}
	b.flushing = false
	b.mu.Unlock()
}

func (b *Bridge) deliver(cb func(Detail), d Detail) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("job_type", d.Type).
				Interface("panic", r).
				Msg("intake callback panicked")
		}
	}()
	cb(d)
}

package requirements

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store holds named boolean flags that jobs can wait on.
// A single Store is meant to be shared by every queue in the process;
// tests should build a fresh one with New.
type Store struct {
	mu        sync.RWMutex
	state     map[string]bool
	listeners []listener
	nextID    uint64
	logger    zerolog.Logger
}

type listener struct {
	id uint64
	fn func()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report listener panics.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty flag store. Unknown keys read as false.
func New(opts ...Option) *Store {
	s := &Store{
		state:  make(map[string]bool),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value stored for key, or false if it was never set.
func (s *Store) Get(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[key]
}

// Set stores value under key and notifies listeners if the value changed.
// Setting an unchanged value does nothing.
func (s *Store) Set(key string, value bool) {
	s.mu.Lock()
	if prev, ok := s.state[key]; ok && prev == value {
		s.mu.Unlock()
		return
	}
	s.state[key] = value
	snapshot := s.listenersLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// SetMany applies all values and notifies listeners once if any of them changed.
func (s *Store) SetMany(values map[string]bool) {
	s.mu.Lock()
	changed := false
	for key, value := range values {
		if prev, ok := s.state[key]; ok && prev == value {
			continue
		}
		s.state[key] = value
		changed = true
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	snapshot := s.listenersLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// Subscribe registers fn to be called after every effective change.
// The returned function removes the listener and may be called more than once.
func (s *Store) Subscribe(fn func()) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Snapshot returns a copy of every flag that has been set.
func (s *Store) Snapshot() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// AllSet reports whether every key is set to true. An empty list is always satisfied.
func (s *Store) AllSet(keys []string) bool {
	if len(keys) == 0 {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range keys {
		if !s.state[k] {
			return false
		}
	}
	return true
}

func (s *Store) listenersLocked() []listener {
	out := make([]listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

func (s *Store) notify(listeners []listener) {
	for _, l := range listeners {
		s.call(l.fn)
	}
}

func (s *Store) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("requirements listener panicked")
		}
	}()
	fn()
}

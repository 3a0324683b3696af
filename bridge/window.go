package bridge

import (
	"sync"
)

// Window is an in-process broadcast channel. Listeners are keyed by event
// name and run synchronously, in registration order, on the dispatching
// goroutine.
type Window struct {
	mu        sync.RWMutex
	listeners map[string][]*windowListener
}

type windowListener struct {
	fn func(detail any)
}

func NewWindow() *Window {
	return &Window{listeners: make(map[string][]*windowListener)}
}

// Listen registers fn for name. The returned function removes it and is safe
// to call more than once.
func (w *Window) Listen(name string, fn func(detail any)) func() {
	if fn == nil {
		return func() {}
	}
	l := &windowListener{fn: fn}

	w.mu.Lock()
	w.listeners[name] = append(w.listeners[name], l)
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			current := w.listeners[name]
			for i, existing := range current {
				if existing == l {
					w.listeners[name] = append(current[:i:i], current[i+1:]...)
					break
				}
			}
			if len(w.listeners[name]) == 0 {
				delete(w.listeners, name)
			}
		})
	}
}

// Dispatch delivers detail to every listener of name.
func (w *Window) Dispatch(name string, detail any) {
	w.mu.RLock()
	snapshot := append([]*windowListener(nil), w.listeners[name]...)
	w.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(detail)
	}
}

// ListenerCount returns how many listeners are registered for name.
func (w *Window) ListenerCount(name string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.listeners[name])
}

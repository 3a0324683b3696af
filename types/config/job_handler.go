package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RezaEskandarii/gomq/types"
)

var ErrHandlerNotFound = errors.New("gomq: handler not found")

// HandlerFunc executes one kind of job. Its return value becomes the job result.
type HandlerFunc func(ctx context.Context, job types.Job) (any, error)

// HandlerLoader resolves a handler on first use.
type HandlerLoader func() (HandlerFunc, error)

type JobHandler struct {
	handlers map[string]HandlerFunc
	loaders  map[string]HandlerLoader
	mutex    sync.Mutex
}

func NewJobHandler() *JobHandler {
	return &JobHandler{
		handlers: make(map[string]HandlerFunc),
		loaders:  make(map[string]HandlerLoader),
	}
}

// Register adds a new job handler by name.
func (jh *JobHandler) Register(name string, handler HandlerFunc) error {
	if name == "" || handler == nil {
		return errors.New("handler must have a name and function")
	}

	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	if jh.existsLocked(name) {
		return fmt.Errorf("handler '%s' already registered", name)
	}
	jh.handlers[name] = handler
	return nil
}

// RegisterLazy adds a handler that is only resolved the first time it executes.
// A loader error is returned from that Execute call and the loader is retried next time.
func (jh *JobHandler) RegisterLazy(name string, loader HandlerLoader) error {
	if name == "" || loader == nil {
		return errors.New("handler must have a name and loader")
	}

	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	if jh.existsLocked(name) {
		return fmt.Errorf("handler '%s' already registered", name)
	}
	jh.loaders[name] = loader
	return nil
}

func (jh *JobHandler) Exists(name string) bool {
	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	return jh.existsLocked(name)
}

func (jh *JobHandler) Execute(ctx context.Context, name string, job types.Job) (any, error) {
	handler, err := jh.resolve(name)
	if err != nil {
		return nil, err
	}
	return handler(ctx, job)
}

func (jh *JobHandler) List() []string {
	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	names := make([]string, 0, len(jh.handlers)+len(jh.loaders))
	for name := range jh.handlers {
		names = append(names, name)
	}
	for name := range jh.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (jh *JobHandler) resolve(name string) (HandlerFunc, error) {
	jh.mutex.Lock()
	if handler, ok := jh.handlers[name]; ok {
		jh.mutex.Unlock()
		return handler, nil
	}
	loader, ok := jh.loaders[name]
	jh.mutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrHandlerNotFound, name)
	}

	handler, err := loader()
	if err != nil {
		return nil, fmt.Errorf("load handler '%s': %w", name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("load handler '%s': loader returned nil", name)
	}

	jh.mutex.Lock()
	defer jh.mutex.Unlock()
	if existing, ok := jh.handlers[name]; ok {
		return existing, nil
	}
	jh.handlers[name] = handler
	delete(jh.loaders, name)
	return handler, nil
}

func (jh *JobHandler) existsLocked(name string) bool {
	if _, ok := jh.handlers[name]; ok {
		return true
	}
	_, ok := jh.loaders[name]
	return ok
}

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/RezaEskandarii/gomq/types"
	"github.com/RezaEskandarii/gomq/types/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Router maps job types to named handlers and builds the queue processor.
type Router struct {
	handlers *config.JobHandler
	logger   zerolog.Logger

	mu     sync.RWMutex
	routes map[string]string
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger used for unrouted job types.
func WithRouterLogger(logger zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// routesDocument is the YAML form of a routing table:
//
//	routes:
//	  cart.add: cartAdd
//	  search.perform: searchPerform
type routesDocument struct {
	Routes map[string]string `yaml:"routes"`
}

func NewRouter(handlers *config.JobHandler, opts ...RouterOption) *Router {
	if handlers == nil {
		handlers = config.NewJobHandler()
	}
	r := &Router{
		handlers: handlers,
		logger:   log.Logger,
		routes:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route sends jobs of jobType to the handler registered as handlerName.
// The handler must already be registered.
func (r *Router) Route(jobType, handlerName string) error {
	if jobType == "" || handlerName == "" {
		return errors.New("route needs a job type and a handler name")
	}
	if !r.handlers.Exists(handlerName) {
		return fmt.Errorf("route '%s': %w: '%s'", jobType, config.ErrHandlerNotFound, handlerName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.routes[jobType]; ok {
		return fmt.Errorf("%w: '%s' -> '%s'", ErrDuplicateRoute, jobType, existing)
	}
	r.routes[jobType] = handlerName
	return nil
}

// LoadRoutes reads a YAML routing table and adds every route in it.
// Nothing is added if any route is invalid.
func (r *Router) LoadRoutes(reader io.Reader) error {
	var doc routesDocument
	if err := yaml.NewDecoder(reader).Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRouteDoc, err)
	}
	if len(doc.Routes) == 0 {
		return fmt.Errorf("%w: no routes defined", ErrInvalidRouteDoc)
	}

	jobTypes := make([]string, 0, len(doc.Routes))
	for jobType, handlerName := range doc.Routes {
		if !r.handlers.Exists(handlerName) {
			return fmt.Errorf("route '%s': %w: '%s'", jobType, config.ErrHandlerNotFound, handlerName)
		}
		jobTypes = append(jobTypes, jobType)
	}
	sort.Strings(jobTypes)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, jobType := range jobTypes {
		if _, ok := r.routes[jobType]; ok {
			return fmt.Errorf("%w: '%s'", ErrDuplicateRoute, jobType)
		}
	}
	for _, jobType := range jobTypes {
		r.routes[jobType] = doc.Routes[jobType]
	}
	return nil
}

// LoadRoutesFile is LoadRoutes for a file on disk.
func (r *Router) LoadRoutesFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open routes file: %w", err)
	}
	defer f.Close()
	return r.LoadRoutes(f)
}

// Routes returns a copy of the routing table.
func (r *Router) Routes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.routes))
	for k, v := range r.routes {
		out[k] = v
	}
	return out
}

// Processor returns a processor that resolves the handler for each job when
// the job runs. A job type with no route is logged and completes with a nil result.
func (r *Router) Processor() types.Processor {
	return func(ctx context.Context, job types.Job) (any, error) {
		r.mu.RLock()
		handlerName, ok := r.routes[job.Type]
		r.mu.RUnlock()

		if !ok {
			r.logger.Warn().
				Err(ErrUnknownJobType).
				Str("job_id", job.ID).
				Str("job_type", job.Type).
				Msg("no handler routed for job type")
			return nil, nil
		}
		return r.handlers.Execute(ctx, handlerName, job)
	}
}

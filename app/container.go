package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/RezaEskandarii/gomq/bridge"
	"github.com/RezaEskandarii/gomq/client"
	"github.com/RezaEskandarii/gomq/internal/logging"
	"github.com/RezaEskandarii/gomq/requirements"
	"github.com/RezaEskandarii/gomq/types/config"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures every component is created once.
type Container struct {
	Config *Config
	Logger zerolog.Logger

	Flags  *requirements.Store
	Queue  *client.JobQueue
	Window *bridge.Window
	Bridge *bridge.Bridge

	JobHandler *config.JobHandler
	Router     *client.Router

	janitor   *cron.Cron
	closeOnce sync.Once
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// ctx is handed to every processor call.
func NewContainer(ctx context.Context, cfg *Config, opts ...ContainerOption) (*Container, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	logger, err := resolveLogger(cfg, opt)
	if err != nil {
		return nil, err
	}

	queueCfg, err := cfg.QueueConfig()
	if err != nil {
		return nil, fmt.Errorf("queue config: %w", err)
	}

	jobHandler := opt.jobHandler
	if jobHandler == nil {
		jobHandler = config.NewJobHandler()
	}
	router := client.NewRouter(jobHandler, client.WithRouterLogger(logger))
	if err := loadRoutes(router, cfg, opt); err != nil {
		return nil, err
	}

	flags := requirements.New(requirements.WithLogger(logger))
	if len(cfg.Flags) > 0 {
		flags.SetMany(cfg.Flags)
	}

	queue := client.NewJobQueue(flags, queueCfg,
		client.WithLogger(logger),
		client.WithProcessContext(ctx),
	)
	queue.SetProcessor(router.Processor())

	window := opt.window
	if window == nil {
		window = bridge.NewWindow()
	}
	br := bridge.New(append(cfg.bridgeOptions(), bridge.WithLogger(logger))...)
	br.Attach(window)
	br.SetCallback(intake(queue, logger))

	janitor := cron.New()
	if _, err := janitor.AddFunc(fmt.Sprintf("@every %s", cfg.SweepInterval), queue.Sweep); err != nil {
		br.Detach()
		queue.Close()
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	janitor.Start()

	logger.Info().
		Str("event", br.EventName()).
		Int("routes", len(router.Routes())).
		Msg("gomq container ready")

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Flags:      flags,
		Queue:      queue,
		Window:     window,
		Bridge:     br,
		JobHandler: jobHandler,
		Router:     router,
		janitor:    janitor,
	}, nil
}

// Dispatch broadcasts detail on the container's window under the configured event name.
func (c *Container) Dispatch(detail any) {
	c.Window.Dispatch(c.Bridge.EventName(), detail)
}

// SuspendIntake stops handing broadcasts to the queue; they are buffered by
// the bridge until ResumeIntake.
func (c *Container) SuspendIntake() {
	c.Bridge.ClearCallback()
}

// ResumeIntake reconnects the bridge to the queue and flushes the buffer.
func (c *Container) ResumeIntake() {
	c.Bridge.SetCallback(intake(c.Queue, c.Logger))
}

// Close stops the components in reverse order of creation.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		<-c.janitor.Stop().Done()
		c.Bridge.ClearCallback()
		c.Bridge.Detach()
		c.Queue.Close()
		c.Logger.Info().Msg("gomq container stopped")
	})
}

func intake(queue *client.JobQueue, logger zerolog.Logger) func(bridge.Detail) {
	return func(d bridge.Detail) {
		id, ok := queue.AddJob(d.NewJob())
		if !ok {
			logger.Debug().Str("job_type", d.Type).Msg("broadcast not enqueued")
			return
		}
		logger.Debug().Str("job_id", id).Str("job_type", d.Type).Msg("broadcast enqueued")
	}
}

func resolveLogger(cfg *Config, opt *containerConfig) (zerolog.Logger, error) {
	if opt.logger != nil {
		return *opt.logger, nil
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func loadRoutes(router *client.Router, cfg *Config, opt *containerConfig) error {
	if cfg.RoutesFile != "" {
		if err := router.LoadRoutesFile(cfg.RoutesFile); err != nil {
			return fmt.Errorf("load routes: %w", err)
		}
	}

	jobTypes := make([]string, 0, len(opt.routes))
	for jobType := range opt.routes {
		jobTypes = append(jobTypes, jobType)
	}
	sort.Strings(jobTypes)
	for _, jobType := range jobTypes {
		if err := router.Route(jobType, opt.routes[jobType]); err != nil {
			return err
		}
	}
	return nil
}

package app

import (
	"fmt"
	"time"

	"github.com/RezaEskandarii/gomq/bridge"
	"github.com/RezaEskandarii/gomq/types/config"
	"github.com/caarlos0/env/v11"
)

const EnvPrefix = "GOMQ_"

// Config is the process configuration, read from GOMQ_* environment variables.
type Config struct {
	EventName  string `env:"EVENT_NAME" envDefault:"gomq"`
	BufferSize int    `env:"BUFFER_SIZE" envDefault:"1000"`

	MaxQueueSize         int           `env:"MAX_QUEUE_SIZE" envDefault:"10000"`
	MaxCompletedJobs     int           `env:"MAX_COMPLETED_JOBS" envDefault:"1000"`
	MaxJobStatuses       int           `env:"MAX_JOB_STATUSES" envDefault:"1000"`
	MaxProcessIterations int           `env:"MAX_PROCESS_ITERATIONS" envDefault:"10000"`
	MaxDelayWait         time.Duration `env:"MAX_DELAY_WAIT" envDefault:"1s"`
	CompletedRetention   time.Duration `env:"COMPLETED_RETENTION" envDefault:"1h"`
	StatusRetention      time.Duration `env:"STATUS_RETENTION" envDefault:"5m"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	DebugAddr        string `env:"DEBUG_ADDR" envDefault:":8089"`
	AuthUser         string `env:"AUTH_USER"`
	AuthPasswordHash string `env:"AUTH_PASSWORD_HASH"`

	// Flags seeds the requirements store, e.g. GOMQ_FLAGS=user:ready=true,cart:loaded=false.
	Flags      map[string]bool `env:"FLAGS" envKeyValSeparator:"="`
	RoutesFile string          `env:"ROUTES_FILE"`
}

// LoadConfig reads Config from the process environment.
func LoadConfig() (*Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

// LoadConfigFrom reads Config from vars instead of the process environment.
func LoadConfigFrom(vars map[string]string) (*Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func loadConfig(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}
	return &cfg, nil
}

// DefaultConfig is the configuration an empty environment produces.
func DefaultConfig() *Config {
	cfg, err := LoadConfigFrom(map[string]string{})
	if err != nil {
		panic(err)
	}
	return cfg
}

// QueueConfig converts the queue limits into a validated config.QueueConfig.
func (c *Config) QueueConfig() (*config.QueueConfig, error) {
	return config.NewQueueConfig(
		config.WithMaxQueueSize(c.MaxQueueSize),
		config.WithMaxCompletedJobs(c.MaxCompletedJobs),
		config.WithMaxJobStatuses(c.MaxJobStatuses),
		config.WithMaxProcessIterations(c.MaxProcessIterations),
		config.WithMaxDelayWait(c.MaxDelayWait),
		config.WithCompletedRetention(c.CompletedRetention),
		config.WithStatusRetention(c.StatusRetention),
	)
}

func (c *Config) bridgeOptions() []bridge.Option {
	return []bridge.Option{
		bridge.WithEventName(c.EventName),
		bridge.WithBufferSize(c.BufferSize),
	}
}

package app

import (
	"github.com/RezaEskandarii/gomq/bridge"
	"github.com/RezaEskandarii/gomq/types/config"
	"github.com/rs/zerolog"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	logger     *zerolog.Logger
	window     *bridge.Window
	jobHandler *config.JobHandler
	routes     map[string]string
}

// WithLogger injects a logger instead of building one from Config.
func WithLogger(logger zerolog.Logger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = &logger
	}
}

// WithWindow attaches the bridge to an existing window so callers can dispatch on it.
func WithWindow(w *bridge.Window) ContainerOption {
	return func(c *containerConfig) {
		c.window = w
	}
}

// WithJobHandler supplies the handler registry the router resolves against.
func WithJobHandler(h *config.JobHandler) ContainerOption {
	return func(c *containerConfig) {
		c.jobHandler = h
	}
}

// WithRoutes adds job type to handler name routes on top of any routes file.
func WithRoutes(routes map[string]string) ContainerOption {
	return func(c *containerConfig) {
		if c.routes == nil {
			c.routes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			c.routes[k] = v
		}
	}
}

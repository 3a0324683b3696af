package commands

import (
	"fmt"

	"github.com/RezaEskandarii/gomq/app"
	"github.com/RezaEskandarii/gomq/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const cliExecutable = "gomq"

type rootOptions struct {
	logLevel  string
	logFormat string
	cfg       *app.Config
	logger    zerolog.Logger
}

// NewCommand constructs the top-level gomq CLI command. Configuration comes
// from GOMQ_* environment variables; the logging flags override them.
func NewCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "gomq bridges named broadcasts into a single-consumer job queue",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			if opts.logFormat != "" {
				cfg.LogFormat = opts.logFormat
			}

			logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			log.Logger = logger
			opts.cfg = cfg
			opts.logger = logger
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides GOMQ_LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (console, json); overrides GOMQ_LOG_FORMAT")

	cmd.AddCommand(newDemoCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

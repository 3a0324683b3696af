package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/RezaEskandarii/gomq/app"
	"github.com/RezaEskandarii/gomq/types/config"
	"github.com/RezaEskandarii/gomq/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue with the demo handlers and a read-only inspection endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.cfg.DebugAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Inspection endpoint address; overrides GOMQ_DEBUG_ADDR")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions) error {
	handlers := config.NewJobHandler()
	if err := registerDemoHandlers(handlers); err != nil {
		return err
	}

	containerOpts := []app.ContainerOption{
		app.WithLogger(opts.logger),
		app.WithJobHandler(handlers),
	}
	if opts.cfg.RoutesFile == "" {
		containerOpts = append(containerOpts, app.WithRoutes(demoRoutes))
	}

	c, err := app.NewContainer(ctx, opts.cfg, containerOpts...)
	if err != nil {
		return err
	}

	handler := web.NewRouteHandler(c.Queue, c.Bridge, c.Flags,
		web.WithLogger(opts.logger),
		web.WithAuth(web.Credentials{User: opts.cfg.AuthUser, PasswordHash: opts.cfg.AuthPasswordHash}),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Serve(gctx, opts.cfg.DebugAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		c.Close()
		return nil
	})

	return g.Wait()
}

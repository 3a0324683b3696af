package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/RezaEskandarii/gomq/app"
	"github.com/RezaEskandarii/gomq/bridge"
	"github.com/RezaEskandarii/gomq/types"
	"github.com/RezaEskandarii/gomq/types/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("105")). // Purple
			Bold(true)

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // Cyan

	statusStyles = map[types.JobStatus]lipgloss.Style{
		types.StatusPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")), // Yellow
		types.StatusProcessing: lipgloss.NewStyle().Foreground(lipgloss.Color("62")), // Blue
		types.StatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")), // Green
		types.StatusFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),  // Red
	}

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func newDemoCommand(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted scenario showing buffering, gating, debounce and error isolation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runDemo(ctx, opts.cfg, opts.logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up if the scenario has not settled within this time")
	return cmd
}

// demoPrinter serialises output from status subscribers and the scenario itself.
type demoPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *demoPrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *demoPrinter) step(title string) {
	p.printf("\n%s\n", stepStyle.Render("▸ "+title))
}

func runDemo(ctx context.Context, cfg *app.Config, logger zerolog.Logger, out io.Writer) error {
	if cfg == nil {
		cfg = app.DefaultConfig()
	}
	p := &demoPrinter{out: out}

	handlers := config.NewJobHandler()
	if err := registerDemoHandlers(handlers); err != nil {
		return err
	}

	c, err := app.NewContainer(ctx, cfg,
		app.WithLogger(logger),
		app.WithJobHandler(handlers),
		app.WithRoutes(demoRoutes),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	jobTypes := sync.Map{}
	unsubscribe := c.Queue.SubscribeToJobStatus(func(jobID string, rec types.StatusRecord) {
		jobType := "?"
		if rec.Job != nil {
			jobType = rec.Job.Type
			jobTypes.Store(jobID, jobType)
		} else if v, ok := jobTypes.Load(jobID); ok {
			jobType = v.(string)
		}
		line := fmt.Sprintf("  %-16s %s %s", jobType, dimStyle.Render(shortID(jobID)), statusStyles[rec.Status].Render(rec.Status.String()))
		switch {
		case rec.Err != nil:
			line += " " + dimStyle.Render(rec.Err.Error())
		case rec.Result != nil:
			if _, renderable := rec.Result.(types.Renderable); !renderable {
				line += " " + dimStyle.Render(fmt.Sprint(rec.Result))
			}
		}
		p.printf("%s\n", line)
	})
	defer unsubscribe()

	c.Queue.SetRenderCallback(func(artifact types.Renderable, jobID string) {
		var sb strings.Builder
		if err := artifact.Render(&sb); err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("render artifact")
			return
		}
		p.printf("  %s\n", statusStyles[types.StatusCompleted].Render(sb.String()))
	})

	p.printf("%s\n", headerStyle.Render("gomq demo"))

	p.step("broadcasts before the consumer is ready are buffered")
	c.SuspendIntake()
	c.Dispatch(bridge.Detail{Type: "cart.add", Payload: map[string]any{"sku": "tea"}, Requirements: []string{"user:ready"}})
	c.Dispatch(bridge.Detail{Type: "analytics.track", Payload: map[string]any{"event": "page_view"}})
	p.printf("  buffered: %d\n", c.Bridge.Snapshot().BufferLength)

	p.step("consumer ready: buffer flushes in order, cart.add waits for user:ready")
	c.ResumeIntake()
	if err := waitSettled(ctx, c); err != nil {
		return err
	}

	p.step("debounce: two searches 100ms apart with the same dedupe key, only the last runs")
	c.Dispatch(bridge.Detail{Type: "search.perform", Payload: map[string]any{"q": "a"}, DedupeKey: "search", Delay: 300 * time.Millisecond})
	if err := sleep(ctx, 100*time.Millisecond); err != nil {
		return err
	}
	c.Dispatch(bridge.Detail{Type: "search.perform", Payload: map[string]any{"q": "ab"}, DedupeKey: "search", Delay: 300 * time.Millisecond})
	if err := waitSettled(ctx, c); err != nil {
		return err
	}

	p.step("error isolation: a failing job does not stop the next one")
	c.Dispatch(bridge.Detail{Type: "cart.add", Payload: map[string]any{"sku": "sold-out"}})
	c.Dispatch(bridge.Detail{Type: "analytics.track", Payload: map[string]any{"event": "checkout"}})
	if err := waitSettled(ctx, c); err != nil {
		return err
	}

	p.step("user:ready set: the gated cart.add runs")
	c.Flags.Set("user:ready", true)
	if err := waitSettled(ctx, c); err != nil {
		return err
	}

	ds := c.Queue.DebugState()
	p.printf("\n%s\n", dimStyle.Render(fmt.Sprintf("pending=%d tracked=%d dedupe-keys=%d", len(ds.Queue), ds.TrackedStatusCount, ds.CompletedJobsCount)))
	return nil
}

// waitSettled blocks until no pending job is eligible or waiting on a delay
// and no drain is running.
func waitSettled(ctx context.Context, c *app.Container) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if settled(c.Queue.DebugState()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("demo did not settle: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func settled(ds types.DebugState) bool {
	if ds.IsProcessing {
		return false
	}
	for _, job := range ds.Queue {
		if job.RequirementsMet {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

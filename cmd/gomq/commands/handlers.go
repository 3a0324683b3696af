package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RezaEskandarii/gomq/types"
	"github.com/RezaEskandarii/gomq/types/config"
)

var errOutOfStock = errors.New("out of stock")

// demoRoutes maps the demo job types to their handler names.
var demoRoutes = map[string]string{
	"cart.add":        "cartAdd",
	"search.perform":  "searchPerform",
	"analytics.track": "analyticsTrack",
}

// toast is a renderable result shown to the user after a cart change.
type toast struct {
	message string
}

func (t toast) Render(w io.Writer) error {
	_, err := fmt.Fprintf(w, "[toast] %s", t.message)
	return err
}

// registerDemoHandlers registers the demo handlers. searchPerform and
// analyticsTrack are lazy so they are only built when a job needs them.
func registerDemoHandlers(h *config.JobHandler) error {
	if err := h.Register("cartAdd", cartAdd); err != nil {
		return err
	}
	if err := h.RegisterLazy("searchPerform", func() (config.HandlerFunc, error) {
		return searchPerform, nil
	}); err != nil {
		return err
	}
	return h.RegisterLazy("analyticsTrack", func() (config.HandlerFunc, error) {
		return analyticsTrack, nil
	})
}

func cartAdd(_ context.Context, job types.Job) (any, error) {
	sku := payloadString(job.Payload, "sku")
	if strings.EqualFold(sku, "sold-out") {
		return nil, fmt.Errorf("add %s: %w", sku, errOutOfStock)
	}
	return toast{message: fmt.Sprintf("added %s to cart", sku)}, nil
}

func searchPerform(ctx context.Context, job types.Job) (any, error) {
	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	q := payloadString(job.Payload, "q")
	return fmt.Sprintf("3 results for %q", q), nil
}

func analyticsTrack(_ context.Context, job types.Job) (any, error) {
	return map[string]any{"event": payloadString(job.Payload, "event"), "tracked": true}, nil
}

func payloadString(payload any, key string) string {
	switch p := payload.(type) {
	case map[string]any:
		if v, ok := p[key].(string); ok {
			return v
		}
	case map[string]string:
		return p[key]
	}
	return ""
}

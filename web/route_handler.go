package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/RezaEskandarii/gomq/bridge"
	"github.com/RezaEskandarii/gomq/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// QueueInspector is the read side of a job queue.
type QueueInspector interface {
	DebugState() types.DebugState
	JobStatus(jobID string) (types.StatusRecord, bool)
}

// BufferInspector exposes broadcasts waiting for the intake callback.
type BufferInspector interface {
	Snapshot() bridge.BufferState
}

// FlagInspector exposes the requirement flags.
type FlagInspector interface {
	Snapshot() map[string]bool
}

// HttpRouteHandler serves read-only JSON views of a running queue.
type HttpRouteHandler struct {
	queue  QueueInspector
	buffer BufferInspector
	flags  FlagInspector
	auth   *Credentials
	logger zerolog.Logger
}

type Option func(*HttpRouteHandler)

// WithAuth protects every route except /healthz with HTTP basic auth.
func WithAuth(creds Credentials) Option {
	return func(h *HttpRouteHandler) {
		if creds.User != "" && creds.PasswordHash != "" {
			h.auth = &creds
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(h *HttpRouteHandler) {
		h.logger = logger
	}
}

func NewRouteHandler(queue QueueInspector, buffer BufferInspector, flags FlagInspector, opts ...Option) *HttpRouteHandler {
	h := &HttpRouteHandler{
		queue:  queue,
		buffer: buffer,
		flags:  flags,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the chi router.
func (h *HttpRouteHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)

	r.Route("/debug", func(r chi.Router) {
		if h.auth != nil {
			r.Use(basicAuth(*h.auth))
		}
		r.Get("/queue", h.handleQueue)
		r.Get("/bridge", h.handleBridge)
		r.Get("/flags", h.handleFlags)
		r.Get("/jobs/{id}", h.handleJob)
	})
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (h *HttpRouteHandler) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		printBanner(addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		h.logger.Info().Str("addr", addr).Msg("inspection endpoint stopped")
		return nil
	}
}

func (h *HttpRouteHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HttpRouteHandler) handleQueue(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.queue.DebugState())
}

func (h *HttpRouteHandler) handleBridge(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.buffer.Snapshot())
}

func (h *HttpRouteHandler) handleFlags(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.flags.Snapshot())
}

func (h *HttpRouteHandler) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := h.queue.JobStatus(id)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, newJobStatusResponse(id, rec))
}

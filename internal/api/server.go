// Package api exposes the filter service over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/filtersense/filtersense/internal/eventbus"
	"github.com/filtersense/filtersense/internal/service"
	"github.com/filtersense/filtersense/internal/store"
)

const (
	maxBodyBytes    = 1 << 20 // 1MB
	shutdownTimeout = 5 * time.Second
)

// Server is the JSON API server.
type Server struct {
	svc      *service.Service
	store    store.Store
	eventBus *eventbus.EventBus
	logger   *slog.Logger
	addr     string
}

// NewServer creates an API server. The store and event bus may be nil,
// in which case the history and SSE endpoints respond 404.
func NewServer(addr string, svc *service.Service, s store.Store, eb *eventbus.EventBus, logger *slog.Logger) *Server {
	return &Server{
		svc:      svc,
		store:    s,
		eventBus: eb,
		logger:   logger,
		addr:     addr,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Inspection
	mux.HandleFunc("POST /api/check", s.handleCheck)
	mux.HandleFunc("POST /api/classify", s.handleClassify)
	mux.HandleFunc("POST /api/ensure", s.handleEnsure)
	mux.HandleFunc("POST /api/redact", s.handleRedact)

	// Rule registry
	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("PUT /api/rules/{name}", s.handlePutRule)
	mux.HandleFunc("DELETE /api/rules/{name}", s.handleDeleteRule)

	// Check log
	mux.HandleFunc("GET /api/checks", s.handleListChecks)
	mux.HandleFunc("GET /api/checks/{id}", s.handleGetCheck)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	// SSE
	mux.HandleFunc("GET /events", s.handleSSE)

	return mux
}

// Start listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. It returns only after
// shutdown has finished, so no handler is still running once it does.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx, which stops SSE streams.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutCtx); err != nil {
			s.logger.Warn("api shutdown", "error", err)
			server.Close()
		}
	}()

	s.logger.Info("api starting", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}

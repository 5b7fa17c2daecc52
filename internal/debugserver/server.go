// Package debugserver exposes read-only engine statistics over HTTP for
// observing a live engine. It has no scheduling control: the endpoint only
// reads the manager's Stats snapshot.
package debugserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/frameloop/pkg/sched"
)

// StatsSource is anything that can report engine statistics.
type StatsSource interface {
	Stats() sched.Stats
}

// Server serves the debug API.
type Server struct {
	http      *http.Server
	logger    *slog.Logger
	source    StatsSource
	startTime time.Time
}

// New builds a debug server listening on addr.
func New(addr string, source StatsSource, logger *slog.Logger) *Server {
	s := &Server{
		logger:    logger.With("component", "debugserver"),
		source:    source,
		startTime: time.Now().UTC(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/api/v1/health", s.handleHealth)

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving. Blocks until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("debug server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// envelope is the standard response wrapper.
type envelope struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(envelope{
		Status:    http.StatusText(code),
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, s.source.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]any{
		"uptime": time.Since(s.startTime).String(),
	})
}

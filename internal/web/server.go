// Package web provides the status HTTP server used in daemon mode.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/txtingest/internal/core"
	"github.com/JonMunkholm/txtingest/internal/pipeline"
	mw "github.com/JonMunkholm/txtingest/internal/web/middleware"
)

// Runs is the part of pipeline.Runner the server needs.
type Runs interface {
	Start(ctx context.Context, trigger string) error
	Running() (bool, string)
	Last() *pipeline.Report
}

// Options configures a Server.
type Options struct {
	Runs    Runs
	Layouts *core.LayoutRegistry

	// NextRun reports the next scheduled run. Optional.
	NextRun func() time.Time

	// APIKeys guard POST /runs when non-empty.
	APIKeys []string

	// RunContext is the context runs triggered over HTTP execute under.
	// Request contexts end with the response, so they cannot be used.
	RunContext context.Context

	Logger *slog.Logger
}

// Server is the status HTTP server.
type Server struct {
	opts   Options
	logger *slog.Logger
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(opts Options) *Server {
	if opts.RunContext == nil {
		opts.RunContext = context.Background()
	}
	s := &Server{
		opts:   opts,
		logger: opts.Logger,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.Logger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/layouts", s.handleLayouts)

	s.router.Group(func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.opts.APIKeys, s.logger))
		r.Post("/runs", s.handleTriggerRun)
	})
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("status server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Running bool             `json:"running"`
	Trigger string           `json:"trigger,omitempty"`
	NextRun *time.Time       `json:"next_run,omitempty"`
	Last    *pipeline.Report `json:"last_run"`
}

// LayoutInfo is one entry of GET /layouts.
type LayoutInfo struct {
	ID      string   `json:"id"`
	Pattern string   `json:"pattern"`
	Fields  []string `json:"fields"`
	Summary string   `json:"summary"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	running, trigger := s.opts.Runs.Running()
	resp := StatusResponse{
		Running: running,
		Trigger: trigger,
		Last:    s.opts.Runs.Last(),
	}
	if s.opts.NextRun != nil {
		if next := s.opts.NextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLayouts(w http.ResponseWriter, r *http.Request) {
	layouts := s.opts.Layouts.All()
	out := make([]LayoutInfo, 0, len(layouts))
	for _, l := range layouts {
		out = append(out, LayoutInfo{
			ID:      l.ID,
			Pattern: l.Pattern,
			Fields:  l.Fields,
			Summary: core.Describe(l),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	err := s.opts.Runs.Start(s.opts.RunContext, "http")
	if errors.Is(err, pipeline.ErrRunInProgress) {
		s.respondError(w, r, err, http.StatusConflict)
		return
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, nothing left to report to the client.
	_ = json.NewEncoder(w).Encode(v)
}

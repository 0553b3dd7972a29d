// Package panel serves the admin HTTP surface: cache statistics, cache
// maintenance, scheduled job status, a small dashboard and view previews.
package panel

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/breeze/internal/engine"
	"github.com/rendis/breeze/internal/scheduler"
)

//go:embed templates/dashboard.breeze
var dashboardTemplate string

// Deps holds the dependencies for the panel server.
type Deps struct {
	Engine *engine.Engine
	// Scheduler is optional; without it /admin/jobs reports an empty list.
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger
	// Preview exposes GET /views/{name...}. Off unless set.
	Preview bool
}

// Server serves the admin routes.
type Server struct {
	deps Deps
}

// NewServer creates a Server. A nil logger writes info and above to stderr.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Pages.
	mux.HandleFunc("GET /admin", s.handleDashboard)

	// Cache.
	mux.HandleFunc("GET /admin/blade/cache", s.handleCacheStats)
	mux.HandleFunc("POST /admin/blade/clear", s.handleCacheClear)
	mux.HandleFunc("POST /admin/blade/sweep", s.handleCacheSweep)
	mux.HandleFunc("POST /admin/blade/warm", s.handleCacheWarm)

	// Scheduler.
	mux.HandleFunc("GET /admin/jobs", s.handleJobs)
	mux.HandleFunc("POST /admin/jobs/{name}/run", s.handleRunJob)

	if s.deps.Preview {
		mux.HandleFunc("GET /views/{name...}", s.handleView)
	}

	return logRequests(s.deps.Logger, mux)
}

// renderPage renders an inline breeze template as an HTML response.
func (s *Server) renderPage(ctx context.Context, w http.ResponseWriter, tmpl string, data map[string]any) {
	out := s.deps.Engine.RenderString(ctx, tmpl, data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(out)); err != nil {
		s.deps.Logger.Debug("write page", slog.String("error", err.Error()))
	}
}

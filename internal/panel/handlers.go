package panel

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rendis/breeze/internal/logging"
	"github.com/rendis/breeze/internal/scheduler"
	"github.com/rendis/breeze/pkg/schema"
)

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// --- Pages ---

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	e := s.deps.Engine
	data := map[string]any{
		"views":    e.Views().Dir(),
		"renders":  e.Renders(),
		"cache":    toData(e.Stats()),
		"native":   e.NativeEnabled(),
		"dialects": toData(e.Dialects()),
		"jobs":     toData(s.jobs()),
	}
	s.renderPage(r.Context(), w, dashboardTemplate, data)
}

// handleView renders a view with the query string as its context. Repeated
// keys become arrays.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx := logging.EnsureRenderID(r.Context())

	data := make(map[string]any)
	for k, vals := range r.URL.Query() {
		if len(vals) == 1 {
			data[k] = vals[0]
			continue
		}
		items := make([]any, len(vals))
		for i, v := range vals {
			items[i] = v
		}
		data[k] = items
	}

	out, err := s.deps.Engine.Render(ctx, name, data)
	if err != nil {
		if schema.IsNotFound(err) {
			http.Error(w, s.deps.Engine.Views().NotFoundMessage(name), http.StatusNotFound)
			return
		}
		logging.LogWith(ctx, s.deps.Logger).Warn("view render failed", slog.String("view", name), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

// --- Cache ---

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	disk := queryBool(r, "disk", false)
	if err := s.deps.Engine.Clear(r.Context(), disk); err != nil {
		s.deps.Logger.Error("cache clear failed", slog.Bool("disk", disk), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deps.Logger.Info("cache cleared", slog.Bool("disk", disk))
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "Blade cache cleared"})
}

func (s *Server) handleCacheSweep(w http.ResponseWriter, _ *http.Request) {
	removed := s.deps.Engine.Sweep()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "removed": removed})
}

func (s *Server) handleCacheWarm(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Engine.Warm(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Scheduler ---

func (s *Server) jobs() []scheduler.JobStatus {
	if s.deps.Scheduler == nil {
		return []scheduler.JobStatus{}
	}
	return s.deps.Scheduler.Jobs()
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs())
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusNotFound, "no scheduler attached")
		return
	}
	name := r.PathValue("name")
	if err := s.deps.Scheduler.RunNow(r.Context(), name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scheduler.ErrUnknownJob) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "job " + name + " ran"})
}

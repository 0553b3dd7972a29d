package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/breeze/internal/logging"
	"github.com/rendis/breeze/internal/scheduler"
	"github.com/rendis/breeze/pkg/schema"
)

type renderResult struct {
	Output   string `json:"output"`
	RenderID string `json:"render_id"`
	Name     string `json:"name,omitempty"`
}

// handleRender renders a named view or an inline template.
func (s *BreezeServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	tmpl := req.GetString("template", "")
	if name == "" && tmpl == "" {
		return mcp.NewToolResultError("one of name or template is required"), nil
	}
	data := mcp.ParseStringMap(req, "data", nil)

	ctx = logging.EnsureRenderID(ctx)
	res := renderResult{RenderID: logging.RenderID(ctx), Name: name}

	if name == "" {
		res.Output = s.engine.RenderString(ctx, tmpl, data)
		return marshalResult(res)
	}

	out, err := s.engine.Render(ctx, name, data)
	if err != nil {
		if schema.IsNotFound(err) {
			return mcp.NewToolResultError(s.engine.Views().NotFoundMessage(name)), nil
		}
		logging.LogWith(ctx, s.logger).Warn("render failed", slog.String("view", name), slog.String("error", err.Error()))
		return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
	}
	res.Output = out
	return marshalResult(res)
}

// handleCacheStats returns the cache counters.
func (s *BreezeServer) handleCacheStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{
		"cache":   s.engine.Stats(),
		"renders": s.engine.Renders(),
	})
}

// handleCacheClear empties the cache, optionally including the durable tier.
func (s *BreezeServer) handleCacheClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	disk := req.GetBool("disk", false)
	if err := s.engine.Clear(ctx, disk); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cache clear failed: %v", err)), nil
	}
	s.logger.Info("cache cleared", slog.Bool("disk", disk))
	return marshalResult(map[string]any{
		"status":  "ok",
		"message": "Blade cache cleared",
		"disk":    disk,
	})
}

// handleWarm precompiles every view.
func (s *BreezeServer) handleWarm(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.engine.Warm(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("warm failed after %d files: %v", report.Files, err)), nil
	}
	return marshalResult(report)
}

// handleJobs lists maintenance jobs.
func (s *BreezeServer) handleJobs(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs := []scheduler.JobStatus{}
	if s.scheduler != nil {
		jobs = s.scheduler.Jobs()
	}
	return marshalResult(map[string]any{"jobs": jobs})
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

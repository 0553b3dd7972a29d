package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/breeze/internal/engine"
	"github.com/rendis/breeze/internal/scheduler"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupServer(t *testing.T) (*BreezeServer, *engine.Engine) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mail"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mail", "welcome.breeze"),
		[]byte("Welcome, {{ user.name | upper }}!@if(admin) (admin)@endif"), 0o644))

	e, err := engine.New(engine.Config{ViewsPath: dir}, engine.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	sched := scheduler.NewScheduler(quietLogger(), 0)
	require.NoError(t, sched.Register("cache-sweep", "@every 1m", func(context.Context) error { return nil }))

	return NewServer(ServerDeps{Engine: e, Scheduler: sched, Logger: quietLogger()}), e
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// --- Tests ---

func TestRenderTool_View(t *testing.T) {
	s, e := setupServer(t)

	result, err := s.handleRender(context.Background(), buildRequest("breeze.render", map[string]any{
		"name": "mail/welcome",
		"data": map[string]any{"user": map[string]any{"name": "ann"}, "admin": true},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res renderResult
	unmarshalResult(t, result, &res)
	assert.Equal(t, "Welcome, ANN! (admin)", res.Output)
	assert.Equal(t, "mail/welcome", res.Name)
	assert.NotEmpty(t, res.RenderID)
	assert.Equal(t, 1, e.Stats().Entries)
}

func TestRenderTool_Inline(t *testing.T) {
	s, _ := setupServer(t)

	result, err := s.handleRender(context.Background(), buildRequest("breeze.render", map[string]any{
		"template": "@foreach(xs as x)[{{ x }}]@endforeach",
		"data":     map[string]any{"xs": []any{1, "b"}},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res renderResult
	unmarshalResult(t, result, &res)
	assert.Equal(t, "[1][b]", res.Output)
	assert.Empty(t, res.Name)
}

func TestRenderTool_InlineWithoutData(t *testing.T) {
	s, _ := setupServer(t)

	result, err := s.handleRender(context.Background(), buildRequest("breeze.render", map[string]any{
		"template": "{{ missing | default(\"none\") }}",
	}))
	require.NoError(t, err)

	var res renderResult
	unmarshalResult(t, result, &res)
	assert.Equal(t, "none", res.Output)
}

func TestRenderTool_MissingArgs(t *testing.T) {
	s, _ := setupServer(t)

	result, err := s.handleRender(context.Background(), buildRequest("breeze.render", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "one of name or template is required")
}

func TestRenderTool_NotFound(t *testing.T) {
	s, e := setupServer(t)

	result, err := s.handleRender(context.Background(), buildRequest("breeze.render", map[string]any{"name": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "View [nope] not found in "+e.Views().Dir(), extractText(t, result))
}

func TestCacheStatsTool(t *testing.T) {
	s, _ := setupServer(t)
	ctx := context.Background()

	_, err := s.handleRender(ctx, buildRequest("breeze.render", map[string]any{"name": "mail/welcome"}))
	require.NoError(t, err)
	_, err = s.handleRender(ctx, buildRequest("breeze.render", map[string]any{"name": "mail/welcome"}))
	require.NoError(t, err)

	result, err := s.handleCacheStats(ctx, buildRequest("breeze.cache_stats", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Cache struct {
			Hits    uint64 `json:"hits"`
			Misses  uint64 `json:"misses"`
			Entries int    `json:"entries"`
		} `json:"cache"`
		Renders uint64 `json:"renders"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, uint64(1), out.Cache.Hits)
	assert.Equal(t, uint64(1), out.Cache.Misses)
	assert.Equal(t, 1, out.Cache.Entries)
	assert.Equal(t, uint64(2), out.Renders)
}

func TestCacheClearTool(t *testing.T) {
	s, e := setupServer(t)
	ctx := context.Background()

	_, err := s.handleRender(ctx, buildRequest("breeze.render", map[string]any{"name": "mail/welcome"}))
	require.NoError(t, err)
	require.Equal(t, 1, e.Stats().Entries)

	result, err := s.handleCacheClear(ctx, buildRequest("breeze.cache_clear", map[string]any{"disk": true}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "Blade cache cleared", out["message"])
	assert.Equal(t, true, out["disk"])
	assert.Zero(t, e.Stats().Entries)
}

func TestWarmTool(t *testing.T) {
	s, e := setupServer(t)

	result, err := s.handleWarm(context.Background(), buildRequest("breeze.warm", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var report engine.WarmReport
	unmarshalResult(t, result, &report)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, e.Stats().Entries)
}

func TestJobsTool(t *testing.T) {
	s, _ := setupServer(t)

	result, err := s.handleJobs(context.Background(), buildRequest("breeze.jobs", nil))
	require.NoError(t, err)

	var out struct {
		Jobs []scheduler.JobStatus `json:"jobs"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Jobs, 1)
	assert.Equal(t, "cache-sweep", out.Jobs[0].Name)

	bare := NewServer(ServerDeps{Engine: s.engine, Logger: quietLogger()})
	result, err = bare.handleJobs(context.Background(), buildRequest("breeze.jobs", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jobs":[]}`, extractText(t, result))
}

// --- Helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

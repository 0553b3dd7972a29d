package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/breeze/internal/engine"
	"github.com/rendis/breeze/internal/scheduler"
)

// ServerDeps holds the dependencies for creating a BreezeServer.
type ServerDeps struct {
	Engine *engine.Engine
	// Scheduler is optional; breeze.jobs reports an empty list without it.
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger
	Version   string
}

// BreezeServer wraps an MCP server with template tool handlers.
type BreezeServer struct {
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a BreezeServer with every tool registered.
func NewServer(deps ServerDeps) *BreezeServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &BreezeServer{
		engine:    deps.Engine,
		scheduler: deps.Scheduler,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"breeze",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Breeze renders Blade-style templates. Use breeze.render with a view name or an inline template plus a data object, breeze.cache_stats to inspect the template cache, breeze.cache_clear to drop it, breeze.warm to precompile every view, and breeze.jobs to list maintenance jobs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *BreezeServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *BreezeServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *BreezeServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: cacheStatsTool(), Handler: s.handleCacheStats},
		{Tool: cacheClearTool(), Handler: s.handleCacheClear},
		{Tool: warmTool(), Handler: s.handleWarm},
		{Tool: jobsTool(), Handler: s.handleJobs},
	}
}

// --- Tool definitions ---

func renderTool() mcp.Tool {
	return mcp.NewTool("breeze.render",
		mcp.WithDescription("Render a view by name or an inline template"),
		mcp.WithString("name", mcp.Description("View name relative to the views directory, without extension")),
		mcp.WithString("template", mcp.Description("Inline template source; used when name is empty")),
		mcp.WithObject("data", mcp.Description("Root context for the render")),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func cacheStatsTool() mcp.Tool {
	return mcp.NewTool("breeze.cache_stats",
		mcp.WithDescription("Report template cache statistics"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func cacheClearTool() mcp.Tool {
	return mcp.NewTool("breeze.cache_clear",
		mcp.WithDescription("Clear the template cache"),
		mcp.WithBoolean("disk", mcp.Description("Also delete durable compiled artifacts")),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func warmTool() mcp.Tool {
	return mcp.NewTool("breeze.warm",
		mcp.WithDescription("Precompile every view into the cache"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func jobsTool() mcp.Tool {
	return mcp.NewTool("breeze.jobs",
		mcp.WithDescription("List scheduled maintenance jobs"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

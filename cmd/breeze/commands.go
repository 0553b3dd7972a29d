package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rendis/breeze/internal/logging"
	"github.com/rendis/breeze/pkg/mcp"
	"github.com/rendis/breeze/pkg/schema"
)

// readData decodes a JSON object from path, or stdin when path is "-".
func readData(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return data, nil
}

func runRender(args []string) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	dataPath := fs.String("data", "", "JSON object used as the render context (- for stdin)")
	inline := fs.Bool("inline", false, "treat the argument as template text instead of a view name")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 1 {
		fatal("render needs exactly one view name or template")
	}

	data, err := readData(*dataPath)
	if err != nil {
		fatal("%v", err)
	}

	cfg, _, logger := loadConfig()
	ctx := logging.EnsureRenderID(context.Background())
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	if *inline {
		fmt.Print(a.engine.RenderString(ctx, fs.Arg(0), data))
		return
	}
	out, err := a.engine.Render(ctx, fs.Arg(0), data)
	if err != nil {
		if schema.IsNotFound(err) {
			fatal("%s", a.engine.Views().NotFoundMessage(fs.Arg(0)))
		}
		fatal("%v", err)
	}
	fmt.Print(out)
}

func runWarm(args []string) {
	fs := flag.NewFlagSet("warm", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	cfg, _, logger := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	report, err := a.engine.Warm(ctx)
	fmt.Printf("warmed %d files in %s (%d failed)\n", report.Files, report.Duration.Round(time.Millisecond), report.Failed)
	if err != nil {
		a.Close()
		fatal("%v", err)
	}
}

func runMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	cfg, _, logger := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	srv := mcp.NewServer(mcp.ServerDeps{Engine: a.engine, Logger: logger, Version: version})
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		a.Close()
		fatal("mcp: %v", err)
	}
}

// runStats prints the cache statistics of a running server, plus the SQL
// artifact totals when a database is configured.
func runStats(args []string) {
	cfg, _, logger := loadConfig()

	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	addr := fs.String("addr", cfg.ListenAddr, "address of the running server")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	out := map[string]any{}

	base := *addr
	if strings.HasPrefix(base, ":") {
		base = "localhost" + base
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + base + "/admin/blade/cache")
	if err != nil {
		out["server_error"] = err.Error()
	} else {
		var stats map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			out["server_error"] = err.Error()
		} else {
			out["cache"] = stats
		}
		resp.Body.Close()
	}

	if cfg.DBPath != "" {
		ctx := context.Background()
		s, _, err := openArtifactStore(ctx, cfg, logger)
		if err != nil {
			fatal("%v", err)
		}
		n, size, err := s.Count(ctx)
		s.Close()
		if err != nil {
			fatal("%v", err)
		}
		out["artifacts"] = map[string]any{"count": n, "bytes": size}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
	if _, ok := out["server_error"]; ok {
		os.Exit(1)
	}
}

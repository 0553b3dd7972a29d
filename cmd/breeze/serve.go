package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rendis/breeze/internal/config"
	"github.com/rendis/breeze/internal/logging"
	"github.com/rendis/breeze/internal/panel"
	"github.com/rendis/breeze/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func pidPath() string {
	return filepath.Join(config.Dir(), "breeze.pid")
}

// signalRunningServer sends SIGHUP to a running breeze server (via pidfile).
func signalRunningServer() bool {
	data, err := os.ReadFile(pidPath())
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return false
	}
	fmt.Printf("Signaled running server (PID %d) to reload configuration\n", pid)
	return true
}

func writePID() error {
	if err := os.MkdirAll(config.Dir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// registerJobs wires the maintenance jobs: a TTL sweep of the memory tier
// and, with a SQL store, pruning of artifacts nobody has read recently.
func registerJobs(s *scheduler.Scheduler, a *app, cfg config.Config, logger *slog.Logger) error {
	if err := s.Register("cache-sweep", cfg.SweepSchedule, func(context.Context) error {
		if n := a.engine.Sweep(); n > 0 {
			logger.Debug("swept expired templates", slog.Int("removed", n))
		}
		return nil
	}); err != nil {
		return err
	}

	if a.sql == nil {
		return nil
	}
	maxAge := cfg.MaxAge()
	return s.Register("store-prune", cfg.PruneSchedule, func(ctx context.Context) error {
		n, err := a.sql.Prune(ctx, time.Now().Add(-maxAge))
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		logger.Info("pruned artifacts", slog.Int64("removed", n), slog.Duration("max_age", maxAge))
		return a.sql.Vacuum(ctx)
	})
}

func panelHandler(a *app, s *scheduler.Scheduler, cfg config.Config, logger *slog.Logger) http.Handler {
	return panel.NewServer(panel.Deps{
		Engine:    a.engine,
		Scheduler: s,
		Logger:    logger,
		Preview:   cfg.PanelPreview,
	}).Handler()
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listenAddr := fs.String("listen-addr", "", "TCP listen address (overrides settings)")
	noWarm := fs.Bool("no-warm", false, "skip precompiling views at startup")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	cfg, level, logger := loadConfig()
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	sched := scheduler.NewScheduler(logger, 0)
	if err := registerJobs(sched, a, cfg, logger); err != nil {
		a.Close()
		fatal("register jobs: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		a.Close()
		fatal("start scheduler: %v", err)
	}
	defer sched.Stop()

	if !*noWarm {
		go func() {
			if _, err := a.engine.Warm(ctx); err != nil {
				logger.Warn("warm-up incomplete", slog.String("error", err.Error()))
			}
		}()
	}

	swapper := newHandlerSwapper(panelHandler(a, sched, cfg, logger))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := writePID(); err != nil {
		logger.Warn("pidfile not written", slog.String("error", err.Error()))
	} else {
		defer os.Remove(pidPath())
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("breeze listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("views", cfg.ViewsPath),
			slog.String("version", version),
		)
		errCh <- srv.ListenAndServe()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			err := srv.Shutdown(shutdownCtx)
			cancel()
			if err != nil {
				logger.Error("shutdown", slog.String("error", err.Error()))
			}
			return

		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server failed", slog.String("error", err.Error()))
				sched.Stop()
				a.Close()
				os.Exit(1)
			}
			return

		case <-hup:
			cfg = reload(cfg, level, logger, a, sched, swapper)
		}
	}
}

// reload re-reads settings and applies what can change live. It returns the
// configuration now in effect.
func reload(current config.Config, level *slog.LevelVar, logger *slog.Logger, a *app, sched *scheduler.Scheduler, swapper *handlerSwapper) config.Config {
	updated, err := config.Load()
	if err != nil {
		logger.Error("reload failed", slog.String("error", err.Error()))
		return current
	}
	d := config.Compare(current, updated)
	if !d.Changed() {
		logger.Info("reload: no changes")
		return current
	}

	if d.LogLevelChanged {
		level.Set(logging.ParseLevel(updated.LogLevel))
		current.LogLevel = updated.LogLevel
	}
	if d.CacheBoundsChanged {
		a.engine.SetCacheBounds(cacheConfig(updated))
		current.CacheMaxItems = updated.CacheMaxItems
		current.CacheTTL = updated.CacheTTL
	}
	if d.PreviewChanged {
		current.PanelPreview = updated.PanelPreview
		swapper.Swap(panelHandler(a, sched, current, logger))
	}
	if len(d.RestartNeeded) > 0 {
		logger.Warn("reload: restart needed to apply", slog.Any("fields", d.RestartNeeded))
	}
	logger.Info("configuration reloaded",
		slog.Bool("cache_bounds", d.CacheBoundsChanged),
		slog.Bool("log_level", d.LogLevelChanged),
		slog.Bool("preview", d.PreviewChanged),
	)
	return current
}

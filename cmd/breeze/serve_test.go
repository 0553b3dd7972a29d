package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/breeze/internal/config"
	"github.com/rendis/breeze/internal/scheduler"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ViewsPath = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ViewsPath, "home.breeze"), []byte("hi {{ who }}"), 0o644))
	return cfg
}

func TestHandlerSwapper(t *testing.T) {
	a := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("a")) })
	b := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("b")) })
	s := newHandlerSwapper(a)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "a", rec.Body.String())

	s.Swap(b)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "b", rec.Body.String())
}

func TestReadData(t *testing.T) {
	data, err := readData("")
	require.NoError(t, err)
	assert.Nil(t, data)

	p := filepath.Join(t.TempDir(), "ctx.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"n": 3, "tags": ["a"]}`), 0o644))
	data, err = readData(p)
	require.NoError(t, err)
	assert.Contains(t, data, "n")
	assert.Equal(t, []any{"a"}, data["tags"])

	require.NoError(t, os.WriteFile(p, []byte(`[1]`), 0o644))
	_, err = readData(p)
	assert.Error(t, err)
}

func TestNewApp_DirStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.DiskCacheDir = filepath.Join(t.TempDir(), "artifacts")

	a, err := newApp(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.sql)
	require.NotNil(t, a.breaker)
	assert.True(t, a.engine.Stats().DiskEnabled)

	out, err := a.engine.Render(context.Background(), "home", map[string]any{"who": "there"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestNewApp_NoStore(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), quietLogger())
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.breaker)
	assert.False(t, a.engine.Stats().DiskEnabled)
}

func TestRegisterJobs(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), quietLogger())
	require.NoError(t, err)
	defer a.Close()

	s := scheduler.NewScheduler(quietLogger(), 0)
	require.NoError(t, registerJobs(s, a, config.Default(), quietLogger()))

	jobs := s.Jobs()
	require.Len(t, jobs, 1) // no SQL store, no prune job
	assert.Equal(t, "cache-sweep", jobs[0].Name)
	require.NoError(t, s.RunNow(context.Background(), "cache-sweep"))
}

func TestReload(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BREEZE_HOME", home)
	for _, k := range []string{"CACHE_MAX_ITEMS", "CACHE_TTL", "BREEZE_LOG_LEVEL", "BREEZE_PANEL_PREVIEW", "BREEZE_LISTEN_ADDR", "BREEZE_VIEWS_PATH"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Chdir(t.TempDir())

	cfg := testConfig(t)
	a, err := newApp(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	level := new(slog.LevelVar)
	sched := scheduler.NewScheduler(quietLogger(), 0)
	swapper := newHandlerSwapper(panelHandler(a, sched, cfg, quietLogger()))

	rec := httptest.NewRecorder()
	swapper.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/views/home", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	updated := cfg
	updated.CacheMaxItems = 3
	updated.LogLevel = "debug"
	updated.PanelPreview = true
	updated.ListenAddr = ":9999"
	require.NoError(t, config.Save(config.SettingsPath(), updated))

	got := reload(cfg, level, quietLogger(), a, sched, swapper)
	assert.Equal(t, 3, got.CacheMaxItems)
	assert.Equal(t, "debug", got.LogLevel)
	assert.True(t, got.PanelPreview)
	assert.Equal(t, cfg.ListenAddr, got.ListenAddr) // needs a restart
	assert.Equal(t, slog.LevelDebug, level.Level())
	assert.Equal(t, 3, a.engine.Stats().MaxItems)

	rec = httptest.NewRecorder()
	swapper.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/views/home?who=you", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi you", rec.Body.String())
}

func TestSignalRunningServer_NoPidfile(t *testing.T) {
	t.Setenv("BREEZE_HOME", t.TempDir())
	assert.False(t, signalRunningServer())
}

func TestWritePID(t *testing.T) {
	t.Setenv("BREEZE_HOME", filepath.Join(t.TempDir(), "home"))
	require.NoError(t, writePID())
	data, err := os.ReadFile(pidPath())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

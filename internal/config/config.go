// Package config loads breeze settings.
//
// Priority: process env > .env file > settings.json > defaults. The .env
// file only fills variables that are not already set.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/natefinch/atomic"
)

// Config holds every tunable.
type Config struct {
	ViewsPath     string `json:"views_path"`
	CacheMaxItems int    `json:"cache_max_items"`
	// CacheTTL is in seconds; 0 disables expiry.
	CacheTTL      int    `json:"cache_ttl"`
	NativeEnabled bool   `json:"native_enabled"`
	DiskCacheDir  string `json:"disk_cache_dir"`
	DBPath        string `json:"db_path"`
	LogLevel      string `json:"log_level"`
	ListenAddr    string `json:"listen_addr"`
	// PanelPreview exposes GET /views/{name} on the admin server.
	PanelPreview  bool   `json:"panel_preview"`
	WarmPoolSize  int    `json:"warm_pool_size"`
	SweepSchedule string `json:"sweep_schedule"`
	PruneSchedule string `json:"prune_schedule"`
	// ArtifactMaxAge is in seconds; SQL artifacts unread for longer are pruned.
	ArtifactMaxAge int `json:"artifact_max_age"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ViewsPath:      filepath.Join("resources", "views"),
		CacheMaxItems:  256,
		CacheTTL:       3600,
		LogLevel:       "info",
		ListenAddr:     ":4200",
		WarmPoolSize:   4,
		SweepSchedule:  "@every 1m",
		PruneSchedule:  "@daily",
		ArtifactMaxAge: 7 * 24 * 3600,
	}
}

// TTL returns CacheTTL as a duration.
func (c Config) TTL() time.Duration { return time.Duration(c.CacheTTL) * time.Second }

// MaxAge returns ArtifactMaxAge as a duration.
func (c Config) MaxAge() time.Duration { return time.Duration(c.ArtifactMaxAge) * time.Second }

// Dir is the breeze home: $BREEZE_HOME, else ~/.breeze.
func Dir() string {
	if v := os.Getenv("BREEZE_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".breeze"
	}
	return filepath.Join(home, ".breeze")
}

// SettingsPath is the settings.json location inside Dir.
func SettingsPath() string {
	return filepath.Join(Dir(), "settings.json")
}

// Loader reads the layers from configurable locations.
type Loader struct {
	SettingsPath string
	EnvFile      string
}

// NewLoader uses SettingsPath() and ./.env.
func NewLoader() Loader {
	return Loader{SettingsPath: SettingsPath(), EnvFile: ".env"}
}

// Load applies every layer. A missing settings.json or .env is fine; a
// malformed one is an error.
func (l Loader) Load() (Config, error) {
	cfg := Default()

	if l.SettingsPath != "" {
		data, err := os.ReadFile(l.SettingsPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", l.SettingsPath, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return cfg, fmt.Errorf("read %s: %w", l.SettingsPath, err)
		}
	}

	if l.EnvFile != "" {
		if err := godotenv.Load(l.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", l.EnvFile, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Load is NewLoader().Load().
func Load() (Config, error) {
	return NewLoader().Load()
}

// applyEnv overrides cfg from the environment. Unparseable numbers keep
// the previous layer's value.
func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
				*dst = n
			}
		}
	}

	str("BREEZE_VIEWS_PATH", &cfg.ViewsPath)
	num("CACHE_MAX_ITEMS", &cfg.CacheMaxItems)
	num("CACHE_TTL", &cfg.CacheTTL)
	if v := os.Getenv("BREEZE_NATIVE"); v != "" {
		cfg.NativeEnabled = parseBool(v)
	}
	str("BREEZE_DISK_CACHE_DIR", &cfg.DiskCacheDir)
	str("BREEZE_DB_PATH", &cfg.DBPath)
	str("BREEZE_LOG_LEVEL", &cfg.LogLevel)
	str("BREEZE_LISTEN_ADDR", &cfg.ListenAddr)
	if v := os.Getenv("BREEZE_PANEL_PREVIEW"); v != "" {
		cfg.PanelPreview = parseBool(v)
	}
	num("BREEZE_WARM_POOL_SIZE", &cfg.WarmPoolSize)
	str("BREEZE_SWEEP_SCHEDULE", &cfg.SweepSchedule)
	str("BREEZE_PRUNE_SCHEDULE", &cfg.PruneSchedule)
	num("BREEZE_ARTIFACT_MAX_AGE", &cfg.ArtifactMaxAge)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Save writes cfg as indented JSON to path, replacing it atomically.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return atomic.WriteFile(path, bytes.NewReader(append(data, '\n')))
}

// Diff describes what changed between two configurations.
type Diff struct {
	CacheBoundsChanged bool
	LogLevelChanged    bool
	PreviewChanged     bool
	// RestartNeeded lists fields that only take effect on restart.
	RestartNeeded []string
}

// Changed reports whether anything differs.
func (d Diff) Changed() bool {
	return d.CacheBoundsChanged || d.LogLevelChanged || d.PreviewChanged || len(d.RestartNeeded) > 0
}

// Compare reports the differences from old to updated.
func Compare(old, updated Config) Diff {
	var d Diff
	d.CacheBoundsChanged = old.CacheMaxItems != updated.CacheMaxItems || old.CacheTTL != updated.CacheTTL
	d.LogLevelChanged = old.LogLevel != updated.LogLevel
	d.PreviewChanged = old.PanelPreview != updated.PanelPreview

	restart := []struct {
		name    string
		changed bool
	}{
		{"views_path", old.ViewsPath != updated.ViewsPath},
		{"native_enabled", old.NativeEnabled != updated.NativeEnabled},
		{"disk_cache_dir", old.DiskCacheDir != updated.DiskCacheDir},
		{"db_path", old.DBPath != updated.DBPath},
		{"listen_addr", old.ListenAddr != updated.ListenAddr},
		{"warm_pool_size", old.WarmPoolSize != updated.WarmPoolSize},
		{"sweep_schedule", old.SweepSchedule != updated.SweepSchedule},
		{"prune_schedule", old.PruneSchedule != updated.PruneSchedule},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartNeeded = append(d.RestartNeeded, r.name)
		}
	}
	return d
}

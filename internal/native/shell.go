package native

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/breeze/internal/isolation"
	"github.com/rendis/breeze/pkg/schema"
)

const (
	defaultShellTimeout   = 5 * time.Second
	defaultMaxOutputBytes = 1 << 20
)

// ShellConfig configures the sh dialect.
type ShellConfig struct {
	Isolator isolation.Isolator
	Limits   isolation.Limits
	// ScratchRoot holds one throwaway working directory per block run.
	// Empty means os.TempDir()/breeze-native.
	ScratchRoot string
	Shell       string
}

// ShellDialect runs bodies with /bin/sh -c. The render context is written to
// stdin as JSON and stdout becomes the block output, with one trailing
// newline removed. Each run gets a fresh scratch directory that is removed
// afterwards.
type ShellDialect struct {
	cfg ShellConfig
}

// NewShellDialect creates the sh dialect, filling unset config with defaults.
func NewShellDialect(cfg ShellConfig) *ShellDialect {
	if cfg.Isolator == nil {
		cfg.Isolator = isolation.Default()
	}
	if cfg.Limits.Timeout <= 0 {
		cfg.Limits.Timeout = defaultShellTimeout
	}
	if cfg.Limits.MaxOutputBytes <= 0 {
		cfg.Limits.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = filepath.Join(os.TempDir(), "breeze-native")
	}
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.Limits.PassEnv == nil {
		cfg.Limits.PassEnv = []string{"PATH", "LANG", "TZ"}
	}
	cfg.Limits.WorkRoots = append(cfg.Limits.WorkRoots, cfg.ScratchRoot)
	return &ShellDialect{cfg: cfg}
}

// Name returns the dialect identifier.
func (d *ShellDialect) Name() string {
	return "sh"
}

// Execute runs body in a scratch directory under the configured isolator.
func (d *ShellDialect) Execute(ctx context.Context, body string, data map[string]any) (any, error) {
	if body == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty sh block")
	}

	input, err := json.Marshal(data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "encode context for sh block: %v", err).WithCause(err)
	}

	scratch := filepath.Join(d.cfg.ScratchRoot, uuid.NewString())
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeIsolation, "create scratch dir: %v", err).WithCause(err)
	}
	defer os.RemoveAll(scratch)

	cmd := exec.Command(d.cfg.Shell, "-c", body)
	cmd.Dir = scratch
	cmd.Env = []string{"HOME=" + scratch, "TMPDIR=" + scratch}
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, remaining: d.cfg.Limits.MaxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderr, remaining: d.cfg.Limits.MaxOutputBytes}

	wrapped, cleanup, err := d.cfg.Isolator.Wrap(ctx, cmd, d.cfg.Limits)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeIsolation, "isolate sh block: %v", err).WithCause(err)
	}
	defer cleanup()

	if err := wrapped.Run(); err != nil {
		details := map[string]any{"dialect": "sh", "stderr": strings.TrimSpace(stderr.String())}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			details["exit_code"] = exitErr.ExitCode()
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "sh block failed: %v", err).
			WithCause(err).
			WithDetails(details)
	}

	return strings.TrimSuffix(stdout.String(), "\n"), nil
}

// limitedWriter discards output past its budget instead of failing the process.
type limitedWriter struct {
	w         io.Writer
	remaining int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if l.remaining <= 0 {
		return n, nil
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	written, err := l.w.Write(p)
	l.remaining -= int64(written)
	if err != nil {
		return written, err
	}
	return n, nil
}

var _ Dialect = (*ShellDialect)(nil)

package isolation

import (
	"context"
	"os/exec"
	"time"

	"github.com/rendis/breeze/pkg/schema"
)

// killGrace is how long Wait keeps reading pipes after the process is killed.
const killGrace = 2 * time.Second

// TimeoutIsolator applies the deadline, the work dir check and the
// environment allowlist. It does not limit memory, CPU or network.
type TimeoutIsolator struct{}

var _ Isolator = TimeoutIsolator{}

// Wrap rebuilds cmd on a context bounded by limits.Timeout. cmd.Env is
// treated as explicit extra variables.
func (TimeoutIsolator) Wrap(ctx context.Context, cmd *exec.Cmd, limits Limits) (*exec.Cmd, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(cmd.Args) == 0 {
		return nil, nil, schema.NewError(schema.ErrCodeIsolation, "command has no arguments")
	}
	if cmd.Dir == "" {
		return nil, nil, schema.NewError(schema.ErrCodeIsolation, "command has no work dir")
	}
	if err := limits.CheckWorkDir(cmd.Dir); err != nil {
		return nil, nil, err
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if limits.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
	}

	out := exec.CommandContext(runCtx, cmd.Path, cmd.Args[1:]...)
	out.Args = cmd.Args
	out.Dir = cmd.Dir
	out.Env = limits.environ(cmd.Env)
	out.Stdin, out.Stdout, out.Stderr = cmd.Stdin, cmd.Stdout, cmd.Stderr
	out.WaitDelay = killGrace

	return out, cancel, nil
}

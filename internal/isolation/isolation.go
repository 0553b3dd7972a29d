// Package isolation confines the processes started by native sh blocks: a
// deadline, a checked working directory and an allowlisted environment.
package isolation

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/rendis/breeze/pkg/schema"
)

// Limits constrains one block run.
type Limits struct {
	Timeout        time.Duration `json:"timeout,omitempty"`
	MaxOutputBytes int64         `json:"max_output_bytes,omitempty"`
	// WorkRoots are the directories a block may run in. Empty refuses all.
	WorkRoots []string `json:"work_roots,omitempty"`
	// Denied directories win over WorkRoots.
	Denied []string `json:"denied,omitempty"`
	// PassEnv names parent environment variables the child may see. All
	// others are dropped.
	PassEnv []string `json:"pass_env,omitempty"`
}

// CheckWorkDir reports whether dir is inside a work root and outside every
// denied directory. Unresolvable rules deny.
func (l Limits) CheckWorkDir(dir string) error {
	target, err := canonical(dir)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeIsolation, "work dir %q: %v", dir, err)
	}
	for _, d := range l.Denied {
		root, err := canonical(d)
		if err != nil || within(target, root) {
			return schema.NewErrorf(schema.ErrCodeIsolation, "work dir %q is denied", dir)
		}
	}
	for _, r := range l.WorkRoots {
		if root, err := canonical(r); err == nil && within(target, root) {
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeIsolation, "work dir %q is outside the work roots", dir)
}

// environ returns the allowlisted parent variables followed by extra.
func (l Limits) environ(extra []string) []string {
	env := make([]string, 0, len(l.PassEnv)+len(extra))
	for _, name := range l.PassEnv {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return append(env, extra...)
}

// Isolator prepares a command for confined execution. Callers run the
// returned command and always call the cleanup func afterwards.
type Isolator interface {
	Wrap(ctx context.Context, cmd *exec.Cmd, limits Limits) (*exec.Cmd, func(), error)
}

// Default returns the isolator native blocks use unless configured otherwise.
func Default() Isolator {
	return TimeoutIsolator{}
}

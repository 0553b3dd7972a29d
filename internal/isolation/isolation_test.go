package isolation

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/breeze/pkg/schema"
)

func requireDenied(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeIsolation), "got %v", err)
}

// --- Work dir checks ---

func TestCheckWorkDir(t *testing.T) {
	root := t.TempDir()
	l := Limits{WorkRoots: []string{root}, Denied: []string{filepath.Join(root, "private")}}

	tests := []struct {
		name string
		dir  string
		ok   bool
	}{
		{"root itself", root, true},
		{"nested, not yet created", filepath.Join(root, "run", "1"), true},
		{"denied subtree", filepath.Join(root, "private", "x"), false},
		{"traversal out", filepath.Join(root, "..", "elsewhere"), false},
		{"sibling with shared prefix", root + "evil", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := l.CheckWorkDir(tc.dir)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				requireDenied(t, err)
			}
		})
	}
}

func TestCheckWorkDir_NoRootsRefusesAll(t *testing.T) {
	requireDenied(t, Limits{}.CheckWorkDir(t.TempDir()))
}

func TestCheckWorkDir_NullByte(t *testing.T) {
	requireDenied(t, Limits{WorkRoots: []string{"/"}}.CheckWorkDir("/tmp/a\x00b"))
}

func TestCheckWorkDir_SymlinkedRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	target := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(target, link))

	l := Limits{WorkRoots: []string{link}}
	assert.NoError(t, l.CheckWorkDir(filepath.Join(target, "job")))
	assert.NoError(t, l.CheckWorkDir(filepath.Join(link, "job")))
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/a/b", "/a"))
	assert.True(t, within("/a", "/a"))
	assert.False(t, within("/ab", "/a"))
	assert.False(t, within("/", "/a"))
}

// --- Environment ---

func TestEnviron_Allowlist(t *testing.T) {
	t.Setenv("BREEZE_ISO_KEEP", "yes")
	t.Setenv("BREEZE_ISO_SECRET", "no")

	env := Limits{PassEnv: []string{"BREEZE_ISO_KEEP", "BREEZE_ISO_UNSET"}}.environ([]string{"HOME=/scratch"})
	assert.Equal(t, []string{"BREEZE_ISO_KEEP=yes", "HOME=/scratch"}, env)
}

// --- TimeoutIsolator ---

func requireSh(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestTimeoutIsolator_RunsInWorkDir(t *testing.T) {
	sh := requireSh(t)
	dir := t.TempDir()
	t.Setenv("BREEZE_ISO_SECRET", "leak")

	var out bytes.Buffer
	cmd := exec.Command(sh, "-c", `pwd; echo "[$BREEZE_ISO_SECRET]"; echo "$HOME"`)
	cmd.Dir = dir
	cmd.Env = []string{"HOME=" + dir}
	cmd.Stdout = &out

	wrapped, cleanup, err := TimeoutIsolator{}.Wrap(context.Background(), cmd, Limits{WorkRoots: []string{dir}, PassEnv: []string{"PATH"}})
	require.NoError(t, err)
	defer cleanup()
	require.NoError(t, wrapped.Run())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, []string{dir, resolved}, lines[0])
	assert.Equal(t, "[]", lines[1])
	assert.Equal(t, dir, lines[2])
}

func TestTimeoutIsolator_Rejects(t *testing.T) {
	sh := requireSh(t)
	root := t.TempDir()

	noDir := exec.Command(sh, "-c", "true")
	_, _, err := TimeoutIsolator{}.Wrap(context.Background(), noDir, Limits{WorkRoots: []string{root}})
	requireDenied(t, err)

	outside := exec.Command(sh, "-c", "true")
	outside.Dir = t.TempDir()
	_, _, err = TimeoutIsolator{}.Wrap(context.Background(), outside, Limits{WorkRoots: []string{root}})
	requireDenied(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inside := exec.Command(sh, "-c", "true")
	inside.Dir = root
	_, _, err = TimeoutIsolator{}.Wrap(ctx, inside, Limits{WorkRoots: []string{root}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimeoutIsolator_KillsOnDeadline(t *testing.T) {
	sh := requireSh(t)
	dir := t.TempDir()
	cmd := exec.Command(sh, "-c", "sleep 30")
	cmd.Dir = dir

	wrapped, cleanup, err := TimeoutIsolator{}.Wrap(context.Background(), cmd, Limits{WorkRoots: []string{dir}, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer cleanup()

	start := time.Now()
	assert.Error(t, wrapped.Run())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDefault(t *testing.T) {
	assert.IsType(t, TimeoutIsolator{}, Default())
}

package view

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/breeze/pkg/schema"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestResolve_ExtensionOrder(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "home.html"))
	touch(t, filepath.Join(dir, "home.page"))
	touch(t, filepath.Join(dir, "legacy.chtm"))

	r := NewResolver(dir)

	p, err := r.Resolve("home")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "home.page"), p)

	p, err = r.Resolve("legacy")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "legacy.chtm"), p)
}

func TestResolve_Subdirectory(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "users", "show.breeze"))

	p, err := NewResolver(dir).Resolve("users/show")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "users", "show.breeze"), p)
}

func TestResolve_NotFound(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "secret.txt"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "folder.breeze"), 0o755))
	r := NewResolver(dir)

	for _, name := range []string{"missing", "secret", "folder", "", "../etc/passwd", "/etc/passwd"} {
		_, err := r.Resolve(name)
		require.Error(t, err, name)
		assert.True(t, schema.IsNotFound(err), name)
	}

	_, err := r.Resolve("missing")
	var be *schema.BreezeError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "View [missing] not found in "+dir, be.Message)
}

func TestResolver_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.tpl"))
	r := NewResolver(dir, ".tpl")

	_, err := r.Resolve("a")
	assert.NoError(t, err)
	assert.Equal(t, []string{".tpl"}, r.Extensions())
}

func TestResolver_Walk(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.breeze"))
	touch(t, filepath.Join(dir, "nested", "b.htm"))
	touch(t, filepath.Join(dir, "nested", "notes.md"))

	var seen []string
	err := NewResolver(dir).Walk(func(p string) error {
		rel, err := filepath.Rel(dir, p)
		require.NoError(t, err)
		seen = append(seen, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.breeze", "nested/b.htm"}, seen)
}

func TestNotFoundMessage(t *testing.T) {
	r := NewResolver("resources/views")
	assert.Equal(t, "View [home] not found in resources/views", r.NotFoundMessage("home"))
}

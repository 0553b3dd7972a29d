// Package view maps view names to template files under a views directory.
package view

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rendis/breeze/pkg/schema"
)

// DefaultExtensions are probed in order; the first existing file wins.
var DefaultExtensions = []string{".breeze", ".page", ".html", ".htm", ".chtm"}

// Resolver finds the file for a view name such as "home" or "users/show".
type Resolver struct {
	dir  string
	exts []string
}

// NewResolver creates a resolver rooted at dir. No extensions means
// DefaultExtensions.
func NewResolver(dir string, exts ...string) *Resolver {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	return &Resolver{dir: dir, exts: slices.Clone(exts)}
}

// Dir returns the views directory as configured.
func (r *Resolver) Dir() string { return r.dir }

// Extensions returns the probe order.
func (r *Resolver) Extensions() []string { return slices.Clone(r.exts) }

// Resolve returns the path of the first <dir>/<name><ext> that is a regular
// file. Names that escape the views directory never resolve.
func (r *Resolver) Resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", r.notFound(name)
	}
	base := filepath.Join(r.dir, clean)
	for _, ext := range r.exts {
		p := base + ext
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", r.notFound(name)
}

// IsTemplate reports whether path carries one of the probed extensions.
func (r *Resolver) IsTemplate(path string) bool {
	return slices.Contains(r.exts, filepath.Ext(path))
}

// Walk calls fn for every template file under the views directory.
func (r *Resolver) Walk(fn func(path string) error) error {
	return filepath.WalkDir(r.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && r.IsTemplate(p) {
			return fn(p)
		}
		return nil
	})
}

// NotFoundMessage is the text rendered in place of a missing view.
func (r *Resolver) NotFoundMessage(name string) string {
	return "View [" + name + "] not found in " + r.dir
}

func (r *Resolver) notFound(name string) *schema.BreezeError {
	return schema.NewError(schema.ErrCodeNotFound, r.NotFoundMessage(name)).
		WithDetails(map[string]any{"view": name, "dir": r.dir})
}

package isolation

import (
	"errors"
	"path/filepath"
	"strings"
)

// canonical makes path absolute and resolves symlinks on its longest
// existing prefix, so a directory that does not exist yet still compares
// against resolved roots.
func canonical(path string) (string, error) {
	if strings.IndexByte(path, 0) >= 0 {
		return "", errors.New("path contains a null byte")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var missing []string
	cur := abs
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			parts := append([]string{resolved}, missing...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
}

// within reports whether path is root or below it. Uses filepath.Rel so
// /tmp/a does not match /tmp/ab.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

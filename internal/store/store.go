// Package store is the durable tier behind the template cache. Stores hold
// serialized syntax trees keyed by content fingerprint; the in-memory cache
// stays authoritative and treats every store failure as a miss.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/natefinch/atomic"

	"github.com/rendis/breeze/pkg/schema"
)

// ArtifactStore persists serialized template artifacts.
type ArtifactStore interface {
	// Get returns the artifact for fingerprint or a NOT_FOUND error.
	Get(ctx context.Context, fingerprint string) ([]byte, error)
	// Put stores data under fingerprint, replacing any previous artifact.
	Put(ctx context.Context, fingerprint string, data []byte) error
	Delete(ctx context.Context, fingerprint string) error
	// Clear removes every artifact.
	Clear(ctx context.Context) error
	Close() error
}

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func checkFingerprint(fp string) error {
	if !fingerprintPattern.MatchString(fp) {
		return schema.NewErrorf(schema.ErrCodeCacheIO, "invalid fingerprint %q", fp)
	}
	return nil
}

func artifactNotFound(fp string) *schema.BreezeError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "artifact %q not found", fp)
}

func cacheIO(op, fp string, err error) *schema.BreezeError {
	return schema.NewErrorf(schema.ErrCodeCacheIO, "%s artifact %q", op, fp).WithCause(err)
}

// DirStore keeps one JSON file per fingerprint under a two-level fan-out:
// <dir>/<fp[:2]>/<fp>.json.
type DirStore struct {
	dir string
}

// NewDirStore creates the root directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if dir == "" {
		return nil, schema.NewError(schema.ErrCodeCacheIO, "artifact directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) path(fp string) string {
	return filepath.Join(s.dir, fp[:2], fp+".json")
}

func (s *DirStore) Get(_ context.Context, fp string) ([]byte, error) {
	if err := checkFingerprint(fp); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(fp))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, artifactNotFound(fp)
	}
	if err != nil {
		return nil, cacheIO("read", fp, err)
	}
	return data, nil
}

// Put writes through a temp file and rename so readers never observe a
// partially written artifact.
func (s *DirStore) Put(_ context.Context, fp string, data []byte) error {
	if err := checkFingerprint(fp); err != nil {
		return err
	}
	p := s.path(fp)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return cacheIO("write", fp, err)
	}
	if err := atomic.WriteFile(p, bytes.NewReader(data)); err != nil {
		return cacheIO("write", fp, err)
	}
	return nil
}

func (s *DirStore) Delete(_ context.Context, fp string) error {
	if err := checkFingerprint(fp); err != nil {
		return err
	}
	err := os.Remove(s.path(fp))
	if errors.Is(err, fs.ErrNotExist) {
		return artifactNotFound(fp)
	}
	if err != nil {
		return cacheIO("delete", fp, err)
	}
	return nil
}

// Clear removes the fan-out directories but keeps the root.
func (s *DirStore) Clear(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list artifact dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) != 2 {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("clear artifact dir: %w", err)
		}
	}
	return nil
}

func (s *DirStore) Close() error { return nil }

package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/breeze/pkg/schema"
)

func newTestDirStore(t *testing.T) *DirStore {
	t.Helper()
	s, err := NewDirStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	return s
}

func TestDirStore_Layout(t *testing.T) {
	s := newTestDirStore(t)
	fp := "ab" + fingerprint("0")[2:]

	require.NoError(t, s.Put(context.Background(), fp, []byte("{}")))

	data, err := os.ReadFile(filepath.Join(s.Dir(), "ab", fp+".json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestDirStore_PutGetDelete(t *testing.T) {
	s := newTestDirStore(t)
	ctx := context.Background()
	fp := fingerprint("e")

	_, err := s.Get(ctx, fp)
	assert.True(t, schema.IsNotFound(err))

	require.NoError(t, s.Put(ctx, fp, []byte("one")))
	require.NoError(t, s.Put(ctx, fp, []byte("two")))
	got, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	require.NoError(t, s.Delete(ctx, fp))
	assert.True(t, schema.IsNotFound(s.Delete(ctx, fp)))
}

func TestDirStore_RejectsBadFingerprint(t *testing.T) {
	s := newTestDirStore(t)
	for _, fp := range []string{"", "x", "../" + fingerprint("a")[3:], fingerprint("A")} {
		_, err := s.Get(context.Background(), fp)
		assert.True(t, schema.HasCode(err, schema.ErrCodeCacheIO), fp)
	}
}

func TestDirStore_ClearKeepsRootAndForeignFiles(t *testing.T) {
	s := newTestDirStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, fingerprint("1"), []byte("a")))
	require.NoError(t, s.Put(ctx, fingerprint("2"), []byte("b")))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "README"), []byte("keep"), 0o644))

	require.NoError(t, s.Clear(ctx))

	_, err := s.Get(ctx, fingerprint("1"))
	assert.True(t, schema.IsNotFound(err))
	_, err = os.Stat(filepath.Join(s.Dir(), "README"))
	assert.NoError(t, err)
}

func TestDirStore_ConcurrentWriters(t *testing.T) {
	s := newTestDirStore(t)
	ctx := context.Background()
	fp := fingerprint("f")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Put(ctx, fp, []byte(`{"same":true}`)))
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, `{"same":true}`, string(got))
}

func TestNewDirStore_EmptyPath(t *testing.T) {
	_, err := NewDirStore("")
	assert.Error(t, err)
}

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	file, err := NewFile(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemory(),
		"file":   file,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			require.NoError(t, s.Write(ctx, "page-1/sobel/dx.bmat", []byte{1, 2, 3}))

			data, err := s.Read(ctx, "page-1/sobel/dx.bmat")
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3}, data)

			ok, err := s.Exists(ctx, "page-1/sobel/dx.bmat")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, s.Delete(ctx, "page-1/sobel/dx.bmat"))
			require.NoError(t, s.Delete(ctx, "page-1/sobel/dx.bmat"))

			_, err = s.Read(ctx, "page-1/sobel/dx.bmat")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStoreListIsSortedAndPrefixed(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			for _, key := range []string{"b/2", "a/1", "b/1", "c"} {
				require.NoError(t, s.Write(ctx, key, []byte(key)))
			}

			keys, err := s.List(ctx, "b/")
			require.NoError(t, err)
			assert.Equal(t, []string{"b/1", "b/2"}, keys)
		})
	}
}

func TestNamespaceScopesKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := NewMemory()
	page := Namespace(root, "pages/1")
	proc := Namespace(page, "sobel")

	require.NoError(t, proc.Write(ctx, "dx.bmat", []byte("x")))
	require.NoError(t, Namespace(root, "pages/2").Write(ctx, "other", []byte("y")))

	keys, err := proc.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dx.bmat"}, keys)

	_, ok := root.Snapshot()["pages/1/sobel/dx.bmat"]
	assert.True(t, ok)

	require.NoError(t, Clear(ctx, page))
	keys, err = root.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"pages/2/other"}, keys)
}

func TestCleanKeyRejectsEscapes(t *testing.T) {
	t.Parallel()

	_, err := CleanKey("../secret")
	require.Error(t, err)
	_, err = CleanKey("")
	require.Error(t, err)

	key, err := CleanKey("/a//b/")
	require.NoError(t, err)
	assert.Equal(t, "a/b", key)
}

func TestFileWriteLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), "k/v", []byte("value")))
	require.NoError(t, s.Write(context.Background(), "k/v", []byte("value2")))

	entries, err := os.ReadDir(filepath.Join(dir, "k"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "v", entries[0].Name())
}

func TestWriteHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemory().Write(ctx, "k", []byte("v"))
	assert.ErrorIs(t, err, context.Canceled)
}

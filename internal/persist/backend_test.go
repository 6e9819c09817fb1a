package persist

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendCases returns every backend that can run without external
// services, plus Redis when TA2_TEST_REDIS_ADDR is set.
func backendCases(t *testing.T) map[string]func(t *testing.T) Backend {
	cases := map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			return NewMemoryBackend()
		},
		"dir": func(t *testing.T) Backend {
			b, err := NewDirBackend(t.TempDir())
			require.NoError(t, err)
			return b
		},
		"badger": func(t *testing.T) Backend {
			b, err := OpenBadger(BadgerConfig{InMemory: true})
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		},
	}
	if addr := os.Getenv("TA2_TEST_REDIS_ADDR"); addr != "" {
		cases["redis"] = func(t *testing.T) Backend {
			b, err := NewRedisBackend(context.Background(), addr)
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		}
	}
	return cases
}

func TestBackendContract(t *testing.T) {
	for name, open := range backendCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := open(t)
			id := "contract-" + name

			_, err := b.GetDocument(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = b.GetBlob(ctx, id, 0)
			assert.ErrorIs(t, err, ErrNotFound)
			n, err := b.BlobCount(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			require.NoError(t, b.PutBlob(ctx, id, 0, []byte("zero")))
			require.NoError(t, b.PutBlob(ctx, id, 1, []byte("one")))
			require.NoError(t, b.PutBlob(ctx, id, 1, []byte("one again")))
			require.NoError(t, b.PutDocument(ctx, id, []byte(`{"doc":true}`)))

			n, err = b.BlobCount(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			blob, err := b.GetBlob(ctx, id, 1)
			require.NoError(t, err)
			assert.Equal(t, []byte("one again"), blob)

			doc, err := b.GetDocument(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"doc":true}`), doc)

			ids, err := b.ListDocuments(ctx)
			require.NoError(t, err)
			assert.Contains(t, ids, id)

			assert.Error(t, b.PutDocument(ctx, "../escape", []byte("x")))
		})
	}
}

func TestBadgerBlobCountIsPerPipeline(t *testing.T) {
	ctx := context.Background()
	b, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutBlob(ctx, "a", 0, []byte("x")))
	require.NoError(t, b.PutBlob(ctx, "ab", 0, []byte("x")))
	require.NoError(t, b.PutBlob(ctx, "ab", 1, []byte("x")))

	n, err := b.BlobCount(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, b.PutDocument(ctx, "fp", []byte("doc")))
	require.NoError(t, b.Close())

	b, err = OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer b.Close()
	doc, err := b.GetDocument(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), doc)
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ids"
	"github.com/roach88/ta2/internal/persist"
	"github.com/roach88/ta2/internal/testutil"
)

func TestBlobs(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.GetBlob(ctx, "fp", 0)
	assert.True(t, errors.Is(err, persist.ErrNotFound))

	require.NoError(t, s.PutBlob(ctx, "fp", 0, []byte("a")))
	require.NoError(t, s.PutBlob(ctx, "fp", 1, []byte("b")))
	require.NoError(t, s.PutBlob(ctx, "fp", 0, []byte("a2")))
	require.NoError(t, s.PutBlob(ctx, "other", 0, []byte("x")))

	got, err := s.GetBlob(ctx, "fp", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("a2"), got)

	n, err := s.BlobCount(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.BlobCount(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.GetDocument(ctx, "fp-b")
	assert.True(t, errors.Is(err, persist.ErrNotFound))

	require.NoError(t, s.PutDocument(ctx, "fp-b", []byte(`{"v":1}`)))
	require.NoError(t, s.PutDocument(ctx, "fp-a", []byte(`{}`)))
	require.NoError(t, s.PutDocument(ctx, "fp-b", []byte(`{"v":2}`)))

	doc, err := s.GetDocument(ctx, "fp-b")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(doc))

	list, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fp-a", "fp-b"}, list)
}

func TestSaveLoadThroughStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ta2.db")

	reg := engine.NewRegistry(testutil.Offset("offset"), testutil.Scale("scale"))
	e := engine.New(reg, engine.WithIDGenerator(ids.NewFixedGenerator("fp-1")))
	g := testutil.Chain(t, "chain", "offset", "scale")
	fp, err := e.Fit(ctx, g, []any{[]float64{1, 2, 3}}, "toy", nil)
	require.NoError(t, err)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, persist.Save(ctx, s, fp))
	require.NoError(t, s.Close())

	// Reopen to prove the data is durable.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	loaded, err := persist.Load(ctx, s, reg, "fp-1")
	require.NoError(t, err)

	probe := []any{[]float64{0, 1}}
	want, err := e.Produce(ctx, fp, probe)
	require.NoError(t, err)
	got, err := e.Produce(ctx, loaded, probe)
	require.NoError(t, err)
	assert.Equal(t, want.Outputs, got.Outputs)
	// mean 2, factor 2: (0+2)*2, (1+2)*2
	assert.Equal(t, []float64{4, 6}, got.Outputs[0])
}

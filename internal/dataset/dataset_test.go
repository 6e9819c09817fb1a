package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	l := NewLoader(nil)
	d, err := l.Load(context.Background(), "testdata/toy.yaml")
	require.NoError(t, err)

	assert.Equal(t, "toy", d.ID)
	assert.Equal(t, []string{"x", "y", "label"}, d.Columns)
	assert.Equal(t, 6, d.NumRows())
	// YAML numbers decode into their literal text.
	assert.Equal(t, []string{"1.0", "2.0", "a"}, d.Rows[0])
}

func TestLoadCSVAndFileURI(t *testing.T) {
	abs, err := filepath.Abs("testdata/toy.csv")
	require.NoError(t, err)

	l := NewLoader(nil)
	d, err := l.Load(context.Background(), "file://"+abs)
	require.NoError(t, err)
	assert.Equal(t, "toy", d.ID)
	assert.Equal(t, 2, d.NumRows())
}

func TestLoadCachesAndShares(t *testing.T) {
	l := NewLoader(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*Dataset, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := l.Load(ctx, "testdata/toy.yaml")
			assert.NoError(t, err)
			got[i] = d
		}(i)
	}
	wg.Wait()

	for _, d := range got[1:] {
		assert.Same(t, got[0], d)
	}

	l.Forget("testdata/toy.yaml")
	again, err := l.Load(ctx, "testdata/toy.yaml")
	require.NoError(t, err)
	assert.NotSame(t, got[0], again)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	ragged := filepath.Join(dir, "ragged.yaml")
	require.NoError(t, os.WriteFile(ragged, []byte("id: r\ncolumns: [a, b]\nrows:\n  - [1]\n"), 0o644))
	dupe := filepath.Join(dir, "dupe.yaml")
	require.NoError(t, os.WriteFile(dupe, []byte("id: d\ncolumns: [a, a]\n"), 0o644))
	txt := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))

	tests := []struct {
		name string
		uri  string
	}{
		{"empty", ""},
		{"missing", filepath.Join(dir, "nope.yaml")},
		{"http scheme", "http://example.com/d.yaml"},
		{"ragged row", ragged},
		{"duplicate columns", dupe},
		{"unknown extension", txt},
	}

	l := NewLoader(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), tt.uri)
			assert.Error(t, err)
		})
	}

	_, err := l.Load(context.Background(), txt)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestLoadHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoader(nil)
	// A cached dataset is returned regardless; an uncached one may race
	// the cancellation, so only the error type is checked when it fails.
	_, err := l.Load(ctx, "testdata/toy.yaml")
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestSplit(t *testing.T) {
	d, err := NewLoader(nil).Load(context.Background(), "testdata/toy.yaml")
	require.NoError(t, err)

	train, holdout, err := d.Split(0.34, 7)
	require.NoError(t, err)
	assert.Equal(t, "toy_TRAIN", train.ID)
	assert.Equal(t, "toy_TEST", holdout.ID)
	assert.Equal(t, 2, holdout.NumRows())
	assert.Equal(t, 4, train.NumRows())

	// Deterministic for a seed.
	train2, holdout2, err := d.Split(0.34, 7)
	require.NoError(t, err)
	assert.Equal(t, train.Rows, train2.Rows)
	assert.Equal(t, holdout.Rows, holdout2.Rows)

	// Every row lands in exactly one part.
	seen := map[string]int{}
	for _, part := range []*Dataset{train, holdout} {
		for _, row := range part.Rows {
			seen[row[0]+"/"+row[1]]++
		}
	}
	assert.Len(t, seen, 6)

	// Splitting never aliases the source rows.
	train.Rows[0][0] = "changed"
	for _, row := range d.Rows {
		assert.NotEqual(t, "changed", row[0])
	}
}

func TestSplitErrors(t *testing.T) {
	d := &Dataset{ID: "one", Columns: []string{"a"}, Rows: [][]string{{"1"}}}
	_, _, err := d.Split(0.5, 1)
	assert.Error(t, err)

	d.Rows = append(d.Rows, []string{"2"})
	for _, ratio := range []float64{0, 1, -0.1} {
		_, _, err := d.Split(ratio, 1)
		assert.Error(t, err)
	}

	// A tiny ratio still holds out one row and keeps one for training.
	train, holdout, err := d.Split(0.01, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, train.NumRows())
	assert.Equal(t, 1, holdout.NumRows())
}

func TestColumn(t *testing.T) {
	d := &Dataset{ID: "d", Columns: []string{"a", "b"}, Rows: [][]string{{"1", "x"}, {"2", "y"}}}
	c, err := d.Column("b")
	require.NoError(t, err)
	assert.Equal(t, Column{Name: "b", Values: []string{"x", "y"}}, c)

	_, err = d.Column("z")
	assert.True(t, errors.Is(err, ErrUnknownColumn))
}

func TestMatrixColumnStats(t *testing.T) {
	m := &Matrix{Columns: []string{"a"}, Values: [][]float64{{1}, {3}}}
	mean, std := m.ColumnStats(0)
	assert.Equal(t, 2.0, mean)
	assert.Equal(t, 1.0, std)
}

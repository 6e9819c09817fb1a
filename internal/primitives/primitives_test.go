package primitives

import (
	"context"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
)

func fit(t *testing.T, p engine.Primitive, args engine.Arguments, hp engine.Hyperparams) (engine.Instance, any) {
	t.Helper()
	inst, err := p.Fit(context.Background(), args, hp)
	require.NoError(t, err)
	out, err := inst.Produce(context.Background(), args)
	require.NoError(t, err)
	return inst, out[Output]
}

func toyFrame() *dataset.Frame {
	return &dataset.Frame{
		Columns: []string{"x", "name", "y", "label"},
		Rows: [][]string{
			{"1", "p", "2", "a"},
			{"2", "q", "", "a"},
			{"8", "r", "9", "b"},
			{"9", "s", "7", "b"},
		},
	}
}

func toyMatrix() (*dataset.Matrix, dataset.Column) {
	x := &dataset.Matrix{
		Columns: []string{"x", "y"},
		Values:  [][]float64{{0, 0}, {1, 0}, {0, 1}, {10, 10}, {11, 10}, {10, 11}},
	}
	y := dataset.Column{Name: "label", Values: []string{"a", "a", "a", "b", "b", "b"}}
	return x, y
}

func TestDescriptors(t *testing.T) {
	reg := Registry()
	refs := reg.List()
	require.Len(t, refs, 10)

	seen := map[string]bool{}
	for _, ref := range refs {
		assert.False(t, seen[ref.ID], "duplicate id %s", ref.ID)
		seen[ref.ID] = true
		assert.Len(t, ref.Digest, 64)
		assert.Equal(t, Version, ref.Version)
	}

	// Ids derive from the python path, so they survive a restart.
	assert.Equal(t, NearestCentroid().Descriptor(), NearestCentroid().Descriptor())

	p, err := reg.LookupPath(PathRidgeRegression)
	require.NoError(t, err)
	assert.Equal(t, "Ridge regression", p.Descriptor().Name)
}

func TestDatasetToFrame(t *testing.T) {
	d := &dataset.Dataset{ID: "d", Columns: []string{"a"}, Rows: [][]string{{"1"}}}
	_, out := fit(t, DatasetToFrame(), engine.Arguments{"inputs": d}, nil)
	assert.Equal(t, &dataset.Frame{Columns: []string{"a"}, Rows: [][]string{{"1"}}}, out)

	_, err := DatasetToFrame().Fit(context.Background(), engine.Arguments{"inputs": "nope"}, nil)
	assert.Error(t, err)
}

func TestExtractAttributes(t *testing.T) {
	hp := engine.Hyperparams{"target": ir.String("label")}
	_, out := fit(t, ExtractAttributes(), engine.Arguments{"inputs": toyFrame()}, hp)

	m := out.(*dataset.Matrix)
	assert.Equal(t, []string{"x", "y"}, m.Columns)
	assert.Equal(t, 1.0, m.Values[0][0])
	assert.True(t, math.IsNaN(m.Values[1][1]))

	// Produce on a frame missing a learned column fails.
	inst, err := ExtractAttributes().Fit(context.Background(), engine.Arguments{"inputs": toyFrame()}, hp)
	require.NoError(t, err)
	_, err = inst.Produce(context.Background(), engine.Arguments{"inputs": &dataset.Frame{Columns: []string{"x"}}})
	assert.ErrorIs(t, err, dataset.ErrUnknownColumn)
}

func TestExtractTargets(t *testing.T) {
	hp := engine.Hyperparams{"target": ir.String("label")}
	inst, out := fit(t, ExtractTargets(), engine.Arguments{"inputs": toyFrame()}, hp)
	assert.Equal(t, dataset.Column{Name: "label", Values: []string{"a", "a", "b", "b"}}, out)

	// Unlabeled data yields empty cells.
	res, err := inst.Produce(context.Background(), engine.Arguments{
		"inputs": &dataset.Frame{Columns: []string{"x"}, Rows: [][]string{{"1"}, {"2"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, dataset.Column{Name: "label", Values: []string{"", ""}}, res[Output])

	_, err = ExtractTargets().Fit(context.Background(), engine.Arguments{"inputs": toyFrame()}, nil)
	assert.Error(t, err)
	_, err = ExtractTargets().Fit(context.Background(), engine.Arguments{"inputs": toyFrame()},
		engine.Hyperparams{"target": ir.String("zzz")})
	assert.ErrorIs(t, err, dataset.ErrUnknownColumn)
}

func TestMeanImputerAndScaler(t *testing.T) {
	m := &dataset.Matrix{Columns: []string{"a", "b"}, Values: [][]float64{{1, 5}, {math.NaN(), 5}, {3, 5}}}

	_, out := fit(t, MeanImputer(), engine.Arguments{"inputs": m}, nil)
	imputed := out.(*dataset.Matrix)
	assert.Equal(t, [][]float64{{1, 5}, {2, 5}, {3, 5}}, imputed.Values)
	assert.True(t, math.IsNaN(m.Values[1][0]), "input must not be modified")

	_, out = fit(t, StandardScaler(), engine.Arguments{"inputs": imputed},
		engine.Hyperparams{"with_std": ir.Bool(true)})
	scaled := out.(*dataset.Matrix)
	// Column a: mean 2, std sqrt(2/3). Column b is constant: centered only.
	assert.InDelta(t, -1/math.Sqrt(2.0/3), scaled.Values[0][0], 1e-12)
	assert.Equal(t, 0.0, scaled.Values[2][1])

	inst, err := MeanImputer().Fit(context.Background(), engine.Arguments{"inputs": m}, nil)
	require.NoError(t, err)
	_, err = inst.Produce(context.Background(), engine.Arguments{"inputs": &dataset.Matrix{Columns: []string{"a"}}})
	assert.Error(t, err)
}

func TestClassifiers(t *testing.T) {
	x, y := toyMatrix()
	probe := &dataset.Matrix{Columns: []string{"x", "y"}, Values: [][]float64{{0.5, 0.5}, {9, 9}}}

	tests := []struct {
		name string
		prim engine.Primitive
		hp   engine.Hyperparams
		want []string
	}{
		{"nearest centroid", NearestCentroid(), nil, []string{"a", "b"}},
		{"nearest centroid manhattan", NearestCentroid(), engine.Hyperparams{"metric": ir.String("manhattan")}, []string{"a", "b"}},
		{"knn k=1", KNearestNeighbors(), engine.Hyperparams{"n_neighbors": ir.Int64(1)}, []string{"a", "b"}},
		{"knn k larger than data", KNearestNeighbors(), engine.Hyperparams{"n_neighbors": ir.Int64(100)}, []string{"a", "a"}},
		{"majority tie sorts first", MajorityClass(), nil, []string{"a", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := tt.prim.Fit(context.Background(), engine.Arguments{"inputs": x, "outputs": y}, tt.hp)
			require.NoError(t, err)
			out, err := inst.Produce(context.Background(), engine.Arguments{"inputs": probe})
			require.NoError(t, err)
			assert.Equal(t, dataset.Column{Name: "label", Values: tt.want}, out[Output])
		})
	}
}

func TestClassifierFitErrors(t *testing.T) {
	x, y := toyMatrix()
	ctx := context.Background()

	_, err := NearestCentroid().Fit(ctx, engine.Arguments{"inputs": x, "outputs": y},
		engine.Hyperparams{"metric": ir.String("cosine")})
	assert.Error(t, err)

	_, err = KNearestNeighbors().Fit(ctx, engine.Arguments{"inputs": x, "outputs": y},
		engine.Hyperparams{"n_neighbors": ir.Int64(0)})
	assert.Error(t, err)

	short := dataset.Column{Name: "label", Values: []string{"a"}}
	_, err = MajorityClass().Fit(ctx, engine.Arguments{"inputs": x, "outputs": short}, nil)
	assert.Error(t, err)

	_, err = MajorityClass().Fit(ctx, engine.Arguments{"inputs": x}, nil)
	assert.Error(t, err)
}

func TestRegressors(t *testing.T) {
	// y = 2x + 1
	x := &dataset.Matrix{Columns: []string{"x"}, Values: [][]float64{{0}, {1}, {2}, {3}}}
	y := dataset.Column{Name: "y", Values: []string{"1", "3", "5", "7"}}
	probe := &dataset.Matrix{Columns: []string{"x"}, Values: [][]float64{{10}}}
	ctx := context.Background()

	inst, err := MeanRegressor().Fit(ctx, engine.Arguments{"inputs": x, "outputs": y}, nil)
	require.NoError(t, err)
	out, err := inst.Produce(ctx, engine.Arguments{"inputs": probe})
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, out[Output].(dataset.Column).Values)

	inst, err = RidgeRegression().Fit(ctx, engine.Arguments{"inputs": x, "outputs": y},
		engine.Hyperparams{"alpha": ir.Double(0)})
	require.NoError(t, err)
	out, err = inst.Produce(ctx, engine.Arguments{"inputs": probe})
	require.NoError(t, err)
	got, err := strconv.ParseFloat(out[Output].(dataset.Column).Values[0], 64)
	require.NoError(t, err)
	assert.InDelta(t, 21, got, 1e-9)

	// The penalty shrinks the slope toward zero.
	inst, err = RidgeRegression().Fit(ctx, engine.Arguments{"inputs": x, "outputs": y},
		engine.Hyperparams{"alpha": ir.Double(5)})
	require.NoError(t, err)
	out, err = inst.Produce(ctx, engine.Arguments{"inputs": probe})
	require.NoError(t, err)
	shrunk, err := strconv.ParseFloat(out[Output].(dataset.Column).Values[0], 64)
	require.NoError(t, err)
	assert.Less(t, shrunk, got)

	_, err = RidgeRegression().Fit(ctx, engine.Arguments{"inputs": x, "outputs": y},
		engine.Hyperparams{"alpha": ir.Double(-1)})
	assert.Error(t, err)

	bad := dataset.Column{Name: "y", Values: []string{"1", "x", "5", "7"}}
	_, err = MeanRegressor().Fit(ctx, engine.Arguments{"inputs": x, "outputs": bad}, nil)
	assert.Error(t, err)
}

func TestRidgeSingularWithoutPenalty(t *testing.T) {
	x := &dataset.Matrix{Columns: []string{"a", "b"}, Values: [][]float64{{1, 2}, {2, 4}, {3, 6}}}
	y := dataset.Column{Name: "y", Values: []string{"1", "2", "3"}}
	_, err := RidgeRegression().Fit(context.Background(), engine.Arguments{"inputs": x, "outputs": y},
		engine.Hyperparams{"alpha": ir.Double(0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "singular")
}

func TestStateRoundTrip(t *testing.T) {
	x, y := toyMatrix()
	args := engine.Arguments{"inputs": x, "outputs": y}
	numeric := dataset.Column{Name: "v", Values: []string{"1", "2", "3", "4", "5", "6"}}

	tests := []struct {
		prim engine.Primitive
		args engine.Arguments
	}{
		{NearestCentroid(), args},
		{KNearestNeighbors(), args},
		{MajorityClass(), args},
		{MeanImputer(), args},
		{StandardScaler(), args},
		{MeanRegressor(), engine.Arguments{"inputs": x, "outputs": numeric}},
		{RidgeRegression(), engine.Arguments{"inputs": x, "outputs": numeric}},
	}

	for _, tt := range tests {
		t.Run(tt.prim.Descriptor().Name, func(t *testing.T) {
			inst, want := fit(t, tt.prim, tt.args, nil)
			state, err := inst.MarshalBinary()
			require.NoError(t, err)

			restored, err := tt.prim.Restore(state)
			require.NoError(t, err)
			got, err := restored.Produce(context.Background(), tt.args)
			require.NoError(t, err)
			assert.Equal(t, want, got[Output])
		})
	}

	_, err := NearestCentroid().Restore([]byte("not json"))
	assert.Error(t, err)
}

func TestFitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x, y := toyMatrix()
	_, err := MajorityClass().Fit(ctx, engine.Arguments{"inputs": x, "outputs": y}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

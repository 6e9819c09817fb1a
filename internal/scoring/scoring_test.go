package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ta2/internal/problem"
)

func metric(m problem.Metric) problem.PerformanceMetric {
	return problem.PerformanceMetric{Metric: m}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		metric    problem.Metric
		truth     []string
		predicted []string
		want      float64
	}{
		{"accuracy", problem.Accuracy, []string{"a", "b", "a", "b"}, []string{"a", "b", "b", "b"}, 0.75},
		{"accuracy perfect", problem.Accuracy, []string{"x"}, []string{"x"}, 1},
		// a: tp=1 fp=0 fn=1 -> 2/3; b: tp=2 fp=1 fn=0 -> 4/5
		{"f1 macro", problem.F1Macro, []string{"a", "b", "a", "b"}, []string{"a", "b", "b", "b"}, (2.0/3 + 4.0/5) / 2},
		// c only predicted: f1 0
		{"f1 macro unseen label", problem.F1Macro, []string{"a", "a"}, []string{"a", "c"}, (2.0/3 + 0) / 2},
		{"mse", problem.MeanSquaredError, []string{"1", "2", "3"}, []string{"1", "2", "5"}, 4.0 / 3},
		{"rmse", problem.RootMeanSquaredError, []string{"0", "0"}, []string{"3", "-3"}, 3},
		{"mae", problem.MeanAbsoluteError, []string{"0", "0"}, []string{"3", "-1"}, 2},
		// mean 2, sst 2, sse 0.5
		{"r squared", problem.RSquared, []string{"1", "2", "3"}, []string{"1.5", "2", "3.5"}, 0.75},
		{"r squared constant truth exact", problem.RSquared, []string{"4", "4"}, []string{"4", "4"}, 1},
		{"r squared constant truth miss", problem.RSquared, []string{"4", "4"}, []string{"4", "5"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Score(metric(tt.metric), tt.truth, tt.predicted)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, r.Value, 1e-12)
		})
	}
}

func TestScoreErrors(t *testing.T) {
	_, err := Score(metric(problem.Accuracy), []string{"a"}, nil)
	assert.True(t, errors.Is(err, ErrLengthMismatch))

	_, err = Score(metric(problem.Accuracy), nil, nil)
	assert.Error(t, err)

	_, err = Score(metric(problem.MeanSquaredError), []string{"1"}, []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predictions")

	_, err = Score(metric("AUC"), []string{"1"}, []string{"1"})
	assert.True(t, errors.Is(err, problem.ErrUnknownMetric))
}

func TestScoreAll(t *testing.T) {
	results, err := ScoreAll(
		[]problem.PerformanceMetric{metric(problem.MeanSquaredError), metric(problem.RSquared)},
		[]string{"1", "2", "3"}, []string{"1.5", "2", "3.5"},
	)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 0.5/3, results[0].Value, 1e-12)
	assert.InDelta(t, 0.75, results[1].Value, 1e-12)
}

func TestInternalPrefersLarger(t *testing.T) {
	lowErr := Result{Metric: metric(problem.MeanSquaredError), Value: 1}
	highErr := Result{Metric: metric(problem.MeanSquaredError), Value: 2}
	assert.Greater(t, lowErr.Internal(), highErr.Internal())

	acc := Result{Metric: metric(problem.Accuracy), Value: 0.9}
	assert.Equal(t, 0.9, acc.Internal())
}

// Package scoring computes performance metrics over predictions.
//
// Truth and predictions are columns of raw cells. Classification metrics
// compare cells as labels; regression metrics parse them as floats.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/roach88/ta2/internal/problem"
)

// ErrLengthMismatch is returned when truth and predictions differ in length.
var ErrLengthMismatch = errors.New("truth and predictions differ in length")

// Result is one computed metric.
type Result struct {
	Metric problem.PerformanceMetric
	Value  float64
}

// Internal returns a ranking score where larger is always better.
func (r Result) Internal() float64 {
	if r.Metric.Metric.HigherIsBetter() {
		return r.Value
	}
	return -r.Value
}

// Score computes one metric.
func Score(m problem.PerformanceMetric, truth, predicted []string) (Result, error) {
	if len(truth) != len(predicted) {
		return Result{}, fmt.Errorf("score %s: %w: %d vs %d", m.Metric, ErrLengthMismatch, len(truth), len(predicted))
	}
	if len(truth) == 0 {
		return Result{}, fmt.Errorf("score %s: no rows", m.Metric)
	}

	var (
		v   float64
		err error
	)
	switch m.Metric {
	case problem.Accuracy:
		v = accuracy(truth, predicted)
	case problem.F1Macro:
		v = f1Macro(truth, predicted)
	case problem.MeanSquaredError, problem.RootMeanSquaredError, problem.MeanAbsoluteError, problem.RSquared:
		v, err = regression(m.Metric, truth, predicted)
	default:
		err = fmt.Errorf("%w: %q", problem.ErrUnknownMetric, m.Metric)
	}
	if err != nil {
		return Result{}, fmt.Errorf("score %s: %w", m.Metric, err)
	}
	return Result{Metric: m, Value: v}, nil
}

// ScoreAll computes every metric in order and stops at the first failure.
func ScoreAll(metrics []problem.PerformanceMetric, truth, predicted []string) ([]Result, error) {
	out := make([]Result, 0, len(metrics))
	for _, m := range metrics {
		r, err := Score(m, truth, predicted)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func accuracy(truth, predicted []string) float64 {
	hits := 0
	for i := range truth {
		if truth[i] == predicted[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}

// f1Macro averages per-label F1 over the union of observed labels.
// A label with no true or predicted positives scores 0.
func f1Macro(truth, predicted []string) float64 {
	labels := slices.Concat(truth, predicted)
	slices.Sort(labels)
	labels = slices.Compact(labels)

	var total float64
	for _, label := range labels {
		var tp, fp, fn int
		for i := range truth {
			switch {
			case truth[i] == label && predicted[i] == label:
				tp++
			case predicted[i] == label:
				fp++
			case truth[i] == label:
				fn++
			}
		}
		if denom := 2*tp + fp + fn; denom > 0 {
			total += 2 * float64(tp) / float64(denom)
		}
	}
	return total / float64(len(labels))
}

func regression(m problem.Metric, truth, predicted []string) (float64, error) {
	y, err := parseFloats(truth)
	if err != nil {
		return 0, fmt.Errorf("truth: %w", err)
	}
	yhat, err := parseFloats(predicted)
	if err != nil {
		return 0, fmt.Errorf("predictions: %w", err)
	}

	n := float64(len(y))
	var sse, sae, mean float64
	for i := range y {
		d := y[i] - yhat[i]
		sse += d * d
		sae += math.Abs(d)
		mean += y[i]
	}
	mean /= n

	switch m {
	case problem.MeanSquaredError:
		return sse / n, nil
	case problem.RootMeanSquaredError:
		return math.Sqrt(sse / n), nil
	case problem.MeanAbsoluteError:
		return sae / n, nil
	}

	var sst float64
	for _, v := range y {
		sst += (v - mean) * (v - mean)
	}
	if sst == 0 {
		if sse == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - sse/sst, nil
}

func parseFloats(cells []string) ([]float64, error) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

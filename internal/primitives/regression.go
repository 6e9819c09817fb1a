package primitives

import (
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
)

type meanState struct {
	Target string  `json:"target"`
	Mean   float64 `json:"mean"`
}

// MeanRegressor predicts the training mean of the target for every row.
func MeanRegressor() engine.Primitive {
	return &primitive[meanState]{
		ref: descriptor(PathMeanRegressor, "Mean regressor"),
		fit: func(args engine.Arguments, _ engine.Hyperparams) (meanState, error) {
			x, err := matrixArg(args)
			if err != nil {
				return meanState{}, err
			}
			y, err := numericTargets(args, x.NumRows())
			if err != nil {
				return meanState{}, err
			}
			var sum float64
			for _, v := range y.values {
				sum += v
			}
			return meanState{Target: y.name, Mean: sum / float64(len(y.values))}, nil
		},
		produce: func(s *meanState, args engine.Arguments) (any, error) {
			x, err := matrixArg(args)
			if err != nil {
				return nil, err
			}
			out := dataset.Column{Name: s.Target, Values: make([]string, x.NumRows())}
			for i := range out.Values {
				out.Values[i] = formatFloat(s.Mean)
			}
			return out, nil
		},
	}
}

type ridgeState struct {
	Target    string    `json:"target"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// RidgeRegression fits a linear model with an L2 penalty alpha on the
// weights. The intercept is not penalized.
func RidgeRegression() engine.Primitive {
	return &primitive[ridgeState]{
		ref: descriptor(PathRidgeRegression, "Ridge regression"),
		specs: []engine.HyperparamSpec{
			{Name: "alpha", Default: ir.Double(1), Description: "L2 regularization strength"},
		},
		fit: func(args engine.Arguments, hp engine.Hyperparams) (ridgeState, error) {
			x, err := matrixArg(args)
			if err != nil {
				return ridgeState{}, err
			}
			y, err := numericTargets(args, x.NumRows())
			if err != nil {
				return ridgeState{}, err
			}
			alpha := hp.Float("alpha", 1)
			if alpha < 0 {
				return ridgeState{}, fmt.Errorf("alpha must be non-negative, got %v", alpha)
			}
			w, b, err := ridge(x, y.values, alpha)
			if err != nil {
				return ridgeState{}, err
			}
			return ridgeState{Target: y.name, Weights: w, Intercept: b}, nil
		},
		produce: func(s *ridgeState, args engine.Arguments) (any, error) {
			x, err := matrixArg(args)
			if err != nil {
				return nil, err
			}
			if err := checkWidth(x, len(s.Weights)); err != nil {
				return nil, err
			}
			out := dataset.Column{Name: s.Target, Values: make([]string, x.NumRows())}
			for i, row := range x.Values {
				v := s.Intercept
				for j, w := range s.Weights {
					v += w * row[j]
				}
				out.Values[i] = formatFloat(v)
			}
			return out, nil
		},
	}
}

type floatColumn struct {
	name   string
	values []float64
}

func numericTargets(args engine.Arguments, rows int) (floatColumn, error) {
	y, err := targetsArg(args, rows)
	if err != nil {
		return floatColumn{}, err
	}
	out := floatColumn{name: y.Name, values: make([]float64, y.Len())}
	for i, cell := range y.Values {
		if out.values[i], err = strconv.ParseFloat(cell, 64); err != nil {
			return floatColumn{}, fmt.Errorf("target row %d: %w", i, err)
		}
	}
	return out, nil
}

// ridge solves (XcᵀXc + αI)w = Xcᵀyc on centered data and recovers the
// intercept from the column means.
func ridge(x *dataset.Matrix, y []float64, alpha float64) ([]float64, float64, error) {
	n, p := x.NumRows(), len(x.Columns)
	xMean := make([]float64, p)
	for j := range xMean {
		xMean[j], _ = x.ColumnStats(j)
	}
	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	a := make([][]float64, p)
	rhs := make([]float64, p)
	for j := range a {
		a[j] = make([]float64, p)
		a[j][j] = alpha
	}
	for i := 0; i < n; i++ {
		row := x.Values[i]
		for j := 0; j < p; j++ {
			xj := row[j] - xMean[j]
			rhs[j] += xj * (y[i] - yMean)
			for k := 0; k < p; k++ {
				a[j][k] += xj * (row[k] - xMean[k])
			}
		}
	}

	w, err := solve(a, rhs)
	if err != nil {
		return nil, 0, err
	}
	b := yMean
	for j := range w {
		b -= w[j] * xMean[j]
	}
	return w, b, nil
}

// solve runs Gaussian elimination with partial pivoting. a and b are
// overwritten.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular system; increase alpha")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		s := b[r]
		for c := r + 1; c < n; c++ {
			s -= a[r][c] * x[c]
		}
		x[r] = s / a[r][r]
	}
	return x, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

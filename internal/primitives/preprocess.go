package primitives

import (
	"fmt"
	"math"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
)

type imputerState struct {
	Means []float64 `json:"means"`
}

// MeanImputer replaces NaN cells with the training mean of their column.
func MeanImputer() engine.Primitive {
	return &primitive[imputerState]{
		ref: descriptor(PathMeanImputer, "Mean imputer"),
		fit: func(args engine.Arguments, _ engine.Hyperparams) (imputerState, error) {
			m, err := matrixArg(args)
			if err != nil {
				return imputerState{}, err
			}
			means := make([]float64, len(m.Columns))
			for j := range means {
				means[j], _ = m.ColumnStats(j)
			}
			return imputerState{Means: means}, nil
		},
		produce: func(s *imputerState, args engine.Arguments) (any, error) {
			m, err := matrixArg(args)
			if err != nil {
				return nil, err
			}
			if err := checkWidth(m, len(s.Means)); err != nil {
				return nil, err
			}
			out := m.Clone()
			for _, row := range out.Values {
				for j, v := range row {
					if math.IsNaN(v) {
						row[j] = s.Means[j]
					}
				}
			}
			return out, nil
		},
	}
}

type scalerState struct {
	Means []float64 `json:"means"`
	Scale []float64 `json:"scale"`
}

// StandardScaler centers each column on its training mean and, with
// with_std, divides by the training standard deviation. Constant columns
// are only centered.
func StandardScaler() engine.Primitive {
	return &primitive[scalerState]{
		ref: descriptor(PathStandardScaler, "Standard scaler"),
		specs: []engine.HyperparamSpec{
			{Name: "with_std", Default: ir.Bool(true), Description: "scale to unit variance"},
		},
		fit: func(args engine.Arguments, hp engine.Hyperparams) (scalerState, error) {
			m, err := matrixArg(args)
			if err != nil {
				return scalerState{}, err
			}
			withStd := hp.Bool("with_std", true)
			s := scalerState{Means: make([]float64, len(m.Columns)), Scale: make([]float64, len(m.Columns))}
			for j := range m.Columns {
				mean, std := m.ColumnStats(j)
				s.Means[j] = mean
				s.Scale[j] = 1
				if withStd && std > 0 {
					s.Scale[j] = std
				}
			}
			return s, nil
		},
		produce: func(s *scalerState, args engine.Arguments) (any, error) {
			m, err := matrixArg(args)
			if err != nil {
				return nil, err
			}
			if err := checkWidth(m, len(s.Means)); err != nil {
				return nil, err
			}
			out := m.Clone()
			for _, row := range out.Values {
				for j := range row {
					row[j] = (row[j] - s.Means[j]) / s.Scale[j]
				}
			}
			return out, nil
		},
	}
}

func checkWidth(m *dataset.Matrix, want int) error {
	if len(m.Columns) != want {
		return fmt.Errorf("inputs have %d columns, fitted on %d", len(m.Columns), want)
	}
	return nil
}

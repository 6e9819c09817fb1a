package primitives

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
)

// DatasetToFrame converts a *dataset.Dataset into a *dataset.Frame.
func DatasetToFrame() engine.Primitive {
	return &primitive[none]{
		ref: descriptor(PathDatasetToFrame, "Dataset to frame"),
		fit: func(args engine.Arguments, _ engine.Hyperparams) (none, error) {
			_, err := arg[*dataset.Dataset](args, "inputs")
			return none{}, err
		},
		produce: func(_ *none, args engine.Arguments) (any, error) {
			d, err := arg[*dataset.Dataset](args, "inputs")
			if err != nil {
				return nil, err
			}
			return d.Frame(), nil
		},
	}
}

type attributesState struct {
	Columns []string `json:"columns"`
}

// ExtractAttributes selects the numeric columns of a frame, other than the
// target, into a matrix. A column is numeric when every non-empty cell
// parses as a float in the training frame. Unparseable cells become NaN.
func ExtractAttributes() engine.Primitive {
	return &primitive[attributesState]{
		ref: descriptor(PathExtractAttributes, "Extract attributes"),
		specs: []engine.HyperparamSpec{
			{Name: "target", Default: ir.String(""), Description: "column excluded from the attributes"},
		},
		fit: func(args engine.Arguments, hp engine.Hyperparams) (attributesState, error) {
			f, err := arg[*dataset.Frame](args, "inputs")
			if err != nil {
				return attributesState{}, err
			}
			target := hp.String("target", "")
			var cols []string
			for j, name := range f.Columns {
				if name != target && numericColumn(f, j) {
					cols = append(cols, name)
				}
			}
			if len(cols) == 0 {
				return attributesState{}, fmt.Errorf("no numeric attribute columns")
			}
			return attributesState{Columns: cols}, nil
		},
		produce: func(s *attributesState, args engine.Arguments) (any, error) {
			f, err := arg[*dataset.Frame](args, "inputs")
			if err != nil {
				return nil, err
			}
			idx := make([]int, len(s.Columns))
			for k, name := range s.Columns {
				if idx[k] = slices.Index(f.Columns, name); idx[k] < 0 {
					return nil, fmt.Errorf("%w %q", dataset.ErrUnknownColumn, name)
				}
			}
			m := &dataset.Matrix{Columns: slices.Clone(s.Columns), Values: make([][]float64, len(f.Rows))}
			for i, row := range f.Rows {
				m.Values[i] = make([]float64, len(idx))
				for k, j := range idx {
					m.Values[i][k] = parseCell(row[j])
				}
			}
			return m, nil
		},
	}
}

type targetsState struct {
	Column string `json:"column"`
}

// ExtractTargets selects the target column of a frame. At produce time a
// frame without the target column yields empty cells, so pipelines run on
// data whose targets are unknown.
func ExtractTargets() engine.Primitive {
	return &primitive[targetsState]{
		ref: descriptor(PathExtractTargets, "Extract targets"),
		specs: []engine.HyperparamSpec{
			{Name: "target", Default: ir.String(""), Description: "target column name"},
		},
		fit: func(args engine.Arguments, hp engine.Hyperparams) (targetsState, error) {
			f, err := arg[*dataset.Frame](args, "inputs")
			if err != nil {
				return targetsState{}, err
			}
			target := hp.String("target", "")
			if target == "" {
				return targetsState{}, fmt.Errorf("target hyperparameter is required")
			}
			if !slices.Contains(f.Columns, target) {
				return targetsState{}, fmt.Errorf("%w %q", dataset.ErrUnknownColumn, target)
			}
			return targetsState{Column: target}, nil
		},
		produce: func(s *targetsState, args engine.Arguments) (any, error) {
			f, err := arg[*dataset.Frame](args, "inputs")
			if err != nil {
				return nil, err
			}
			col := dataset.Column{Name: s.Column, Values: make([]string, len(f.Rows))}
			j := slices.Index(f.Columns, s.Column)
			if j < 0 {
				return col, nil
			}
			for i, row := range f.Rows {
				col.Values[i] = row[j]
			}
			return col, nil
		},
	}
}

func numericColumn(f *dataset.Frame, j int) bool {
	seen := false
	for _, row := range f.Rows {
		if row[j] == "" {
			continue
		}
		if _, err := strconv.ParseFloat(row[j], 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

func parseCell(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

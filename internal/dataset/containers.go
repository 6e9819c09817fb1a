package dataset

import (
	"math"
	"slices"
)

// Frame is a table of raw cells passed between data-preparation steps.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// Matrix is a dense numeric table. NaN marks a missing cell.
type Matrix struct {
	Columns []string
	Values  [][]float64
}

// NumRows returns the number of rows.
func (m *Matrix) NumRows() int { return len(m.Values) }

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	out := &Matrix{Columns: slices.Clone(m.Columns), Values: make([][]float64, len(m.Values))}
	for i, row := range m.Values {
		out.Values[i] = slices.Clone(row)
	}
	return out
}

// ColumnStats returns the mean and population standard deviation of column
// j, ignoring NaN cells. A column with no values has mean and std 0.
func (m *Matrix) ColumnStats(j int) (mean, std float64) {
	var sum, sq float64
	n := 0
	for _, row := range m.Values {
		if v := row[j]; !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)
	for _, row := range m.Values {
		if v := row[j]; !math.IsNaN(v) {
			sq += (v - mean) * (v - mean)
		}
	}
	return mean, math.Sqrt(sq / float64(n))
}

// Column is a single named column of raw cells. Targets and predictions
// travel as columns.
type Column struct {
	Name   string
	Values []string
}

// Len returns the number of cells.
func (c Column) Len() int { return len(c.Values) }

// Package dataset holds tabular datasets and the container types primitives
// pass between steps.
//
// Datasets are immutable once loaded: the loader shares one instance between
// every caller that asks for the same URI.
package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/go-playground/validator/v10"
)

// ErrUnknownColumn is returned when a column name is not in the dataset.
var ErrUnknownColumn = errors.New("unknown column")

// Dataset is a table of raw cells. An empty cell is a missing value.
type Dataset struct {
	ID      string     `yaml:"id" validate:"required"`
	Name    string     `yaml:"name,omitempty"`
	Columns []string   `yaml:"columns" validate:"required,min=1,unique,dive,required"`
	Rows    [][]string `yaml:"rows"`
}

var validate = validator.New()

// Validate checks the header and that every row is as wide as the header.
func (d *Dataset) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid dataset: %w", err)
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("invalid dataset %s: row %d has %d cells, want %d",
				d.ID, i, len(row), len(d.Columns))
		}
	}
	return nil
}

// NumRows returns the number of rows.
func (d *Dataset) NumRows() int { return len(d.Rows) }

// ColumnIndex returns the position of the named column.
func (d *Dataset) ColumnIndex(name string) (int, error) {
	i := slices.Index(d.Columns, name)
	if i < 0 {
		return -1, fmt.Errorf("%w %q in dataset %s", ErrUnknownColumn, name, d.ID)
	}
	return i, nil
}

// Column returns a copy of the named column.
func (d *Dataset) Column(name string) (Column, error) {
	idx, err := d.ColumnIndex(name)
	if err != nil {
		return Column{}, err
	}
	values := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		values[i] = row[idx]
	}
	return Column{Name: name, Values: values}, nil
}

// Subset returns a dataset with the given rows, in the given order.
func (d *Dataset) Subset(id string, rows []int) *Dataset {
	out := &Dataset{
		ID:      id,
		Name:    d.Name,
		Columns: slices.Clone(d.Columns),
		Rows:    make([][]string, len(rows)),
	}
	for i, r := range rows {
		out.Rows[i] = slices.Clone(d.Rows[r])
	}
	return out
}

// Frame returns the dataset as a frame.
func (d *Dataset) Frame() *Frame {
	f := &Frame{Columns: slices.Clone(d.Columns), Rows: make([][]string, len(d.Rows))}
	for i, row := range d.Rows {
		f.Rows[i] = slices.Clone(row)
	}
	return f
}

// Split partitions the rows into train and holdout sets. The holdout holds
// round(ratio*n) rows, at least one, chosen by a permutation seeded with
// seed; both parts keep the original row order. The same inputs always
// produce the same split.
func (d *Dataset) Split(ratio float64, seed uint64) (train, holdout *Dataset, err error) {
	n := d.NumRows()
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("split %s: ratio %v outside (0, 1)", d.ID, ratio)
	}
	if n < 2 {
		return nil, nil, fmt.Errorf("split %s: need at least 2 rows, have %d", d.ID, n)
	}

	size := int(ratio*float64(n) + 0.5)
	size = max(1, min(size, n-1))

	perm := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Perm(n)
	held := perm[:size]
	kept := perm[size:]
	slices.Sort(held)
	slices.Sort(kept)

	return d.Subset(d.ID+"_TRAIN", kept), d.Subset(d.ID+"_TEST", held), nil
}

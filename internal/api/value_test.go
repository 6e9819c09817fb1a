package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ta2/internal/ir"
)

func TestValueRoundTripThroughCodec(t *testing.T) {
	values := []ir.Value{
		ir.Int64(-3),
		ir.Double(0.5),
		ir.Bool(true),
		ir.String("euclidean"),
		ir.Bytes("raw"),
		ir.Int64List{1, 2},
		ir.Int64List{},
		ir.DoubleList{},
		ir.BoolList{false},
		ir.StringList{},
		ir.BytesList{[]byte("x")},
	}

	c := codec{}
	for _, v := range values {
		t.Run(ir.Tag(v), func(t *testing.T) {
			data, err := c.Marshal(ValueOf(v))
			require.NoError(t, err)

			var back Value
			require.NoError(t, c.Unmarshal(data, &back))
			got, err := back.IR(ir.KindInvalid)
			require.NoError(t, err)
			assert.True(t, ir.Equal(v, got), "got %#v from %s", got, data)
		})
	}
}

func TestEmptyListKeepsWireTag(t *testing.T) {
	data, err := codec{}.Marshal(ValueOf(ir.Int64List(nil)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"int64_list":[]}`, string(data))
}

func TestUntypedListKinds(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		declared ir.Kind
		want     ir.Value
	}{
		{"empty without declared kind", `{"list":[]}`, ir.KindInvalid, ir.StringList{}},
		{"empty with declared kind", `{"list":[]}`, ir.KindInt64, ir.Int64List{}},
		{"inferred strings", `{"list":["a","b"]}`, ir.KindInvalid, ir.StringList{"a", "b"}},
		{"numbers are doubles", `{"list":[1,2]}`, ir.KindInt64, ir.DoubleList{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, codec{}.Unmarshal([]byte(tt.data), &v))
			got, err := v.IR(tt.declared)
			require.NoError(t, err)
			assert.True(t, ir.Equal(tt.want, got), "got %#v", got)
		})
	}
}

func TestValueErrors(t *testing.T) {
	_, err := Value{}.IR(ir.KindInvalid)
	assert.ErrorIs(t, err, ErrEmptyValue)

	n, s := int64(1), "x"
	_, err = Value{Int64: &n, String: &s}.IR(ir.KindInvalid)
	assert.ErrorContains(t, err, "2 fields")

	_, err = DatasetURIValue("file:///d.csv").IR(ir.KindInvalid)
	assert.ErrorContains(t, err, "not a literal")

	var mixed Value
	require.NoError(t, codec{}.Unmarshal([]byte(`{"list":[1,"a"]}`), &mixed))
	_, err = mixed.IR(ir.KindInvalid)
	assert.Error(t, err)
}

func TestDatasetURIValue(t *testing.T) {
	uri, ok := DatasetURIValue("file:///tmp/toy.csv").URI()
	assert.True(t, ok)
	assert.Equal(t, "file:///tmp/toy.csv", uri)

	_, ok = StringListValue(nil).URI()
	assert.False(t, ok)
	assert.Equal(t, []string{}, *StringListValue(nil).StringList)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(&HelloRequest{}))
	assert.NoError(t, Validate(&EndSearchSolutionsRequest{SearchID: "s"}))

	err := Validate(&EndSearchSolutionsRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "SearchID")

	err = Validate(&SearchSolutionsRequest{
		Problem: &ProblemDescription{Problem: Problem{ID: "p", TaskType: "CLASSIFICATION"}},
		Inputs:  []Value{DatasetURIValue("toy")},
	})
	require.Error(t, err, "problem without inputs")
	assert.True(t, IsValidationError(err))

	err = Validate(&SearchSolutionsRequest{
		Problem: &ProblemDescription{
			Problem: Problem{ID: "p", TaskType: "CLASSIFICATION"},
			Inputs:  []ProblemInput{{Targets: []ProblemTarget{{ColumnName: "label"}}}},
		},
		Inputs:    []Value{DatasetURIValue("toy")},
		TimeBound: 1,
	})
	assert.NoError(t, err)
}

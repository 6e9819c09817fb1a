package api

import (
	"errors"
	"fmt"

	"github.com/roach88/ta2/internal/ir"
)

// Value is the wire form of a value: exactly one field is set.
//
// The typed list fields keep their kind even when empty. List carries an
// untyped list whose kind is inferred from its elements, or taken from the
// declared kind of the receiving hyperparameter when it is empty. Numbers
// in an untyped list decode as doubles.
type Value struct {
	Int64      *int64     `json:"int64,omitempty"`
	Double     *float64   `json:"double,omitempty"`
	Bool       *bool      `json:"bool,omitempty"`
	String     *string    `json:"string,omitempty"`
	Bytes      *[]byte    `json:"bytes,omitempty"`
	Int64List  *[]int64   `json:"int64_list,omitempty"`
	DoubleList *[]float64 `json:"double_list,omitempty"`
	BoolList   *[]bool    `json:"bool_list,omitempty"`
	StringList *[]string  `json:"string_list,omitempty"`
	BytesList  *[][]byte  `json:"bytes_list,omitempty"`
	List       *[]any     `json:"list,omitempty"`
	DatasetURI *string    `json:"dataset_uri,omitempty"`
	Error      *string    `json:"error,omitempty"`
}

// ErrEmptyValue is returned when no field of a Value is set.
var ErrEmptyValue = errors.New("value has no field set")

// ValueOf converts a value to its wire form.
func ValueOf(v ir.Value) Value {
	switch val := v.(type) {
	case ir.Int64:
		n := int64(val)
		return Value{Int64: &n}
	case ir.Double:
		f := float64(val)
		return Value{Double: &f}
	case ir.Bool:
		b := bool(val)
		return Value{Bool: &b}
	case ir.String:
		s := string(val)
		return Value{String: &s}
	case ir.Bytes:
		b := []byte(val)
		return Value{Bytes: &b}
	case ir.Int64List:
		l := nonNil([]int64(val))
		return Value{Int64List: &l}
	case ir.DoubleList:
		l := nonNil([]float64(val))
		return Value{DoubleList: &l}
	case ir.BoolList:
		l := nonNil([]bool(val))
		return Value{BoolList: &l}
	case ir.StringList:
		l := nonNil([]string(val))
		return Value{StringList: &l}
	case ir.BytesList:
		l := nonNil([][]byte(val))
		return Value{BytesList: &l}
	}
	msg := fmt.Sprintf("unrepresentable value %T", v)
	return Value{Error: &msg}
}

// DatasetURIValue wraps a dataset URI.
func DatasetURIValue(uri string) Value {
	return Value{DatasetURI: &uri}
}

// StringListValue wraps a string list.
func StringListValue(items []string) Value {
	l := nonNil(items)
	return Value{StringList: &l}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// IR converts v to a value. declared is the kind of the receiving
// hyperparameter, consulted only for empty untyped lists; with
// ir.KindInvalid an empty untyped list becomes a string list.
func (v Value) IR(declared ir.Kind) (ir.Value, error) {
	if n := v.fields(); n != 1 {
		if n == 0 {
			return nil, ErrEmptyValue
		}
		return nil, fmt.Errorf("value has %d fields set", n)
	}

	switch {
	case v.Int64 != nil:
		return ir.Int64(*v.Int64), nil
	case v.Double != nil:
		return ir.FromGo(*v.Double, declared)
	case v.Bool != nil:
		return ir.Bool(*v.Bool), nil
	case v.String != nil:
		return ir.String(*v.String), nil
	case v.Bytes != nil:
		return ir.Bytes(*v.Bytes), nil
	case v.Int64List != nil:
		return ir.Int64List(nonNil(*v.Int64List)), nil
	case v.DoubleList != nil:
		return ir.FromGo(nonNil(*v.DoubleList), ir.KindInvalid)
	case v.BoolList != nil:
		return ir.BoolList(nonNil(*v.BoolList)), nil
	case v.StringList != nil:
		return ir.StringList(nonNil(*v.StringList)), nil
	case v.BytesList != nil:
		return ir.BytesList(nonNil(*v.BytesList)), nil
	case v.List != nil:
		return ir.FromGo(nonNil(*v.List), declared)
	case v.DatasetURI != nil:
		return nil, fmt.Errorf("dataset uri %q is not a literal value", *v.DatasetURI)
	default:
		return nil, fmt.Errorf("error value: %s", *v.Error)
	}
}

// URI returns the dataset URI of v, if that is what it holds.
func (v Value) URI() (string, bool) {
	if v.DatasetURI == nil {
		return "", false
	}
	return *v.DatasetURI, true
}

func (v Value) fields() int {
	n := 0
	for _, set := range []bool{
		v.Int64 != nil, v.Double != nil, v.Bool != nil, v.String != nil, v.Bytes != nil,
		v.Int64List != nil, v.DoubleList != nil, v.BoolList != nil, v.StringList != nil,
		v.BytesList != nil, v.List != nil, v.DatasetURI != nil, v.Error != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

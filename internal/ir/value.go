package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Kind identifies the element kind of a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt64
	KindDouble
	KindBool
	KindString
	KindBytes
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "invalid"
	}
}

// ParseKind maps a wire name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "int64":
		return KindInt64, nil
	case "double":
		return KindDouble, nil
	case "bool":
		return KindBool, nil
	case "string":
		return KindString, nil
	case "bytes":
		return KindBytes, nil
	}
	return KindInvalid, fmt.Errorf("unknown value kind %q", s)
}

// Value is a sealed tagged union over int64, double, bool, string and bytes
// plus their homogeneous list forms.
// Only the ten types declared in this file implement it.
type Value interface {
	// Kind returns the scalar kind, or the element kind for lists.
	Kind() Kind
	// IsList reports whether the value is a list form.
	IsList() bool
	value() // sealed
}

// Scalar forms.
type (
	Int64  int64
	Double float64
	Bool   bool
	String string
	Bytes  []byte
)

// List forms. Homogeneity holds because each list has exactly one element type.
type (
	Int64List  []int64
	DoubleList []float64
	BoolList   []bool
	StringList []string
	BytesList  [][]byte
)

func (Int64) Kind() Kind      { return KindInt64 }
func (Double) Kind() Kind     { return KindDouble }
func (Bool) Kind() Kind       { return KindBool }
func (String) Kind() Kind     { return KindString }
func (Bytes) Kind() Kind      { return KindBytes }
func (Int64List) Kind() Kind  { return KindInt64 }
func (DoubleList) Kind() Kind { return KindDouble }
func (BoolList) Kind() Kind   { return KindBool }
func (StringList) Kind() Kind { return KindString }
func (BytesList) Kind() Kind  { return KindBytes }

func (Int64) IsList() bool      { return false }
func (Double) IsList() bool     { return false }
func (Bool) IsList() bool       { return false }
func (String) IsList() bool     { return false }
func (Bytes) IsList() bool      { return false }
func (Int64List) IsList() bool  { return true }
func (DoubleList) IsList() bool { return true }
func (BoolList) IsList() bool   { return true }
func (StringList) IsList() bool { return true }
func (BytesList) IsList() bool  { return true }

func (Int64) value()      {}
func (Double) value()     {}
func (Bool) value()       {}
func (String) value()     {}
func (Bytes) value()      {}
func (Int64List) value()  {}
func (DoubleList) value() {}
func (BoolList) value()   {}
func (StringList) value() {}
func (BytesList) value()  {}

// Tag returns the oneof field name used on the wire, e.g. "int64" or
// "double_list".
func Tag(v Value) string {
	if v == nil {
		return ""
	}
	if v.IsList() {
		return v.Kind().String() + "_list"
	}
	return v.Kind().String()
}

// EmptyList returns the empty list form of the given kind.
// KindInvalid falls back to a string list, matching what TA3 clients expect
// when nothing else is known.
func EmptyList(k Kind) Value {
	switch k {
	case KindInt64:
		return Int64List{}
	case KindDouble:
		return DoubleList{}
	case KindBool:
		return BoolList{}
	case KindBytes:
		return BytesList{}
	default:
		return StringList{}
	}
}

// Len returns the number of elements of a list value, or 1 for scalars.
func Len(v Value) int {
	switch val := v.(type) {
	case Int64List:
		return len(val)
	case DoubleList:
		return len(val)
	case BoolList:
		return len(val)
	case StringList:
		return len(val)
	case BytesList:
		return len(val)
	case nil:
		return 0
	default:
		return 1
	}
}

// Equal reports whether two values have the same tag and contents.
func Equal(a, b Value) bool {
	if Tag(a) != Tag(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// FromGo converts a native Go value into a Value.
//
// declared is the hyperparameter's declared kind. It is consulted only when
// v is an empty list, which carries no sample to infer from; pass
// KindInvalid when nothing is declared.
func FromGo(v any, declared Kind) (Value, error) {
	switch val := v.(type) {
	case Value:
		if val.IsList() && Len(val) == 0 && declared != KindInvalid {
			return EmptyList(declared), nil
		}
		return val, nil
	case int:
		return Int64(val), nil
	case int32:
		return Int64(val), nil
	case int64:
		return Int64(val), nil
	case float32:
		return checkFinite(Double(val))
	case float64:
		return checkFinite(Double(val))
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case []byte:
		return Bytes(val), nil
	case []int:
		out := make(Int64List, len(val))
		for i, n := range val {
			out[i] = int64(n)
		}
		return emptyOr(out, declared), nil
	case []int64:
		return emptyOr(Int64List(val), declared), nil
	case []float64:
		for _, f := range val {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("non-finite double %v in list", f)
			}
		}
		return emptyOr(DoubleList(val), declared), nil
	case []bool:
		return emptyOr(BoolList(val), declared), nil
	case []string:
		return emptyOr(StringList(val), declared), nil
	case [][]byte:
		return emptyOr(BytesList(val), declared), nil
	case []any:
		return listFromAny(val, declared)
	case nil:
		return nil, fmt.Errorf("nil has no value representation")
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func emptyOr(v Value, declared Kind) Value {
	if Len(v) == 0 && declared != KindInvalid {
		return EmptyList(declared)
	}
	return v
}

func checkFinite(d Double) (Value, error) {
	f := float64(d)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite double %v", f)
	}
	return d, nil
}

// listFromAny infers the list kind from the first element and requires every
// other element to have the same kind.
func listFromAny(items []any, declared Kind) (Value, error) {
	if len(items) == 0 {
		return EmptyList(declared), nil
	}
	first, err := FromGo(items[0], KindInvalid)
	if err != nil {
		return nil, fmt.Errorf("list[0]: %w", err)
	}
	if first.IsList() {
		return nil, fmt.Errorf("nested lists are not representable")
	}
	kind := first.Kind()
	out := EmptyList(kind)
	for i, item := range items {
		elem, err := FromGo(item, KindInvalid)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		if elem.IsList() || elem.Kind() != kind {
			return nil, fmt.Errorf("list[%d]: %s element in %s list", i, elem.Kind(), kind)
		}
		out = appendScalar(out, elem)
	}
	return out, nil
}

func appendScalar(list Value, elem Value) Value {
	switch l := list.(type) {
	case Int64List:
		return append(l, int64(elem.(Int64)))
	case DoubleList:
		return append(l, float64(elem.(Double)))
	case BoolList:
		return append(l, bool(elem.(Bool)))
	case StringList:
		return append(l, string(elem.(String)))
	case BytesList:
		return append(l, []byte(elem.(Bytes)))
	}
	return list
}

// ToGo returns the native Go form of a Value.
func ToGo(v Value) any {
	switch val := v.(type) {
	case Int64:
		return int64(val)
	case Double:
		return float64(val)
	case Bool:
		return bool(val)
	case String:
		return string(val)
	case Bytes:
		return []byte(val)
	case Int64List:
		return []int64(val)
	case DoubleList:
		return []float64(val)
	case BoolList:
		return []bool(val)
	case StringList:
		return []string(val)
	case BytesList:
		return [][]byte(val)
	}
	return nil
}

// AsFloat64 reads a numeric scalar as float64.
func AsFloat64(v Value) (float64, bool) {
	switch val := v.(type) {
	case Double:
		return float64(val), true
	case Int64:
		return float64(val), true
	}
	return 0, false
}

// MarshalValue encodes a Value as a single-key object keyed by its tag,
// e.g. {"int64":5} or {"string_list":["a","b"]}.
func MarshalValue(v Value) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("marshal value: nil value")
	}
	if d, ok := v.(Double); ok {
		if _, err := checkFinite(d); err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
	}
	if l, ok := v.(DoubleList); ok {
		if _, err := FromGo([]float64(l), KindDouble); err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
	}
	payload, err := json.Marshal(ToGo(v))
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	// A nil slice encodes as null; lists are always arrays on the wire.
	if v.IsList() && bytes.Equal(payload, []byte("null")) {
		payload = []byte("[]")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	tag, _ := json.Marshal(Tag(v))
	buf.Write(tag)
	buf.WriteByte(':')
	buf.Write(payload)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalValue decodes the single-key tagged form produced by MarshalValue.
func UnmarshalValue(data []byte) (Value, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	if len(raw) != 1 {
		return nil, fmt.Errorf("unmarshal value: expected exactly one tag, got %d", len(raw))
	}
	for tag, payload := range raw {
		return decodeTagged(tag, payload)
	}
	return nil, fmt.Errorf("unmarshal value: empty object")
}

func decodeTagged(tag string, payload json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	switch tag {
	case "int64":
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, fmt.Errorf("int64: %w", err)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("int64: %w", err)
		}
		return Int64(i), nil
	case "double":
		var f float64
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, fmt.Errorf("double: %w", err)
		}
		return Double(f), nil
	case "bool":
		var b bool
		if err := json.Unmarshal(payload, &b); err != nil {
			return nil, fmt.Errorf("bool: %w", err)
		}
		return Bool(b), nil
	case "string":
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("string: %w", err)
		}
		return String(s), nil
	case "bytes":
		var b []byte
		if err := json.Unmarshal(payload, &b); err != nil {
			return nil, fmt.Errorf("bytes: %w", err)
		}
		return Bytes(b), nil
	case "int64_list":
		var ns []json.Number
		if err := dec.Decode(&ns); err != nil {
			return nil, fmt.Errorf("int64_list: %w", err)
		}
		out := make(Int64List, len(ns))
		for i, n := range ns {
			v, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("int64_list[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case "double_list":
		out := DoubleList{}
		if err := json.Unmarshal(payload, (*[]float64)(&out)); err != nil {
			return nil, fmt.Errorf("double_list: %w", err)
		}
		return out, nil
	case "bool_list":
		out := BoolList{}
		if err := json.Unmarshal(payload, (*[]bool)(&out)); err != nil {
			return nil, fmt.Errorf("bool_list: %w", err)
		}
		return out, nil
	case "string_list":
		out := StringList{}
		if err := json.Unmarshal(payload, (*[]string)(&out)); err != nil {
			return nil, fmt.Errorf("string_list: %w", err)
		}
		return out, nil
	case "bytes_list":
		out := BytesList{}
		if err := json.Unmarshal(payload, (*[][]byte)(&out)); err != nil {
			return nil, fmt.Errorf("bytes_list: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown value tag %q", tag)
}

// Literal embeds a Value in JSON documents.
type Literal struct {
	Value Value
}

// MarshalJSON implements json.Marshaler.
func (l Literal) MarshalJSON() ([]byte, error) {
	return MarshalValue(l.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Literal) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	l.Value = v
	return nil
}

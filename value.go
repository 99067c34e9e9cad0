package confidence

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "unknown"
}

// Value is a loosely typed JSON-like value as returned by flag resolution.
//
// It is a closed sum over {Null, Bool, Number, String, List, Map}. Navigation
// and type coercion are implemented as switches over Kind, so a value can
// distinguish "property absent" from "property is null" from "property has
// the wrong container type".
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	l    []Value
	m    map[string]Value
}

func NullValue() Value                  { return Value{kind: KindNull} }
func BoolValue(b bool) Value            { return Value{kind: KindBool, b: b} }
func NumberValue(n float64) Value       { return Value{kind: KindNumber, n: n} }
func StringValue(s string) Value        { return Value{kind: KindString, s: s} }
func ListValue(l []Value) Value         { return Value{kind: KindList, l: l} }
func MapValue(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind            { return v.kind }
func (v Value) Bool() bool            { return v.b }
func (v Value) Number() float64       { return v.n }
func (v Value) Str() string           { return v.s }
func (v Value) List() []Value         { return v.l }
func (v Value) Map() map[string]Value { return v.m }

// String implements [fmt.Stringer] for all variants, not just the string
// one; use Str to read the string variant's value.
func (v Value) String() string { return v.displayString() }

// At returns the child value for key if the value is a map and the key is
// present. The second return distinguishes a missing key (or a non-map
// receiver) from a present-but-null child.
func (v Value) At(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	child, ok := v.m[key]
	return child, ok
}

// Navigate walks the value by a property path, treating any non-map value
// encountered before the path is exhausted as "not found".
func (v Value) Navigate(path []string) (Value, bool) {
	current := v
	for _, segment := range path {
		child, ok := current.At(segment)
		if !ok {
			return Value{}, false
		}
		current = child
	}
	return current, true
}

// UnmarshalJSON decodes arbitrary JSON into the tagged representation.
// Numbers are kept as float64, matching the default JSON number mapping.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = valueFromInterface(raw)
	return nil
}

// MarshalJSON renders the canonical JSON text of the value. This is the text
// form handed to structured decoding when a caller requests a complex type.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toInterface())
}

func valueFromInterface(raw interface{}) Value {
	switch val := raw.(type) {
	case nil:
		return NullValue()
	case bool:
		return BoolValue(val)
	case float64:
		return NumberValue(val)
	case string:
		return StringValue(val)
	case []interface{}:
		list := make([]Value, len(val))
		for i, item := range val {
			list[i] = valueFromInterface(item)
		}
		return ListValue(list)
	case map[string]interface{}:
		m := make(map[string]Value, len(val))
		for k, item := range val {
			m[k] = valueFromInterface(item)
		}
		return MapValue(m)
	default:
		// json.Unmarshal into interface{} only produces the cases above.
		return NullValue()
	}
}

func (v Value) toInterface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		list := make([]interface{}, len(v.l))
		for i, item := range v.l {
			list[i] = item.toInterface()
		}
		return list
	case KindMap:
		m := make(map[string]interface{}, len(v.m))
		for k, item := range v.m {
			m[k] = item.toInterface()
		}
		return m
	default:
		return nil
	}
}

// displayString renders scalars for string coercion and error messages.
func (v Value) displayString() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	case KindNull:
		return "null"
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}

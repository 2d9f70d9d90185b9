package survey

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueType identifies the canonical representation held by a Value.
type ValueType uint8

const (
	ValueNone ValueType = iota
	ValueBoolean
	ValueInteger
	ValueNumber
	ValueText
)

func (t ValueType) String() string {
	switch t {
	case ValueBoolean:
		return "boolean"
	case ValueInteger:
		return "integer"
	case ValueNumber:
		return "number"
	case ValueText:
		return "text"
	default:
		return "none"
	}
}

// ParseValueType is the inverse of ValueType.String.
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "boolean":
		return ValueBoolean, nil
	case "integer":
		return ValueInteger, nil
	case "number":
		return ValueNumber, nil
	case "text":
		return ValueText, nil
	default:
		return ValueNone, fmt.Errorf("unknown value type %q", s)
	}
}

// Value is a canonical typed answer value.
// The zero Value is "absent" and is never equal to false, 0 or "".
type Value struct {
	typ ValueType
	b   bool
	i   int64
	f   float64
	s   string
}

func BoolValue(b bool) Value      { return Value{typ: ValueBoolean, b: b} }
func IntValue(i int64) Value      { return Value{typ: ValueInteger, i: i} }
func NumberValue(f float64) Value { return Value{typ: ValueNumber, f: f} }
func TextValue(s string) Value    { return Value{typ: ValueText, s: s} }

// ValueOf converts a decoded JSON/YAML scalar into a Value.
// Returns false for nil, collections and other non-scalar input.
func ValueOf(v any) (Value, bool) {
	switch x := v.(type) {
	case Value:
		return x, x.typ != ValueNone
	case bool:
		return BoolValue(x), true
	case string:
		return TextValue(x), true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return IntValue(i), true
		}
		if f, err := x.Float64(); err == nil {
			return NumberValue(f), true
		}
		return Value{}, false
	case float32:
		return NumberValue(float64(x)), true
	case float64:
		return NumberValue(x), true
	}
	if i, ok := toInt64(v); ok {
		return IntValue(i), true
	}
	return Value{}, false
}

func (v Value) Type() ValueType { return v.typ }

// Present reports whether v holds a value.
func (v Value) Present() bool { return v.typ != ValueNone }

func (v Value) AsBool() (bool, bool) { return v.b, v.typ == ValueBoolean }

func (v Value) AsText() (string, bool) { return v.s, v.typ == ValueText }

// AsInt returns integer values, and number values that are whole.
func (v Value) AsInt() (int64, bool) {
	switch v.typ {
	case ValueInteger:
		return v.i, true
	case ValueNumber:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			return int64(v.f), true
		}
	}
	return 0, false
}

// AsFloat returns the numeric value of integer and number values.
func (v Value) AsFloat() (float64, bool) {
	switch v.typ {
	case ValueInteger:
		return float64(v.i), true
	case ValueNumber:
		return v.f, true
	}
	return 0, false
}

// Any returns the plain Go value (bool, int64, float64, string or nil).
func (v Value) Any() any {
	switch v.typ {
	case ValueBoolean:
		return v.b
	case ValueInteger:
		return v.i
	case ValueNumber:
		return v.f
	case ValueText:
		return v.s
	default:
		return nil
	}
}

// Equal compares numerically when both sides are numeric, otherwise by type and content.
func (v Value) Equal(o Value) bool {
	if a, ok := v.AsFloat(); ok {
		b, ok := o.AsFloat()
		return ok && a == b
	}
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case ValueBoolean:
		return v.b == o.b
	case ValueText:
		return v.s == o.s
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.typ {
	case ValueBoolean:
		return strconv.FormatBool(v.b)
	case ValueInteger:
		return strconv.FormatInt(v.i, 10)
	case ValueNumber:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueText:
		return v.s
	default:
		return "<absent>"
	}
}

// MarshalJSON encodes the bare scalar; the type travels separately.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// DecodeValue restores a Value persisted as its type name plus bare JSON scalar.
func DecodeValue(typ ValueType, raw []byte) (Value, error) {
	switch typ {
	case ValueBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("decode boolean: %w", err)
		}
		return BoolValue(b), nil
	case ValueInteger:
		var i int64
		if err := json.Unmarshal(raw, &i); err != nil {
			return Value{}, fmt.Errorf("decode integer: %w", err)
		}
		return IntValue(i), nil
	case ValueNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Value{}, fmt.Errorf("decode number: %w", err)
		}
		return NumberValue(f), nil
	case ValueText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("decode text: %w", err)
		}
		return TextValue(s), nil
	default:
		return Value{}, fmt.Errorf("cannot decode value of type %s", typ)
	}
}

// toInt64 converts Go integer kinds.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	default:
		return 0, false
	}
}

// toFloat converts any numeric scalar to float64. Strings are not converted.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case Value:
		return n.AsFloat()
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

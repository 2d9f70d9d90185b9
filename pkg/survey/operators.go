package survey

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a condition operator.
type Op string

const (
	OpEq    Op = "=="
	OpNe    Op = "!="
	OpGt    Op = ">"
	OpGe    Op = ">="
	OpLt    Op = "<"
	OpLe    Op = "<="
	OpIn    Op = "in"
	OpNotIn Op = "not_in"
)

// Condition is a predicate on a single referenced answer.
type Condition struct {
	Op      Op
	Operand Value   // for comparison operators
	Set     []Value // for in / not_in
}

// ParseCondition parses the compact catalog form: ">1", ">=0", "!=Нет", "True".
// A bare literal means equality.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Condition{}, fmt.Errorf("empty condition")
	}

	switch strings.ToLower(s) {
	case "true":
		return Condition{Op: OpEq, Operand: BoolValue(true)}, nil
	case "false":
		return Condition{Op: OpEq, Operand: BoolValue(false)}, nil
	}

	// Two-character operators first so ">=" is not read as ">" with operand "=1".
	for _, op := range []Op{OpGe, OpLe, OpNe, OpEq, OpGt, OpLt} {
		if rest, ok := strings.CutPrefix(s, string(op)); ok {
			rest = strings.TrimSpace(rest)
			if rest == "" {
				return Condition{}, fmt.Errorf("condition %q has no operand", s)
			}
			return Condition{Op: op, Operand: parseLiteral(rest)}, nil
		}
	}
	return Condition{Op: OpEq, Operand: parseLiteral(s)}, nil
}

// NewCondition builds a condition from an operator name and a decoded operand.
func NewCondition(op string, operand any) (Condition, error) {
	o := Op(strings.ToLower(strings.TrimSpace(op)))
	if o == "" {
		o = OpEq
	}
	switch o {
	case OpIn, OpNotIn:
		set, err := valueSet(operand)
		if err != nil {
			return Condition{}, err
		}
		return Condition{Op: o, Set: set}, nil
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		v, ok := ValueOf(operand)
		if !ok {
			return Condition{}, fmt.Errorf("operand %v of %q is not a scalar", operand, o)
		}
		return Condition{Op: o, Operand: v}, nil
	default:
		return Condition{}, fmt.Errorf("unsupported condition op %q", op)
	}
}

// Holds evaluates the condition against v. An absent v satisfies nothing.
func (c Condition) Holds(v Value) bool {
	if !v.Present() {
		return false
	}

	switch c.Op {
	case OpEq:
		return v.Equal(c.Operand)
	case OpNe:
		return !v.Equal(c.Operand)
	case OpGt:
		return compareNumeric(v, c.Operand, func(x, y float64) bool { return x > y })
	case OpGe:
		return compareNumeric(v, c.Operand, func(x, y float64) bool { return x >= y })
	case OpLt:
		return compareNumeric(v, c.Operand, func(x, y float64) bool { return x < y })
	case OpLe:
		return compareNumeric(v, c.Operand, func(x, y float64) bool { return x <= y })
	case OpIn:
		return inSet(v, c.Set)
	case OpNotIn:
		return !inSet(v, c.Set)
	default:
		return false
	}
}

func (c Condition) String() string {
	switch c.Op {
	case OpIn, OpNotIn:
		parts := make([]string, len(c.Set))
		for i, v := range c.Set {
			parts[i] = v.String()
		}
		return fmt.Sprintf("%s [%s]", c.Op, strings.Join(parts, ", "))
	default:
		return string(c.Op) + c.Operand.String()
	}
}

// === Helpers ===

// compareNumeric returns false unless both values are numeric.
func compareNumeric(a, b Value, cmp func(float64, float64) bool) bool {
	x, ok := a.AsFloat()
	if !ok {
		return false
	}
	y, ok := b.AsFloat()
	if !ok {
		return false
	}
	return cmp(x, y)
}

func inSet(v Value, set []Value) bool {
	for _, item := range set {
		if v.Equal(item) {
			return true
		}
	}
	return false
}

// valueSet converts a decoded list (or a single scalar) into values.
func valueSet(raw any) ([]Value, error) {
	items, ok := raw.([]any)
	if !ok {
		v, ok := ValueOf(raw)
		if !ok {
			return nil, fmt.Errorf("expected a list of values, got %T", raw)
		}
		return []Value{v}, nil
	}
	set := make([]Value, 0, len(items))
	for _, item := range items {
		v, ok := ValueOf(item)
		if !ok {
			return nil, fmt.Errorf("set member %v is not a scalar", item)
		}
		set = append(set, v)
	}
	return set, nil
}

// parseLiteral reads an operand written inline in a condition string.
func parseLiteral(s string) Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberValue(f)
	}
	switch strings.ToLower(s) {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	}
	return TextValue(s)
}

package survey

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	truthy = map[string]bool{"true": true, "1": true, "yes": true, "y": true, "да": true}
	falsy  = map[string]bool{"false": true, "0": true, "no": true, "n": true, "нет": true}
)

// CoerceValue converts a raw submitted value into the canonical Value for t.
// It checks the type only; bounds and options are separate steps.
func CoerceValue(t Type, raw any) (Value, error) {
	if v, ok := raw.(Value); ok {
		raw = v.Any()
	}
	if raw == nil {
		return Value{}, reject(KindTypeMismatch, "value is required").with("type", string(t))
	}

	switch t {
	case TypeBoolean:
		return parseBool(raw)
	case TypeInteger:
		return parseInt(raw)
	case TypeNumber:
		return parseNumber(raw)
	case TypeDropdown, TypeText:
		s, ok := raw.(string)
		if !ok {
			return Value{}, reject(KindTypeMismatch, "expected a string, got %T", raw).with("type", string(t))
		}
		return TextValue(s), nil
	default:
		return Value{}, reject(KindTypeMismatch, "unsupported question type %q", t)
	}
}

func parseBool(raw any) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return BoolValue(v), nil
	case string:
		token := strings.ToLower(strings.TrimSpace(v))
		if truthy[token] {
			return BoolValue(true), nil
		}
		if falsy[token] {
			return BoolValue(false), nil
		}
	default:
		if f, ok := toFloat(raw); ok && (f == 0 || f == 1) {
			return BoolValue(f == 1), nil
		}
	}
	return Value{}, reject(KindTypeMismatch, "invalid boolean value %v", raw).with("type", string(TypeBoolean))
}

func parseInt(raw any) (Value, error) {
	fail := func() (Value, error) {
		return Value{}, reject(KindTypeMismatch, "invalid integer value %v", raw).with("type", string(TypeInteger))
	}

	switch v := raw.(type) {
	case bool:
		return fail()
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fail()
		}
		return IntValue(i), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := v.Float64()
		if err != nil || !whole(f) {
			return fail()
		}
		return IntValue(int64(f)), nil
	case float32, float64:
		f, _ := toFloat(v)
		if !whole(f) {
			return fail()
		}
		return IntValue(int64(f)), nil
	}
	if i, ok := toInt64(raw); ok {
		return IntValue(i), nil
	}
	return fail()
}

// whole reports whether f is an integer that float64 represents exactly.
func whole(f float64) bool {
	return f == math.Trunc(f) && !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) <= 1<<53
}

func parseNumber(raw any) (Value, error) {
	var f float64
	switch v := raw.(type) {
	case bool:
		return Value{}, reject(KindTypeMismatch, "invalid number value %v", raw).with("type", string(TypeNumber))
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Value{}, reject(KindTypeMismatch, "invalid number value %q", v).with("type", string(TypeNumber))
		}
		f = parsed
	default:
		n, ok := toFloat(raw)
		if !ok {
			return Value{}, reject(KindTypeMismatch, "invalid number value %v", raw).with("type", string(TypeNumber))
		}
		f = n
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, reject(KindTypeMismatch, "number must be finite").with("type", string(TypeNumber))
	}
	return NumberValue(f), nil
}

// checkOption verifies dropdown membership against the resolved option list.
func checkOption(q *Question, v Value, snap *Snapshot) error {
	if q.Type != TypeDropdown {
		return nil
	}
	allowed, restricted := ResolveOptions(q, snap)
	if !restricted {
		return nil
	}
	s, _ := v.AsText()
	for _, opt := range allowed {
		if opt == s {
			return nil
		}
	}
	return reject(KindOptionInvalid, "value %q is not in allowed options", s).
		with("value", s).
		with("allowed", allowed)
}

// === Intrinsic rules ===

// Bound enforces literal min/max on numeric answers.
type Bound struct {
	Min *float64
	Max *float64
}

func (b *Bound) Tag() Tag     { return TagBound }
func (b *Bound) Stage() Stage { return StageIntrinsic }
func (b *Bound) Refs() []Ref  { return nil }

func (b *Bound) Check(in *Input) error {
	v, ok := in.Value.AsFloat()
	if !ok {
		return nil
	}
	if b.Min != nil && v < *b.Min {
		return reject(KindRangeViolation, "value %v is below min=%v", in.Value, fmtNum(*b.Min)).
			with("value", v).with("min", *b.Min)
	}
	if b.Max != nil && v > *b.Max {
		return reject(KindRangeViolation, "value %v is above max=%v", in.Value, fmtNum(*b.Max)).
			with("value", v).with("max", *b.Max)
	}
	return nil
}

// RefBound caps an answer at another question's current value.
// With no recorded reference there is no ceiling.
type RefBound struct {
	Ref Ref
}

func (r *RefBound) Tag() Tag     { return TagRefBound }
func (r *RefBound) Stage() Stage { return StageIntrinsic }
func (r *RefBound) Refs() []Ref  { return []Ref{r.Ref} }

func (r *RefBound) Check(in *Input) error {
	v, ok := in.Value.AsFloat()
	if !ok {
		return nil
	}
	ref, ok := in.Other(r.Ref)
	if !ok {
		return nil
	}
	ceiling, ok := ref.AsFloat()
	if !ok {
		return nil
	}
	if v > ceiling {
		return reject(KindRangeViolation, "value %v exceeds the answer to %s (%v)", in.Value, r.Ref, ref).
			with("value", v).with("max", ceiling).with("max_ref", r.Ref.String())
	}
	return nil
}

// PercentRefBound caps an answer at percent% of another question's current value.
type PercentRefBound struct {
	Ref     Ref
	Percent float64
}

func (r *PercentRefBound) Tag() Tag     { return TagPercentRefBound }
func (r *PercentRefBound) Stage() Stage { return StageIntrinsic }
func (r *PercentRefBound) Refs() []Ref  { return []Ref{r.Ref} }

func (r *PercentRefBound) Check(in *Input) error {
	v, ok := in.Value.AsFloat()
	if !ok {
		return nil
	}
	ref, ok := in.Other(r.Ref)
	if !ok {
		return nil
	}
	base, ok := ref.AsFloat()
	if !ok {
		return nil
	}
	ceiling := base * r.Percent / 100
	if v > ceiling {
		return reject(KindRangeViolation, "value %v exceeds %v%% of %s (%v)", in.Value, fmtNum(r.Percent), r.Ref, fmtNum(ceiling)).
			with("value", v).with("max", ceiling).with("max_ref", r.Ref.String()).with("percent", r.Percent)
	}
	return nil
}

// Length enforces min_length/max_length on text, counted in characters.
type Length struct {
	Min *int
	Max *int
}

func (l *Length) Tag() Tag     { return TagLength }
func (l *Length) Stage() Stage { return StageIntrinsic }
func (l *Length) Refs() []Ref  { return nil }

func (l *Length) Check(in *Input) error {
	s, ok := in.Value.AsText()
	if !ok {
		return nil
	}
	n := utf8.RuneCountInString(s)
	if l.Min != nil && n < *l.Min {
		return reject(KindRangeViolation, "text length %d is below min_length=%d", n, *l.Min).
			with("length", n).with("min_length", *l.Min)
	}
	if l.Max != nil && n > *l.Max {
		return reject(KindRangeViolation, "text length %d exceeds max_length=%d", n, *l.Max).
			with("length", n).with("max_length", *l.Max)
	}
	return nil
}

// fmtNum prints whole floats without a fraction.
func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

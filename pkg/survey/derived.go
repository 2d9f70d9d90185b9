package survey

import (
	"fmt"
	"regexp"
	"strconv"
)

// DerivedBand maps source values below Below (or up to it, when Inclusive) to Value.
type DerivedBand struct {
	Below     float64
	Inclusive bool
	Value     Value
}

func (b DerivedBand) covers(x float64) bool {
	if b.Inclusive {
		return x <= b.Below
	}
	return x < b.Below
}

// Derived is a read-only field whose only valid value is computed from Source.
// Bands are checked in order; Otherwise applies when none covers the source value.
type Derived struct {
	Source    Ref
	Bands     []DerivedBand
	Otherwise Value
}

func (d *Derived) Tag() Tag     { return TagDerived }
func (d *Derived) Stage() Stage { return StageCross }
func (d *Derived) Refs() []Ref  { return []Ref{d.Source} }

// Expected computes the derived value for a source value.
func (d *Derived) Expected(x float64) Value {
	for _, b := range d.Bands {
		if b.covers(x) {
			return b.Value
		}
	}
	return d.Otherwise
}

func (d *Derived) Check(in *Input) error {
	sv, ok := in.Lookup(d.Source)
	if !ok {
		return reject(KindDependencyUnsatisfied, "value is derived from %s, which has no answer", d.Source).
			with("source", d.Source.String())
	}
	x, ok := sv.AsFloat()
	if !ok {
		return reject(KindDependencyUnsatisfied, "value is derived from %s, which is not numeric (%v)", d.Source, sv).
			with("source", d.Source.String())
	}

	expected := d.Expected(x)
	if in.Value.Equal(expected) {
		return nil
	}
	return reject(KindReadOnlyViolation, "read-only value must be %v for %s = %v, got %v", expected, d.Source, sv, in.Value).
		with("expected", expected.Any()).
		with("source", d.Source.String()).
		with("source_value", sv.Any()).
		with("value", in.Value.Any())
}

// ReadOnly accepts nothing but its default. Without a default every submission fails.
type ReadOnly struct {
	Default *Value
}

func (r *ReadOnly) Tag() Tag     { return TagReadOnly }
func (r *ReadOnly) Stage() Stage { return StageCross }
func (r *ReadOnly) Refs() []Ref  { return nil }

func (r *ReadOnly) Check(in *Input) error {
	if r.Default == nil {
		return reject(KindReadOnlyViolation, "question is read-only").
			with("value", in.Value.Any())
	}
	if in.Value.Equal(*r.Default) {
		return nil
	}
	return reject(KindReadOnlyViolation, "read-only value must be %v, got %v", *r.Default, in.Value).
		with("expected", r.Default.Any()).
		with("value", in.Value.Any())
}

var calculationRe = regexp.MustCompile(`^\s*(\S+)\s+if\s+(\S+)\s*(<=|>=|<|>)\s*(-?\d+(?:\.\d+)?)\s+else\s+(\S+)\s*$`)

// ParseCalculation reads the legacy one-line form "II if 2.1.13 < 50 else I".
func ParseCalculation(s string) (*Derived, error) {
	m := calculationRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("unsupported calculation %q: want \"<value> if <number> <op> <threshold> else <value>\"", s)
	}
	then, source, op, otherwise := parseLiteral(m[1]), NumberRef(m[2]), m[3], parseLiteral(m[5])
	threshold, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return nil, fmt.Errorf("calculation %q: %w", s, err)
	}

	d := &Derived{Source: source}
	switch op {
	case "<":
		d.Bands, d.Otherwise = []DerivedBand{{Below: threshold, Value: then}}, otherwise
	case "<=":
		d.Bands, d.Otherwise = []DerivedBand{{Below: threshold, Inclusive: true, Value: then}}, otherwise
	case ">=":
		d.Bands, d.Otherwise = []DerivedBand{{Below: threshold, Value: otherwise}}, then
	case ">":
		d.Bands, d.Otherwise = []DerivedBand{{Below: threshold, Inclusive: true, Value: otherwise}}, then
	}
	return d, nil
}

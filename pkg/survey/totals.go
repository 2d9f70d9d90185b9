package survey

import (
	"fmt"
	"math"
)

// TotalsMode selects how an aggregate compares with its components.
type TotalsMode string

const (
	TotalsEqual   TotalsMode = "equal"
	TotalsAtLeast TotalsMode = "at_least"
)

func ParseTotalsMode(s string) (TotalsMode, error) {
	switch TotalsMode(s) {
	case "", TotalsEqual:
		return TotalsEqual, nil
	case TotalsAtLeast:
		return TotalsAtLeast, nil
	default:
		return "", fmt.Errorf("unknown totals mode %q", s)
	}
}

const totalsEpsilon = 1e-9

// Totals reconciles an aggregate answer with the sum of its components.
// Components without an answer count as zero.
type Totals struct {
	Components []Ref
	Mode       TotalsMode
}

func (t *Totals) Tag() Tag     { return TagTotals }
func (t *Totals) Stage() Stage { return StageCross }
func (t *Totals) Refs() []Ref  { return t.Components }

func (t *Totals) Check(in *Input) error {
	v, ok := in.Value.AsFloat()
	if !ok {
		return nil
	}
	expected := sumOf(in, t.Components)

	switch t.Mode {
	case TotalsAtLeast:
		if v+totalsEpsilon >= expected {
			return nil
		}
		return reject(KindTotalsMismatch, "total %v is less than the sum of its components %v", fmtNum(v), fmtNum(expected)).
			with("expected", expected).
			with("value", v).
			with("mode", string(t.Mode)).
			with("components", refStrings(t.Components))
	default:
		if math.Abs(v-expected) <= totalsEpsilon {
			return nil
		}
		return reject(KindTotalsMismatch, "total %v does not match the sum of its components %v", fmtNum(v), fmtNum(expected)).
			with("expected", expected).
			with("value", v).
			with("mode", string(TotalsEqual)).
			with("components", refStrings(t.Components))
	}
}

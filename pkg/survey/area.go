package survey

import "math"

// AreaTotal requires the answer to equal the sum of Parts within Tolerance.
// Parts without an answer count as zero.
type AreaTotal struct {
	Parts     []Ref
	Tolerance float64
}

func (a *AreaTotal) Tag() Tag     { return TagAreaTotal }
func (a *AreaTotal) Stage() Stage { return StageCross }
func (a *AreaTotal) Refs() []Ref  { return a.Parts }

func (a *AreaTotal) Check(in *Input) error {
	total, ok := in.Value.AsFloat()
	if !ok {
		return nil
	}
	sum := sumOf(in, a.Parts)
	if math.Abs(total-sum) > a.Tolerance {
		return reject(KindAreaMismatch, "area total %v does not match sum of parts %v (tolerance %v)", fmtNum(total), fmtNum(sum), fmtNum(a.Tolerance)).
			with("total", total).
			with("sum", sum).
			with("tolerance", a.Tolerance).
			with("parts", refStrings(a.Parts))
	}
	return nil
}

// AreaPart forbids the answer from exceeding Total's answer by more than Tolerance.
type AreaPart struct {
	Total     Ref
	Tolerance float64
}

func (a *AreaPart) Tag() Tag     { return TagAreaPart }
func (a *AreaPart) Stage() Stage { return StageCross }
func (a *AreaPart) Refs() []Ref  { return []Ref{a.Total} }

func (a *AreaPart) Check(in *Input) error {
	part, ok := in.Value.AsFloat()
	if !ok {
		return nil
	}
	tv, ok := in.Other(a.Total)
	if !ok {
		return nil
	}
	total, ok := tv.AsFloat()
	if !ok {
		return nil
	}
	if part-total > a.Tolerance {
		return reject(KindAreaMismatch, "area part %v exceeds total %v (tolerance %v)", fmtNum(part), fmtNum(total), fmtNum(a.Tolerance)).
			with("part", part).
			with("total", total).
			with("tolerance", a.Tolerance).
			with("area_part_of", a.Total.String())
	}
	return nil
}

// DefaultApartmentAreaRef is the total apartment area the room counts are checked against.
const DefaultApartmentAreaRef = "2.1.4"

// ApartmentArea bounds a room count: count × MaxArea must not exceed Total's answer.
type ApartmentArea struct {
	Total   Ref
	MinArea float64
	MaxArea float64
}

func (a *ApartmentArea) Tag() Tag     { return TagApartmentArea }
func (a *ApartmentArea) Stage() Stage { return StageCross }
func (a *ApartmentArea) Refs() []Ref  { return []Ref{a.Total} }

func (a *ApartmentArea) Check(in *Input) error {
	count, ok := in.Value.AsFloat()
	if !ok {
		return nil
	}
	tv, ok := in.Other(a.Total)
	if !ok {
		return nil
	}
	total, ok := tv.AsFloat()
	if !ok {
		return nil
	}
	required := count * a.MaxArea
	if required > total {
		return reject(KindAreaMismatch, "%v units of up to %v m² need %v m², more than the %v m² in %s",
			fmtNum(count), fmtNum(a.MaxArea), fmtNum(required), fmtNum(total), a.Total).
			with("count", count).
			with("max_area", a.MaxArea).
			with("required", required).
			with("total", total)
	}
	return nil
}

// sumOf adds up the recorded answers of refs; absent or non-numeric answers count as zero.
func sumOf(in *Input, refs []Ref) float64 {
	var sum float64
	for _, ref := range refs {
		v, ok := in.Other(ref)
		if !ok {
			continue
		}
		if f, ok := v.AsFloat(); ok {
			sum += f
		}
	}
	return sum
}

func refStrings(refs []Ref) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

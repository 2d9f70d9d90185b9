package survey

import "strconv"

// Tag is the stable identifier of a rule variant.
type Tag string

const (
	TagBound               Tag = "bound"
	TagRefBound            Tag = "ref_bound"
	TagPercentRefBound     Tag = "percent_ref_bound"
	TagLength              Tag = "length"
	TagDependsOn           Tag = "depends_on"
	TagAllowList           Tag = "allow_list"
	TagCondition           Tag = "condition"
	TagCorpusSlots         Tag = "corpus_slots"
	TagAreaTotal           Tag = "area_total"
	TagAreaPart            Tag = "area_part"
	TagApartmentArea       Tag = "apartment_area"
	TagElevatorRequirement Tag = "elevator_requirement"
	TagNoElevatorMaxFloors Tag = "no_elevator_max_floors"
	TagElevatorMatrix      Tag = "elevator_matrix"
	TagDerived             Tag = "derived"
	TagReadOnly            Tag = "read_only"
	TagTotals              Tag = "totals"
	TagExclusivity         Tag = "exclusivity"
)

// Stage orders rules within a validation.
type Stage uint8

const (
	StageGate      Stage = iota // before coercion, against the snapshot only
	StageIntrinsic              // after coercion, type-intrinsic bounds
	StageCross                  // cross-field business rules
)

// Ref points at another question, by number or by id.
type Ref struct {
	ID     int64  `json:"id,omitempty"`
	Number string `json:"number,omitempty"`
}

func NumberRef(number string) Ref { return Ref{Number: number} }

func (r Ref) String() string {
	if r.Number != "" {
		return r.Number
	}
	return "#" + strconv.FormatInt(r.ID, 10)
}

// Rule is one compiled directive of a question's constraints bag.
// Check returns a *Rejection or nil.
type Rule interface {
	Tag() Tag
	Stage() Stage
	Refs() []Ref
	Check(in *Input) error
}

// Input is what a rule sees while checking.
type Input struct {
	Question *Question
	Value    Value // canonical candidate; absent during the gate stage
	Snapshot *Snapshot
}

// Lookup resolves ref. Once the candidate is coerced, a reference to the
// question itself resolves to the candidate rather than the stored answer.
func (in *Input) Lookup(ref Ref) (Value, bool) {
	if in.Value.Present() && in.isSelf(ref) {
		return in.Value, true
	}
	return in.Snapshot.Lookup(ref)
}

// Other resolves ref against recorded answers only, ignoring the candidate.
func (in *Input) Other(ref Ref) (Value, bool) {
	if in.isSelf(ref) {
		return Value{}, false
	}
	return in.Snapshot.Lookup(ref)
}

func (in *Input) isSelf(ref Ref) bool {
	if in.Question == nil {
		return false
	}
	if ref.Number != "" {
		return ref.Number == in.Question.Number
	}
	return ref.ID == in.Question.ID
}

func (in *Input) number() string {
	if in.Question == nil {
		return ""
	}
	return in.Question.Number
}

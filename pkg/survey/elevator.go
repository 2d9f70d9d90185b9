package survey

const (
	defaultMinFloors     = 5
	defaultNoElevatorMax = 5
)

// ElevatorRequirement demands an elevator once the floor count reaches MinFloors.
// Floors nil means the question being answered is the floor count.
// Only an explicit "no elevator" answer violates the rule.
type ElevatorRequirement struct {
	Floors    *Ref
	MinFloors int
	Elevator  Ref
}

func (e *ElevatorRequirement) Tag() Tag     { return TagElevatorRequirement }
func (e *ElevatorRequirement) Stage() Stage { return StageCross }
func (e *ElevatorRequirement) Refs() []Ref  { return elevatorRefs(e.Floors, e.Elevator) }

func (e *ElevatorRequirement) Check(in *Input) error {
	floors, ok := floorCount(in, e.Floors)
	if !ok || floors < float64(e.MinFloors) {
		return nil
	}
	if hasElevator(in, e.Elevator) != elevatorAbsent {
		return nil
	}
	return reject(KindElevatorRule, "an elevator is required when floors >= %d", e.MinFloors).
		with("floors", floors).
		with("min_floors", e.MinFloors).
		with("elevator_question", e.Elevator.String())
}

// NoElevatorMaxFloors caps the floor count at Max when there is no elevator.
type NoElevatorMaxFloors struct {
	Floors   *Ref
	Max      int
	Elevator Ref
}

func (n *NoElevatorMaxFloors) Tag() Tag     { return TagNoElevatorMaxFloors }
func (n *NoElevatorMaxFloors) Stage() Stage { return StageCross }
func (n *NoElevatorMaxFloors) Refs() []Ref  { return elevatorRefs(n.Floors, n.Elevator) }

func (n *NoElevatorMaxFloors) Check(in *Input) error {
	if hasElevator(in, n.Elevator) != elevatorAbsent {
		return nil
	}
	floors, ok := floorCount(in, n.Floors)
	if !ok || floors <= float64(n.Max) {
		return nil
	}
	return reject(KindElevatorRule, "floors %v exceed the maximum of %d without an elevator", fmtNum(floors), n.Max).
		with("floors", floors).
		with("max", n.Max).
		with("elevator_question", n.Elevator.String())
}

// LiftBand is one row of the elevator sizing table: buildings with
// MinFloors..MaxFloors floors and apartment area strictly above AreaAbove need Lifts lifts.
type LiftBand struct {
	MinFloors int     `yaml:"min_floors" json:"min_floors"`
	MaxFloors int     `yaml:"max_floors" json:"max_floors"`
	AreaAbove float64 `yaml:"area_above" json:"area_above"`
	Lifts     int     `yaml:"lifts" json:"lifts"`
}

// DefaultLiftBands is the sizing table. Floors 18–19 and areas at or below a
// threshold are deliberately absent and impose nothing.
var DefaultLiftBands = []LiftBand{
	{MinFloors: 0, MaxFloors: 9, AreaAbove: 600, Lifts: 1},
	{MinFloors: 10, MaxFloors: 12, AreaAbove: 600, Lifts: 2},
	{MinFloors: 13, MaxFloors: 17, AreaAbove: 450, Lifts: 2},
	{MinFloors: 20, MaxFloors: 25, AreaAbove: 350, Lifts: 3},
	{MinFloors: 20, MaxFloors: 25, AreaAbove: 450, Lifts: 4},
}

// ExpectedLifts looks up the lift count for (floors, area). When several bands
// match, the one with the highest area threshold wins. ok is false in table gaps.
func ExpectedLifts(bands []LiftBand, floors int64, area float64) (lifts int, ok bool) {
	best := -1
	for i, b := range bands {
		if floors < int64(b.MinFloors) || floors > int64(b.MaxFloors) || area <= b.AreaAbove {
			continue
		}
		if best < 0 || b.AreaAbove > bands[best].AreaAbove {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return bands[best].Lifts, true
}

// ElevatorMatrix checks a lift count against the sizing table.
type ElevatorMatrix struct {
	Floors Ref
	Area   Ref
	Bands  []LiftBand
}

func (m *ElevatorMatrix) Tag() Tag     { return TagElevatorMatrix }
func (m *ElevatorMatrix) Stage() Stage { return StageCross }
func (m *ElevatorMatrix) Refs() []Ref  { return []Ref{m.Floors, m.Area} }

func (m *ElevatorMatrix) Check(in *Input) error {
	lifts, ok := in.Value.AsInt()
	if !ok {
		return nil
	}
	fv, ok := in.Lookup(m.Floors)
	if !ok {
		return nil
	}
	floors, ok := fv.AsInt()
	if !ok {
		return nil
	}
	av, ok := in.Lookup(m.Area)
	if !ok {
		return nil
	}
	area, ok := av.AsFloat()
	if !ok {
		return nil
	}

	expected, ok := ExpectedLifts(m.Bands, floors, area)
	if !ok || int64(expected) == lifts {
		return nil
	}
	return reject(KindElevatorRule, "%d floors with %v m² of apartments need %d lifts, got %d", floors, fmtNum(area), expected, lifts).
		with("floors", floors).
		with("area", area).
		with("lifts", lifts).
		with("expected", expected)
}

type elevatorState uint8

const (
	elevatorUnknown elevatorState = iota
	elevatorPresent
	elevatorAbsent
)

func hasElevator(in *Input, ref Ref) elevatorState {
	v, ok := in.Lookup(ref)
	if !ok {
		return elevatorUnknown
	}
	b, ok := v.AsBool()
	if !ok {
		return elevatorUnknown
	}
	if b {
		return elevatorPresent
	}
	return elevatorAbsent
}

func floorCount(in *Input, ref *Ref) (float64, bool) {
	if ref == nil {
		return in.Value.AsFloat()
	}
	v, ok := in.Lookup(*ref)
	if !ok {
		return 0, false
	}
	return v.AsFloat()
}

func elevatorRefs(floors *Ref, elevator Ref) []Ref {
	if floors == nil {
		return []Ref{elevator}
	}
	return []Ref{*floors, elevator}
}

package survey

// Exclusivity forbids the answer from repeating any sibling's recorded answer.
// Used for corpus-slot pickers that share one generated slot set.
type Exclusivity struct {
	Siblings []Ref
}

func (e *Exclusivity) Tag() Tag     { return TagExclusivity }
func (e *Exclusivity) Stage() Stage { return StageCross }
func (e *Exclusivity) Refs() []Ref  { return e.Siblings }

func (e *Exclusivity) Check(in *Input) error {
	for _, ref := range e.Siblings {
		v, ok := in.Other(ref)
		if !ok || !v.Equal(in.Value) {
			continue
		}
		return reject(KindExclusivityViolation, "%v is already chosen in %s", in.Value, ref).
			with("value", in.Value.Any()).
			with("conflicts_with", ref.String())
	}
	return nil
}

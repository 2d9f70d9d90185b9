package survey

// Gate rules run before coercion and look only at recorded answers.
// An absent reference never satisfies a gate.

// DependsOn makes a question answerable only once every question in On has an
// answer. With a Condition, each of those answers must also satisfy it.
type DependsOn struct {
	On        []Ref
	Condition *Condition
}

func (d *DependsOn) Tag() Tag     { return TagDependsOn }
func (d *DependsOn) Stage() Stage { return StageGate }
func (d *DependsOn) Refs() []Ref  { return d.On }

func (d *DependsOn) Check(in *Input) error {
	for _, ref := range d.On {
		v, ok := in.Other(ref)
		if !ok {
			return reject(KindDependencyUnsatisfied, "requires an answer to %s", ref).
				with("depends_on", ref.String())
		}
		if d.Condition != nil && !d.Condition.Holds(v) {
			return reject(KindConditionFailed, "answer to %s (%v) does not satisfy %s", ref, v, d.Condition).
				with("depends_on", ref.String()).
				with("value", v.Any()).
				with("condition", d.Condition.String())
		}
	}
	return nil
}

// AllowList makes a question answerable only while Ref's answer is one of Values.
type AllowList struct {
	Ref    Ref
	Values []Value
}

func (a *AllowList) Tag() Tag     { return TagAllowList }
func (a *AllowList) Stage() Stage { return StageGate }
func (a *AllowList) Refs() []Ref  { return []Ref{a.Ref} }

func (a *AllowList) Check(in *Input) error {
	v, ok := in.Other(a.Ref)
	if !ok {
		return reject(KindDependencyUnsatisfied, "requires an answer to %s", a.Ref).
			with("depends_on", a.Ref.String())
	}
	if !inSet(v, a.Values) {
		return reject(KindDependencyUnsatisfied, "disabled while %s is %v", a.Ref, v).
			with("depends_on", a.Ref.String()).
			with("value", v.Any()).
			with("allowed", anySlice(a.Values))
	}
	return nil
}

// ConditionGate is the structured {left, op, right} condition.
type ConditionGate struct {
	Left      Ref
	Condition Condition
}

func (c *ConditionGate) Tag() Tag     { return TagCondition }
func (c *ConditionGate) Stage() Stage { return StageGate }
func (c *ConditionGate) Refs() []Ref  { return []Ref{c.Left} }

func (c *ConditionGate) Check(in *Input) error {
	v, ok := in.Other(c.Left)
	if !ok {
		return reject(KindDependencyUnsatisfied, "requires an answer to %s", c.Left).
			with("depends_on", c.Left.String())
	}
	if !c.Condition.Holds(v) {
		return reject(KindConditionFailed, "condition %s %s failed for %v", c.Left, c.Condition, v).
			with("left", c.Left.String()).
			with("value", v.Any()).
			with("condition", c.Condition.String())
	}
	return nil
}

func anySlice(values []Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.Any()
	}
	return out
}

package survey

import "strconv"

const (
	// DefaultSlotPrefix labels corpus slots: "К.1", "К.2", ...
	DefaultSlotPrefix = "К."

	maxSlots = 1000
)

// SlotLabels returns the labels prefix+"1" .. prefix+n.
func SlotLabels(prefix string, n int) []string {
	if n <= 0 {
		return nil
	}
	if n > maxSlots {
		n = maxSlots
	}
	labels := make([]string, n)
	for i := range labels {
		labels[i] = prefix + strconv.Itoa(i+1)
	}
	return labels
}

// CorpusSlots gates a dynamic-option question on its count question.
// A failed condition makes the question unavailable, not merely wrong.
type CorpusSlots struct {
	Gate      Ref
	Count     Ref
	Condition *Condition
}

func (c *CorpusSlots) Tag() Tag     { return TagCorpusSlots }
func (c *CorpusSlots) Stage() Stage { return StageGate }

func (c *CorpusSlots) Refs() []Ref {
	if c.Count == c.Gate {
		return []Ref{c.Gate}
	}
	return []Ref{c.Gate, c.Count}
}

func (c *CorpusSlots) Check(in *Input) error {
	v, ok := in.Other(c.Gate)
	if !ok {
		return reject(KindDependencyUnsatisfied, "requires an answer to %s", c.Gate).
			with("depends_on", c.Gate.String())
	}
	if c.Condition != nil && !c.Condition.Holds(v) {
		return reject(KindDependencyUnsatisfied, "unavailable while %s is %v (needs %s)", c.Gate, v, c.Condition).
			with("depends_on", c.Gate.String()).
			with("value", v.Any()).
			with("condition", c.Condition.String())
	}
	if c.Count != c.Gate {
		if _, ok := in.Other(c.Count); !ok {
			return reject(KindDependencyUnsatisfied, "requires an answer to %s", c.Count).
				with("slots_from", c.Count.String())
		}
	}
	return nil
}

// ResolveOptions returns the option list in force for q. restricted is false when
// q accepts any value, which is the case for a static dropdown with no options.
func ResolveOptions(q *Question, snap *Snapshot) (allowed []string, restricted bool) {
	d := q.Options.Dynamic
	if d == nil {
		return q.Options.Values, len(q.Options.Values) > 0
	}

	count, ok := snap.ByNumber(d.SlotsFrom)
	if !ok {
		return nil, true
	}
	n, ok := count.AsInt()
	if !ok {
		return nil, true
	}
	return SlotLabels(d.Prefix, int(n)), true
}

// AvailableOptions is the option list a presentation layer should offer for q:
// the resolved options minus slots already held by exclusive siblings.
// It fails with the gate's rejection when q is not answerable at all.
func AvailableOptions(q *Question, snap *Snapshot) ([]string, error) {
	in := &Input{Question: q, Snapshot: snap}
	for _, r := range q.rules(StageGate) {
		if err := r.Check(in); err != nil {
			return nil, decorate(err, q, r.Tag(), StateStart)
		}
	}

	allowed, _ := ResolveOptions(q, snap)
	taken := make(map[string]bool)
	for _, r := range q.Constraints.Rules {
		ex, ok := r.(*Exclusivity)
		if !ok {
			continue
		}
		for _, ref := range ex.Siblings {
			if v, ok := in.Other(ref); ok {
				if s, ok := v.AsText(); ok {
					taken[s] = true
				}
			}
		}
	}

	out := make([]string, 0, len(allowed))
	for _, opt := range allowed {
		if !taken[opt] {
			out = append(out, opt)
		}
	}
	return out, nil
}

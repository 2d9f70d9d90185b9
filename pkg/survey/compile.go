package survey

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is a question as catalogs store it, before compilation.
type Definition struct {
	ID          int64      `yaml:"id" json:"id" validate:"gte=0"`
	VersionID   int64      `yaml:"version_id,omitempty" json:"version_id,omitempty"`
	Number      string     `yaml:"number" json:"number" validate:"required"`
	Text        string     `yaml:"text" json:"text"`
	Type        string     `yaml:"type" json:"type" validate:"required"`
	Options     OptionsDef `yaml:"options,omitempty" json:"options"`
	Constraints Bag        `yaml:"constraints,omitempty" json:"constraints"`
}

// OptionsDef is either a flat list of values or an object carrying values and
// dynamic-generation metadata.
type OptionsDef struct {
	Values      []string `yaml:"values,omitempty" json:"values,omitempty"`
	DependsOn   string   `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Condition   string   `yaml:"condition,omitempty" json:"condition,omitempty"`
	SlotsFrom   string   `yaml:"slots_from,omitempty" json:"slots_from,omitempty"`
	Prefix      string   `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	ExcludeFrom []string `yaml:"exclude_from,omitempty" json:"exclude_from,omitempty"`
}

func (o *OptionsDef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.SequenceNode {
		*o = OptionsDef{}
		return n.Decode(&o.Values)
	}
	if isNull(n) {
		*o = OptionsDef{}
		return nil
	}
	type plain OptionsDef
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*o = OptionsDef(p)
	return nil
}

func (o *OptionsDef) UnmarshalJSON(data []byte) error {
	return yaml.Unmarshal(data, o)
}

// Dynamic reports whether the option list is generated from another answer.
func (o OptionsDef) Dynamic() bool {
	return o.DependsOn != "" || o.SlotsFrom != ""
}

// refDecl decodes a question reference: a bare number, or an object with
// question_number / question_id.
type refDecl Ref

func (r *refDecl) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	switch n.Kind {
	case yaml.ScalarNode:
		*r = refDecl{Number: n.Value}
		return nil
	case yaml.MappingNode:
		var m struct {
			QuestionNumber string `yaml:"question_number"`
			QuestionID     int64  `yaml:"question_id"`
			Number         string `yaml:"number"`
			ID             int64  `yaml:"id"`
		}
		if err := n.Decode(&m); err != nil {
			return err
		}
		*r = refDecl{Number: firstNonEmpty(m.QuestionNumber, m.Number), ID: m.QuestionID}
		if r.ID == 0 {
			r.ID = m.ID
		}
		return nil
	default:
		return fmt.Errorf("line %d: question reference must be a number or an object", n.Line)
	}
}

func (r refDecl) ref() (Ref, error) {
	if r.Number == "" && r.ID == 0 {
		return Ref{}, errors.New("question reference is empty")
	}
	return Ref(r), nil
}

func refList(decls []refDecl) ([]Ref, error) {
	refs := make([]Ref, 0, len(decls))
	for _, s := range decls {
		ref, err := s.ref()
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// === Compilation ===

// directive compiles one legacy bag key. It may claim companion keys.
type directive func(c *compiler, key string) error

// builder compiles a tagged rule from its YAML body.
type builder func(c *compiler, n *yaml.Node) (Rule, error)

// presentationKeys are carried verbatim and never validated.
var presentationKeys = map[string]bool{
	"example":               true,
	"format":                true,
	"input_type":            true,
	"editable":              true,
	"prefill_from_previous": true,
	"dynamic_options":       true,
	"depends_on_stilobate":  true,
	"placeholder":           true,
	"hint":                  true,
}

var directives map[string]directive

var builders map[Tag]builder

func init() {
	directives = map[string]directive{
		"min":                    compileBound,
		"max":                    compileBound,
		"max_ref":                compileRefBound,
		"max_ref_percent":        viaBuilder(TagPercentRefBound),
		"min_length":             compileLength,
		"max_length":             compileLength,
		"depends_on":             compileDependsOn,
		"condition":              compileCondition,
		"area_total_of":          compileAreaTotal,
		"area_part_of":           compileAreaPart,
		"tolerance":              companion,
		"area_check":             viaBuilder(TagApartmentArea),
		"requires_elevator_if":   viaBuilder(TagElevatorRequirement),
		"no_elevator_max_floors": viaBuilder(TagNoElevatorMaxFloors),
		"elevator_matrix":        viaBuilder(TagElevatorMatrix),
		"derive":                 viaBuilder(TagDerived),
		"calculation":            compileCalculation,
		"totals":                 viaBuilder(TagTotals),
		"read_only":              compileReadOnly,
		"default":                compileDefault,
		"exclude_from":           compileExcludeFrom,
		"rules":                  compileRuleList,
	}

	builders = map[Tag]builder{
		TagBound:               buildBound,
		TagRefBound:            buildRefBound,
		TagPercentRefBound:     buildPercentRefBound,
		TagLength:              buildLength,
		TagDependsOn:           buildDependsOn,
		TagAllowList:           buildAllowList,
		TagCondition:           buildConditionGate,
		TagCorpusSlots:         buildCorpusSlots,
		TagAreaTotal:           buildAreaTotal,
		TagAreaPart:            buildAreaPart,
		TagApartmentArea:       buildApartmentArea,
		TagElevatorRequirement: buildElevatorRequirement,
		TagNoElevatorMaxFloors: buildNoElevatorMaxFloors,
		TagElevatorMatrix:      buildElevatorMatrix,
		TagDerived:             buildDerived,
		TagReadOnly:            buildReadOnly,
		TagTotals:              buildTotals,
		TagExclusivity:         buildExclusivity,
	}
}

// Directives lists the legacy bag keys the compiler understands.
func Directives() []string {
	keys := make([]string, 0, len(directives))
	for k := range directives {
		keys = append(keys, k)
	}
	return keys
}

// IsPresentationKey reports whether a bag key is carried only for display.
func IsPresentationKey(key string) bool { return presentationKeys[key] }

type compiler struct {
	def     Definition
	q       *Question
	claimed map[string]bool

	rules        []Rule
	readOnlyAt   int // position of a read_only directive, -1 if none
	exclusive    *Exclusivity
	defaultDone  bool
	defaultValue *Value
}

// Compile turns a definition into an immutable question with its rules
// attached in declared order.
func Compile(def Definition) (*Question, error) {
	typ, err := ParseType(def.Type)
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", def.Number, err)
	}

	c := &compiler{
		def: def,
		q: &Question{
			ID:        def.ID,
			VersionID: def.VersionID,
			Number:    def.Number,
			Text:      def.Text,
			Type:      typ,
			Source:    def,
		},
		claimed:    make(map[string]bool),
		readOnlyAt: -1,
	}

	if err := c.options(); err != nil {
		return nil, fmt.Errorf("question %s: options: %w", def.Number, err)
	}

	bag := def.Constraints
	for _, key := range bag.keys {
		if c.claimed[key] {
			continue
		}
		if presentationKeys[key] {
			v, _ := bag.Get(key)
			if c.q.Constraints.Extras == nil {
				c.q.Constraints.Extras = make(map[string]any)
			}
			c.q.Constraints.Extras[key] = v
			c.claim(key)
			continue
		}
		d, ok := directives[key]
		if !ok {
			continue
		}
		if err := d(c, key); err != nil {
			return nil, fmt.Errorf("question %s: constraints.%s: %w", def.Number, key, err)
		}
	}

	if err := c.finish(); err != nil {
		return nil, fmt.Errorf("question %s: %w", def.Number, err)
	}
	for _, key := range bag.keys {
		if !c.claimed[key] {
			c.q.Constraints.Unknown = append(c.q.Constraints.Unknown, key)
		}
	}
	c.q.Constraints.Rules = c.rules
	return c.q, nil
}

func (c *compiler) claim(keys ...string) {
	for _, k := range keys {
		if c.def.Constraints.Has(k) {
			c.claimed[k] = true
		}
	}
}

func (c *compiler) add(r Rule) { c.rules = append(c.rules, r) }

func (c *compiler) node(key string) *yaml.Node {
	n, _ := c.def.Constraints.Node(key)
	return n
}

func (c *compiler) options() error {
	o := c.def.Options
	c.q.Options.Values = o.Values
	if !o.Dynamic() {
		return nil
	}
	if c.q.Type != TypeDropdown {
		return fmt.Errorf("dynamic options need a dropdown question, got %s", c.q.Type)
	}

	d := &DynamicOptions{
		DependsOn:   o.DependsOn,
		SlotsFrom:   firstNonEmpty(o.SlotsFrom, o.DependsOn),
		Prefix:      firstNonEmpty(o.Prefix, DefaultSlotPrefix),
		ExcludeFrom: o.ExcludeFrom,
	}
	if o.Condition != "" {
		cond, err := ParseCondition(o.Condition)
		if err != nil {
			return err
		}
		d.Condition = &cond
	}
	c.q.Options.Dynamic = d
	c.add(&CorpusSlots{
		Gate:      NumberRef(firstNonEmpty(d.DependsOn, d.SlotsFrom)),
		Count:     NumberRef(d.SlotsFrom),
		Condition: d.Condition,
	})
	return nil
}

// finish places rules that depend on the whole bag.
func (c *compiler) finish() error {
	if c.exclusive == nil && len(c.def.Options.ExcludeFrom) > 0 {
		siblings := numberRefs(c.def.Options.ExcludeFrom)
		c.exclusive = &Exclusivity{Siblings: siblings}
		c.add(c.exclusive)
	}
	if c.exclusive != nil && c.q.Options.Dynamic != nil {
		c.q.Options.Dynamic.ExcludeFrom = refStrings(c.exclusive.Siblings)
	}

	if c.readOnlyAt >= 0 && !c.hasRule(TagDerived) {
		def, err := c.defaultVal()
		if err != nil {
			return err
		}
		r := &ReadOnly{Default: def}
		c.rules = append(c.rules[:c.readOnlyAt], append([]Rule{r}, c.rules[c.readOnlyAt:]...)...)
	}
	return nil
}

func (c *compiler) hasRule(tag Tag) bool {
	for _, r := range c.rules {
		if r.Tag() == tag {
			return true
		}
	}
	return false
}

func (c *compiler) defaultVal() (*Value, error) {
	if c.defaultDone {
		return c.defaultValue, nil
	}
	c.defaultDone = true
	raw, ok := c.def.Constraints.Get("default")
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := CoerceValue(c.q.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("constraints.default: %w", err)
	}
	c.defaultValue = &v
	return c.defaultValue, nil
}

// === Legacy directives ===

func companion(c *compiler, key string) error { return nil }

func viaBuilder(tag Tag) directive {
	return func(c *compiler, key string) error {
		r, err := builders[tag](c, c.node(key))
		if err != nil {
			return err
		}
		c.claim(key)
		c.add(r)
		return nil
	}
}

func compileBound(c *compiler, _ string) error {
	b := &Bound{}
	for key, dst := range map[string]**float64{"min": &b.Min, "max": &b.Max} {
		if !c.def.Constraints.Has(key) {
			continue
		}
		var f float64
		if err := c.def.Constraints.Decode(key, &f); err != nil {
			return err
		}
		*dst = &f
	}
	if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
		return fmt.Errorf("min %v is greater than max %v", fmtNum(*b.Min), fmtNum(*b.Max))
	}
	c.claim("min", "max")
	c.add(b)
	return nil
}

func compileRefBound(c *compiler, key string) error {
	var decl refDecl
	if err := c.def.Constraints.Decode(key, &decl); err != nil {
		return err
	}
	ref, err := decl.ref()
	if err != nil {
		return err
	}
	c.claim(key)
	c.add(&RefBound{Ref: ref})
	return nil
}

func compileLength(c *compiler, _ string) error {
	l := &Length{}
	for key, dst := range map[string]**int{"min_length": &l.Min, "max_length": &l.Max} {
		if !c.def.Constraints.Has(key) {
			continue
		}
		var n int
		if err := c.def.Constraints.Decode(key, &n); err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
		*dst = &n
	}
	c.claim("min_length", "max_length")
	c.add(l)
	return nil
}

// compileDependsOn handles the three legacy forms: a number (optionally with a
// condition string), a list of numbers, and {question_number, values}.
func compileDependsOn(c *compiler, key string) error {
	n := c.node(key)
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}

	var cond *Condition
	if cn := c.node("condition"); cn != nil && cn.Kind == yaml.ScalarNode {
		parsed, err := ParseCondition(cn.Value)
		if err != nil {
			return fmt.Errorf("condition: %w", err)
		}
		cond = &parsed
		c.claim("condition")
	}

	switch n.Kind {
	case yaml.ScalarNode:
		c.add(&DependsOn{On: []Ref{NumberRef(n.Value)}, Condition: cond})
	case yaml.SequenceNode:
		var decls []refDecl
		if err := n.Decode(&decls); err != nil {
			return err
		}
		refs, err := refList(decls)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			return errors.New("empty depends_on list")
		}
		c.add(&DependsOn{On: refs, Condition: cond})
	case yaml.MappingNode:
		var decl refDecl
		if err := n.Decode(&decl); err != nil {
			return err
		}
		ref, err := decl.ref()
		if err != nil {
			return err
		}
		var body struct {
			Values []any `yaml:"values"`
		}
		if err := n.Decode(&body); err != nil {
			return err
		}
		switch {
		case body.Values != nil:
			values, err := valueSet(body.Values)
			if err != nil {
				return err
			}
			c.add(&AllowList{Ref: ref, Values: values})
			if cond != nil {
				c.add(&DependsOn{On: []Ref{ref}, Condition: cond})
			}
		default:
			c.add(&DependsOn{On: []Ref{ref}, Condition: cond})
		}
	default:
		return fmt.Errorf("unsupported depends_on form (%s)", kindName(n.Kind))
	}
	c.claim(key)
	return nil
}

func compileCondition(c *compiler, key string) error {
	n := c.node(key)
	if n.Kind == yaml.ScalarNode {
		if c.def.Constraints.Has("depends_on") {
			// Claimed by depends_on.
			return nil
		}
		return errors.New("a condition string needs depends_on")
	}
	r, err := buildConditionGate(c, n)
	if err != nil {
		return err
	}
	c.claim(key)
	c.add(r)
	return nil
}

func compileAreaTotal(c *compiler, key string) error {
	var parts []refDecl
	if err := c.def.Constraints.Decode(key, &parts); err != nil {
		return err
	}
	refs, err := refList(parts)
	if err != nil {
		return err
	}
	tol, err := c.tolerance()
	if err != nil {
		return err
	}
	c.claim(key, "tolerance")
	c.add(&AreaTotal{Parts: refs, Tolerance: tol})
	return nil
}

func compileAreaPart(c *compiler, key string) error {
	var decl refDecl
	if err := c.def.Constraints.Decode(key, &decl); err != nil {
		return err
	}
	ref, err := decl.ref()
	if err != nil {
		return err
	}
	tol, err := c.tolerance()
	if err != nil {
		return err
	}
	c.claim(key, "tolerance")
	c.add(&AreaPart{Total: ref, Tolerance: tol})
	return nil
}

func (c *compiler) tolerance() (float64, error) {
	if !c.def.Constraints.Has("tolerance") {
		return 0, nil
	}
	var tol float64
	if err := c.def.Constraints.Decode("tolerance", &tol); err != nil {
		return 0, err
	}
	if tol < 0 {
		return 0, errors.New("tolerance must not be negative")
	}
	return tol, nil
}

func compileCalculation(c *compiler, key string) error {
	n := c.node(key)
	if n.Kind != yaml.ScalarNode {
		return errors.New("calculation tables are not supported, write the bands under derive")
	}
	d, err := ParseCalculation(n.Value)
	if err != nil {
		return err
	}
	c.claim(key)
	c.add(d)
	return nil
}

func compileReadOnly(c *compiler, key string) error {
	var ro bool
	if err := c.def.Constraints.Decode(key, &ro); err != nil {
		return err
	}
	c.claim(key)
	if ro {
		c.q.Constraints.ReadOnly = true
		c.readOnlyAt = len(c.rules)
	}
	return nil
}

func compileDefault(c *compiler, key string) error {
	v, err := c.defaultVal()
	if err != nil {
		return err
	}
	c.q.Constraints.Default = v
	c.claim(key)
	return nil
}

func compileExcludeFrom(c *compiler, key string) error {
	var decls []refDecl
	if err := c.def.Constraints.Decode(key, &decls); err != nil {
		return err
	}
	refs, err := refList(decls)
	if err != nil {
		return err
	}
	seen := make(map[Ref]bool, len(refs))
	for _, r := range refs {
		seen[r] = true
	}
	for _, r := range numberRefs(c.def.Options.ExcludeFrom) {
		if !seen[r] {
			refs = append(refs, r)
		}
	}
	c.exclusive = &Exclusivity{Siblings: refs}
	c.claim(key)
	c.add(c.exclusive)
	return nil
}

// compileRuleList compiles explicit entries: rules: [{tag: totals, components: [...]}].
func compileRuleList(c *compiler, key string) error {
	n := c.node(key)
	if n.Kind != yaml.SequenceNode {
		return errors.New("rules must be a list")
	}
	for i, entry := range n.Content {
		if entry.Kind == yaml.AliasNode {
			entry = entry.Alias
		}
		var head struct {
			Tag Tag `yaml:"tag"`
		}
		if err := entry.Decode(&head); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		b, ok := builders[head.Tag]
		if !ok {
			return fmt.Errorf("rules[%d]: unknown rule tag %q", i, head.Tag)
		}
		r, err := b(c, entry)
		if err != nil {
			return fmt.Errorf("rules[%d] (%s): %w", i, head.Tag, err)
		}
		if ex, ok := r.(*Exclusivity); ok {
			c.exclusive = ex
		}
		c.add(r)
	}
	c.claim(key)
	return nil
}

// === Tagged builders ===

func buildBound(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Min *float64 `yaml:"min"`
		Max *float64 `yaml:"max"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	if decl.Min == nil && decl.Max == nil {
		return nil, errors.New("bound needs min or max")
	}
	if decl.Min != nil && decl.Max != nil && *decl.Min > *decl.Max {
		return nil, fmt.Errorf("min %v is greater than max %v", fmtNum(*decl.Min), fmtNum(*decl.Max))
	}
	return &Bound{Min: decl.Min, Max: decl.Max}, nil
}

func buildRefBound(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Ref refDecl `yaml:"ref"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	ref, err := decl.Ref.ref()
	if err != nil {
		return nil, err
	}
	return &RefBound{Ref: ref}, nil
}

func buildPercentRefBound(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Ref     refDecl `yaml:"ref"`
		Percent float64 `yaml:"percent"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	ref, err := decl.Ref.ref()
	if err != nil {
		return nil, err
	}
	if decl.Percent <= 0 {
		return nil, fmt.Errorf("percent must be positive, got %v", fmtNum(decl.Percent))
	}
	return &PercentRefBound{Ref: ref, Percent: decl.Percent}, nil
}

func buildLength(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Min *int `yaml:"min"`
		Max *int `yaml:"max"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	if decl.Min == nil && decl.Max == nil {
		return nil, errors.New("length needs min or max")
	}
	return &Length{Min: decl.Min, Max: decl.Max}, nil
}

func buildDependsOn(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		On        []refDecl `yaml:"on"`
		Condition string    `yaml:"condition"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	refs, err := refList(decl.On)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, errors.New("depends_on needs at least one question in on")
	}
	d := &DependsOn{On: refs}
	if decl.Condition != "" {
		cond, err := ParseCondition(decl.Condition)
		if err != nil {
			return nil, err
		}
		d.Condition = &cond
	}
	return d, nil
}

func buildAllowList(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Ref    refDecl `yaml:"ref"`
		Values []any   `yaml:"values"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	ref, err := decl.Ref.ref()
	if err != nil {
		return nil, err
	}
	values, err := valueSet(decl.Values)
	if err != nil {
		return nil, err
	}
	return &AllowList{Ref: ref, Values: values}, nil
}

func buildConditionGate(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Left  refDecl `yaml:"left"`
		Op    string  `yaml:"op"`
		Right any     `yaml:"right"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	left, err := decl.Left.ref()
	if err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	cond, err := NewCondition(decl.Op, decl.Right)
	if err != nil {
		return nil, err
	}
	return &ConditionGate{Left: left, Condition: cond}, nil
}

func buildCorpusSlots(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Gate      refDecl `yaml:"gate"`
		Count     refDecl `yaml:"count"`
		Condition string  `yaml:"condition"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	gate, err := decl.Gate.ref()
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	count := gate
	if decl.Count != (refDecl{}) {
		count = Ref(decl.Count)
	}
	r := &CorpusSlots{Gate: gate, Count: count}
	if decl.Condition != "" {
		cond, err := ParseCondition(decl.Condition)
		if err != nil {
			return nil, err
		}
		r.Condition = &cond
	}
	return r, nil
}

func buildAreaTotal(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Parts     []refDecl `yaml:"parts"`
		Tolerance float64   `yaml:"tolerance"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	parts, err := refList(decl.Parts)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 || decl.Tolerance < 0 {
		return nil, errors.New("area_total needs parts and a non-negative tolerance")
	}
	return &AreaTotal{Parts: parts, Tolerance: decl.Tolerance}, nil
}

func buildAreaPart(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Total     refDecl `yaml:"total"`
		Tolerance float64 `yaml:"tolerance"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	total, err := decl.Total.ref()
	if err != nil {
		return nil, err
	}
	if decl.Tolerance < 0 {
		return nil, errors.New("tolerance must not be negative")
	}
	return &AreaPart{Total: total, Tolerance: decl.Tolerance}, nil
}

func buildApartmentArea(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Total   *refDecl `yaml:"total_question"`
		MinArea float64  `yaml:"min_area"`
		MaxArea float64  `yaml:"max_area"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	if decl.MaxArea <= 0 {
		return nil, errors.New("max_area must be positive")
	}
	if decl.MinArea > decl.MaxArea {
		return nil, fmt.Errorf("min_area %v is greater than max_area %v", fmtNum(decl.MinArea), fmtNum(decl.MaxArea))
	}
	total := NumberRef(DefaultApartmentAreaRef)
	if decl.Total != nil {
		ref, err := decl.Total.ref()
		if err != nil {
			return nil, err
		}
		total = ref
	}
	return &ApartmentArea{Total: total, MinArea: decl.MinArea, MaxArea: decl.MaxArea}, nil
}

type elevatorSpec struct {
	FloorsQuestion   *refDecl `yaml:"floors_question"`
	ElevatorQuestion refDecl  `yaml:"elevator_question"`
	MinFloors        *int     `yaml:"min_floors"`
	Max              *int     `yaml:"max"`
}

func (s elevatorSpec) refs() (floors *Ref, elevator Ref, err error) {
	elevator, err = s.ElevatorQuestion.ref()
	if err != nil {
		return nil, Ref{}, fmt.Errorf("elevator_question: %w", err)
	}
	if s.FloorsQuestion != nil && *s.FloorsQuestion != (refDecl{}) {
		r := Ref(*s.FloorsQuestion)
		floors = &r
	}
	return floors, elevator, nil
}

func buildElevatorRequirement(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl elevatorSpec
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	floors, elevator, err := decl.refs()
	if err != nil {
		return nil, err
	}
	r := &ElevatorRequirement{Floors: floors, Elevator: elevator, MinFloors: defaultMinFloors}
	if decl.MinFloors != nil {
		r.MinFloors = *decl.MinFloors
	}
	return r, nil
}

func buildNoElevatorMaxFloors(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl elevatorSpec
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	floors, elevator, err := decl.refs()
	if err != nil {
		return nil, err
	}
	r := &NoElevatorMaxFloors{Floors: floors, Elevator: elevator, Max: defaultNoElevatorMax}
	if decl.Max != nil {
		r.Max = *decl.Max
	}
	return r, nil
}

func buildElevatorMatrix(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Floors refDecl    `yaml:"floors"`
		Area   refDecl    `yaml:"area"`
		Bands  []LiftBand `yaml:"bands"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	floors, err := decl.Floors.ref()
	if err != nil {
		return nil, fmt.Errorf("floors: %w", err)
	}
	area, err := decl.Area.ref()
	if err != nil {
		return nil, fmt.Errorf("area: %w", err)
	}
	bands := decl.Bands
	if len(bands) == 0 {
		bands = DefaultLiftBands
	}
	for i, b := range bands {
		if b.MinFloors > b.MaxFloors || b.Lifts < 0 {
			return nil, fmt.Errorf("bands[%d]: invalid band %d-%d floors, %d lifts", i, b.MinFloors, b.MaxFloors, b.Lifts)
		}
	}
	return &ElevatorMatrix{Floors: floors, Area: area, Bands: bands}, nil
}

func buildDerived(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Source refDecl `yaml:"source"`
		Bands  []struct {
			Below     *float64 `yaml:"below"`
			Inclusive bool     `yaml:"inclusive"`
			Value     any      `yaml:"value"`
		} `yaml:"bands"`
		Otherwise any `yaml:"otherwise"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	source, err := decl.Source.ref()
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	otherwise, ok := ValueOf(decl.Otherwise)
	if !ok {
		return nil, errors.New("otherwise must be a scalar value")
	}
	if len(decl.Bands) == 0 {
		return nil, errors.New("derive needs at least one band")
	}

	d := &Derived{Source: source, Otherwise: otherwise}
	for i, b := range decl.Bands {
		if b.Below == nil {
			return nil, fmt.Errorf("bands[%d]: below is required", i)
		}
		v, ok := ValueOf(b.Value)
		if !ok {
			return nil, fmt.Errorf("bands[%d]: value must be a scalar", i)
		}
		if i > 0 && *b.Below < d.Bands[i-1].Below {
			return nil, fmt.Errorf("bands[%d]: thresholds must ascend", i)
		}
		d.Bands = append(d.Bands, DerivedBand{Below: *b.Below, Inclusive: b.Inclusive, Value: v})
	}
	return d, nil
}

func buildReadOnly(c *compiler, _ *yaml.Node) (Rule, error) {
	def, err := c.defaultVal()
	if err != nil {
		return nil, err
	}
	c.q.Constraints.ReadOnly = true
	return &ReadOnly{Default: def}, nil
}

func buildTotals(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Components []refDecl `yaml:"components"`
		Mode       string    `yaml:"mode"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	components, err := refList(decl.Components)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, errors.New("totals needs components")
	}
	mode, err := ParseTotalsMode(decl.Mode)
	if err != nil {
		return nil, err
	}
	return &Totals{Components: components, Mode: mode}, nil
}

func buildExclusivity(_ *compiler, n *yaml.Node) (Rule, error) {
	var decl struct {
		Siblings []refDecl `yaml:"siblings"`
	}
	if err := n.Decode(&decl); err != nil {
		return nil, err
	}
	siblings, err := refList(decl.Siblings)
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return nil, errors.New("exclusivity needs siblings")
	}
	return &Exclusivity{Siblings: siblings}, nil
}

func numberRefs(numbers []string) []Ref {
	refs := make([]Ref, 0, len(numbers))
	for _, n := range numbers {
		refs = append(refs, NumberRef(n))
	}
	return refs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

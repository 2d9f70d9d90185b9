// Package lint provides static analysis for questionnaire catalogs.
// It detects definition problems without validating any answers.
package lint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dlovans/surveyor/pkg/catalog"
	"github.com/dlovans/surveyor/pkg/survey"
)

// Issue represents a problem found during static analysis.
type Issue struct {
	Severity string `json:"severity"` // "error", "warning"
	Question string `json:"question,omitempty"`
	Rule     string `json:"rule,omitempty"`
	Message  string `json:"message"`
}

// Result contains all issues found by the linter.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// Catalog lints every version of a catalog.
func Catalog(c *catalog.Catalog) *Result {
	result := &Result{Valid: true, Issues: make([]Issue, 0)}
	for _, v := range c.Versions() {
		r := Run(c.Questions(v.ID))
		if !r.Valid {
			result.Valid = false
		}
		result.Issues = append(result.Issues, r.Issues...)
	}
	return result
}

// Run performs static analysis on the questions of one version.
func Run(questions []*survey.Question) *Result {
	result := &Result{
		Valid:  true,
		Issues: make([]Issue, 0),
	}

	byNumber := make(map[string]*survey.Question, len(questions))
	byID := make(map[int64]*survey.Question, len(questions))

	// Check 1: Duplicate numbers
	for _, q := range questions {
		if _, dup := byNumber[q.Number]; dup {
			result.addError(q.Number, "", fmt.Sprintf("question number %s is defined more than once", q.Number))
			continue
		}
		byNumber[q.Number] = q
		byID[q.ID] = q
	}

	resolve := func(ref survey.Ref) *survey.Question {
		if ref.Number != "" {
			return byNumber[ref.Number]
		}
		return byID[ref.ID]
	}

	for _, q := range questions {
		// Check 2: Dangling references
		for _, r := range q.Constraints.Rules {
			for _, ref := range r.Refs() {
				if resolve(ref) == nil {
					result.addError(q.Number, string(r.Tag()), fmt.Sprintf("rule %s references unknown question %s", r.Tag(), ref))
				}
			}
		}

		// Check 3: Gates on the question itself can never pass
		for _, r := range q.Constraints.Rules {
			if r.Stage() != survey.StageGate {
				continue
			}
			for _, ref := range r.Refs() {
				if resolve(ref) == q {
					result.addError(q.Number, string(r.Tag()), "gate depends on the question itself and can never be satisfied")
				}
			}
		}

		// Check 4: Unknown constraint keys
		for _, key := range q.Constraints.Unknown {
			result.addWarning(q.Number, "", fmt.Sprintf("unknown constraint key '%s' is ignored", key))
		}

		// Check 5: Dropdowns that accept anything
		if q.Type == survey.TypeDropdown && q.Options.Dynamic == nil && len(q.Options.Values) == 0 {
			result.addWarning(q.Number, "", "dropdown has no options and accepts any value")
		}

		// Check 6: Rules that cannot apply to the question type
		for _, r := range q.Constraints.Rules {
			if msg := typeMismatch(q.Type, r); msg != "" {
				result.addWarning(q.Number, string(r.Tag()), msg)
			}
		}

		// Check 7: Defaults the question itself would reject
		if q.Constraints.Default != nil && q.Type == survey.TypeDropdown && q.Options.Dynamic == nil && len(q.Options.Values) > 0 {
			def, _ := q.Constraints.Default.AsText()
			if !contains(q.Options.Values, def) {
				result.addWarning(q.Number, "", fmt.Sprintf("default '%s' is not one of the options", def))
			}
		}

		// Check 8: Read-only questions nothing can satisfy
		for _, r := range q.Constraints.Rules {
			if ro, ok := r.(*survey.ReadOnly); ok && ro.Default == nil {
				result.addWarning(q.Number, string(r.Tag()), "read-only question has no default or derivation and rejects every answer")
			}
		}
	}

	// Check 9: Exclusivity must be declared on both sides
	for _, q := range questions {
		for _, sib := range exclusiveSiblings(q) {
			other := resolve(sib)
			if other == nil || other == q {
				continue
			}
			if !refersTo(exclusiveSiblings(other), q) {
				result.addWarning(q.Number, string(survey.TagExclusivity), fmt.Sprintf(
					"excludes %s but %s does not exclude %s", other.Number, other.Number, q.Number))
			}
		}
	}

	// Check 10: Gate cycles
	for _, cycle := range gateCycles(questions, resolve) {
		result.addError(cycle[0], string(survey.TagDependsOn), fmt.Sprintf(
			"gate cycle %s: none of these questions can ever be answered", strings.Join(cycle, " -> ")))
	}

	return result
}

func (r *Result) addError(question, rule, message string) {
	r.Valid = false
	r.Issues = append(r.Issues, Issue{
		Severity: "error",
		Question: question,
		Rule:     rule,
		Message:  message,
	})
}

func (r *Result) addWarning(question, rule, message string) {
	r.Issues = append(r.Issues, Issue{
		Severity: "warning",
		Question: question,
		Rule:     rule,
		Message:  message,
	})
}

// Errors returns only error-severity issues.
func (r *Result) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == "error" {
			out = append(out, i)
		}
	}
	return out
}

func typeMismatch(t survey.Type, r survey.Rule) string {
	numeric := t == survey.TypeInteger || t == survey.TypeNumber
	switch r.(type) {
	case *survey.Bound, *survey.RefBound, *survey.PercentRefBound,
		*survey.AreaTotal, *survey.AreaPart, *survey.ApartmentArea,
		*survey.ElevatorMatrix, *survey.Totals:
		if !numeric {
			return fmt.Sprintf("numeric rule %s on a %s question never applies", r.Tag(), t)
		}
	case *survey.Length:
		if t != survey.TypeText && t != survey.TypeDropdown {
			return fmt.Sprintf("length rule on a %s question never applies", t)
		}
	}
	return ""
}

func exclusiveSiblings(q *survey.Question) []survey.Ref {
	var refs []survey.Ref
	for _, r := range q.Constraints.Rules {
		if ex, ok := r.(*survey.Exclusivity); ok {
			refs = append(refs, ex.Siblings...)
		}
	}
	return refs
}

func refersTo(refs []survey.Ref, q *survey.Question) bool {
	for _, ref := range refs {
		if ref.Number == q.Number || (ref.Number == "" && ref.ID == q.ID) {
			return true
		}
	}
	return false
}

// gateCycles finds cycles in the graph of gate dependencies, each reported once
// starting from its smallest number.
func gateCycles(questions []*survey.Question, resolve func(survey.Ref) *survey.Question) [][]string {
	edges := make(map[string][]string)
	for _, q := range questions {
		for _, r := range q.Constraints.Rules {
			if r.Stage() != survey.StageGate {
				continue
			}
			for _, ref := range r.Refs() {
				if dep := resolve(ref); dep != nil && dep != q {
					edges[q.Number] = append(edges[q.Number], dep.Number)
				}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	seen := make(map[string]bool)
	var cycles [][]string
	var stack []string

	var visit func(n string)
	visit = func(n string) {
		state[n] = visiting
		stack = append(stack, n)
		for _, next := range edges[n] {
			switch state[next] {
			case unvisited:
				visit(next)
			case visiting:
				i := len(stack) - 1
				for stack[i] != next {
					i--
				}
				cycle := canonical(stack[i:])
				key := strings.Join(cycle, ",")
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, append(cycle, cycle[0]))
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
	}

	nodes := make([]string, 0, len(edges))
	for n := range edges {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if state[n] == unvisited {
			visit(n)
		}
	}
	return cycles
}

// canonical rotates a cycle so it starts at its smallest element.
func canonical(cycle []string) []string {
	lo := 0
	for i := range cycle {
		if cycle[i] < cycle[lo] {
			lo = i
		}
	}
	out := make([]string, 0, len(cycle)+1)
	out = append(out, cycle[lo:]...)
	return append(out, cycle[:lo]...)
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

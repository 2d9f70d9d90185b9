// Package survey validates questionnaire answers against their question definitions
// and against every other answer the same respondent already gave for the same version.
// It covers type coercion, gating dependencies, and cross-question business rules.
package survey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type is the declared value type of a question.
type Type string

const (
	TypeText     Type = "text"
	TypeInteger  Type = "integer"
	TypeNumber   Type = "number"
	TypeBoolean  Type = "boolean"
	TypeDropdown Type = "dropdown"
)

// ParseType normalizes a declared type, accepting the aliases found in older catalogs.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string":
		return TypeText, nil
	case "integer", "int":
		return TypeInteger, nil
	case "number", "float", "decimal":
		return TypeNumber, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "dropdown", "select", "choice":
		return TypeDropdown, nil
	default:
		return "", fmt.Errorf("unknown question type %q", s)
	}
}

// Question is a compiled, immutable question definition.
type Question struct {
	ID          int64
	VersionID   int64
	Number      string // hierarchical, e.g. "2.1.4"
	Text        string
	Type        Type
	Options     Options
	Constraints Constraints
	Source      Definition // what the question was compiled from
}

// Options is the option set of a dropdown question.
type Options struct {
	Values  []string
	Dynamic *DynamicOptions
}

// DynamicOptions generates corpus slots ("К.1".."К.N") sized by another question's count.
type DynamicOptions struct {
	DependsOn   string     // gating question number
	Condition   *Condition // must hold on DependsOn for the question to be answerable
	SlotsFrom   string     // count question; defaults to DependsOn
	Prefix      string
	ExcludeFrom []string
}

// Constraints is the compiled form of a question's constraints bag.
type Constraints struct {
	Rules    []Rule // in declared order
	Default  *Value
	ReadOnly bool
	Extras   map[string]any // presentation-only keys, kept verbatim
	Unknown  []string       // keys no directive claimed
}

// Tags lists the tags of the question's rules in declared order.
func (q *Question) Tags() []Tag {
	tags := make([]Tag, 0, len(q.Constraints.Rules))
	for _, r := range q.Constraints.Rules {
		tags = append(tags, r.Tag())
	}
	return tags
}

// Refs lists every question this question's rules read.
func (q *Question) Refs() []Ref {
	var refs []Ref
	seen := make(map[Ref]bool)
	for _, r := range q.Constraints.Rules {
		for _, ref := range r.Refs() {
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

func (q *Question) rules(stage Stage) []Rule {
	var out []Rule
	for _, r := range q.Constraints.Rules {
		if r.Stage() == stage {
			out = append(out, r)
		}
	}
	return out
}

// Answer is one respondent's recorded value for one question in one version.
type Answer struct {
	ID           uuid.UUID
	RespondentID int64
	VersionID    int64
	QuestionID   int64
	Value        Value
	Timestamp    time.Time
}

// Submission is a proposed answer awaiting validation.
type Submission struct {
	RespondentID int64
	VersionID    int64
	QuestionID   int64
	Raw          any
}

// Decision is the outcome of a successful validation.
type Decision struct {
	Question *Question
	Value    Value
	State    State
	Checked  []Tag // rules that ran, in order
}

// State is a step of the validation state machine.
type State uint8

const (
	StateStart State = iota
	StateGateChecked
	StateCoerced
	StateCrossValidated
	StateAccepted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateGateChecked:
		return "GateChecked"
	case StateCoerced:
		return "Coerced"
	case StateCrossValidated:
		return "CrossValidated"
	case StateAccepted:
		return "Accepted"
	case StateRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Catalog resolves question definitions.
type Catalog interface {
	Question(ctx context.Context, id int64) (*Question, error)
	QuestionByNumber(ctx context.Context, versionID int64, number string) (*Question, error)
}

// NumberResolver is an optional Catalog extension for resolving many question numbers at once.
type NumberResolver interface {
	QuestionNumbers(ctx context.Context, ids []int64) (map[int64]string, error)
}

// AnswerReader reads recorded answers.
type AnswerReader interface {
	Answers(ctx context.Context, respondentID, versionID int64) ([]Answer, error)
	Answer(ctx context.Context, respondentID, versionID, questionID int64) (*Answer, error)
}

// AnswerStore persists accepted answers.
type AnswerStore interface {
	AnswerReader
	Save(ctx context.Context, a Answer) (Answer, error)
}

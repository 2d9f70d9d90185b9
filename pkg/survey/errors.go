package survey

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by catalogs and answer stores for lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Kind classifies a rejection. Kinds do not overlap.
type Kind string

const (
	KindNotFound              Kind = "NotFound"
	KindTypeMismatch          Kind = "TypeMismatch"
	KindRangeViolation        Kind = "RangeViolation"
	KindOptionInvalid         Kind = "OptionInvalid"
	KindDependencyUnsatisfied Kind = "DependencyUnsatisfied"
	KindConditionFailed       Kind = "ConditionFailed"
	KindAreaMismatch          Kind = "AreaMismatch"
	KindElevatorRule          Kind = "ElevatorRuleViolation"
	KindReadOnlyViolation     Kind = "ReadOnlyViolation"
	KindTotalsMismatch        Kind = "TotalsMismatch"
	KindExclusivityViolation  Kind = "ExclusivityViolation"
)

// Rejection is the structured refusal of a proposed answer.
type Rejection struct {
	Kind       Kind           `json:"kind"`
	QuestionID int64          `json:"question_id,omitempty"`
	Number     string         `json:"number,omitempty"`
	Rule       Tag            `json:"rule,omitempty"`
	Message    string         `json:"message"`
	Params     map[string]any `json:"params,omitempty"`
	Stage      State          `json:"stage"` // last state reached before rejection
}

func (r *Rejection) Error() string {
	if r.Number != "" {
		return fmt.Sprintf("question %s: %s: %s", r.Number, r.Kind, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

// with attaches a parameter and returns r for chaining.
func (r *Rejection) with(key string, value any) *Rejection {
	if r.Params == nil {
		r.Params = make(map[string]any)
	}
	r.Params[key] = value
	return r
}

func reject(kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a *Rejection.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// KindOf returns the rejection kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	if r, ok := AsRejection(err); ok {
		return r.Kind, true
	}
	return "", false
}

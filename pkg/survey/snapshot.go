package survey

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// SnapshotPolicy decides which row wins when a store holds several answers
// for the same (respondent, version, question).
type SnapshotPolicy uint8

const (
	// PolicyLatest keeps the answer with the newest timestamp; ties go to the later row.
	PolicyLatest SnapshotPolicy = iota
	// PolicyFirst keeps the first row in store order.
	PolicyFirst
)

// ParseSnapshotPolicy accepts "latest" and "first". Empty means latest.
func ParseSnapshotPolicy(s string) (SnapshotPolicy, error) {
	switch s {
	case "", "latest":
		return PolicyLatest, nil
	case "first":
		return PolicyFirst, nil
	default:
		return PolicyLatest, fmt.Errorf("unknown snapshot policy %q", s)
	}
}

func (p SnapshotPolicy) String() string {
	if p == PolicyFirst {
		return "first"
	}
	return "latest"
}

// Snapshot is a read-only index of a respondent's current answers for one version.
// It is built per validation call and never reused across calls.
type Snapshot struct {
	RespondentID int64
	VersionID    int64
	byID         map[int64]Value
	byNumber     map[string]Value
}

// NewSnapshot indexes answers by question id and, where numbers has the question, by number.
func NewSnapshot(answers []Answer, numbers map[int64]string, policy SnapshotPolicy) *Snapshot {
	s := &Snapshot{
		byID:     make(map[int64]Value, len(answers)),
		byNumber: make(map[string]Value, len(answers)),
	}
	current := pickCurrent(answers, policy)
	for _, a := range current {
		s.RespondentID, s.VersionID = a.RespondentID, a.VersionID
		s.byID[a.QuestionID] = a.Value
		if number, ok := numbers[a.QuestionID]; ok && number != "" {
			s.byNumber[number] = a.Value
		}
	}
	return s
}

// pickCurrent reduces answers to one per question. Output keeps first-seen question order.
func pickCurrent(answers []Answer, policy SnapshotPolicy) []Answer {
	index := make(map[int64]int, len(answers))
	out := make([]Answer, 0, len(answers))
	for _, a := range answers {
		i, seen := index[a.QuestionID]
		if !seen {
			index[a.QuestionID] = len(out)
			out = append(out, a)
			continue
		}
		if policy == PolicyLatest && !a.Timestamp.Before(out[i].Timestamp) {
			out[i] = a
		}
	}
	return out
}

// BuildSnapshot loads all answers for (respondentID, versionID) and indexes them.
func BuildSnapshot(ctx context.Context, catalog Catalog, answers AnswerReader, respondentID, versionID int64, policy SnapshotPolicy) (*Snapshot, error) {
	rows, err := answers.Answers(ctx, respondentID, versionID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	numbers, err := resolveNumbers(ctx, catalog, rows)
	if err != nil {
		return nil, err
	}

	s := NewSnapshot(rows, numbers, policy)
	s.RespondentID, s.VersionID = respondentID, versionID
	return s, nil
}

func resolveNumbers(ctx context.Context, catalog Catalog, rows []Answer) (map[int64]string, error) {
	ids := make([]int64, 0, len(rows))
	seen := make(map[int64]bool, len(rows))
	for _, a := range rows {
		if !seen[a.QuestionID] {
			seen[a.QuestionID] = true
			ids = append(ids, a.QuestionID)
		}
	}

	if r, ok := catalog.(NumberResolver); ok {
		numbers, err := r.QuestionNumbers(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve question numbers: %w", err)
		}
		return numbers, nil
	}

	numbers := make(map[int64]string, len(ids))
	for _, id := range ids {
		q, err := catalog.Question(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Indexed by id only.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve question %d: %w", id, err)
		}
		numbers[id] = q.Number
	}
	return numbers, nil
}

// ByID returns the current answer for a question id. Absent is not the same as false or zero.
func (s *Snapshot) ByID(id int64) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.byID[id]
	return v, ok
}

// ByNumber returns the current answer for a question number.
func (s *Snapshot) ByNumber(number string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.byNumber[number]
	return v, ok
}

// Lookup resolves a Ref, preferring its number.
func (s *Snapshot) Lookup(ref Ref) (Value, bool) {
	if ref.Number != "" {
		return s.ByNumber(ref.Number)
	}
	return s.ByID(ref.ID)
}

// Len is the number of answered questions.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byID)
}

// QuestionIDs returns answered question ids in ascending order.
func (s *Snapshot) QuestionIDs() []int64 {
	if s == nil {
		return nil
	}
	ids := make([]int64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

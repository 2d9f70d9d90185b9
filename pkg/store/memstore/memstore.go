// Package memstore is an in-memory answer store.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dlovans/surveyor/pkg/survey"
)

// Store keeps answer rows in insertion order. Unlike Save, Append allows
// several rows per (respondent, version, question), the way legacy stores do.
type Store struct {
	mu   sync.RWMutex
	rows []survey.Answer
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used by Save.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Answers(ctx context.Context, respondentID, versionID int64) ([]survey.Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []survey.Answer
	for _, a := range s.rows {
		if a.RespondentID == respondentID && a.VersionID == versionID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Answer returns the newest row for the triple.
func (s *Store) Answer(ctx context.Context, respondentID, versionID, questionID int64) (*survey.Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *survey.Answer
	for i := range s.rows {
		a := s.rows[i]
		if a.RespondentID != respondentID || a.VersionID != versionID || a.QuestionID != questionID {
			continue
		}
		if found == nil || !a.Timestamp.Before(found.Timestamp) {
			found = &a
		}
	}
	if found == nil {
		return nil, fmt.Errorf("answer %d/%d/%d: %w", respondentID, versionID, questionID, survey.ErrNotFound)
	}
	return found, nil
}

// Save upserts the logically current row for the triple and drops any duplicates.
func (s *Store) Save(ctx context.Context, a survey.Answer) (survey.Answer, error) {
	if err := ctx.Err(); err != nil {
		return survey.Answer{}, err
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rows[:0]
	replaced := false
	for _, row := range s.rows {
		if row.RespondentID != a.RespondentID || row.VersionID != a.VersionID || row.QuestionID != a.QuestionID {
			kept = append(kept, row)
			continue
		}
		if replaced {
			continue
		}
		if a.ID == uuid.Nil {
			a.ID = row.ID
		}
		kept = append(kept, a)
		replaced = true
	}
	s.rows = kept
	if !replaced {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		s.rows = append(s.rows, a)
	}
	return a, nil
}

// Append inserts a row as is, duplicates included.
func (s *Store) Append(a survey.Answer) survey.Answer {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	s.mu.Lock()
	s.rows = append(s.rows, a)
	s.mu.Unlock()
	return a
}

// Len is the number of stored rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

var _ survey.AnswerStore = (*Store)(nil)

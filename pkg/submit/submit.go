// Package submit turns validated submissions into recorded answers.
//
// Submissions for the same (respondent, version) are serialized so that the
// snapshot a decision is made against is still current when the answer is saved.
package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dlovans/surveyor/pkg/survey"
)

// ErrLockTimeout is returned when the respondent's lock could not be taken in time.
var ErrLockTimeout = errors.New("submit: timed out waiting for respondent lock")

// Result is an accepted decision and the row it was stored as.
type Result struct {
	Decision *survey.Decision
	Answer   survey.Answer
}

// Submitter validates and persists answers.
type Submitter struct {
	engine      *survey.Engine
	store       survey.AnswerStore
	locks       *keyedMutex
	metrics     *Metrics
	logger      *slog.Logger
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Submitter.
type Option func(*Submitter)

func WithMetrics(m *Metrics) Option { return func(s *Submitter) { s.metrics = m } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLockTimeout bounds the wait for a busy respondent. Zero waits for ctx only.
func WithLockTimeout(d time.Duration) Option { return func(s *Submitter) { s.lockTimeout = d } }

// WithClock overrides the answer timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Submitter) { s.now = now } }

// New builds a Submitter. engine must read answers from store.
func New(engine *survey.Engine, store survey.AnswerStore, opts ...Option) *Submitter {
	s := &Submitter{
		engine: engine,
		store:  store,
		locks:  newKeyedMutex(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates sub and, if accepted, saves it. A rejection is returned as
// *survey.Rejection and nothing is written.
func (s *Submitter) Submit(ctx context.Context, sub survey.Submission) (*Result, error) {
	unlock, err := s.lock(ctx, sub.RespondentID, sub.VersionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	d, err := s.engine.Validate(ctx, sub)
	s.metrics.observe(err, time.Since(start))
	s.log(ctx, sub, err)
	if err != nil {
		return nil, err
	}

	// Nothing is written once the caller has gone away.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	saved, err := s.store.Save(ctx, survey.Answer{
		RespondentID: sub.RespondentID,
		VersionID:    sub.VersionID,
		QuestionID:   d.Question.ID,
		Value:        d.Value,
		Timestamp:    s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("persist answer %s: %w", d.Question.Number, err)
	}
	return &Result{Decision: d, Answer: saved}, nil
}

func (s *Submitter) lock(ctx context.Context, respondentID, versionID int64) (func(), error) {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	unlock, err := s.locks.Lock(lockCtx, lockKey{respondentID, versionID})
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("respondent %d version %d: %w", respondentID, versionID, ErrLockTimeout)
		}
		return nil, err
	}
	return unlock, nil
}

func (s *Submitter) log(ctx context.Context, sub survey.Submission, err error) {
	attrs := []any{
		"respondent_id", sub.RespondentID,
		"version_id", sub.VersionID,
		"question_id", sub.QuestionID,
	}
	if err == nil {
		s.logger.InfoContext(ctx, "answer accepted", attrs...)
		return
	}
	if r, ok := survey.AsRejection(err); ok {
		s.logger.InfoContext(ctx, "answer rejected", append(attrs,
			"number", r.Number,
			"kind", r.Kind,
			"rule", r.Rule,
			"message", r.Message,
		)...)
		return
	}
	s.logger.ErrorContext(ctx, "validation failed", append(attrs, "error", err)...)
}

package survey

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Engine validates submissions against a catalog and the respondent's recorded answers.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	catalog Catalog
	answers AnswerReader
	policy  SnapshotPolicy
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSnapshotPolicy selects how duplicate answer rows are resolved.
func WithSnapshotPolicy(p SnapshotPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets the logger for debug traces. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(catalog Catalog, answers AnswerReader, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		answers: answers,
		policy:  PolicyLatest,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() SnapshotPolicy { return e.policy }

// Validate resolves the question, builds a fresh snapshot and evaluates the submission.
// Rejections come back as *Rejection; any other error is an infrastructure failure.
func (e *Engine) Validate(ctx context.Context, sub Submission) (*Decision, error) {
	q, err := e.Question(ctx, sub.VersionID, sub.QuestionID)
	if err != nil {
		return nil, err
	}
	if err := e.resolveRefs(ctx, q); err != nil {
		return nil, err
	}

	snap, err := BuildSnapshot(ctx, e.catalog, e.answers, sub.RespondentID, sub.VersionID, e.policy)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	d, err := Evaluate(q, sub.Raw, snap)
	if r, ok := AsRejection(err); ok {
		e.logger.DebugContext(ctx, "submission rejected",
			"respondent_id", sub.RespondentID,
			"version_id", sub.VersionID,
			"number", q.Number,
			"kind", r.Kind,
			"rule", r.Rule,
			"stage", r.Stage.String(),
		)
	}
	return d, err
}

// Options returns the choices currently open to the respondent for a dropdown question.
func (e *Engine) Options(ctx context.Context, respondentID, versionID, questionID int64) ([]string, error) {
	q, err := e.Question(ctx, versionID, questionID)
	if err != nil {
		return nil, err
	}
	if err := e.resolveRefs(ctx, q); err != nil {
		return nil, err
	}
	snap, err := BuildSnapshot(ctx, e.catalog, e.answers, respondentID, versionID, e.policy)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	return AvailableOptions(q, snap)
}

// Snapshot builds the current snapshot for a respondent.
func (e *Engine) Snapshot(ctx context.Context, respondentID, versionID int64) (*Snapshot, error) {
	return BuildSnapshot(ctx, e.catalog, e.answers, respondentID, versionID, e.policy)
}

// Question resolves a question of a version. Misses and version mismatches are NotFound rejections.
func (e *Engine) Question(ctx context.Context, versionID, questionID int64) (*Question, error) {
	q, err := e.catalog.Question(ctx, questionID)
	if errors.Is(err, ErrNotFound) {
		r := reject(KindNotFound, "question %d not found", questionID)
		r.QuestionID = questionID
		return nil, r
	}
	if err != nil {
		return nil, fmt.Errorf("load question %d: %w", questionID, err)
	}
	if q.VersionID != versionID {
		r := reject(KindNotFound, "question %d does not belong to version %d", questionID, versionID).
			with("version_id", versionID)
		r.QuestionID, r.Number = questionID, q.Number
		return nil, r
	}
	return q, nil
}

// resolveRefs fails with a NotFound rejection when one of q's rules points at a
// question its version does not have. Without it the missing question would
// read as an unanswered one.
func (e *Engine) resolveRefs(ctx context.Context, q *Question) error {
	seen := make(map[Ref]bool)
	for _, rule := range q.Constraints.Rules {
		for _, ref := range rule.Refs() {
			if seen[ref] || (ref.Number == "" && ref.ID == 0) {
				continue
			}
			seen[ref] = true

			err := e.lookupRef(ctx, q.VersionID, ref)
			if errors.Is(err, ErrNotFound) {
				r := reject(KindNotFound, "%s refers to %s, which is not in the catalog", rule.Tag(), ref).
					with("ref", ref.String())
				return decorate(r, q, rule.Tag(), StateStart)
			}
			if err != nil {
				return fmt.Errorf("question %s: resolve %s: %w", q.Number, ref, err)
			}
		}
	}
	return nil
}

func (e *Engine) lookupRef(ctx context.Context, versionID int64, ref Ref) error {
	if ref.Number != "" {
		_, err := e.catalog.QuestionByNumber(ctx, versionID, ref.Number)
		return err
	}
	q, err := e.catalog.Question(ctx, ref.ID)
	if err != nil {
		return err
	}
	if q.VersionID != versionID {
		return ErrNotFound
	}
	return nil
}

// Evaluate is the validation state machine:
// Start → GateChecked → Coerced → CrossValidated → Accepted, or Rejected at the first failure.
// It has no side effects.
func Evaluate(q *Question, raw any, snap *Snapshot) (*Decision, error) {
	in := &Input{Question: q, Snapshot: snap}
	var checked []Tag

	run := func(stage Stage, reached State) error {
		for _, r := range q.rules(stage) {
			checked = append(checked, r.Tag())
			if err := r.Check(in); err != nil {
				return decorate(err, q, r.Tag(), reached)
			}
		}
		return nil
	}

	if err := run(StageGate, StateStart); err != nil {
		return nil, err
	}

	v, err := CoerceValue(q.Type, raw)
	if err != nil {
		return nil, decorate(err, q, "", StateGateChecked)
	}
	in.Value = v
	if err := checkOption(q, v, snap); err != nil {
		return nil, decorate(err, q, "", StateGateChecked)
	}
	if err := run(StageIntrinsic, StateGateChecked); err != nil {
		return nil, err
	}

	if err := run(StageCross, StateCoerced); err != nil {
		return nil, err
	}

	return &Decision{Question: q, Value: v, State: StateAccepted, Checked: checked}, nil
}

// decorate stamps a rejection with where it happened.
func decorate(err error, q *Question, tag Tag, reached State) error {
	r, ok := AsRejection(err)
	if !ok {
		return fmt.Errorf("question %s: rule %s: %w", q.Number, tag, err)
	}
	r.QuestionID, r.Number, r.Stage = q.ID, q.Number, reached
	if r.Rule == "" {
		r.Rule = tag
	}
	return r
}

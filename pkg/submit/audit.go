package submit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dlovans/surveyor/pkg/survey"
)

const defaultAuditWorkers = 4

// Finding is a recorded answer the current snapshot no longer accepts, typically
// because an earlier question it depends on was changed afterwards.
type Finding struct {
	QuestionID int64             `json:"question_id"`
	Number     string            `json:"number"`
	Value      survey.Value      `json:"value"`
	Rejection  *survey.Rejection `json:"rejection"`
}

// Report summarizes one audit run.
type Report struct {
	RespondentID int64     `json:"respondent_id"`
	VersionID    int64     `json:"version_id"`
	Checked      int       `json:"checked"`
	Findings     []Finding `json:"findings"`
}

// Valid reports whether every recorded answer still passes.
func (r *Report) Valid() bool { return len(r.Findings) == 0 }

// Auditor re-validates a respondent's recorded answers.
type Auditor struct {
	engine  *survey.Engine
	workers int
	metrics *Metrics
	logger  *slog.Logger
}

// AuditOption configures an Auditor.
type AuditOption func(*Auditor)

func WithWorkers(n int) AuditOption {
	return func(a *Auditor) {
		if n > 0 {
			a.workers = n
		}
	}
}

func WithAuditMetrics(m *Metrics) AuditOption { return func(a *Auditor) { a.metrics = m } }

func WithAuditLogger(l *slog.Logger) AuditOption {
	return func(a *Auditor) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAuditor(engine *survey.Engine, opts ...AuditOption) *Auditor {
	a := &Auditor{
		engine:  engine,
		workers: defaultAuditWorkers,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Audit evaluates every current answer against one snapshot. Rejections become
// findings; a catalog or store failure aborts the run.
func (a *Auditor) Audit(ctx context.Context, respondentID, versionID int64) (*Report, error) {
	snap, err := a.engine.Snapshot(ctx, respondentID, versionID)
	if err != nil {
		return nil, fmt.Errorf("audit respondent %d: %w", respondentID, err)
	}

	ids := snap.QuestionIDs()
	report := &Report{RespondentID: respondentID, VersionID: versionID, Checked: len(ids), Findings: []Finding{}}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			q, err := a.engine.Question(gctx, versionID, id)
			if err != nil {
				if r, ok := survey.AsRejection(err); ok {
					value, _ := snap.ByID(id)
					mu.Lock()
					report.Findings = append(report.Findings, Finding{QuestionID: id, Number: r.Number, Value: value, Rejection: r})
					mu.Unlock()
					a.metrics.audit(false)
					return nil
				}
				return err
			}

			value, _ := snap.ByID(id)
			_, err = survey.Evaluate(q, value, snap)
			if err == nil {
				a.metrics.audit(true)
				return nil
			}
			r, ok := survey.AsRejection(err)
			if !ok {
				return err
			}
			a.metrics.audit(false)
			a.logger.WarnContext(gctx, "recorded answer no longer valid",
				"respondent_id", respondentID,
				"version_id", versionID,
				"number", q.Number,
				"kind", r.Kind,
				"rule", r.Rule,
			)
			mu.Lock()
			report.Findings = append(report.Findings, Finding{QuestionID: id, Number: q.Number, Value: value, Rejection: r})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("audit respondent %d: %w", respondentID, err)
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		return report.Findings[i].QuestionID < report.Findings[j].QuestionID
	})
	return report, nil
}

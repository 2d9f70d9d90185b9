package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dlovans/surveyor/pkg/lint"
	"github.com/dlovans/surveyor/pkg/store/memstore"
	"github.com/dlovans/surveyor/pkg/submit"
	"github.com/dlovans/surveyor/pkg/survey"
)

func newLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Check a catalog for broken references, cycles and unknown keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := loadCatalog(cfg.CatalogPath)
			if err != nil {
				return err
			}
			result := lint.Catalog(c)

			if flagJSON {
				if err := printJSON(result); err != nil {
					return err
				}
			} else if len(result.Issues) == 0 {
				fmt.Println("✓ No issues found")
			} else {
				for _, issue := range result.Issues {
					icon := "⚠"
					if issue.Severity == "error" {
						icon = "✗"
					}
					location := ""
					if issue.Question != "" {
						location = fmt.Sprintf(" [question: %s]", issue.Question)
					}
					if issue.Rule != "" {
						location += fmt.Sprintf(" [rule: %s]", issue.Rule)
					}
					fmt.Printf("%s %s%s: %s\n", icon, issue.Severity, location, issue.Message)
				}
			}

			if !result.Valid {
				return exitCode(exitRejected)
			}
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	var number, value string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check one proposed answer without recording it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			id, err := b.questionID(ctx, number)
			if err != nil {
				return err
			}
			d, err := b.engine.Validate(ctx, survey.Submission{
				RespondentID: b.respondent,
				VersionID:    b.version,
				QuestionID:   id,
				Raw:          value,
			})
			return report(d, err)
		},
	}
	cmd.Flags().StringVar(&number, "question", "", "question number, e.g. 2.1.1")
	cmd.Flags().StringVar(&value, "value", "", "proposed answer")
	cmd.MarkFlagRequired("question")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var number, value string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Validate an answer and record it if accepted",
		Long: "Validate an answer and record it if accepted.\n" +
			"Without --dsn the answer is recorded in memory only, which is useful for dry runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			id, err := b.questionID(ctx, number)
			if err != nil {
				return err
			}
			s := submit.New(b.engine, b.store,
				submit.WithMetrics(b.metrics),
				submit.WithLogger(b.logger),
				submit.WithLockTimeout(b.cfg.LockTimeout),
			)
			res, err := s.Submit(ctx, survey.Submission{
				RespondentID: b.respondent,
				VersionID:    b.version,
				QuestionID:   id,
				Raw:          value,
			})
			if err != nil {
				return report(nil, err)
			}
			if flagJSON {
				out := decisionJSON(res.Decision)
				out["answer_id"] = res.Answer.ID
				return printJSON(out)
			}
			fmt.Printf("✓ %s = %s recorded as %s\n", res.Decision.Question.Number, res.Decision.Value, res.Answer.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&number, "question", "", "question number, e.g. 2.1.1")
	cmd.Flags().StringVar(&value, "value", "", "answer to record")
	cmd.MarkFlagRequired("question")
	return cmd
}

func newOptionsCmd() *cobra.Command {
	var number string
	cmd := &cobra.Command{
		Use:   "options",
		Short: "List the choices currently open for a dropdown question",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			id, err := b.questionID(ctx, number)
			if err != nil {
				return err
			}
			opts, err := b.engine.Options(ctx, b.respondent, b.version, id)
			if err != nil {
				return report(nil, err)
			}
			if flagJSON {
				return printJSON(opts)
			}
			if opts == nil {
				fmt.Println("(any value)")
				return nil
			}
			fmt.Println(strings.Join(opts, "\n"))
			return nil
		},
	}
	cmd.Flags().StringVar(&number, "question", "", "question number, e.g. 2.2.1")
	cmd.MarkFlagRequired("question")
	return cmd
}

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Re-validate every recorded answer of a respondent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			a := submit.NewAuditor(b.engine,
				submit.WithWorkers(b.cfg.AuditWorkers),
				submit.WithAuditMetrics(b.metrics),
				submit.WithAuditLogger(b.logger),
			)
			rep, err := a.Audit(ctx, b.respondent, b.version)
			if err != nil {
				return err
			}

			if flagJSON {
				if err := printJSON(rep); err != nil {
					return err
				}
			} else if rep.Valid() {
				fmt.Printf("✓ %d answers checked, all valid\n", rep.Checked)
			} else {
				for _, f := range rep.Findings {
					printRejection(f.Rejection)
				}
				fmt.Printf("%d of %d answers no longer valid\n", len(rep.Findings), rep.Checked)
			}
			if !rep.Valid() {
				return exitCode(exitRejected)
			}
			return nil
		},
	}
}

func newReplayCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Submit a fixture's answers one by one, in file order",
		Long: "Submit a fixture's answers one by one, in file order.\n" +
			"Each answer is validated against everything accepted before it; rejected answers are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			f, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			answers, _, err := memstore.LoadFixture(ctx, f, b.catalog)
			f.Close()
			if err != nil {
				return err
			}

			s := submit.New(b.engine, b.store,
				submit.WithMetrics(b.metrics),
				submit.WithLogger(b.logger),
				submit.WithLockTimeout(b.cfg.LockTimeout),
			)
			var results []map[string]any
			rejected := 0
			for _, a := range answers {
				res, err := s.Submit(ctx, survey.Submission{
					RespondentID: a.RespondentID,
					VersionID:    a.VersionID,
					QuestionID:   a.QuestionID,
					Raw:          a.Value.Any(),
				})
				r, isRejection := survey.AsRejection(err)
				if err != nil && !isRejection {
					return err
				}
				if isRejection {
					rejected++
					if flagJSON {
						results = append(results, map[string]any{"question_id": a.QuestionID, "rejection": r})
					} else {
						printRejection(r)
					}
					continue
				}
				if flagJSON {
					results = append(results, decisionJSON(res.Decision))
				} else {
					fmt.Printf("✓ %s = %s\n", res.Decision.Question.Number, res.Decision.Value)
				}
			}

			if flagJSON {
				if err := printJSON(results); err != nil {
					return err
				}
			} else {
				fmt.Printf("%d of %d answers accepted\n", len(answers)-rejected, len(answers))
			}
			if rejected > 0 {
				return exitCode(exitRejected)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "YAML fixture whose answers are submitted")
	cmd.MarkFlagRequired("input")
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the PostgreSQL schema and load the catalog into it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.pg == nil {
				return errors.New("seed needs --dsn or SURVEYOR_DSN")
			}

			c, err := loadCatalog(b.cfg.CatalogPath)
			if err != nil {
				return err
			}
			if err := b.pg.EnsureSchema(ctx); err != nil {
				return err
			}
			if err := b.pg.Seed(ctx, c); err != nil {
				return err
			}
			fmt.Printf("✓ Seeded %d questions\n", len(c.All()))
			return nil
		},
	}
}

// report prints a decision or rejection and maps it to an exit status.
func report(d *survey.Decision, err error) error {
	if err != nil {
		r, ok := survey.AsRejection(err)
		if !ok {
			return err
		}
		if flagJSON {
			if err := printJSON(r); err != nil {
				return err
			}
		} else {
			printRejection(r)
		}
		return exitCode(exitRejected)
	}
	if flagJSON {
		return printJSON(decisionJSON(d))
	}
	fmt.Printf("✓ %s = %s accepted\n", d.Question.Number, d.Value)
	return nil
}

func decisionJSON(d *survey.Decision) map[string]any {
	return map[string]any{
		"question_id": d.Question.ID,
		"number":      d.Question.Number,
		"value":       d.Value,
		"state":       d.State,
		"checked":     d.Checked,
	}
}

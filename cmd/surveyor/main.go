// Package main provides a CLI for validating questionnaire answers.
// It is useful for checking catalogs and replaying a respondent's answers offline.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitOK       = 0
	exitRejected = 1 // rejection, lint errors or audit findings
	exitError    = 2
)

// exitCode carries a process exit status through cobra's error return.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

var (
	flagConfig     string
	flagCatalog    string
	flagDSN        string
	flagAnswers    string
	flagRespondent int64
	flagVersion    int64
	flagJSON       bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "surveyor",
		Short:         "Questionnaire answer validation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  surveyor lint
  surveyor validate --answers respondent.yaml --question 2.1.1 --value К.2
  surveyor options --answers respondent.yaml --question 2.2.1
  surveyor audit --dsn postgres://localhost/surveyor --respondent 7 --version 1
  surveyor replay --input respondent.yaml
  surveyor seed --dsn postgres://localhost/surveyor`,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (YAML); SURVEYOR_* variables override it")
	pf.StringVar(&flagCatalog, "catalog", "", "catalog file (defaults to the embedded questionnaire)")
	pf.StringVar(&flagDSN, "dsn", "", "PostgreSQL DSN for catalog and answers")
	pf.StringVar(&flagAnswers, "answers", "", "YAML answers fixture, used when no DSN is set")
	pf.Int64Var(&flagRespondent, "respondent", 0, "respondent id (defaults to the fixture's)")
	pf.Int64Var(&flagVersion, "version", 0, "questionnaire version id (defaults to the fixture's, then 1)")
	pf.BoolVar(&flagJSON, "json", false, "print results as JSON")

	root.AddCommand(
		newLintCmd(),
		newValidateCmd(),
		newSubmitCmd(),
		newOptionsCmd(),
		newAuditCmd(),
		newReplayCmd(),
		newSeedCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

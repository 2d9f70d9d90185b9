// Package pgstore keeps the questionnaire catalog and recorded answers in PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dlovans/surveyor/pkg/catalog"
	"github.com/dlovans/surveyor/pkg/survey"
)

//go:embed schema.sql
var schemaDDL string

// SchemaDDL returns the schema applied by EnsureSchema.
func SchemaDDL() string {
	return schemaDDL
}

// Store implements survey.Catalog, survey.NumberResolver and survey.AnswerStore.
// Compiled questions are cached for the lifetime of the Store; reseed through
// the same Store or open a new one to pick up catalog changes.
type Store struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[int64]*survey.Question
}

// Open connects using a lib/pq DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, cache: make(map[int64]*survey.Question)}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return errors.New("pgstore: db is nil")
	}
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}

// Seed upserts every version and question of c.
func (s *Store) Seed(ctx context.Context, c *catalog.Catalog) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin seed: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, v := range c.Versions() {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO surveyor_versions (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
			v.ID, v.Name); err != nil {
			return fmt.Errorf("pgstore: seed version %d: %w", v.ID, err)
		}

		for i, def := range c.Definitions(v.ID) {
			options, mErr := json.Marshal(def.Options)
			if mErr != nil {
				return fmt.Errorf("pgstore: encode options of %s: %w", def.Number, mErr)
			}
			constraints, mErr := json.Marshal(def.Constraints)
			if mErr != nil {
				return fmt.Errorf("pgstore: encode constraints of %s: %w", def.Number, mErr)
			}
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO surveyor_questions (id, version_id, number, text, type, options, constraints, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					version_id = EXCLUDED.version_id,
					number = EXCLUDED.number,
					text = EXCLUDED.text,
					type = EXCLUDED.type,
					options = EXCLUDED.options,
					constraints = EXCLUDED.constraints,
					position = EXCLUDED.position`,
				def.ID, v.ID, def.Number, def.Text, def.Type, string(options), string(constraints), i); err != nil {
				return fmt.Errorf("pgstore: seed question %s: %w", def.Number, describe(err))
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: commit seed: %w", err)
	}

	s.mu.Lock()
	s.cache = make(map[int64]*survey.Question)
	s.mu.Unlock()
	return nil
}

// === survey.Catalog ===

const questionColumns = `id, version_id, number, text, type, options, constraints`

func (s *Store) Question(ctx context.Context, id int64) (*survey.Question, error) {
	s.mu.RLock()
	q, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return q, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM surveyor_questions WHERE id = $1`, id)
	q, err := s.scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question %d: %w", id, survey.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: load question %d: %w", id, err)
	}
	return q, nil
}

func (s *Store) QuestionByNumber(ctx context.Context, versionID int64, number string) (*survey.Question, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+questionColumns+` FROM surveyor_questions
		WHERE version_id = $1 AND number = $2
		ORDER BY position, id LIMIT 1`, versionID, number)
	q, err := s.scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question %s in version %d: %w", number, versionID, survey.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: load question %s: %w", number, err)
	}
	return q, nil
}

// QuestionNumbers resolves many ids in one round trip. Unknown ids are skipped.
func (s *Store) QuestionNumbers(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, number FROM surveyor_questions WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("pgstore: resolve numbers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var number string
		if err := rows.Scan(&id, &number); err != nil {
			return nil, fmt.Errorf("pgstore: scan number: %w", err)
		}
		out[id] = number
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: resolve numbers: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanQuestion(row scanner) (*survey.Question, error) {
	var (
		def                  survey.Definition
		options, constraints string
	)
	if err := row.Scan(&def.ID, &def.VersionID, &def.Number, &def.Text, &def.Type, &options, &constraints); err != nil {
		return nil, err
	}

	s.mu.RLock()
	cached, ok := s.cache[def.ID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if err := json.Unmarshal([]byte(options), &def.Options); err != nil {
		return nil, fmt.Errorf("decode options of %s: %w", def.Number, err)
	}
	if err := json.Unmarshal([]byte(constraints), &def.Constraints); err != nil {
		return nil, fmt.Errorf("decode constraints of %s: %w", def.Number, err)
	}
	q, err := survey.Compile(def)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[q.ID] = q
	s.mu.Unlock()
	return q, nil
}

// === survey.AnswerStore ===

const answerColumns = `id, respondent_id, version_id, question_id, value_type, value, answered_at`

func (s *Store) Answers(ctx context.Context, respondentID, versionID int64) ([]survey.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+answerColumns+` FROM surveyor_responses
		WHERE respondent_id = $1 AND version_id = $2
		ORDER BY answered_at, id`, respondentID, versionID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list answers: %w", err)
	}
	defer rows.Close()

	var out []survey.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list answers: %w", err)
	}
	return out, nil
}

func (s *Store) Answer(ctx context.Context, respondentID, versionID, questionID int64) (*survey.Answer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+answerColumns+` FROM surveyor_responses
		WHERE respondent_id = $1 AND version_id = $2 AND question_id = $3
		ORDER BY answered_at DESC, id DESC LIMIT 1`, respondentID, versionID, questionID)
	a, err := scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("answer %d/%d/%d: %w", respondentID, versionID, questionID, survey.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Save replaces the current row for the triple, or inserts one, and removes
// any older duplicates in the same transaction.
func (s *Store) Save(ctx context.Context, a survey.Answer) (_ survey.Answer, err error) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(a.Value)
	if err != nil {
		return survey.Answer{}, fmt.Errorf("pgstore: encode value: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return survey.Answer{}, fmt.Errorf("pgstore: begin save: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM surveyor_responses
		WHERE respondent_id = $1 AND version_id = $2 AND question_id = $3
		ORDER BY answered_at, id FOR UPDATE`, a.RespondentID, a.VersionID, a.QuestionID)
	if err != nil {
		return survey.Answer{}, fmt.Errorf("pgstore: lock answer: %w", err)
	}
	var existing []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return survey.Answer{}, fmt.Errorf("pgstore: scan answer id: %w", err)
		}
		existing = append(existing, id)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return survey.Answer{}, fmt.Errorf("pgstore: lock answer: %w", err)
	}

	if len(existing) == 0 {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO surveyor_responses (`+answerColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, a.RespondentID, a.VersionID, a.QuestionID, a.Value.Type().String(), string(raw), a.Timestamp); err != nil {
			return survey.Answer{}, fmt.Errorf("pgstore: insert answer: %w", describe(err))
		}
	} else {
		keep := existing[0]
		if a.ID == uuid.Nil {
			a.ID = keep
		}
		if _, err = tx.ExecContext(ctx, `
			UPDATE surveyor_responses
			SET id = $2, value_type = $3, value = $4, answered_at = $5
			WHERE id = $1`,
			keep, a.ID, a.Value.Type().String(), string(raw), a.Timestamp); err != nil {
			return survey.Answer{}, fmt.Errorf("pgstore: update answer: %w", describe(err))
		}
		if len(existing) > 1 {
			if _, err = tx.ExecContext(ctx, `DELETE FROM surveyor_responses WHERE id = ANY($1::uuid[])`,
				pq.Array(uuidStrings(existing[1:]))); err != nil {
				return survey.Answer{}, fmt.Errorf("pgstore: drop duplicate answers: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return survey.Answer{}, fmt.Errorf("pgstore: commit answer: %w", err)
	}
	return a, nil
}

func scanAnswer(row scanner) (survey.Answer, error) {
	var (
		a         survey.Answer
		valueType string
		raw       string
	)
	if err := row.Scan(&a.ID, &a.RespondentID, &a.VersionID, &a.QuestionID, &valueType, &raw, &a.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("pgstore: scan answer: %w", err)
	}
	typ, err := survey.ParseValueType(valueType)
	if err != nil {
		return a, fmt.Errorf("pgstore: answer %s: %w", a.ID, err)
	}
	if a.Value, err = survey.DecodeValue(typ, []byte(raw)); err != nil {
		return a, fmt.Errorf("pgstore: answer %s: %w", a.ID, err)
	}
	return a, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// describe adds the constraint name to integrity errors.
func describe(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Class() {
	case "23":
		return fmt.Errorf("%s (constraint %s): %w", pqErr.Code.Name(), pqErr.Constraint, err)
	}
	return err
}

var (
	_ survey.Catalog        = (*Store)(nil)
	_ survey.NumberResolver = (*Store)(nil)
	_ survey.AnswerStore    = (*Store)(nil)
)

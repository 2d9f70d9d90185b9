package memstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dlovans/surveyor/pkg/survey"
)

// Fixture is a respondent's recorded answers, keyed by question number:
//
//	respondent_id: 7
//	version_id: 1
//	answers:
//	  "2.1": 3
//	  "2.1.1": "К.1"
//
// Values are coerced to the question type but not validated.
type Fixture struct {
	RespondentID int64     `yaml:"respondent_id"`
	VersionID    int64     `yaml:"version_id"`
	Answers      yaml.Node `yaml:"answers"`
}

// fixtureEpoch anchors fixture timestamps so file order is answer order.
var fixtureEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// LoadFixture reads a fixture and resolves its numbers against catalog.
func LoadFixture(ctx context.Context, r io.Reader, catalog survey.Catalog) ([]survey.Answer, *Fixture, error) {
	var f Fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("parse fixture: %w", err)
	}
	if f.RespondentID == 0 || f.VersionID == 0 {
		return nil, nil, fmt.Errorf("fixture needs respondent_id and version_id")
	}

	n := &f.Answers
	if n.Kind == 0 {
		return nil, &f, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("fixture answers must be a mapping of question number to value")
	}

	answers := make([]survey.Answer, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		number := n.Content[i].Value
		q, err := catalog.QuestionByNumber(ctx, f.VersionID, number)
		if err != nil {
			return nil, nil, fmt.Errorf("fixture answer %s: %w", number, err)
		}
		var raw any
		if err := n.Content[i+1].Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("fixture answer %s: %w", number, err)
		}
		v, err := survey.CoerceValue(q.Type, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("fixture answer %s: %w", number, err)
		}
		answers = append(answers, survey.Answer{
			RespondentID: f.RespondentID,
			VersionID:    f.VersionID,
			QuestionID:   q.ID,
			Value:        v,
			Timestamp:    fixtureEpoch.Add(time.Duration(len(answers)) * time.Second),
		})
	}
	return answers, &f, nil
}

// Load appends fixture answers to the store.
func (s *Store) Load(answers []survey.Answer) {
	for _, a := range answers {
		s.Append(a)
	}
}

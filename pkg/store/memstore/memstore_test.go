package memstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlovans/surveyor/pkg/catalog"
	"github.com/dlovans/surveyor/pkg/survey"
)

func fixedClock(t0 time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("inserts with a fresh id and timestamp", func(t *testing.T) {
		s := New(WithClock(fixedClock(t0)))
		a, err := s.Save(ctx, survey.Answer{RespondentID: 7, VersionID: 1, QuestionID: 13, Value: survey.IntValue(3)})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, a.ID)
		assert.Equal(t, t0.Add(time.Second), a.Timestamp)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("upserts the triple and keeps its id", func(t *testing.T) {
		s := New(WithClock(fixedClock(t0)))
		first, err := s.Save(ctx, survey.Answer{RespondentID: 7, VersionID: 1, QuestionID: 13, Value: survey.IntValue(3)})
		require.NoError(t, err)
		second, err := s.Save(ctx, survey.Answer{RespondentID: 7, VersionID: 1, QuestionID: 13, Value: survey.IntValue(5)})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, s.Len())
		got, err := s.Answer(ctx, 7, 1, 13)
		require.NoError(t, err)
		assert.True(t, got.Value.Equal(survey.IntValue(5)))
	})

	t.Run("collapses legacy duplicates", func(t *testing.T) {
		s := New(WithClock(fixedClock(t0)))
		s.Append(survey.Answer{RespondentID: 7, VersionID: 1, QuestionID: 13, Value: survey.IntValue(1)})
		s.Append(survey.Answer{RespondentID: 7, VersionID: 1, QuestionID: 13, Value: survey.IntValue(2)})
		s.Append(survey.Answer{RespondentID: 7, VersionID: 1, QuestionID: 14, Value: survey.TextValue("К.1")})
		require.Equal(t, 3, s.Len())

		_, err := s.Save(ctx, survey.Answer{RespondentID: 7, VersionID: 1, QuestionID: 13, Value: survey.IntValue(4)})
		require.NoError(t, err)
		assert.Equal(t, 2, s.Len())

		rows, err := s.Answers(ctx, 7, 1)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(13), rows[0].QuestionID, "position of the first row is kept")
		assert.True(t, rows[0].Value.Equal(survey.IntValue(4)))
	})

	t.Run("keeps respondents and versions apart", func(t *testing.T) {
		s := New()
		for _, a := range []survey.Answer{
			{RespondentID: 7, VersionID: 1, QuestionID: 13},
			{RespondentID: 8, VersionID: 1, QuestionID: 13},
			{RespondentID: 7, VersionID: 2, QuestionID: 13},
		} {
			_, err := s.Save(ctx, a)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, s.Len())
		rows, err := s.Answers(ctx, 7, 1)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("honors cancelled contexts", func(t *testing.T) {
		s := New()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Save(cancelled, survey.Answer{RespondentID: 7, VersionID: 1, QuestionID: 13})
		assert.ErrorIs(t, err, context.Canceled)
		_, err = s.Answers(cancelled, 7, 1)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, s.Len())
	})
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	s := New()
	s.Append(survey.Answer{RespondentID: 7, VersionID: 1, QuestionID: 13, Value: survey.IntValue(9), Timestamp: t0.Add(time.Hour)})
	s.Append(survey.Answer{RespondentID: 7, VersionID: 1, QuestionID: 13, Value: survey.IntValue(1), Timestamp: t0})

	t.Run("returns the newest row", func(t *testing.T) {
		a, err := s.Answer(ctx, 7, 1, 13)
		require.NoError(t, err)
		assert.True(t, a.Value.Equal(survey.IntValue(9)))
	})

	t.Run("misses are ErrNotFound", func(t *testing.T) {
		_, err := s.Answer(ctx, 7, 1, 99)
		assert.ErrorIs(t, err, survey.ErrNotFound)
	})
}

func TestLoadFixture(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.Default()
	require.NoError(t, err)

	t.Run("resolves numbers and coerces values", func(t *testing.T) {
		answers, f, err := LoadFixture(ctx, strings.NewReader(`
respondent_id: 7
version_id: 1
answers:
  "2.1": 3
  "2.1.30": "нет"
  "2.1.1": "К.1"
`), cat)
		require.NoError(t, err)
		assert.Equal(t, int64(7), f.RespondentID)
		require.Len(t, answers, 3)

		assert.Equal(t, int64(13), answers[0].QuestionID)
		assert.True(t, answers[1].Value.Equal(survey.BoolValue(false)))
		assert.True(t, answers[2].Timestamp.After(answers[1].Timestamp))

		s := New()
		s.Load(answers)
		assert.Equal(t, 3, s.Len())
	})

	t.Run("an empty answer map is fine", func(t *testing.T) {
		answers, f, err := LoadFixture(ctx, strings.NewReader("respondent_id: 7\nversion_id: 1\n"), cat)
		require.NoError(t, err)
		assert.Empty(t, answers)
		assert.Equal(t, int64(1), f.VersionID)
	})

	tests := []struct {
		name, src, want string
	}{
		{"missing ids", `answers: {"2.1": 3}`, "respondent_id"},
		{"answers as a list", "respondent_id: 7\nversion_id: 1\nanswers: [1, 2]", "mapping"},
		{"unknown question", "respondent_id: 7\nversion_id: 1\nanswers: {\"99.9\": 1}", "99.9"},
		{"value of the wrong type", "respondent_id: 7\nversion_id: 1\nanswers: {\"2.1\": many}", "2.1"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, _, err := LoadFixture(ctx, strings.NewReader(tt.src), cat)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

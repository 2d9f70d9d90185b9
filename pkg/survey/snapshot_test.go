package survey

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotPolicy(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []Answer{
		{QuestionID: 13, Value: IntValue(3), Timestamp: t0.Add(time.Minute)},
		{QuestionID: 14, Value: TextValue("К.1"), Timestamp: t0},
		{QuestionID: 13, Value: IntValue(5), Timestamp: t0},
	}
	numbers := map[int64]string{13: "2.1", 14: "2.1.1"}

	t.Run("latest keeps the newest timestamp", func(t *testing.T) {
		s := NewSnapshot(rows, numbers, PolicyLatest)
		v, ok := s.ByNumber("2.1")
		require.True(t, ok)
		assert.True(t, v.Equal(IntValue(3)))
		assert.Equal(t, 2, s.Len())
	})

	t.Run("first keeps store order", func(t *testing.T) {
		s := NewSnapshot(rows, numbers, PolicyFirst)
		v, ok := s.ByID(13)
		require.True(t, ok)
		assert.True(t, v.Equal(IntValue(3)))

		s = NewSnapshot([]Answer{rows[2], rows[0]}, numbers, PolicyFirst)
		v, _ = s.ByID(13)
		assert.True(t, v.Equal(IntValue(5)))
	})

	t.Run("equal timestamps go to the later row", func(t *testing.T) {
		tied := []Answer{
			{QuestionID: 13, Value: IntValue(1), Timestamp: t0},
			{QuestionID: 13, Value: IntValue(2), Timestamp: t0},
		}
		v, _ := NewSnapshot(tied, numbers, PolicyLatest).ByID(13)
		assert.True(t, v.Equal(IntValue(2)))
	})

	t.Run("parses policy names", func(t *testing.T) {
		for in, want := range map[string]SnapshotPolicy{"": PolicyLatest, "latest": PolicyLatest, "first": PolicyFirst} {
			p, err := ParseSnapshotPolicy(in)
			require.NoError(t, err)
			assert.Equal(t, want, p)
			if in != "" {
				assert.Equal(t, in, p.String())
			}
		}
		_, err := ParseSnapshotPolicy("random")
		assert.Error(t, err)
	})
}

func TestSnapshotLookups(t *testing.T) {
	t.Run("a nil snapshot has no answers", func(t *testing.T) {
		var s *Snapshot
		_, ok := s.ByID(1)
		assert.False(t, ok)
		_, ok = s.ByNumber("2.1")
		assert.False(t, ok)
		assert.Equal(t, 0, s.Len())
		assert.Nil(t, s.QuestionIDs())
	})

	t.Run("questions without a number are indexed by id only", func(t *testing.T) {
		s := NewSnapshot([]Answer{{QuestionID: 99, Value: BoolValue(false)}}, nil, PolicyLatest)
		v, ok := s.Lookup(Ref{ID: 99})
		require.True(t, ok)
		assert.True(t, v.Equal(BoolValue(false)), "false is an answer, not an absence")
		_, ok = s.Lookup(NumberRef("2.1.30"))
		assert.False(t, ok)
	})

	t.Run("question ids are sorted", func(t *testing.T) {
		s := NewSnapshot([]Answer{{QuestionID: 30}, {QuestionID: 4}, {QuestionID: 17}}, nil, PolicyLatest)
		assert.Equal(t, []int64{4, 17, 30}, s.QuestionIDs())
	})
}

func TestBuildSnapshot(t *testing.T) {
	ctx := context.Background()
	cat := newFakeCatalog(t,
		Definition{ID: 13, VersionID: 1, Number: "2.1", Type: "integer"},
		Definition{ID: 19, VersionID: 1, Number: "2.1.2", Type: "integer"},
	)
	answers := &fakeAnswers{rows: []Answer{
		{RespondentID: 7, VersionID: 1, QuestionID: 13, Value: IntValue(3)},
		{RespondentID: 7, VersionID: 1, QuestionID: 19, Value: IntValue(9)},
		{RespondentID: 7, VersionID: 1, QuestionID: 404, Value: IntValue(1)},
		{RespondentID: 8, VersionID: 1, QuestionID: 13, Value: IntValue(12)},
	}}

	t.Run("indexes the respondent's answers by number", func(t *testing.T) {
		s, err := BuildSnapshot(ctx, cat, answers, 7, 1, PolicyLatest)
		require.NoError(t, err)
		assert.Equal(t, int64(7), s.RespondentID)
		assert.Equal(t, int64(1), s.VersionID)
		assert.Equal(t, 3, s.Len())

		v, ok := s.ByNumber("2.1")
		require.True(t, ok)
		assert.True(t, v.Equal(IntValue(3)))
		_, ok = s.ByID(404)
		assert.True(t, ok, "unknown questions are still indexed by id")
	})

	t.Run("an empty respondent gets an empty snapshot", func(t *testing.T) {
		s, err := BuildSnapshot(ctx, cat, answers, 99, 1, PolicyLatest)
		require.NoError(t, err)
		assert.Equal(t, 0, s.Len())
		assert.Equal(t, int64(99), s.RespondentID)
	})

	t.Run("store failures are wrapped and not rejections", func(t *testing.T) {
		boom := errors.New("connection reset")
		_, err := BuildSnapshot(ctx, cat, &fakeAnswers{err: boom}, 7, 1, PolicyLatest)
		require.ErrorIs(t, err, boom)
		_, ok := AsRejection(err)
		assert.False(t, ok)
	})
}

package catalog

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlovans/surveyor/pkg/survey"
)

func TestDefault(t *testing.T) {
	ctx := context.Background()
	c, err := Default()
	require.NoError(t, err)

	t.Run("loads the embedded questionnaire", func(t *testing.T) {
		assert.Equal(t, []Version{{ID: 1, Name: "v1.0"}}, c.Versions())
		assert.Len(t, c.Questions(1), 173)
		assert.Len(t, c.All(), 173)
		assert.Empty(t, c.Questions(2))
	})

	t.Run("resolves questions by id and number", func(t *testing.T) {
		q, err := c.Question(ctx, 13)
		require.NoError(t, err)
		assert.Equal(t, "2.1", q.Number)
		assert.Equal(t, survey.TypeInteger, q.Type)

		q, err = c.QuestionByNumber(ctx, 1, "2.1.1")
		require.NoError(t, err)
		assert.Equal(t, int64(14), q.ID)
		require.NotNil(t, q.Options.Dynamic)
	})

	t.Run("misses are ErrNotFound", func(t *testing.T) {
		_, err := c.Question(ctx, 9999)
		assert.ErrorIs(t, err, survey.ErrNotFound)
		_, err = c.QuestionByNumber(ctx, 2, "2.1")
		assert.ErrorIs(t, err, survey.ErrNotFound)
	})

	t.Run("resolves numbers in bulk and skips unknown ids", func(t *testing.T) {
		numbers, err := c.QuestionNumbers(ctx, []int64{13, 49, 9999})
		require.NoError(t, err)
		assert.Equal(t, map[int64]string{13: "2.1", 49: "3.6"}, numbers)
	})

	t.Run("definitions round-trip through compilation", func(t *testing.T) {
		defs := c.Definitions(1)
		require.Len(t, defs, 173)
		again, err := New(File{Versions: []VersionDef{{ID: 1, Name: "v1.0", Questions: defs}}})
		require.NoError(t, err)

		for _, q := range c.Questions(1) {
			other, err := again.Question(ctx, q.ID)
			require.NoError(t, err)
			assert.Equal(t, q.Tags(), other.Tags(), q.Number)
		}
	})

	t.Run("returns a copy of the source", func(t *testing.T) {
		data := DefaultYAML()
		data[0] = 'X'
		assert.NotEqual(t, data[0], DefaultYAML()[0])
	})
}

func TestParse(t *testing.T) {
	t.Run("assigns free ids to questions without one", func(t *testing.T) {
		c, err := Parse([]byte(`
versions:
  - id: 1
    name: test
    questions:
      - {number: "1.1", type: text}
      - {id: 10, number: "1.2", type: integer}
      - {number: "1.3", type: boolean}
`))
		require.NoError(t, err)
		var ids []int64
		for _, q := range c.Questions(1) {
			ids = append(ids, q.ID)
		}
		assert.Equal(t, []int64{11, 10, 12}, ids)
	})

	t.Run("first definition of a duplicate number wins", func(t *testing.T) {
		c, err := Parse([]byte(`
versions:
  - id: 1
    name: test
    questions:
      - {id: 1, number: "1.1", type: text}
      - {id: 2, number: "1.1", type: integer}
`))
		require.NoError(t, err)
		q, err := c.QuestionByNumber(context.Background(), 1, "1.1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), q.ID)
	})

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no versions", "versions: []", "invalid catalog"},
		{"missing number", "versions: [{id: 1, name: v, questions: [{type: text}]}]", "invalid catalog"},
		{"duplicate question ids", `versions: [{id: 1, name: v, questions: [{id: 3, number: "1.1", type: text}, {id: 3, number: "1.2", type: text}]}]`, "duplicate question id 3"},
		{"duplicate version ids", `versions: [{id: 1, name: a, questions: []}, {id: 1, name: b, questions: []}]`, "duplicate version id 1"},
		{"bad constraints", `versions: [{id: 1, name: v, questions: [{id: 1, number: "1.1", type: integer, constraints: {min: 5, max: 1}}]}]`, "version v: question 1.1"},
		{"not YAML", "versions: [", "parse catalog"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("reads from a reader", func(t *testing.T) {
		c, err := Load(bytes.NewReader(DefaultYAML()))
		require.NoError(t, err)
		assert.Len(t, c.Questions(1), 173)
	})

	t.Run("refuses oversized input", func(t *testing.T) {
		_, err := Load(strings.NewReader(strings.Repeat("#", MaxFileSize+1)))
		assert.ErrorContains(t, err, "exceeds")
	})

	t.Run("reports missing files", func(t *testing.T) {
		_, err := LoadFile("testdata/does-not-exist.yaml")
		assert.ErrorContains(t, err, "open catalog")
	})
}

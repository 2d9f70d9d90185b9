package survey

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// compileQuestion compiles a single question from a YAML constraints bag.
func compileQuestion(t *testing.T, number, typ, constraints string) *Question {
	t.Helper()
	return compileWith(t, Definition{ID: 1, VersionID: 1, Number: number, Type: typ}, constraints)
}

func compileWith(t *testing.T, def Definition, constraints string) *Question {
	t.Helper()
	bag, err := ParseBag([]byte(constraints))
	require.NoError(t, err)
	def.Constraints = bag
	q, err := Compile(def)
	require.NoError(t, err)
	return q
}

// snapshotOf indexes answers by number. Ids are assigned from 1000 in number order.
func snapshotOf(answers map[string]Value) *Snapshot {
	numbers := make([]string, 0, len(answers))
	for n := range answers {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)

	rows := make([]Answer, 0, len(answers))
	byID := make(map[int64]string, len(answers))
	for i, n := range numbers {
		id := int64(1000 + i)
		byID[id] = n
		rows = append(rows, Answer{
			RespondentID: 7,
			VersionID:    1,
			QuestionID:   id,
			Value:        answers[n],
			Timestamp:    time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
		})
	}
	return NewSnapshot(rows, byID, PolicyLatest)
}

// requireKind asserts err is a rejection of the given kind and returns it.
func requireKind(t *testing.T, err error, kind Kind) *Rejection {
	t.Helper()
	require.Error(t, err)
	r, ok := AsRejection(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	require.Equal(t, kind, r.Kind, "message: %s", r.Message)
	return r
}

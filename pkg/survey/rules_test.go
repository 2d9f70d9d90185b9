package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGates(t *testing.T) {
	t.Run("depends_on needs the referenced answer", func(t *testing.T) {
		q := compileQuestion(t, "4.12", "integer", `depends_on: "4.11"
condition: "True"`)

		r := requireKind(t, errOf(Evaluate(q, 3, snapshotOf(nil))), KindDependencyUnsatisfied)
		assert.Equal(t, StateStart, r.Stage)
		assert.Equal(t, "4.11", r.Params["depends_on"])

		r = requireKind(t, errOf(Evaluate(q, 3, snapshotOf(map[string]Value{"4.11": BoolValue(false)}))), KindConditionFailed)
		assert.Equal(t, "==true", r.Params["condition"])

		_, err := Evaluate(q, 3, snapshotOf(map[string]Value{"4.11": BoolValue(true)}))
		assert.NoError(t, err)
	})

	t.Run("gates run before coercion", func(t *testing.T) {
		q := compileQuestion(t, "4.12", "integer", `depends_on: "4.11"`)
		requireKind(t, errOf(Evaluate(q, "not a number", snapshotOf(nil))), KindDependencyUnsatisfied)
	})

	t.Run("list depends_on needs every answer", func(t *testing.T) {
		q := compileQuestion(t, "2.1.22", "integer", `depends_on: ["2.1.2", "2.1.4"]`)

		r := requireKind(t, errOf(Evaluate(q, 1, snapshotOf(map[string]Value{"2.1.2": IntValue(9)}))), KindDependencyUnsatisfied)
		assert.Equal(t, "2.1.4", r.Params["depends_on"])

		_, err := Evaluate(q, 1, snapshotOf(map[string]Value{"2.1.2": IntValue(9), "2.1.4": IntValue(500)}))
		assert.NoError(t, err)
	})

	t.Run("allow lists disable the question outside their values", func(t *testing.T) {
		q := compileQuestion(t, "1.3", "text", `depends_on: {question_number: "1.2", values: ["Да"]}`)

		requireKind(t, errOf(Evaluate(q, "x", snapshotOf(nil))), KindDependencyUnsatisfied)
		r := requireKind(t, errOf(Evaluate(q, "x", snapshotOf(map[string]Value{"1.2": TextValue("Нет")}))), KindDependencyUnsatisfied)
		assert.Equal(t, []any{"Да"}, r.Params["allowed"])

		_, err := Evaluate(q, "x", snapshotOf(map[string]Value{"1.2": TextValue("Да")}))
		assert.NoError(t, err)
	})

	t.Run("condition gates compare the left answer", func(t *testing.T) {
		q := compileQuestion(t, "4.12", "integer", `condition: {left: "4.2", op: ">=", right: 3}`)

		requireKind(t, errOf(Evaluate(q, 1, snapshotOf(map[string]Value{"4.2": IntValue(2)}))), KindConditionFailed)
		_, err := Evaluate(q, 1, snapshotOf(map[string]Value{"4.2": IntValue(3)}))
		assert.NoError(t, err)
	})
}

func TestCorpusSlots(t *testing.T) {
	q := compileWith(t, Definition{
		ID: 14, Number: "2.1.1", Type: "dropdown",
		Options: OptionsDef{DependsOn: "2.1", Condition: ">1"},
	}, `exclude_from: ["2.2.1"]`)

	t.Run("slot labels follow the count", func(t *testing.T) {
		assert.Equal(t, []string{"К.1", "К.2", "К.3"}, SlotLabels(DefaultSlotPrefix, 3))
		assert.Nil(t, SlotLabels(DefaultSlotPrefix, 0))
		assert.Len(t, SlotLabels("S", 5000), 1000)
	})

	t.Run("accepts exactly the generated slots", func(t *testing.T) {
		snap := snapshotOf(map[string]Value{"2.1": IntValue(3)})
		for _, slot := range []string{"К.1", "К.2", "К.3"} {
			_, err := Evaluate(q, slot, snap)
			assert.NoError(t, err, slot)
		}
		r := requireKind(t, errOf(Evaluate(q, "К.4", snap)), KindOptionInvalid)
		assert.Equal(t, StateGateChecked, r.Stage)
	})

	t.Run("is unavailable while the count does not satisfy the condition", func(t *testing.T) {
		for _, n := range []int64{0, 1} {
			snap := snapshotOf(map[string]Value{"2.1": IntValue(n)})
			requireKind(t, errOf(Evaluate(q, "К.1", snap)), KindDependencyUnsatisfied)
		}
		requireKind(t, errOf(Evaluate(q, "К.1", snapshotOf(nil))), KindDependencyUnsatisfied)
	})

	t.Run("available options drop slots held by siblings", func(t *testing.T) {
		snap := snapshotOf(map[string]Value{"2.1": IntValue(3), "2.2.1": TextValue("К.2")})
		opts, err := AvailableOptions(q, snap)
		require.NoError(t, err)
		assert.Equal(t, []string{"К.1", "К.3"}, opts)

		_, err = AvailableOptions(q, snapshotOf(map[string]Value{"2.1": IntValue(1)}))
		requireKind(t, err, KindDependencyUnsatisfied)
	})

	t.Run("a sibling holding the slot is an exclusivity violation", func(t *testing.T) {
		snap := snapshotOf(map[string]Value{"2.1": IntValue(3), "2.2.1": TextValue("К.2")})
		r := requireKind(t, errOf(Evaluate(q, "К.2", snap)), KindExclusivityViolation)
		assert.Equal(t, "2.2.1", r.Params["conflicts_with"])
		assert.Equal(t, StateCoerced, r.Stage)

		_, err := Evaluate(q, "К.1", snap)
		assert.NoError(t, err)
	})
}

func TestAreaRules(t *testing.T) {
	t.Run("area total must match its parts within tolerance", func(t *testing.T) {
		q := compileQuestion(t, "5.2", "integer", "area_total_of: [\"2.1.4\", \"2.1.5\"]\ntolerance: 0.5")
		snap := snapshotOf(map[string]Value{"2.1.4": IntValue(800), "2.1.5": IntValue(200)})

		_, err := Evaluate(q, 1000, snap)
		assert.NoError(t, err)
		r := requireKind(t, errOf(Evaluate(q, 1001, snap)), KindAreaMismatch)
		assert.Equal(t, float64(1000), r.Params["sum"])
	})

	t.Run("absent parts count as zero", func(t *testing.T) {
		q := compileQuestion(t, "5.2", "integer", `area_total_of: ["2.1.4", "2.1.5"]`)
		snap := snapshotOf(map[string]Value{"2.1.4": IntValue(800)})
		_, err := Evaluate(q, 800, snap)
		assert.NoError(t, err)
	})

	t.Run("an area part may not exceed its total", func(t *testing.T) {
		q := compileQuestion(t, "2.1.7", "integer", `area_part_of: "2.1.5"`)

		_, err := Evaluate(q, 5000, snapshotOf(nil))
		assert.NoError(t, err, "no total recorded yet")

		snap := snapshotOf(map[string]Value{"2.1.5": IntValue(1000)})
		_, err = Evaluate(q, 1000, snap)
		assert.NoError(t, err)
		requireKind(t, errOf(Evaluate(q, 1001, snap)), KindAreaMismatch)
	})

	t.Run("apartment counts must fit in the apartment area", func(t *testing.T) {
		q := compileQuestion(t, "6.1", "integer", "area_check: {min_area: 20, max_area: 80}")
		snap := snapshotOf(map[string]Value{"2.1.4": IntValue(800)})

		_, err := Evaluate(q, 10, snap)
		assert.NoError(t, err)
		r := requireKind(t, errOf(Evaluate(q, 11, snap)), KindAreaMismatch)
		assert.Equal(t, float64(880), r.Params["required"])

		_, err = Evaluate(q, 11, snapshotOf(nil))
		assert.NoError(t, err, "no apartment area recorded yet")
	})
}

func TestElevatorRules(t *testing.T) {
	t.Run("an explicit no elevator is rejected once floors reach the minimum", func(t *testing.T) {
		q := compileQuestion(t, "2.1.30", "boolean",
			`requires_elevator_if: {floors_question: "2.1.2", min_floors: 6, elevator_question: "2.1.30"}`)

		snap := snapshotOf(map[string]Value{"2.1.2": IntValue(6)})
		r := requireKind(t, errOf(Evaluate(q, "нет", snap)), KindElevatorRule)
		assert.Equal(t, 6, r.Params["min_floors"])

		_, err := Evaluate(q, "да", snap)
		assert.NoError(t, err)
		_, err = Evaluate(q, false, snapshotOf(map[string]Value{"2.1.2": IntValue(5)}))
		assert.NoError(t, err)
		_, err = Evaluate(q, false, snapshotOf(nil))
		assert.NoError(t, err)
	})

	t.Run("without an elevator floors are capped", func(t *testing.T) {
		q := compileQuestion(t, "2.1.2", "integer",
			`no_elevator_max_floors: {elevator_question: "2.1.30", max: 5}`)

		noLift := snapshotOf(map[string]Value{"2.1.30": BoolValue(false)})
		_, err := Evaluate(q, 5, noLift)
		assert.NoError(t, err)
		requireKind(t, errOf(Evaluate(q, 6, noLift)), KindElevatorRule)

		_, err = Evaluate(q, 12, snapshotOf(map[string]Value{"2.1.30": BoolValue(true)}))
		assert.NoError(t, err)
		_, err = Evaluate(q, 12, snapshotOf(nil))
		assert.NoError(t, err, "elevator not answered yet")
	})

	t.Run("the sizing table picks the highest matching threshold", func(t *testing.T) {
		tests := []struct {
			floors int64
			area   float64
			lifts  int
			ok     bool
		}{
			{9, 601, 1, true},
			{9, 600, 0, false},
			{12, 700, 2, true},
			{17, 451, 2, true},
			{18, 5000, 0, false},
			{25, 400, 3, true},
			{25, 451, 4, true},
			{26, 1000, 0, false},
		}
		for _, tt := range tests {
			lifts, ok := ExpectedLifts(DefaultLiftBands, tt.floors, tt.area)
			assert.Equal(t, tt.ok, ok, "floors %d area %v", tt.floors, tt.area)
			assert.Equal(t, tt.lifts, lifts, "floors %d area %v", tt.floors, tt.area)
		}
	})

	t.Run("the matrix rejects a wrong lift count", func(t *testing.T) {
		q := compileQuestion(t, "2.1.22", "integer", `elevator_matrix: {floors: "2.1.2", area: "2.1.4"}`)
		snap := snapshotOf(map[string]Value{"2.1.2": IntValue(9), "2.1.4": IntValue(601)})

		r := requireKind(t, errOf(Evaluate(q, 2, snap)), KindElevatorRule)
		assert.Equal(t, 1, r.Params["expected"])
		_, err := Evaluate(q, 1, snap)
		assert.NoError(t, err)

		_, err = Evaluate(q, 7, snapshotOf(map[string]Value{"2.1.2": IntValue(19), "2.1.4": IntValue(601)}))
		assert.NoError(t, err, "table gap")
	})
}

func TestDerived(t *testing.T) {
	t.Run("legacy calculation strings", func(t *testing.T) {
		tests := []struct {
			expr string
			at   map[float64]string
		}{
			{"II if 2.1.13 < 50 else I", map[float64]string{49: "II", 49.9: "II", 50: "I", 80: "I"}},
			{"II if 2.1.13 <= 50 else I", map[float64]string{50: "II", 50.5: "I"}},
			{"I if 2.1.13 >= 50 else II", map[float64]string{49: "II", 50: "I"}},
			{"I if 2.1.13 > 50 else II", map[float64]string{50: "II", 51: "I"}},
		}
		for _, tt := range tests {
			d, err := ParseCalculation(tt.expr)
			require.NoError(t, err, tt.expr)
			assert.Equal(t, NumberRef("2.1.13"), d.Source)
			for x, want := range tt.at {
				assert.True(t, d.Expected(x).Equal(TextValue(want)), "%s at %v", tt.expr, x)
			}
		}
	})

	t.Run("derived values reject everything else as read-only", func(t *testing.T) {
		q := compileQuestion(t, "3.6", "text", "read_only: true\ncalculation: \"II if 2.1.13 < 50 else I\"")

		snap := snapshotOf(map[string]Value{"2.1.13": IntValue(49)})
		_, err := Evaluate(q, "II", snap)
		assert.NoError(t, err)
		r := requireKind(t, errOf(Evaluate(q, "I", snap)), KindReadOnlyViolation)
		assert.Equal(t, "II", r.Params["expected"])

		requireKind(t, errOf(Evaluate(q, "II", snapshotOf(nil))), KindDependencyUnsatisfied)
	})

	t.Run("band tables", func(t *testing.T) {
		q := compileQuestion(t, "3.8", "text", `derive: {source: "2.1.13", bands: [{below: 50, value: R90}, {below: 75, value: R120}, {below: 150, value: R180}], otherwise: R240}`)
		d := q.Constraints.Rules[0].(*Derived)
		for x, want := range map[float64]string{10: "R90", 50: "R120", 149: "R180", 150: "R240"} {
			assert.True(t, d.Expected(x).Equal(TextValue(want)), "at %v", x)
		}
	})

	t.Run("read-only questions accept their default", func(t *testing.T) {
		q := compileQuestion(t, "3.7", "text", "read_only: true\ndefault: C0")
		_, err := Evaluate(q, "C0", snapshotOf(nil))
		assert.NoError(t, err)
		requireKind(t, errOf(Evaluate(q, "C1", snapshotOf(nil))), KindReadOnlyViolation)

		q = compileQuestion(t, "3.9", "text", "read_only: true")
		requireKind(t, errOf(Evaluate(q, "anything", snapshotOf(nil))), KindReadOnlyViolation)
	})
}

func TestTotals(t *testing.T) {
	components := map[string]Value{
		"6.1": IntValue(10), "6.2": IntValue(10), "6.3": IntValue(10), "6.4": IntValue(0),
	}

	t.Run("equal mode needs the exact sum", func(t *testing.T) {
		q := compileQuestion(t, "5.4", "integer", `rules: [{tag: totals, components: ["6.1", "6.2", "6.3", "6.4", "6.5"]}]`)
		snap := snapshotOf(components)

		_, err := Evaluate(q, 30, snap)
		assert.NoError(t, err)
		r := requireKind(t, errOf(Evaluate(q, 31, snap)), KindTotalsMismatch)
		assert.Equal(t, float64(30), r.Params["expected"])
		assert.Equal(t, float64(31), r.Params["value"])
	})

	t.Run("at_least mode accepts anything from the sum up", func(t *testing.T) {
		q := compileQuestion(t, "5.1", "integer", `rules: [{tag: totals, mode: at_least, components: ["6.1", "6.2"]}]`)
		snap := snapshotOf(components)

		for _, v := range []int{20, 25} {
			_, err := Evaluate(q, v, snap)
			assert.NoError(t, err)
		}
		requireKind(t, errOf(Evaluate(q, 19, snap)), KindTotalsMismatch)
	})
}

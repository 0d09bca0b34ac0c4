// Package engine is the questionnaire decision engine: condition evaluation,
// field state resolution, page navigation and the rendering state machine.
//
// Everything except Engine is a pure function of its inputs. Engine adds the
// session bookkeeping on top through a Repository.
package engine

import (
	"strings"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/types"
)

// Evaluate reports whether observed satisfies op against the literal.
//
// Malformed comparisons (non-numeric input to a numeric operator, unknown
// operators) evaluate to false. A null observed value only ever matches
// is_empty.
func Evaluate(op types.Operator, observed answer.Value, literal string) bool {
	if observed == nil {
		observed = answer.Null{}
	}

	switch op {
	case types.OpIsEmpty:
		return observed.IsEmpty()
	case types.OpIsNotEmpty:
		return !observed.IsEmpty()
	}

	if answer.IsNull(observed) {
		return false
	}

	switch op {
	case types.OpEquals, types.OpNotEquals, types.OpContains,
		types.OpNotContains, types.OpIn, types.OpNotIn:
		return evaluateString(op, observed, literal)
	case types.OpGreaterThan, types.OpLessThan,
		types.OpGreaterEqual, types.OpLessEqual:
		return evaluateNumeric(op, observed, literal)
	default:
		return false
	}
}

// evaluateString compares the stringified observed value case-insensitively.
// Lists stringify comma-joined, so contains is a substring test on the
// joined text and in matches only when the joined text is one set member.
func evaluateString(op types.Operator, observed answer.Value, literal string) bool {
	want := strings.ToLower(literal)
	got := strings.ToLower(observed.String())
	switch op {
	case types.OpEquals:
		return got == want
	case types.OpNotEquals:
		return got != want
	case types.OpContains:
		return strings.Contains(got, want)
	case types.OpNotContains:
		return !strings.Contains(got, want)
	case types.OpIn:
		return literalSet(literal)[got]
	case types.OpNotIn:
		return !literalSet(literal)[got]
	}
	return false
}

func evaluateNumeric(op types.Operator, observed answer.Value, literal string) bool {
	got, ok := answer.Float(observed)
	if !ok {
		return false
	}
	want, ok := answer.Float(answer.Text(literal))
	if !ok {
		return false
	}

	switch op {
	case types.OpGreaterThan:
		return got > want
	case types.OpLessThan:
		return got < want
	case types.OpGreaterEqual:
		return got >= want
	case types.OpLessEqual:
		return got <= want
	}
	return false
}

// literalSet splits a comma separated literal into a lower-cased set.
func literalSet(literal string) map[string]bool {
	parts := strings.Split(literal, ",")
	set := make(map[string]bool, len(parts))
	for _, p := range parts {
		set[strings.ToLower(strings.TrimSpace(p))] = true
	}
	return set
}

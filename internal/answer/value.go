// Package answer models respondent answers as a small tagged value.
//
// Answers arrive from two places: the store (persisted, JSON encoded) and the
// API (in-flight edits, decoded JSON). Both are converted to a Value exactly
// once at that boundary; the decision engine only ever sees Values.
package answer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a sealed interface over the answer shapes the engine understands.
// Only Null, Text, Number, Bool and List implement it.
type Value interface {
	// IsEmpty reports whether the value counts as "no answer":
	// null, the empty string, or an empty list.
	IsEmpty() bool
	// String renders the value for string comparisons.
	String() string
	answerValue()
}

// Null is an absent answer.
type Null struct{}

func (Null) answerValue() {}
func (Null) IsEmpty() bool { return true }
func (Null) String() string { return "" }

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Text is a free-form string answer.
type Text string

func (Text) answerValue() {}
func (t Text) IsEmpty() bool { return t == "" }
func (t Text) String() string { return string(t) }

// Number is a numeric answer.
type Number float64

func (Number) answerValue() {}
func (Number) IsEmpty() bool { return false }
func (n Number) String() string { return strconv.FormatFloat(float64(n), 'f', -1, 64) }

// Bool is a boolean answer.
type Bool bool

func (Bool) answerValue() {}
func (Bool) IsEmpty() bool { return false }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// List is a multi-valued answer (multiselect, checkbox groups).
type List []string

func (List) answerValue() {}
func (l List) IsEmpty() bool { return len(l) == 0 }
func (l List) String() string { return strings.Join(l, ",") }

// IsNull reports whether v is absent. A nil interface counts as absent.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Float parses v as a float64. Text is trimmed before parsing.
// Bool, List and Null never parse.
func Float(v Value) (float64, bool) {
	switch x := v.(type) {
	case Number:
		return float64(x), true
	case Text:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// FromAny converts a decoded JSON (or YAML) value into a Value.
// Nested objects are kept as their JSON text.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null{}
	case Value:
		return x
	case string:
		return Text(x)
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return Text(x.String())
	case []string:
		return List(append([]string(nil), x...))
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			if item == nil {
				continue
			}
			items = append(items, FromAny(item).String())
		}
		return List(items)
	case map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return Text(fmt.Sprint(x))
		}
		return Text(data)
	default:
		return Text(fmt.Sprint(x))
	}
}

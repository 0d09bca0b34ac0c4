package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/types"
)

// MaxAnswerLength bounds any single text answer.
const MaxAnswerLength = 10000

// ValidateAnswer checks a submitted value against the field's type, choices
// and validation rules. Empty values always pass; whether a field must be
// answered is decided when the session advances.
//
// Recognized rules: min, max (numeric value), min_length, max_length
// (characters), pattern (regular expression matched against the whole
// value). choices in options limit select, radio and multiselect values.
func ValidateAnswer(f types.Field, v answer.Value) []ValidationError {
	if v == nil || v.IsEmpty() {
		return nil
	}

	var c Collector
	name := f.Name

	if t, ok := v.(answer.Text); ok {
		c.Add(ValidateUTF8(name, string(t)))
		c.Add(ValidateNoNullBytes(name, string(t)))
		c.Add(ValidateMaxLength(name, string(t), MaxAnswerLength))
	}

	switch f.Type {
	case types.FieldNumber, types.FieldRating:
		if _, ok := answer.Float(v); !ok {
			c.Add(&ValidationError{Field: name, Message: "must be a number"})
		}
	case types.FieldEmail:
		if _, err := mail.ParseAddress(v.String()); err != nil {
			c.Add(&ValidationError{Field: name, Message: "must be a valid email address"})
		}
	case types.FieldBoolean:
		if !isBoolean(v) {
			c.Add(&ValidationError{Field: name, Message: "must be true or false"})
		}
	case types.FieldSelect, types.FieldRadio:
		if choices := choiceList(f.Options); choices != nil {
			c.Add(ValidateEnum(name, v.String(), choices))
		}
	case types.FieldMultiselect, types.FieldCheckbox:
		if choices := choiceList(f.Options); choices != nil {
			if list, ok := v.(answer.List); ok {
				for _, item := range list {
					c.Add(ValidateEnum(name, item, choices))
				}
			}
		}
	}

	validateRules(&c, name, f.ValidationRules, v)
	return c.Errors()
}

func validateRules(c *Collector, name string, rules map[string]any, v answer.Value) {
	if len(rules) == 0 {
		return
	}

	if n, ok := answer.Float(v); ok {
		lo, hasMin := ruleFloat(rules, "min")
		hi, hasMax := ruleFloat(rules, "max")
		switch {
		case hasMin && hasMax:
			c.Add(ValidateRange(name, n, lo, hi))
		case hasMin && n < lo:
			c.Add(&ValidationError{Field: name, Message: fmt.Sprintf("must be at least %g", lo)})
		case hasMax && n > hi:
			c.Add(&ValidationError{Field: name, Message: fmt.Sprintf("must be at most %g", hi)})
		}
	}

	text := v.String()
	if minLen, ok := ruleFloat(rules, "min_length"); ok && float64(utf8.RuneCountInString(text)) < minLen {
		c.Add(&ValidationError{Field: name, Message: fmt.Sprintf("must be at least %d characters", int(minLen))})
	}
	if maxLen, ok := ruleFloat(rules, "max_length"); ok {
		c.Add(ValidateMaxLength(name, text, int(maxLen)))
	}
	if pattern, ok := rules["pattern"].(string); ok && pattern != "" {
		re, err := compilePattern(pattern)
		switch {
		case err != nil:
			c.Add(&ValidationError{Field: name, Message: "has an invalid format rule"})
		case !re.MatchString(text):
			c.Add(&ValidationError{Field: name, Message: "does not match the required format"})
		}
	}
}

// patterns caches anchored validation patterns by their source text.
var patterns sync.Map

// compilePattern anchors pattern to the whole value and compiles it once.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}

func ruleFloat(rules map[string]any, key string) (float64, bool) {
	raw, ok := rules[key]
	if !ok || raw == nil {
		return 0, false
	}
	return answer.Float(answer.FromAny(raw))
}

// choiceList reads options.choices. Entries are plain values or objects
// with a "value" key.
func choiceList(options map[string]any) []string {
	raw, ok := options["choices"].([]any)
	if !ok {
		return nil
	}
	choices := make([]string, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			item = obj["value"]
		}
		if item == nil {
			continue
		}
		choices = append(choices, answer.FromAny(item).String())
	}
	return choices
}

func isBoolean(v answer.Value) bool {
	switch x := v.(type) {
	case answer.Bool:
		return true
	case answer.Text:
		s := strings.ToLower(strings.TrimSpace(string(x)))
		return s == "true" || s == "false"
	}
	return false
}

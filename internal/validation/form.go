package validation

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/types"
)

// Limits on definition text.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxLabelLength       = 500
	MaxNameLength        = 100
)

// ValidateForm checks a built form graph before it is stored. Error field
// paths are index based, e.g. "pages[1].fields[0].name".
func ValidateForm(form *types.Form) []ValidationError {
	var c Collector

	c.Add(ValidateRequired("title", form.Title))
	validateText(&c, "title", form.Title, MaxTitleLength)
	validateText(&c, "description", form.Description, MaxDescriptionLength)

	if len(form.Pages) == 0 {
		c.Add(&ValidationError{Field: "pages", Message: "must contain at least one page"})
		return c.Errors()
	}

	pageIDs := make(map[string]bool, len(form.Pages))
	fieldIDs := make(map[string]bool)
	for _, p := range form.Pages {
		pageIDs[p.ID] = true
		for _, f := range p.Fields {
			fieldIDs[f.ID] = true
		}
	}

	keys := make(map[string]bool)
	names := make(map[string]bool)
	firsts := 0

	for i, p := range form.Pages {
		path := fmt.Sprintf("pages[%d]", i)

		if p.IsFirst {
			firsts++
		}
		if err := ValidateName(path+".key", p.Key); err != nil {
			c.Add(err)
		} else if keys[p.Key] {
			c.Add(&ValidationError{Field: path + ".key", Message: fmt.Sprintf("duplicate page key %q", p.Key)})
		}
		keys[p.Key] = true
		c.Add(ValidateMaxLength(path+".key", p.Key, MaxNameLength))
		validateText(&c, path+".title", p.Title, MaxTitleLength)

		if len(p.Fields) == 0 {
			c.Add(&ValidationError{Field: path + ".fields", Message: "must contain at least one field"})
		}

		for j, f := range p.Fields {
			fpath := fmt.Sprintf("%s.fields[%d]", path, j)

			if err := ValidateName(fpath+".name", f.Name); err != nil {
				c.Add(err)
			} else if names[f.Name] {
				c.Add(&ValidationError{Field: fpath + ".name", Message: fmt.Sprintf("duplicate field name %q", f.Name)})
			}
			names[f.Name] = true
			c.Add(ValidateMaxLength(fpath+".name", f.Name, MaxNameLength))
			validateText(&c, fpath+".label", f.Label, MaxLabelLength)
			c.Add(ValidateEnum(fpath+".type", string(f.Type), types.FieldTypes()))
			validateRuleSet(&c, fpath+".validation", f.ValidationRules)

			for k, cond := range f.Conditions {
				cpath := fmt.Sprintf("%s.conditions[%d]", fpath, k)
				c.Add(ValidateEnum(cpath+".action", string(cond.Action), types.Actions()))
				validateComparison(&c, cpath, cond.Operator, cond.Value)
				switch {
				case cond.SourceFieldID == "" || !fieldIDs[cond.SourceFieldID]:
					c.Add(&ValidationError{Field: cpath + ".when", Message: "must reference a field in this form"})
				case cond.SourceFieldID == f.ID:
					c.Add(&ValidationError{Field: cpath + ".when", Message: "must not reference the field it controls"})
				}
			}
		}

		defaults := 0
		for k, r := range p.NavigationRules {
			rpath := fmt.Sprintf("%s.navigation[%d]", path, k)
			if r.IsDefault {
				defaults++
				if defaults > 1 {
					c.Add(&ValidationError{Field: rpath + ".default", Message: "page already has a default rule"})
				}
			} else {
				if r.SourceFieldID == "" || !fieldIDs[r.SourceFieldID] {
					c.Add(&ValidationError{Field: rpath + ".when", Message: "must reference a field in this form"})
				}
				validateComparison(&c, rpath, r.Operator, r.Value)
			}
			if r.TargetPageID != "" && !pageIDs[r.TargetPageID] {
				c.Add(&ValidationError{Field: rpath + ".goto", Message: "must reference a page in this form"})
			}
			if r.TargetPageID == p.ID {
				c.Add(&ValidationError{Field: rpath + ".goto", Message: "must not point at its own page"})
			}
		}
	}

	if firsts > 1 {
		c.Add(&ValidationError{Field: "pages", Message: "at most one page may be marked first"})
	}

	return c.Errors()
}

func validateText(c *Collector, field, value string, max int) {
	c.Add(ValidateUTF8(field, value))
	c.Add(ValidateNoNullBytes(field, value))
	c.Add(ValidateMaxLength(field, value, max))
}

func validateComparison(c *Collector, path string, op types.Operator, value string) {
	if err := ValidateEnum(path+".operator", string(op), types.Operators()); err != nil {
		c.Add(err)
		return
	}
	switch op {
	case types.OpIsEmpty, types.OpIsNotEmpty:
		return
	case types.OpGreaterThan, types.OpLessThan, types.OpGreaterEqual, types.OpLessEqual:
		if _, ok := answer.Float(answer.Text(value)); !ok {
			c.Add(&ValidationError{Field: path + ".value", Message: fmt.Sprintf("must be numeric for %s", op)})
		}
	default:
		if strings.TrimSpace(value) == "" && op != types.OpEquals && op != types.OpNotEquals {
			c.Add(&ValidationError{Field: path + ".value", Message: fmt.Sprintf("is required for %s", op)})
		}
	}
}

// validateRuleSet rejects validation rules that could never be applied.
func validateRuleSet(c *Collector, path string, rules map[string]any) {
	for _, key := range []string{"min", "max", "min_length", "max_length"} {
		if raw, ok := rules[key]; ok && raw != nil {
			if _, ok := ruleFloat(rules, key); !ok {
				c.Add(&ValidationError{Field: path + "." + key, Message: "must be numeric"})
			}
		}
	}
	raw, ok := rules["pattern"]
	if !ok || raw == nil {
		return
	}
	pattern, ok := raw.(string)
	if !ok {
		c.Add(&ValidationError{Field: path + ".pattern", Message: "must be a string"})
		return
	}
	if _, err := compilePattern(pattern); err != nil {
		c.Add(&ValidationError{Field: path + ".pattern", Message: fmt.Sprintf("invalid regular expression: %v", err)})
	}
}

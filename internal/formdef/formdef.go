// Package formdef reads form definition documents and compiles them into
// form graphs ready for import.
//
// A definition refers to fields by name and pages by key, so a whole
// questionnaire, including its conditions and navigation, can be written by
// hand:
//
//	title: Customer intake
//	pages:
//	  - key: start
//	    first: true
//	    fields:
//	      - name: customer_type
//	        type: select
//	        required: true
//	        options: {choices: [new, returning]}
//	      - name: referral
//	        type: text
//	        conditions:
//	          - {when: customer_type, operator: equals, value: new, action: show}
//	    navigation:
//	      - {when: customer_type, operator: equals, value: returning, goto: loyalty}
//	      - {default: true, goto: details}
//
// JSON documents with the same keys are accepted too.
package formdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Definition is a whole form as written by an author.
type Definition struct {
	ID          string    `yaml:"id,omitempty" json:"id,omitempty"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Active      *bool     `yaml:"active,omitempty" json:"active,omitempty"`
	Pages       []PageDef `yaml:"pages" json:"pages"`
}

// PageDef is one page. Pages are ordered as listed.
type PageDef struct {
	Key         string     `yaml:"key" json:"key"`
	Title       string     `yaml:"title,omitempty" json:"title,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	First       bool       `yaml:"first,omitempty" json:"first,omitempty"`
	Fields      []FieldDef `yaml:"fields" json:"fields"`
	Navigation  []RuleDef  `yaml:"navigation,omitempty" json:"navigation,omitempty"`
}

// FieldDef is one field. Fields are ordered as listed.
type FieldDef struct {
	Name        string         `yaml:"name" json:"name"`
	Label       string         `yaml:"label,omitempty" json:"label,omitempty"`
	Type        string         `yaml:"type" json:"type"`
	Required    bool           `yaml:"required,omitempty" json:"required,omitempty"`
	Hidden      bool           `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	Placeholder string         `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	HelpText    string         `yaml:"help_text,omitempty" json:"help_text,omitempty"`
	Default     any            `yaml:"default,omitempty" json:"default,omitempty"`
	Options     map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
	Validation  map[string]any `yaml:"validation,omitempty" json:"validation,omitempty"`
	Conditions  []ConditionDef `yaml:"conditions,omitempty" json:"conditions,omitempty"`
}

// ConditionDef changes the enclosing field's state when the field named by
// When satisfies Operator against Value. Conditions run in listed order.
type ConditionDef struct {
	When     string `yaml:"when" json:"when"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value,omitempty" json:"value,omitempty"`
	Action   string `yaml:"action" json:"action"`
}

// RuleDef is a navigation rule on the enclosing page. A rule without Goto
// ends the form. Priority defaults to the rule's position in the list.
type RuleDef struct {
	When     string `yaml:"when,omitempty" json:"when,omitempty"`
	Operator string `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value    any    `yaml:"value,omitempty" json:"value,omitempty"`
	Goto     string `yaml:"goto,omitempty" json:"goto,omitempty"`
	Default  bool   `yaml:"default,omitempty" json:"default,omitempty"`
	Priority *int   `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// ErrEmptyDocument is returned by Parse for input with no document in it.
var ErrEmptyDocument = errors.New("empty form definition")

// Parse decodes a YAML or JSON definition. Unknown keys are rejected so a
// misspelt key fails loudly instead of being ignored.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDocument
		}
		return nil, fmt.Errorf("parse form definition: %w", err)
	}
	return &def, nil
}

// Marshal encodes a definition as YAML.
func Marshal(def *Definition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return nil, fmt.Errorf("encode form definition: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode form definition: %w", err)
	}
	return buf.Bytes(), nil
}

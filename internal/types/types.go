package types

import (
	"encoding/json"
	"time"

	"github.com/hyperengineering/formpath/internal/answer"
)

// FieldType enumerates the input widgets a field can render as.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldNumber      FieldType = "number"
	FieldEmail       FieldType = "email"
	FieldPhone       FieldType = "phone"
	FieldDate        FieldType = "date"
	FieldDatetime    FieldType = "datetime"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"
	FieldRadio       FieldType = "radio"
	FieldCheckbox    FieldType = "checkbox"
	FieldBoolean     FieldType = "boolean"
	FieldFile        FieldType = "file"
	FieldRating      FieldType = "rating"
)

// FieldTypes lists every valid FieldType.
func FieldTypes() []string {
	return []string{
		string(FieldText), string(FieldTextarea), string(FieldNumber),
		string(FieldEmail), string(FieldPhone), string(FieldDate),
		string(FieldDatetime), string(FieldSelect), string(FieldMultiselect),
		string(FieldRadio), string(FieldCheckbox), string(FieldBoolean),
		string(FieldFile), string(FieldRating),
	}
}

// Operator is a comparison used by field conditions and navigation rules.
type Operator string

const (
	OpEquals       Operator = "equals"
	OpNotEquals    Operator = "not_equals"
	OpGreaterThan  Operator = "greater_than"
	OpLessThan     Operator = "less_than"
	OpGreaterEqual Operator = "greater_equal"
	OpLessEqual    Operator = "less_equal"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpIsEmpty      Operator = "is_empty"
	OpIsNotEmpty   Operator = "is_not_empty"
)

// Operators lists every valid Operator.
func Operators() []string {
	return []string{
		string(OpEquals), string(OpNotEquals), string(OpGreaterThan),
		string(OpLessThan), string(OpGreaterEqual), string(OpLessEqual),
		string(OpContains), string(OpNotContains), string(OpIn),
		string(OpNotIn), string(OpIsEmpty), string(OpIsNotEmpty),
	}
}

// Action is what a matched field condition does to its target field.
type Action string

const (
	ActionShow    Action = "show"
	ActionHide    Action = "hide"
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
	ActionRequire Action = "require"
	ActionSkip    Action = "skip"
)

// Actions lists every valid Action.
func Actions() []string {
	return []string{
		string(ActionShow), string(ActionHide), string(ActionEnable),
		string(ActionDisable), string(ActionRequire), string(ActionSkip),
	}
}

// SessionStatus is the lifecycle state of a respondent session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// Form is a questionnaire definition with its pages eagerly loaded.
type Form struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Pages       []Page    `json:"pages"`
}

// Page is one screen of a form.
type Page struct {
	ID              string           `json:"id"`
	FormID          string           `json:"form_id"`
	Key             string           `json:"key"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Order           int              `json:"order"`
	IsFirst         bool             `json:"is_first"`
	Fields          []Field          `json:"fields"`
	NavigationRules []NavigationRule `json:"navigation_rules"`
}

// Field is a single input on a page. Name is unique within the form and is
// the key answers are stored under.
type Field struct {
	ID              string           `json:"id"`
	PageID          string           `json:"page_id"`
	Name            string           `json:"name"`
	Label           string           `json:"label"`
	Type            FieldType        `json:"field_type"`
	Placeholder     string           `json:"placeholder,omitempty"`
	HelpText        string           `json:"help_text,omitempty"`
	Order           int              `json:"order"`
	IsRequired      bool             `json:"is_required"`
	IsVisible       bool             `json:"is_visible"`
	DefaultValue    *string          `json:"default_value,omitempty"`
	Options         map[string]any   `json:"options,omitempty"`
	ValidationRules map[string]any   `json:"validation_rules,omitempty"`
	Conditions      []FieldCondition `json:"conditions,omitempty"` // inbound: TargetFieldID == ID
}

// FieldCondition toggles a target field's state based on a source field's answer.
type FieldCondition struct {
	ID              string   `json:"id"`
	SourceFieldID   string   `json:"source_field_id"`
	SourceFieldName string   `json:"source_field_name"`
	TargetFieldID   string   `json:"target_field_id"`
	Operator        Operator `json:"operator"`
	Value           string   `json:"value,omitempty"`
	Action          Action   `json:"action"`
	Position        int      `json:"position"`
}

// NavigationRule selects the page that follows PageID. An empty TargetPageID
// means the form ends here.
type NavigationRule struct {
	ID              string   `json:"id"`
	PageID          string   `json:"page_id"`
	SourceFieldID   string   `json:"source_field_id,omitempty"`
	SourceFieldName string   `json:"source_field_name,omitempty"`
	Operator        Operator `json:"operator"`
	Value           string   `json:"value,omitempty"`
	TargetPageID    string   `json:"target_page_id,omitempty"`
	IsDefault       bool     `json:"is_default"`
	Priority        int      `json:"priority"`
}

// Session is one respondent's pass through a form.
type Session struct {
	ID            string        `json:"session_id"`
	FormID        string        `json:"form_id"`
	Status        SessionStatus `json:"status"`
	CurrentPageID string        `json:"current_page_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// FormSummary is the list view of a form.
type FormSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	PageCount   int       `json:"page_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordedAnswer is a stored answer joined with its field metadata.
type RecordedAnswer struct {
	FieldID   string       `json:"field_id"`
	Name      string       `json:"name"`
	Label     string       `json:"label"`
	FieldType FieldType    `json:"field_type"`
	Value     answer.Value `json:"value"`
}

// UnmarshalJSON decodes the answer value into its typed form.
func (a *RecordedAnswer) UnmarshalJSON(data []byte) error {
	type plain RecordedAnswer
	aux := struct {
		*plain
		Value any `json:"value"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Value = answer.FromAny(aux.Value)
	return nil
}

// --- Rendering ---

// ConditionRule is the client-side view of a FieldCondition, keyed by
// source field name so a browser can re-evaluate it live.
type ConditionRule struct {
	SourceFieldName string `json:"source_field_name"`
	Operator        string `json:"operator"`
	Value           string `json:"value,omitempty"`
	Action          string `json:"action"`
}

// RenderedField is a field with its resolved state for the current answers.
type RenderedField struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Label           string          `json:"label"`
	Type            FieldType       `json:"field_type"`
	Placeholder     string          `json:"placeholder,omitempty"`
	HelpText        string          `json:"help_text,omitempty"`
	IsRequired      bool            `json:"is_required"`
	IsVisible       bool            `json:"is_visible"`
	IsEnabled       bool            `json:"is_enabled"`
	Skip            bool            `json:"skip"`
	DefaultValue    *string         `json:"default_value,omitempty"`
	Options         map[string]any  `json:"options,omitempty"`
	ValidationRules map[string]any  `json:"validation_rules,omitempty"`
	CurrentValue    answer.Value    `json:"current_value"`
	Conditions      []ConditionRule `json:"conditions,omitempty"`
}

// UnmarshalJSON decodes the current value into its typed form.
func (f *RenderedField) UnmarshalJSON(data []byte) error {
	type plain RenderedField
	aux := struct {
		*plain
		CurrentValue any `json:"current_value"`
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.CurrentValue = answer.FromAny(aux.CurrentValue)
	return nil
}

// RenderedPage is the page selected for display.
type RenderedPage struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Order       int             `json:"order"`
	IsFirst     bool            `json:"is_first"`
	Fields      []RenderedField `json:"fields"`
}

// RenderResult is the outcome of one rendering pass.
type RenderResult struct {
	FormID      string       `json:"form_id"`
	FormTitle   string       `json:"form_title"`
	SessionID   string       `json:"session_id"`
	CurrentPage RenderedPage `json:"current_page"`
	NextPageID  *string      `json:"next_page_id"`
	IsComplete  bool         `json:"is_complete"`
	Progress    float64      `json:"progress"`
}

// AdvanceResult is the outcome of an explicit page transition.
type AdvanceResult struct {
	SessionID     string   `json:"session_id"`
	FromPageID    string   `json:"from_page_id"`
	CurrentPageID string   `json:"current_page_id"`
	NextPageID    *string  `json:"next_page_id"`
	Moved         bool     `json:"moved"`
	IsComplete    bool     `json:"is_complete"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// --- API request/response bodies ---

// RenderRequest is the body of POST /api/v1/render.
type RenderRequest struct {
	FormID         string     `json:"form_id"`
	SessionID      string     `json:"session_id"`
	CurrentAnswers answer.Map `json:"current_answers,omitempty"`
}

// CreateSessionRequest is the body of POST /api/v1/sessions.
type CreateSessionRequest struct {
	FormID    string `json:"form_id"`
	SessionID string `json:"session_id,omitempty"`
}

// SubmitAnswerRequest is the body of POST /api/v1/sessions/{id}/answers.
type SubmitAnswerRequest struct {
	FieldID string `json:"field_id"`
	Value   any    `json:"value"`
}

// SubmitAnswerResponse reports the state after an answer was stored.
type SubmitAnswerResponse struct {
	Success    bool     `json:"success"`
	NextPageID *string  `json:"next_page_id"`
	IsComplete bool     `json:"is_complete"`
	Advanced   bool     `json:"advanced"`
	Message    string   `json:"message,omitempty"`
	Missing    []string `json:"missing_fields,omitempty"`
}

// AdvanceRequest is the body of POST /api/v1/sessions/{id}/advance.
type AdvanceRequest struct {
	CurrentAnswers answer.Map `json:"current_answers,omitempty"`
}

// SessionResponses is the body of GET /api/v1/sessions/{id}/responses.
type SessionResponses struct {
	SessionID string           `json:"session_id"`
	FormID    string           `json:"form_id"`
	Status    SessionStatus    `json:"status"`
	Answers   []RecordedAnswer `json:"answers"`
}

// ImportResult reports a successfully imported form.
type ImportResult struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PageCount int    `json:"page_count"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	FormCount int64    `json:"form_count"`
	Activity  Activity `json:"activity"`
}

// Activity counts engine work since the process started.
type Activity struct {
	Renders           float64 `json:"renders"`
	AnswersSubmitted  float64 `json:"answers_submitted"`
	Advances          float64 `json:"advances"`
	SessionsCompleted float64 `json:"sessions_completed"`
	SessionsAbandoned float64 `json:"sessions_abandoned"`
}

// StoreStats holds aggregate store statistics.
type StoreStats struct {
	FormCount      int64      `json:"form_count"`
	SessionCount   int64      `json:"session_count"`
	CompletedCount int64      `json:"completed_count"`
	LastSnapshot   *time.Time `json:"last_snapshot,omitempty"`
}

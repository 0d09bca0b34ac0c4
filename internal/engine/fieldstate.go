package engine

import (
	"sort"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/types"
)

// FieldState is the resolved state of one field for a set of answers.
// Hidden is tracked alongside Visible; use IsVisible for the effective value.
type FieldState struct {
	Visible  bool `json:"visible"`
	Hidden   bool `json:"hidden"`
	Enabled  bool `json:"enabled"`
	Required bool `json:"required"`
	Skip     bool `json:"skip"`
}

// IsVisible reports the effective visibility.
func (s FieldState) IsVisible() bool {
	return s.Visible && !s.Hidden
}

// ResolveFieldState aggregates the conditions targeting a field.
//
// Baseline, before any condition is evaluated:
//   - only show conditions present: hidden; otherwise visible
//   - enabled unless a disable condition exists
//   - required iff a require condition exists
//   - not skipped
//
// Conditions are then evaluated in Position order and every match applies
// its action. show/hide and enable/disable overwrite each other; require and
// skip only ever set their flag.
//
// answers must contain every field in the form (see Engine.evaluationMap),
// otherwise cross-page conditions see Null instead of the field default.
func ResolveFieldState(conditions []types.FieldCondition, answers answer.Map) FieldState {
	var hasShow, hasHide, hasRequire, hasDisable bool
	for _, c := range conditions {
		switch c.Action {
		case types.ActionShow:
			hasShow = true
		case types.ActionHide:
			hasHide = true
		case types.ActionRequire:
			hasRequire = true
		case types.ActionDisable:
			hasDisable = true
		}
	}

	state := FieldState{
		Visible:  true,
		Enabled:  !hasDisable,
		Required: hasRequire,
	}
	if hasShow && !hasHide {
		state.Visible = false
		state.Hidden = true
	}

	for _, c := range sortConditions(conditions) {
		if !Evaluate(c.Operator, answers.Get(c.SourceFieldName), c.Value) {
			continue
		}
		switch c.Action {
		case types.ActionShow:
			state.Visible, state.Hidden = true, false
		case types.ActionHide:
			state.Visible, state.Hidden = false, true
		case types.ActionEnable:
			state.Enabled = true
		case types.ActionDisable:
			state.Enabled = false
		case types.ActionRequire:
			state.Required = true
		case types.ActionSkip:
			state.Skip = true
		}
	}

	return state
}

// Resolver exposes field state resolution keyed by field.
type Resolver struct{}

// FieldStates resolves the state of field against answers. Conditions that
// do not target field are ignored.
func (Resolver) FieldStates(fieldID string, conditions []types.FieldCondition, answers answer.Map) FieldState {
	targeting := make([]types.FieldCondition, 0, len(conditions))
	for _, c := range conditions {
		if c.TargetFieldID == fieldID {
			targeting = append(targeting, c)
		}
	}
	return ResolveFieldState(targeting, answers)
}

// hasVisibilityCondition reports whether any condition is show or hide.
func hasVisibilityCondition(conditions []types.FieldCondition) bool {
	for _, c := range conditions {
		if c.Action == types.ActionShow || c.Action == types.ActionHide {
			return true
		}
	}
	return false
}

func sortConditions(conditions []types.FieldCondition) []types.FieldCondition {
	sorted := append([]types.FieldCondition(nil), conditions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

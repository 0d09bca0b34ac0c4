package formdef

import (
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/types"
	"github.com/hyperengineering/formpath/internal/validation"
)

// Build compiles a definition into a form graph with fresh ULIDs and
// resolved references. The result has passed validation.ValidateForm.
// Errors are returned as *validation.FailedError with paths that point into
// the definition, e.g. "pages[0].navigation[1].goto".
func Build(def *Definition) (*types.Form, error) {
	var c validation.Collector

	form := &types.Form{
		ID:          def.ID,
		Title:       def.Title,
		Description: def.Description,
		IsActive:    def.Active == nil || *def.Active,
		Pages:       make([]types.Page, len(def.Pages)),
	}
	if form.ID == "" {
		form.ID = ulid.Make().String()
	} else {
		c.Add(validation.ValidateULID("id", form.ID))
	}

	// First pass: ids for every page and field so references can point
	// forward. The first page with a key and the first field with a name win;
	// duplicates are reported by ValidateForm.
	pageIDs := make(map[string]string)
	fieldIDs := make(map[string]string)
	for i, pd := range def.Pages {
		form.Pages[i] = types.Page{
			ID:          ulid.Make().String(),
			FormID:      form.ID,
			Key:         pd.Key,
			Title:       pd.Title,
			Description: pd.Description,
			Order:       i,
			IsFirst:     pd.First,
			Fields:      make([]types.Field, len(pd.Fields)),
		}
		if _, ok := pageIDs[pd.Key]; !ok {
			pageIDs[pd.Key] = form.Pages[i].ID
		}
		for j, fd := range pd.Fields {
			id := ulid.Make().String()
			form.Pages[i].Fields[j].ID = id
			if _, ok := fieldIDs[fd.Name]; !ok {
				fieldIDs[fd.Name] = id
			}
		}
	}

	for i, pd := range def.Pages {
		page := &form.Pages[i]
		path := fmt.Sprintf("pages[%d]", i)

		for j, fd := range pd.Fields {
			fpath := fmt.Sprintf("%s.fields[%d]", path, j)
			f := &page.Fields[j]
			f.PageID = page.ID
			f.Name = fd.Name
			f.Label = fd.Label
			if f.Label == "" {
				f.Label = fd.Name
			}
			f.Type = types.FieldType(fd.Type)
			f.Placeholder = fd.Placeholder
			f.HelpText = fd.HelpText
			f.Order = j
			f.IsRequired = fd.Required
			f.IsVisible = !fd.Hidden
			f.DefaultValue = defaultValue(fd.Default)
			f.Options = fd.Options
			f.ValidationRules = fd.Validation

			for k, cd := range fd.Conditions {
				src, ok := fieldIDs[cd.When]
				if !ok {
					c.Add(&validation.ValidationError{
						Field:   fmt.Sprintf("%s.conditions[%d].when", fpath, k),
						Message: fmt.Sprintf("unknown field %q", cd.When),
					})
				}
				f.Conditions = append(f.Conditions, types.FieldCondition{
					ID:              ulid.Make().String(),
					SourceFieldID:   src,
					SourceFieldName: cd.When,
					TargetFieldID:   f.ID,
					Operator:        types.Operator(cd.Operator),
					Value:           literal(cd.Value),
					Action:          types.Action(cd.Action),
					Position:        k,
				})
			}
		}

		for k, rd := range pd.Navigation {
			rpath := fmt.Sprintf("%s.navigation[%d]", path, k)
			rule := types.NavigationRule{
				ID:        ulid.Make().String(),
				PageID:    page.ID,
				Operator:  types.Operator(rd.Operator),
				Value:     literal(rd.Value),
				IsDefault: rd.Default,
				Priority:  k,
			}
			if rd.Priority != nil {
				rule.Priority = *rd.Priority
			}
			if rd.When != "" {
				src, ok := fieldIDs[rd.When]
				if !ok {
					c.Add(&validation.ValidationError{Field: rpath + ".when", Message: fmt.Sprintf("unknown field %q", rd.When)})
				}
				rule.SourceFieldID = src
				rule.SourceFieldName = rd.When
			}
			if rd.Goto != "" {
				target, ok := pageIDs[rd.Goto]
				if !ok {
					c.Add(&validation.ValidationError{Field: rpath + ".goto", Message: fmt.Sprintf("unknown page %q", rd.Goto)})
				}
				rule.TargetPageID = target
			}
			page.NavigationRules = append(page.NavigationRules, rule)
		}
	}

	if err := c.Err(); err != nil {
		return nil, err
	}
	if errs := validation.ValidateForm(form); len(errs) > 0 {
		return nil, &validation.FailedError{Errors: errs}
	}
	return form, nil
}

// Export converts a stored form graph back into a definition. Building the
// result yields an equivalent form with new ids.
func Export(form *types.Form) *Definition {
	def := &Definition{
		ID:          form.ID,
		Title:       form.Title,
		Description: form.Description,
		Pages:       make([]PageDef, 0, len(form.Pages)),
	}
	if !form.IsActive {
		inactive := false
		def.Active = &inactive
	}

	pageKeys := make(map[string]string, len(form.Pages))
	fieldNames := make(map[string]string)
	for _, p := range form.Pages {
		pageKeys[p.ID] = p.Key
		for _, f := range p.Fields {
			fieldNames[f.ID] = f.Name
		}
	}

	for _, p := range form.Pages {
		pd := PageDef{
			Key:         p.Key,
			Title:       p.Title,
			Description: p.Description,
			First:       p.IsFirst,
			Fields:      make([]FieldDef, 0, len(p.Fields)),
		}

		fields := append([]types.Field(nil), p.Fields...)
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Order < fields[j].Order })
		for _, f := range fields {
			fd := FieldDef{
				Name:        f.Name,
				Type:        string(f.Type),
				Required:    f.IsRequired,
				Hidden:      !f.IsVisible,
				Placeholder: f.Placeholder,
				HelpText:    f.HelpText,
				Options:     f.Options,
				Validation:  f.ValidationRules,
			}
			if f.Label != f.Name {
				fd.Label = f.Label
			}
			if f.DefaultValue != nil {
				fd.Default = *f.DefaultValue
			}

			conds := append([]types.FieldCondition(nil), f.Conditions...)
			sort.SliceStable(conds, func(i, j int) bool { return conds[i].Position < conds[j].Position })
			for _, cond := range conds {
				when := cond.SourceFieldName
				if when == "" {
					when = fieldNames[cond.SourceFieldID]
				}
				fd.Conditions = append(fd.Conditions, ConditionDef{
					When:     when,
					Operator: string(cond.Operator),
					Value:    optional(cond.Value),
					Action:   string(cond.Action),
				})
			}
			pd.Fields = append(pd.Fields, fd)
		}

		for k, r := range p.NavigationRules {
			rd := RuleDef{
				Operator: string(r.Operator),
				Value:    optional(r.Value),
				Goto:     pageKeys[r.TargetPageID],
				Default:  r.IsDefault,
			}
			if r.SourceFieldID != "" {
				rd.When = fieldNames[r.SourceFieldID]
			}
			if r.Priority != k {
				priority := r.Priority
				rd.Priority = &priority
			}
			pd.Navigation = append(pd.Navigation, rd)
		}

		def.Pages = append(def.Pages, pd)
	}
	return def
}

// literal renders a definition value as the string form conditions compare
// against. Lists become comma separated, which is what in and not_in expect.
func literal(v any) string {
	if v == nil {
		return ""
	}
	return answer.FromAny(v).String()
}

func defaultValue(v any) *string {
	if v == nil {
		return nil
	}
	s := literal(v)
	return &s
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

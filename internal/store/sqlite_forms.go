package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/formpath/internal/engine"
	"github.com/hyperengineering/formpath/internal/types"
)

// ImportForm stores a complete form graph in one transaction. Empty ids are
// assigned ULIDs; references between entities must already be resolved to ids.
// On success form carries the stored ids and timestamps.
func (s *SQLiteStore) ImportForm(ctx context.Context, form *types.Form) (*types.ImportResult, error) {
	assignIDs(form)

	now := time.Now().UTC()
	form.CreatedAt = now
	form.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	nowStr := formatTime(now)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO forms (id, title, description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, form.ID, form.Title, form.Description, boolInt(form.IsActive), nowStr, nowStr); err != nil {
		return nil, fmt.Errorf("insert form: %w", translateImportError(err))
	}

	for _, p := range form.Pages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pages (id, form_id, key, title, description, position, is_first)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID, form.ID, p.Key, p.Title, p.Description, p.Order, boolInt(p.IsFirst)); err != nil {
			return nil, fmt.Errorf("insert page %q: %w", p.Key, translateImportError(err))
		}
	}

	for _, p := range form.Pages {
		for _, f := range p.Fields {
			if err := insertField(ctx, tx, form.ID, p.ID, f); err != nil {
				return nil, err
			}
		}
	}

	for _, p := range form.Pages {
		for _, f := range p.Fields {
			for _, c := range f.Conditions {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO field_conditions (id, source_field_id, target_field_id, operator, value, action, position)
					VALUES (?, ?, ?, ?, ?, ?, ?)
				`, c.ID, c.SourceFieldID, f.ID, string(c.Operator), c.Value, string(c.Action), c.Position); err != nil {
					return nil, fmt.Errorf("insert condition on %q: %w", f.Name, translateImportError(err))
				}
			}
		}
		for _, r := range p.NavigationRules {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO navigation_rules (id, page_id, source_field_id, operator, value, target_page_id, is_default, priority)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, r.ID, p.ID, nullString(r.SourceFieldID), string(r.Operator), r.Value,
				nullString(r.TargetPageID), boolInt(r.IsDefault), r.Priority); err != nil {
				return nil, fmt.Errorf("insert navigation rule on %q: %w", p.Key, translateImportError(err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &types.ImportResult{
		ID:        form.ID,
		Title:     form.Title,
		PageCount: len(form.Pages),
	}, nil
}

func insertField(ctx context.Context, tx *sql.Tx, formID, pageID string, f types.Field) error {
	options, err := marshalJSONMap(f.Options)
	if err != nil {
		return fmt.Errorf("marshal options for %q: %w", f.Name, err)
	}
	rules, err := marshalJSONMap(f.ValidationRules)
	if err != nil {
		return fmt.Errorf("marshal validation rules for %q: %w", f.Name, err)
	}

	var def any
	if f.DefaultValue != nil {
		def = *f.DefaultValue
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fields (
			id, form_id, page_id, name, label, field_type, placeholder, help_text,
			position, is_required, is_visible, default_value, options, validation_rules
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, formID, pageID, f.Name, f.Label, string(f.Type), f.Placeholder, f.HelpText,
		f.Order, boolInt(f.IsRequired), boolInt(f.IsVisible), def, options, rules)
	if err != nil {
		return fmt.Errorf("insert field %q: %w", f.Name, translateImportError(err))
	}
	return nil
}

// assignIDs fills empty ids and the parent links that follow from nesting.
func assignIDs(form *types.Form) {
	if form.ID == "" {
		form.ID = ulid.Make().String()
	}
	for i := range form.Pages {
		p := &form.Pages[i]
		if p.ID == "" {
			p.ID = ulid.Make().String()
		}
		p.FormID = form.ID
		for j := range p.Fields {
			f := &p.Fields[j]
			if f.ID == "" {
				f.ID = ulid.Make().String()
			}
			f.PageID = p.ID
			for k := range f.Conditions {
				c := &f.Conditions[k]
				if c.ID == "" {
					c.ID = ulid.Make().String()
				}
				c.TargetFieldID = f.ID
			}
		}
		for j := range p.NavigationRules {
			r := &p.NavigationRules[j]
			if r.ID == "" {
				r.ID = ulid.Make().String()
			}
			r.PageID = p.ID
		}
	}
}

func translateImportError(err error) error {
	switch {
	case isUniqueViolation(err, "forms.id"):
		return fmt.Errorf("%w: %v", ErrDuplicateForm, err)
	case isUniqueViolation(err, "fields.form_id, fields.name"):
		return fmt.Errorf("%w: %v", ErrDuplicateField, err)
	case isUniqueViolation(err, "pages.form_id, pages.key"):
		return fmt.Errorf("%w: %v", ErrDuplicatePage, err)
	case isConstraintViolation(err):
		return fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	return err
}

// LoadFormGraph returns the form with pages, fields, inbound conditions and
// navigation rules. Pages come back in display order, fields by position.
func (s *SQLiteStore) LoadFormGraph(ctx context.Context, formID string) (*types.Form, error) {
	var form types.Form
	var isActive int
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, is_active, created_at, updated_at
		FROM forms WHERE id = ?
	`, formID).Scan(&form.ID, &form.Title, &form.Description, &isActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewNotFound(engine.KindForm, formID)
	}
	if err != nil {
		return nil, fmt.Errorf("query form: %w", err)
	}
	form.IsActive = isActive == 1
	form.CreatedAt = parseTime(createdAt)
	form.UpdatedAt = parseTime(updatedAt)

	if form.Pages, err = s.loadPages(ctx, formID); err != nil {
		return nil, err
	}

	pageIdx := make(map[string]int, len(form.Pages))
	for i, p := range form.Pages {
		pageIdx[p.ID] = i
	}

	if err := s.loadFields(ctx, formID, form.Pages, pageIdx); err != nil {
		return nil, err
	}

	type loc struct{ page, field int }
	fieldLoc := make(map[string]loc)
	for i, p := range form.Pages {
		for j, f := range p.Fields {
			fieldLoc[f.ID] = loc{i, j}
		}
	}

	conditions, err := s.loadConditions(ctx, formID)
	if err != nil {
		return nil, err
	}
	for _, c := range conditions {
		if l, ok := fieldLoc[c.TargetFieldID]; ok {
			f := &form.Pages[l.page].Fields[l.field]
			f.Conditions = append(f.Conditions, c)
		}
	}

	rules, err := s.loadRules(ctx, formID)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if i, ok := pageIdx[r.PageID]; ok {
			form.Pages[i].NavigationRules = append(form.Pages[i].NavigationRules, r)
		}
	}

	return &form, nil
}

func (s *SQLiteStore) loadPages(ctx context.Context, formID string) ([]types.Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, form_id, key, title, description, position, is_first
		FROM pages WHERE form_id = ?
		ORDER BY is_first DESC, position, id
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []types.Page
	for rows.Next() {
		var p types.Page
		var isFirst int
		if err := rows.Scan(&p.ID, &p.FormID, &p.Key, &p.Title, &p.Description, &p.Order, &isFirst); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.IsFirst = isFirst == 1
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func (s *SQLiteStore) loadFields(ctx context.Context, formID string, pages []types.Page, pageIdx map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, name, label, field_type, placeholder, help_text,
		       position, is_required, is_visible, default_value, options, validation_rules
		FROM fields WHERE form_id = ?
		ORDER BY position, id
	`, formID)
	if err != nil {
		return fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f types.Field
		var fieldType string
		var isRequired, isVisible int
		var def, options, rules sql.NullString
		if err := rows.Scan(&f.ID, &f.PageID, &f.Name, &f.Label, &fieldType, &f.Placeholder, &f.HelpText,
			&f.Order, &isRequired, &isVisible, &def, &options, &rules); err != nil {
			return fmt.Errorf("scan field: %w", err)
		}
		f.Type = types.FieldType(fieldType)
		f.IsRequired = isRequired == 1
		f.IsVisible = isVisible == 1
		if def.Valid {
			v := def.String
			f.DefaultValue = &v
		}
		if f.Options, err = unmarshalJSONMap(options); err != nil {
			return fmt.Errorf("parse options for %q: %w", f.Name, err)
		}
		if f.ValidationRules, err = unmarshalJSONMap(rules); err != nil {
			return fmt.Errorf("parse validation rules for %q: %w", f.Name, err)
		}

		if i, ok := pageIdx[f.PageID]; ok {
			pages[i].Fields = append(pages[i].Fields, f)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate fields: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loadConditions(ctx context.Context, formID string) ([]types.FieldCondition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.source_field_id, src.name, c.target_field_id,
		       c.operator, c.value, c.action, c.position
		FROM field_conditions c
		JOIN fields src ON src.id = c.source_field_id
		JOIN fields tgt ON tgt.id = c.target_field_id
		WHERE tgt.form_id = ?
		ORDER BY c.position, c.id
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("query conditions: %w", err)
	}
	defer rows.Close()

	var out []types.FieldCondition
	for rows.Next() {
		var c types.FieldCondition
		var op, action string
		if err := rows.Scan(&c.ID, &c.SourceFieldID, &c.SourceFieldName, &c.TargetFieldID,
			&op, &c.Value, &action, &c.Position); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		c.Operator = types.Operator(op)
		c.Action = types.Action(action)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conditions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) loadRules(ctx context.Context, formID string) ([]types.NavigationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.page_id, r.source_field_id, src.name, r.operator, r.value,
		       r.target_page_id, r.is_default, r.priority
		FROM navigation_rules r
		JOIN pages p ON p.id = r.page_id
		LEFT JOIN fields src ON src.id = r.source_field_id
		WHERE p.form_id = ?
		ORDER BY r.priority, r.id
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("query navigation rules: %w", err)
	}
	defer rows.Close()

	var out []types.NavigationRule
	for rows.Next() {
		var r types.NavigationRule
		var op string
		var sourceID, sourceName, target sql.NullString
		var isDefault int
		if err := rows.Scan(&r.ID, &r.PageID, &sourceID, &sourceName, &op, &r.Value,
			&target, &isDefault, &r.Priority); err != nil {
			return nil, fmt.Errorf("scan navigation rule: %w", err)
		}
		r.SourceFieldID = sourceID.String
		r.SourceFieldName = sourceName.String
		r.TargetPageID = target.String
		r.Operator = types.Operator(op)
		r.IsDefault = isDefault == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate navigation rules: %w", err)
	}
	return out, nil
}

// ListForms returns every form, newest first.
func (s *SQLiteStore) ListForms(ctx context.Context) ([]types.FormSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.title, f.description, f.is_active, f.created_at,
		       (SELECT COUNT(*) FROM pages p WHERE p.form_id = f.id)
		FROM forms f
		ORDER BY f.created_at DESC, f.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query forms: %w", err)
	}
	defer rows.Close()

	forms := []types.FormSummary{}
	for rows.Next() {
		var f types.FormSummary
		var isActive int
		var createdAt string
		if err := rows.Scan(&f.ID, &f.Title, &f.Description, &isActive, &createdAt, &f.PageCount); err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		f.IsActive = isActive == 1
		f.CreatedAt = parseTime(createdAt)
		forms = append(forms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forms: %w", err)
	}
	return forms, nil
}

// DeleteForm removes a form and, by cascade, its pages, fields, rules,
// sessions and answers.
func (s *SQLiteStore) DeleteForm(ctx context.Context, formID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM forms WHERE id = ?`, formID)
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return engine.NewNotFound(engine.KindForm, formID)
	}
	return nil
}

func marshalJSONMap(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalJSONMap(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

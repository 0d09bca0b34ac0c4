package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/metrics"
	"github.com/hyperengineering/formpath/internal/types"
	"github.com/hyperengineering/formpath/internal/validation"
)

// Advance moves a session past its current page.
//
// In-flight answers are stored first. If a visible, enabled, non-skipped
// required field on the current page is still unanswered, the pointer does
// not move and the missing field names are reported. Otherwise the pointer
// moves to the next page, or the session completes when the page is terminal
// and has at least one answer.
func (e *Engine) Advance(ctx context.Context, formID, sessionID string, inFlight answer.Map) (*types.AdvanceResult, error) {
	form, err := e.repo.LoadFormGraph(ctx, formID)
	if err != nil {
		return nil, err
	}
	sess, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.FormID != form.ID {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionFormMismatch)
	}

	names := inFlight.Names()
	fields := make([]*types.Field, len(names))
	var c validation.Collector
	for i, name := range names {
		f := findFieldByName(form, name)
		if f == nil {
			return nil, NewNotFound(KindField, name)
		}
		fields[i] = f
		c.AddAll(validation.ValidateAnswer(*f, inFlight[name]))
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	for i, name := range names {
		if err := e.repo.UpsertAnswer(ctx, sess.ID, fields[i].ID, inFlight.Get(name)); err != nil {
			return nil, fmt.Errorf("store answer %q: %w", name, err)
		}
		metrics.AnswersSubmitted.Inc()
	}

	p, err := e.resume(ctx, form, sess, false, nil)
	if err != nil {
		return nil, err
	}
	return e.advance(ctx, p)
}

// SubmitAnswer stores one answer. When the field is on the session's current
// page and no required field on that page is left unanswered, the session
// advances as if Advance had been called.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, fieldID string, value answer.Value) (*types.SubmitAnswerResponse, error) {
	sess, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	form, err := e.repo.LoadFormGraph(ctx, sess.FormID)
	if err != nil {
		return nil, err
	}
	field, fieldPage := findField(form, fieldID)
	if field == nil {
		return nil, NewNotFound(KindField, fieldID)
	}

	if value == nil {
		value = answer.Null{}
	}
	if errs := validation.ValidateAnswer(*field, value); len(errs) > 0 {
		return nil, &validation.FailedError{Errors: errs}
	}
	if err := e.repo.UpsertAnswer(ctx, sess.ID, field.ID, value); err != nil {
		return nil, fmt.Errorf("store answer: %w", err)
	}
	metrics.AnswersSubmitted.Inc()

	p, err := e.resume(ctx, form, sess, false, nil)
	if err != nil {
		return nil, err
	}

	if fieldPage.ID != p.page.ID {
		decision := ResolveNextPage(p.page.ID, p.page.NavigationRules, p.eval, p.order)
		return &types.SubmitAnswerResponse{
			Success:    true,
			NextPageID: decision.Next(),
			Message:    "Answer submitted successfully",
		}, nil
	}

	res, err := e.advance(ctx, p)
	if err != nil {
		return nil, err
	}

	resp := &types.SubmitAnswerResponse{
		Success:    true,
		NextPageID: res.NextPageID,
		IsComplete: res.IsComplete,
		Advanced:   res.Moved,
		Message:    "Answer submitted successfully",
		Missing:    res.MissingFields,
	}
	if res.IsComplete {
		resp.Message = "Form completed!"
	}
	return resp, nil
}

// advance performs the pointer transition for a prepared pass.
func (e *Engine) advance(ctx context.Context, p *pass) (*types.AdvanceResult, error) {
	res := &types.AdvanceResult{
		SessionID:     p.session.ID,
		FromPageID:    p.page.ID,
		CurrentPageID: p.page.ID,
	}

	if missing := missingFields(p); len(missing) > 0 {
		if err := e.stay(ctx, p); err != nil {
			return nil, err
		}
		res.MissingFields = missing
		metrics.Advances.WithLabelValues("blocked").Inc()
		return res, nil
	}

	decision := ResolveNextPage(p.page.ID, p.page.NavigationRules, p.eval, p.order)
	metrics.NavigationDecisions.WithLabelValues(string(decision.Kind)).Inc()
	res.NextPageID = decision.Next()

	if decision.PageID != "" {
		if err := e.repo.UpdateSessionPointer(ctx, p.session.ID, decision.PageID); err != nil {
			return nil, fmt.Errorf("update session pointer: %w", err)
		}
		res.Moved = true
		res.CurrentPageID = decision.PageID
		metrics.Advances.WithLabelValues("moved").Inc()

		slog.Debug("session advanced",
			"component", "engine",
			"session_id", p.session.ID,
			"from_page_id", p.page.ID,
			"to_page_id", decision.PageID,
			"decision", decision.Kind,
		)
		return res, nil
	}

	if !pageAnswered(p.page, p.persisted) {
		if err := e.stay(ctx, p); err != nil {
			return nil, err
		}
		metrics.Advances.WithLabelValues("stayed").Inc()
		return res, nil
	}

	if err := e.complete(ctx, p.session); err != nil {
		return nil, err
	}
	res.IsComplete = true
	metrics.Advances.WithLabelValues("completed").Inc()
	return res, nil
}

// stay keeps the pointer on the current page. The write also returns an
// abandoned session to in_progress.
func (e *Engine) stay(ctx context.Context, p *pass) error {
	if err := e.repo.UpdateSessionPointer(ctx, p.session.ID, p.page.ID); err != nil {
		return fmt.Errorf("update session pointer: %w", err)
	}
	return nil
}

// missingFields lists required fields on the current page that the
// respondent can see and edit but has not answered.
func missingFields(p *pass) []string {
	var missing []string
	for _, f := range sortFields(p.page.Fields) {
		rf := renderField(f, p.eval, p.recorded)
		if !rf.IsRequired || !rf.IsVisible || !rf.IsEnabled || rf.Skip {
			continue
		}
		if p.recorded.Get(f.Name).IsEmpty() {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// CompleteSession marks a session completed regardless of its position.
func (e *Engine) CompleteSession(ctx context.Context, sessionID string) (*types.Session, error) {
	sess, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.complete(ctx, sess); err != nil {
		return nil, err
	}
	return e.repo.GetSession(ctx, sessionID)
}

// GetSession returns the session's current status.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return e.repo.GetSession(ctx, sessionID)
}

// Responses returns the session's recorded answers in page then field order.
func (e *Engine) Responses(ctx context.Context, sessionID string) ([]types.RecordedAnswer, error) {
	sess, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	form, err := e.repo.LoadFormGraph(ctx, sess.FormID)
	if err != nil {
		return nil, err
	}
	recorded, err := e.repo.LoadAnswers(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	out := []types.RecordedAnswer{}
	for _, pageID := range NewPageOrder(form.Pages) {
		page := findPage(form, pageID)
		for _, f := range sortFields(page.Fields) {
			v, ok := recorded[f.Name]
			if !ok {
				continue
			}
			out = append(out, types.RecordedAnswer{
				FieldID:   f.ID,
				Name:      f.Name,
				Label:     f.Label,
				FieldType: f.Type,
				Value:     v,
			})
		}
	}
	return out, nil
}

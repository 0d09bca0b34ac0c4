package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/metrics"
	"github.com/hyperengineering/formpath/internal/types"
)

// Engine runs rendering passes and page transitions for respondent sessions.
//
// Render never moves the session pointer past the page it shows. Advance and
// SubmitAnswer are the only operations that move it forward.
type Engine struct {
	repo Repository
}

// New creates an Engine backed by repo.
func New(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// pass holds everything one render or transition works from.
type pass struct {
	form     *types.Form
	session  *types.Session
	order    PageOrder
	page      *types.Page
	persisted answer.Map // answers already stored for the session
	recorded  answer.Map // persisted answers overlaid with in-flight ones
	eval     answer.Map // recorded plus a default for every unanswered field
}

// Render resolves the current page for a session and reports the next page,
// completion and progress. The session is created if it does not exist.
//
// Side effects: the session pointer is set to the rendered page, and the
// session is marked complete when the page is terminal and has a stored
// answer. In-flight answers alone never complete a session.
func (e *Engine) Render(ctx context.Context, formID, sessionID string, inFlight answer.Map) (*types.RenderResult, error) {
	start := time.Now()
	defer func() { metrics.RenderDuration.Observe(time.Since(start).Seconds()) }()

	p, err := e.begin(ctx, formID, sessionID, inFlight)
	if err != nil {
		metrics.Renders.WithLabelValues("error").Inc()
		return nil, err
	}

	fields := renderFields(p)

	decision := ResolveNextPage(p.page.ID, p.page.NavigationRules, p.eval, p.order)
	metrics.NavigationDecisions.WithLabelValues(string(decision.Kind)).Inc()

	complete := decision.PageID == "" && pageAnswered(p.page, p.persisted)

	if err := e.repo.UpdateSessionPointer(ctx, p.session.ID, p.page.ID); err != nil {
		metrics.Renders.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("update session pointer: %w", err)
	}
	if complete {
		if err := e.complete(ctx, p.session); err != nil {
			metrics.Renders.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	outcome := "ok"
	if complete {
		outcome = "complete"
	}
	metrics.Renders.WithLabelValues(outcome).Inc()

	slog.Debug("render",
		"component", "engine",
		"form_id", p.form.ID,
		"session_id", p.session.ID,
		"page_id", p.page.ID,
		"decision", decision.Kind,
		"next_page_id", decision.PageID,
		"complete", complete,
	)

	return &types.RenderResult{
		FormID:    p.form.ID,
		FormTitle: p.form.Title,
		SessionID: p.session.ID,
		CurrentPage: types.RenderedPage{
			ID:          p.page.ID,
			Title:       p.page.Title,
			Description: p.page.Description,
			Order:       p.page.Order,
			IsFirst:     p.page.IsFirst,
			Fields:      fields,
		},
		NextPageID: decision.Next(),
		IsComplete: complete,
		Progress:   p.order.Progress(p.page.ID),
	}, nil
}

// CreateSession creates a session for formID. An empty sessionID gets a
// generated UUID. Creating an existing session for the same form is a no-op.
func (e *Engine) CreateSession(ctx context.Context, formID, sessionID string) (*types.Session, error) {
	if _, err := e.repo.LoadFormGraph(ctx, formID); err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sess, _, err := e.repo.GetOrCreateSession(ctx, formID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.FormID != formID {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionFormMismatch)
	}
	return sess, nil
}

// begin loads the form graph and session, merges answers and selects the
// current page.
func (e *Engine) begin(ctx context.Context, formID, sessionID string, inFlight answer.Map) (*pass, error) {
	form, err := e.repo.LoadFormGraph(ctx, formID)
	if err != nil {
		return nil, err
	}

	sess, created, err := e.repo.GetOrCreateSession(ctx, formID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.FormID != form.ID {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionFormMismatch)
	}

	return e.resume(ctx, form, sess, created, inFlight)
}

// resume builds a pass for an already loaded form and session.
func (e *Engine) resume(ctx context.Context, form *types.Form, sess *types.Session, created bool, inFlight answer.Map) (*pass, error) {
	if len(form.Pages) == 0 {
		return nil, &InconsistentStateError{Kind: KindForm, ID: form.ID, Reason: "form has no pages"}
	}

	persisted, err := e.repo.LoadAnswers(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	p := &pass{
		form:      form,
		session:   sess,
		order:     NewPageOrder(form.Pages),
		persisted: persisted,
		recorded:  answer.Merge(persisted, inFlight),
	}
	p.eval = evaluationMap(form, p.recorded)
	p.page = selectPage(form, sess, created, p.recorded, p.order)

	if len(p.page.Fields) == 0 {
		return nil, &InconsistentStateError{Kind: KindPage, ID: p.page.ID, Reason: "page has no fields"}
	}
	return p, nil
}

// selectPage returns the stored pointer's page when the session is resuming
// with answers, otherwise the first page of the total order. A pointer to a
// page outside the form is ignored.
func selectPage(form *types.Form, sess *types.Session, created bool, recorded answer.Map, order PageOrder) *types.Page {
	if !created && sess.CurrentPageID != "" && len(recorded) > 0 {
		if page := findPage(form, sess.CurrentPageID); page != nil {
			return page
		}
	}
	return findPage(form, order.First())
}

// evaluationMap fills every form field missing from recorded with its
// default value, or the empty string, so conditions on unanswered and
// cross-page fields resolve deterministically.
func evaluationMap(form *types.Form, recorded answer.Map) answer.Map {
	eval := make(answer.Map, len(recorded))
	for k, v := range recorded {
		eval[k] = v
	}
	for _, page := range form.Pages {
		for _, f := range page.Fields {
			if _, ok := eval[f.Name]; ok {
				continue
			}
			if f.DefaultValue != nil {
				eval[f.Name] = answer.Text(*f.DefaultValue)
			} else {
				eval[f.Name] = answer.Text("")
			}
		}
	}
	return eval
}

func renderFields(p *pass) []types.RenderedField {
	fields := sortFields(p.page.Fields)
	out := make([]types.RenderedField, 0, len(fields))
	for _, f := range fields {
		out = append(out, renderField(f, p.eval, p.recorded))
	}
	return out
}

func renderField(f types.Field, eval, recorded answer.Map) types.RenderedField {
	state := ResolveFieldState(f.Conditions, eval)

	visible := state.IsVisible()
	if !hasVisibilityCondition(f.Conditions) {
		visible = visible && f.IsVisible
	}

	var rules []types.ConditionRule
	for _, c := range sortConditions(f.Conditions) {
		rules = append(rules, types.ConditionRule{
			SourceFieldName: c.SourceFieldName,
			Operator:        string(c.Operator),
			Value:           c.Value,
			Action:          string(c.Action),
		})
	}

	var current answer.Value
	if v, ok := recorded[f.Name]; ok {
		current = v
	}

	return types.RenderedField{
		ID:              f.ID,
		Name:            f.Name,
		Label:           f.Label,
		Type:            f.Type,
		Placeholder:     f.Placeholder,
		HelpText:        f.HelpText,
		IsRequired:      f.IsRequired || state.Required,
		IsVisible:       visible,
		IsEnabled:       state.Enabled,
		Skip:            state.Skip,
		DefaultValue:    f.DefaultValue,
		Options:         f.Options,
		ValidationRules: f.ValidationRules,
		CurrentValue:    current,
		Conditions:      rules,
	}
}

// pageAnswered reports whether any field on page has a non-empty recorded
// answer. Defaults do not count.
func pageAnswered(page *types.Page, recorded answer.Map) bool {
	for _, f := range page.Fields {
		if !recorded.Get(f.Name).IsEmpty() {
			return true
		}
	}
	return false
}

func (e *Engine) complete(ctx context.Context, sess *types.Session) error {
	if err := e.repo.MarkSessionComplete(ctx, sess.ID); err != nil {
		return fmt.Errorf("mark session complete: %w", err)
	}
	if sess.Status != types.StatusCompleted {
		metrics.SessionsCompleted.Inc()
		slog.Info("session completed",
			"component", "engine",
			"form_id", sess.FormID,
			"session_id", sess.ID,
		)
	}
	return nil
}

func findPage(form *types.Form, pageID string) *types.Page {
	for i := range form.Pages {
		if form.Pages[i].ID == pageID {
			return &form.Pages[i]
		}
	}
	return nil
}

func findField(form *types.Form, fieldID string) (*types.Field, *types.Page) {
	for i := range form.Pages {
		page := &form.Pages[i]
		for j := range page.Fields {
			if page.Fields[j].ID == fieldID {
				return &page.Fields[j], page
			}
		}
	}
	return nil, nil
}

func findFieldByName(form *types.Form, name string) *types.Field {
	for i := range form.Pages {
		for j := range form.Pages[i].Fields {
			if form.Pages[i].Fields[j].Name == name {
				return &form.Pages[i].Fields[j]
			}
		}
	}
	return nil
}

func sortFields(fields []types.Field) []types.Field {
	sorted := append([]types.Field(nil), fields...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

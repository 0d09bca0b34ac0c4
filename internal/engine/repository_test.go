package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/types"
)

// memRepo is an in-memory Repository for engine tests.
type memRepo struct {
	mu       sync.Mutex
	forms    map[string]*types.Form
	sessions map[string]*types.Session
	answers  map[string]answer.Map // session id -> field name -> value
	now      time.Time
}

func newMemRepo(forms ...*types.Form) *memRepo {
	r := &memRepo{
		forms:    make(map[string]*types.Form),
		sessions: make(map[string]*types.Session),
		answers:  make(map[string]answer.Map),
		now:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, f := range forms {
		r.forms[f.ID] = f
	}
	return r
}

func (r *memRepo) LoadFormGraph(ctx context.Context, formID string) (*types.Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forms[formID]
	if !ok {
		return nil, NewNotFound(KindForm, formID)
	}
	return f, nil
}

func (r *memRepo) LoadAnswers(ctx context.Context, sessionID string) (answer.Map, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := answer.Map{}
	for k, v := range r.answers[sessionID] {
		out[k] = v
	}
	return out, nil
}

func (r *memRepo) UpsertAnswer(ctx context.Context, sessionID, fieldID string, value answer.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return NewNotFound(KindSession, sessionID)
	}
	f, _ := findField(r.forms[sess.FormID], fieldID)
	if f == nil {
		return NewNotFound(KindField, fieldID)
	}
	if r.answers[sessionID] == nil {
		r.answers[sessionID] = answer.Map{}
	}
	r.answers[sessionID][f.Name] = value
	if sess.Status == types.StatusAbandoned {
		sess.Status = types.StatusInProgress
	}
	return nil
}

func (r *memRepo) GetOrCreateSession(ctx context.Context, formID, sessionID string) (*types.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		cp := *sess
		return &cp, false, nil
	}
	sess := &types.Session{
		ID:        sessionID,
		FormID:    formID,
		Status:    types.StatusInProgress,
		CreatedAt: r.now,
		UpdatedAt: r.now,
	}
	r.sessions[sessionID] = sess
	cp := *sess
	return &cp, true, nil
}

func (r *memRepo) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, NewNotFound(KindSession, sessionID)
	}
	cp := *sess
	return &cp, nil
}

func (r *memRepo) UpdateSessionPointer(ctx context.Context, sessionID, pageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return NewNotFound(KindSession, sessionID)
	}
	sess.CurrentPageID = pageID
	if sess.Status == types.StatusAbandoned {
		sess.Status = types.StatusInProgress
	}
	return nil
}

func (r *memRepo) MarkSessionComplete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return NewNotFound(KindSession, sessionID)
	}
	sess.Status = types.StatusCompleted
	if sess.CompletedAt == nil {
		at := r.now
		sess.CompletedAt = &at
	}
	return nil
}

func (r *memRepo) session(id string) types.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.sessions[id]
}

// Test fixtures.

func field(id, name string, order int) types.Field {
	return types.Field{ID: id, Name: name, Label: name, Type: types.FieldText, Order: order, IsVisible: true}
}

// routingForm branches on customer_type:
//
//	start --new--> details --> end
//	start --returning--> loyalty --> end
//	start --default--> end
func routingForm() *types.Form {
	start := types.Page{
		ID: "start", Key: "start", Title: "Start", IsFirst: true, Order: 0,
		Fields: []types.Field{
			func() types.Field {
				f := field("f_type", "customer_type", 0)
				f.Type = types.FieldSelect
				f.IsRequired = true
				return f
			}(),
			field("f_country", "country", 1),
			func() types.Field {
				f := field("f_state", "state", 2)
				f.Conditions = []types.FieldCondition{{
					ID: "c_state", SourceFieldID: "f_country", SourceFieldName: "country",
					TargetFieldID: "f_state", Operator: types.OpEquals, Value: "US", Action: types.ActionShow,
				}}
				return f
			}(),
		},
		NavigationRules: []types.NavigationRule{
			{ID: "n1", PageID: "start", SourceFieldName: "customer_type", Operator: types.OpEquals, Value: "new", TargetPageID: "details", Priority: 0},
			{ID: "n2", PageID: "start", SourceFieldName: "customer_type", Operator: types.OpEquals, Value: "returning", TargetPageID: "loyalty", Priority: 1},
			{ID: "n3", PageID: "start", IsDefault: true, TargetPageID: "end", Priority: 2},
		},
	}
	details := types.Page{
		ID: "details", Key: "details", Title: "Details", Order: 1,
		Fields: []types.Field{
			func() types.Field {
				f := field("f_email", "email", 0)
				f.IsRequired = true
				return f
			}(),
		},
		NavigationRules: []types.NavigationRule{
			{ID: "n4", PageID: "details", IsDefault: true, TargetPageID: "end"},
		},
	}
	loyalty := types.Page{
		ID: "loyalty", Key: "loyalty", Title: "Loyalty", Order: 2,
		Fields: []types.Field{field("f_years", "years", 0)},
		NavigationRules: []types.NavigationRule{
			{ID: "n5", PageID: "loyalty", IsDefault: true, TargetPageID: "end"},
		},
	}
	end := types.Page{
		ID: "end", Key: "end", Title: "End", Order: 3,
		Fields: []types.Field{field("f_comments", "comments", 0)},
	}
	return &types.Form{
		ID: "routing", Title: "Routing", IsActive: true,
		Pages: []types.Page{details, end, start, loyalty},
	}
}

func singlePageForm() *types.Form {
	return &types.Form{
		ID: "single", Title: "Single",
		Pages: []types.Page{{
			ID: "only", Key: "only", IsFirst: true,
			Fields: []types.Field{field("f_name", "name", 0)},
		}},
	}
}

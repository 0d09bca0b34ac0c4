package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/metrics"
	"github.com/hyperengineering/formpath/internal/types"
)

func renderedField(t *testing.T, res *types.RenderResult, name string) types.RenderedField {
	t.Helper()
	for _, f := range res.CurrentPage.Fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("field %q not rendered on page %q", name, res.CurrentPage.ID)
	return types.RenderedField{}
}

func TestRender_NewSessionStartsOnFirstPage(t *testing.T) {
	repo := newMemRepo(routingForm())
	eng := New(repo)

	res, err := eng.Render(context.Background(), "routing", "s1", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if res.CurrentPage.ID != "start" {
		t.Errorf("CurrentPage.ID = %q, want start", res.CurrentPage.ID)
	}
	if res.NextPageID == nil || *res.NextPageID != "end" {
		t.Errorf("NextPageID = %v, want end (default rule)", res.NextPageID)
	}
	if res.IsComplete {
		t.Error("IsComplete = true, want false")
	}
	if res.Progress != 25 {
		t.Errorf("Progress = %v, want 25", res.Progress)
	}
	if res.FormTitle != "Routing" {
		t.Errorf("FormTitle = %q, want Routing", res.FormTitle)
	}

	sess := repo.session("s1")
	if sess.CurrentPageID != "start" {
		t.Errorf("session pointer = %q, want start", sess.CurrentPageID)
	}
	if sess.Status != types.StatusInProgress {
		t.Errorf("session status = %q, want in_progress", sess.Status)
	}
}

func TestRender_FieldsInOrder(t *testing.T) {
	eng := New(newMemRepo(routingForm()))

	res, err := eng.Render(context.Background(), "routing", "s1", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var names []string
	for _, f := range res.CurrentPage.Fields {
		names = append(names, f.Name)
	}
	want := []string{"customer_type", "country", "state"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("fields = %v, want %v", names, want)
	}
}

func TestRender_ShowConditionFollowsAnswer(t *testing.T) {
	eng := New(newMemRepo(routingForm()))
	ctx := context.Background()

	// Given country is unanswered
	res, err := eng.Render(ctx, "routing", "s1", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	// Then state is invisible
	if f := renderedField(t, res, "state"); f.IsVisible {
		t.Error("state visible before country answered")
	}

	// When country=US is sent
	res, err = eng.Render(ctx, "routing", "s1", answer.Map{"country": answer.Text("US")})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	// Then state is visible and carries its rule for the client
	f := renderedField(t, res, "state")
	if !f.IsVisible {
		t.Error("state hidden after country=US")
	}
	if len(f.Conditions) != 1 || f.Conditions[0].SourceFieldName != "country" || f.Conditions[0].Action != "show" {
		t.Errorf("Conditions = %+v, want one show rule on country", f.Conditions)
	}
}

func TestRender_NavigationPicksMatchingRule(t *testing.T) {
	eng := New(newMemRepo(routingForm()))

	res, err := eng.Render(context.Background(), "routing", "s1",
		answer.Map{"customer_type": answer.Text("returning")})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if res.NextPageID == nil || *res.NextPageID != "loyalty" {
		t.Errorf("NextPageID = %v, want loyalty", res.NextPageID)
	}
	if res.CurrentPage.ID != "start" {
		t.Errorf("CurrentPage.ID = %q, want start (render never moves forward)", res.CurrentPage.ID)
	}
}

func TestRender_SinglePageCompletion(t *testing.T) {
	repo := newMemRepo(singlePageForm())
	eng := New(repo)
	ctx := context.Background()

	// Given no answers
	res, err := eng.Render(ctx, "single", "s1", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	// Then there is no next page and the form is not complete
	if res.NextPageID != nil {
		t.Errorf("NextPageID = %q, want nil", *res.NextPageID)
	}
	if res.IsComplete {
		t.Error("IsComplete = true with no answers")
	}
	if res.Progress != 100 {
		t.Errorf("Progress = %v, want 100", res.Progress)
	}

	before := metrics.Value(metrics.SessionsCompleted)

	// When one non-empty answer is stored
	if err := repo.UpsertAnswer(ctx, "s1", "f_name", answer.Text("Ann")); err != nil {
		t.Fatalf("UpsertAnswer() error = %v", err)
	}
	res, err = eng.Render(ctx, "single", "s1", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	// Then the session completes
	if !res.IsComplete {
		t.Error("IsComplete = false after answering")
	}
	sess := repo.session("s1")
	if sess.Status != types.StatusCompleted {
		t.Errorf("status = %q, want completed", sess.Status)
	}
	if sess.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if got := metrics.Value(metrics.SessionsCompleted) - before; got != 1 {
		t.Errorf("sessions completed delta = %v, want 1", got)
	}

	// When rendered again, completion is not counted twice
	if _, err := eng.Render(ctx, "single", "s1", nil); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := metrics.Value(metrics.SessionsCompleted) - before; got != 1 {
		t.Errorf("sessions completed delta after rerender = %v, want 1", got)
	}
}

func TestRender_InFlightAnswerDoesNotComplete(t *testing.T) {
	repo := newMemRepo(singlePageForm())
	eng := New(repo)
	ctx := context.Background()

	// Given a terminal page answered only in flight
	res, err := eng.Render(ctx, "single", "s1", answer.Map{"name": answer.Text("Ann")})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	// Then nothing is completed because nothing is stored
	if res.IsComplete {
		t.Error("IsComplete = true with no stored answers")
	}
	sess := repo.session("s1")
	if sess.Status != types.StatusInProgress || sess.CompletedAt != nil {
		t.Errorf("session = %+v, want in_progress without completion time", sess)
	}
	if len(repo.answers["s1"]) != 0 {
		t.Errorf("stored answers = %v, want none", repo.answers["s1"])
	}
}

func TestRender_EmptyAnswerDoesNotComplete(t *testing.T) {
	eng := New(newMemRepo(singlePageForm()))

	res, err := eng.Render(context.Background(), "single", "s1", answer.Map{"name": answer.Text("")})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.IsComplete {
		t.Error("IsComplete = true for an empty answer")
	}
}

func TestRender_Deterministic(t *testing.T) {
	eng := New(newMemRepo(routingForm()))
	ctx := context.Background()
	in := answer.Map{"customer_type": answer.Text("new"), "country": answer.Text("US")}

	first, err := eng.Render(ctx, "routing", "s1", in)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := eng.Render(ctx, "routing", "s1", in)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("render %d differs:\n got %+v\nwant %+v", i, again, first)
		}
	}
}

func TestRender_DefaultValueFeedsConditions(t *testing.T) {
	plan := field("f_plan", "plan", 0)
	def := "pro"
	plan.DefaultValue = &def
	seats := field("f_seats", "seats", 1)
	seats.Conditions = []types.FieldCondition{{
		ID: "c1", SourceFieldName: "plan", TargetFieldID: "f_seats",
		Operator: types.OpEquals, Value: "pro", Action: types.ActionShow,
	}}
	form := &types.Form{ID: "plans", Pages: []types.Page{{
		ID: "p1", IsFirst: true, Fields: []types.Field{plan, seats},
	}}}
	eng := New(newMemRepo(form))

	res, err := eng.Render(context.Background(), "plans", "s1", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if f := renderedField(t, res, "seats"); !f.IsVisible {
		t.Error("seats hidden, want visible from plan default")
	}
	if f := renderedField(t, res, "plan"); f.CurrentValue != nil {
		t.Errorf("plan CurrentValue = %v, want nil (defaults are not answers)", f.CurrentValue)
	}
}

func TestRender_StaticVisibility(t *testing.T) {
	hidden := field("f_hidden", "internal", 1)
	hidden.IsVisible = false
	conditional := field("f_cond", "extra", 2)
	conditional.IsVisible = false
	conditional.Conditions = []types.FieldCondition{{
		ID: "c1", SourceFieldName: "name", TargetFieldID: "f_cond",
		Operator: types.OpIsNotEmpty, Action: types.ActionShow,
	}}
	form := &types.Form{ID: "vis", Pages: []types.Page{{
		ID: "p1", IsFirst: true,
		Fields: []types.Field{field("f_name", "name", 0), hidden, conditional},
	}}}
	eng := New(newMemRepo(form))

	res, err := eng.Render(context.Background(), "vis", "s1", answer.Map{"name": answer.Text("x")})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if f := renderedField(t, res, "internal"); f.IsVisible {
		t.Error("statically hidden field rendered visible")
	}
	if f := renderedField(t, res, "extra"); !f.IsVisible {
		t.Error("show condition did not override static visibility")
	}
}

func TestRender_ConditionalRequire(t *testing.T) {
	reason := field("f_reason", "reason", 1)
	reason.Conditions = []types.FieldCondition{{
		ID: "c1", SourceFieldName: "score", TargetFieldID: "f_reason",
		Operator: types.OpLessThan, Value: "5", Action: types.ActionRequire,
	}}
	form := &types.Form{ID: "nps", Pages: []types.Page{{
		ID: "p1", IsFirst: true, Fields: []types.Field{field("f_score", "score", 0), reason},
	}}}
	eng := New(newMemRepo(form))

	res, err := eng.Render(context.Background(), "nps", "s1", answer.Map{"score": answer.Number(3)})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if f := renderedField(t, res, "reason"); !f.IsRequired {
		t.Error("reason not required for low score")
	}
}

func TestRender_ResumesAtStoredPointer(t *testing.T) {
	repo := newMemRepo(routingForm())
	eng := New(repo)
	ctx := context.Background()

	if _, err := eng.Render(ctx, "routing", "s1", nil); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if _, err := eng.Advance(ctx, "routing", "s1", answer.Map{"customer_type": answer.Text("new")}); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	res, err := eng.Render(ctx, "routing", "s1", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.CurrentPage.ID != "details" {
		t.Errorf("CurrentPage.ID = %q, want details", res.CurrentPage.ID)
	}
	if f := renderedField(t, res, "email"); f.CurrentValue != nil {
		t.Errorf("email CurrentValue = %v, want nil", f.CurrentValue)
	}
	if res.Progress != 50 {
		t.Errorf("Progress = %v, want 50", res.Progress)
	}
}

func TestRender_PointerWithoutAnswersRestarts(t *testing.T) {
	repo := newMemRepo(routingForm())
	eng := New(repo)
	ctx := context.Background()

	if _, err := eng.CreateSession(ctx, "routing", "s1"); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := repo.UpdateSessionPointer(ctx, "s1", "loyalty"); err != nil {
		t.Fatalf("UpdateSessionPointer() error = %v", err)
	}

	res, err := eng.Render(ctx, "routing", "s1", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.CurrentPage.ID != "start" {
		t.Errorf("CurrentPage.ID = %q, want start", res.CurrentPage.ID)
	}
}

func TestRender_ForeignPointerIgnored(t *testing.T) {
	repo := newMemRepo(routingForm())
	eng := New(repo)
	ctx := context.Background()

	if _, err := eng.Render(ctx, "routing", "s1", nil); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if err := repo.UpsertAnswer(ctx, "s1", "f_country", answer.Text("FR")); err != nil {
		t.Fatalf("UpsertAnswer() error = %v", err)
	}
	if err := repo.UpdateSessionPointer(ctx, "s1", "ghost"); err != nil {
		t.Fatalf("UpdateSessionPointer() error = %v", err)
	}

	res, err := eng.Render(ctx, "routing", "s1", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.CurrentPage.ID != "start" {
		t.Errorf("CurrentPage.ID = %q, want start", res.CurrentPage.ID)
	}
	if got := repo.session("s1").CurrentPageID; got != "start" {
		t.Errorf("pointer = %q, want start", got)
	}
}

func TestRender_AbandonedSessionResumes(t *testing.T) {
	repo := newMemRepo(routingForm())
	eng := New(repo)
	ctx := context.Background()

	if _, err := eng.Render(ctx, "routing", "s1", nil); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	repo.sessions["s1"].Status = types.StatusAbandoned

	if _, err := eng.Render(ctx, "routing", "s1", nil); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := repo.session("s1").Status; got != types.StatusInProgress {
		t.Errorf("status = %q, want in_progress", got)
	}
}

func TestRender_Errors(t *testing.T) {
	empty := &types.Form{ID: "empty"}
	blank := &types.Form{ID: "blank", Pages: []types.Page{{ID: "p1", IsFirst: true}}}
	repo := newMemRepo(routingForm(), singlePageForm(), empty, blank)
	eng := New(repo)
	ctx := context.Background()

	t.Run("unknown form", func(t *testing.T) {
		_, err := eng.Render(ctx, "missing", "s1", nil)
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.Kind != KindForm {
			t.Fatalf("err = %v, want form NotFoundError", err)
		}
		if !errors.Is(err, ErrNotFound) {
			t.Error("errors.Is(err, ErrNotFound) = false")
		}
	})

	t.Run("form without pages", func(t *testing.T) {
		_, err := eng.Render(ctx, "empty", "s2", nil)
		var inc *InconsistentStateError
		if !errors.As(err, &inc) || inc.Kind != KindForm {
			t.Fatalf("err = %v, want form InconsistentStateError", err)
		}
		if !errors.Is(err, ErrNotFound) {
			t.Error("errors.Is(err, ErrNotFound) = false")
		}
	})

	t.Run("page without fields", func(t *testing.T) {
		_, err := eng.Render(ctx, "blank", "s3", nil)
		var inc *InconsistentStateError
		if !errors.As(err, &inc) || inc.Kind != KindPage || inc.ID != "p1" {
			t.Fatalf("err = %v, want page InconsistentStateError", err)
		}
	})

	t.Run("session of another form", func(t *testing.T) {
		if _, err := eng.Render(ctx, "routing", "shared", nil); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		_, err := eng.Render(ctx, "single", "shared", nil)
		if !errors.Is(err, ErrSessionFormMismatch) {
			t.Errorf("err = %v, want ErrSessionFormMismatch", err)
		}
	})
}

func TestCreateSession(t *testing.T) {
	repo := newMemRepo(routingForm(), singlePageForm())
	eng := New(repo)
	ctx := context.Background()

	t.Run("generates an id", func(t *testing.T) {
		sess, err := eng.CreateSession(ctx, "routing", "")
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		if len(sess.ID) != 36 {
			t.Errorf("ID = %q, want a UUID", sess.ID)
		}
		if sess.Status != types.StatusInProgress {
			t.Errorf("Status = %q, want in_progress", sess.Status)
		}
	})

	t.Run("existing id is idempotent", func(t *testing.T) {
		a, err := eng.CreateSession(ctx, "routing", "fixed")
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		b, err := eng.CreateSession(ctx, "routing", "fixed")
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		if a.ID != b.ID {
			t.Errorf("ids differ: %q vs %q", a.ID, b.ID)
		}
	})

	t.Run("unknown form", func(t *testing.T) {
		if _, err := eng.CreateSession(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("id owned by another form", func(t *testing.T) {
		if _, err := eng.CreateSession(ctx, "single", "fixed"); !errors.Is(err, ErrSessionFormMismatch) {
			t.Errorf("err = %v, want ErrSessionFormMismatch", err)
		}
	})
}

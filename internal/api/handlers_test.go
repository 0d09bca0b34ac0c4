package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hyperengineering/formpath/internal/snapshot"
	"github.com/hyperengineering/formpath/internal/store"
	"github.com/hyperengineering/formpath/internal/types"
)

// testServer wires the full router over an in-memory store.
type testServer struct {
	router http.Handler
	store  *store.SQLiteStore
}

func newTestServer(t *testing.T, u snapshot.Uploader) *testServer {
	t.Helper()

	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { slog.SetDefault(oldLogger) })

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &testServer{
		router: NewRouter(NewHandler(s, u, testAPIKey, "1.2.3")),
		store:  s,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if auth {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response: %v (body %s)", err, w.Body.String())
	}
}

func intakeYAML(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../formdef/testdata/intake.yaml")
	if err != nil {
		t.Fatalf("read intake definition: %v", err)
	}
	return string(data)
}

// importIntake imports the intake form and returns its id and field ids by
// name.
func (s *testServer) importIntake(t *testing.T) (string, map[string]string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/forms", intakeYAML(t), true)
	if w.Code != http.StatusCreated {
		t.Fatalf("import status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	var result types.ImportResult
	decodeBody(t, w, &result)

	w = s.do(t, http.MethodGet, "/api/v1/forms/"+result.ID, "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("get form status = %d, want 200", w.Code)
	}
	var form types.Form
	decodeBody(t, w, &form)

	fields := make(map[string]string)
	for _, p := range form.Pages {
		for _, f := range p.Fields {
			fields[f.Name] = f.ID
		}
	}
	return result.ID, fields
}

func pageTitles(t *testing.T, s *testServer, formID string) map[string]string {
	t.Helper()
	form, err := s.store.LoadFormGraph(context.Background(), formID)
	if err != nil {
		t.Fatalf("LoadFormGraph() error = %v", err)
	}
	titles := make(map[string]string)
	for _, p := range form.Pages {
		titles[p.ID] = p.Title
	}
	return titles
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	s.importIntake(t)

	w := s.do(t, http.MethodGet, "/api/v1/health", "", false)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var resp types.HealthResponse
	decodeBody(t, w, &resp)
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", resp.Version)
	}
	if resp.FormCount != 1 {
		t.Errorf("form_count = %d, want 1", resp.FormCount)
	}
	if !strings.Contains(w.Body.String(), `"activity":{`) {
		t.Errorf("health body missing activity: %s", w.Body.String())
	}
}

func TestHealth_ReportsActivity(t *testing.T) {
	s := newTestServer(t, nil)
	formID, _ := s.importIntake(t)

	health := func() types.Activity {
		t.Helper()
		var resp types.HealthResponse
		decodeBody(t, s.do(t, http.MethodGet, "/api/v1/health", "", false), &resp)
		return resp.Activity
	}
	before := health()

	// When: a session is rendered once
	if w := s.do(t, http.MethodGet, "/api/v1/render/"+formID+"/activity-1", "", false); w.Code != http.StatusOK {
		t.Fatalf("render status = %d", w.Code)
	}

	// Then: the render shows up in the health report
	if got := health().Renders - before.Renders; got < 1 {
		t.Errorf("renders delta = %v, want at least 1", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/metrics", "", false)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "formpath_answers_submitted_total") {
		t.Error("metrics output missing formpath_answers_submitted_total")
	}
}

func TestAdminRoutes_RequireAuth(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/forms"},
		{http.MethodGet, "/api/v1/forms"},
		{http.MethodGet, "/api/v1/forms/01ARZ3NDEKTSV4RRFFQ69G5FAV"},
		{http.MethodDelete, "/api/v1/forms/01ARZ3NDEKTSV4RRFFQ69G5FAV"},
		{http.MethodGet, "/api/v1/snapshot"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, "", false)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestImportForm(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/forms", intakeYAML(t), true)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	var result types.ImportResult
	decodeBody(t, w, &result)
	if result.Title != "Customer intake" {
		t.Errorf("title = %q, want %q", result.Title, "Customer intake")
	}
	if result.PageCount != 4 {
		t.Errorf("page_count = %d, want 4", result.PageCount)
	}
}

func TestImportForm_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{
			name:       "empty body",
			body:       "",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed yaml",
			body:       "title: [unterminated\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown key",
			body:       "title: T\ncolour: red\npages: []\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown goto page",
			body: `title: T
pages:
  - key: one
    fields:
      - {name: a, type: text}
    navigation:
      - {default: true, goto: nowhere}
`,
			wantStatus: http.StatusUnprocessableEntity,
			wantField:  "pages[0].navigation[0].goto",
		},
		{
			name: "duplicate field names",
			body: `title: T
pages:
  - key: one
    fields:
      - {name: a, type: text}
      - {name: a, type: text}
`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)

			w := s.do(t, http.MethodPost, "/api/v1/forms", tt.body, true)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantField == "" {
				return
			}
			p := decodeProblem(t, w)
			found := false
			for _, e := range p.Errors {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("errors = %+v, want one for %s", p.Errors, tt.wantField)
			}
		})
	}
}

func TestImportForm_DuplicateIDConflict(t *testing.T) {
	s := newTestServer(t, nil)
	formID, _ := s.importIntake(t)

	// Given: the stored form exported as a definition, id included
	w := s.do(t, http.MethodGet, "/api/v1/forms/"+formID+"?format=yaml", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Content-Type = %q, want application/yaml", ct)
	}
	if !strings.Contains(w.Body.String(), "id: "+formID) {
		t.Errorf("export missing form id:\n%s", w.Body.String())
	}

	// When: it is imported again
	w = s.do(t, http.MethodPost, "/api/v1/forms", w.Body.String(), true)

	// Then: the id clash is a conflict
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 (body %s)", w.Code, w.Body.String())
	}
}

func TestGetForm_UnknownFormatAndMissing(t *testing.T) {
	s := newTestServer(t, nil)
	formID, _ := s.importIntake(t)

	if w := s.do(t, http.MethodGet, "/api/v1/forms/"+formID+"?format=xml", "", true); w.Code != http.StatusBadRequest {
		t.Errorf("format=xml status = %d, want 400", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/forms/01ARZ3NDEKTSV4RRFFQ69G5FAV", "", true); w.Code != http.StatusNotFound {
		t.Errorf("missing form status = %d, want 404", w.Code)
	}
}

func TestListAndDeleteForms(t *testing.T) {
	s := newTestServer(t, nil)
	formID, _ := s.importIntake(t)

	w := s.do(t, http.MethodGet, "/api/v1/forms", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", w.Code)
	}
	var forms []types.FormSummary
	decodeBody(t, w, &forms)
	if len(forms) != 1 || forms[0].ID != formID {
		t.Fatalf("forms = %+v, want one with id %s", forms, formID)
	}

	w = s.do(t, http.MethodDelete, "/api/v1/forms/"+formID, "", true)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", w.Code)
	}

	w = s.do(t, http.MethodDelete, "/api/v1/forms/"+formID, "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/forms", "", true)
	decodeBody(t, w, &forms)
	if len(forms) != 0 {
		t.Errorf("forms after delete = %d, want 0", len(forms))
	}
}

func TestCreateSession(t *testing.T) {
	s := newTestServer(t, nil)
	formID, _ := s.importIntake(t)

	t.Run("generated id", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/sessions", `{"form_id":"`+formID+`"}`, false)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
		}
		var sess types.Session
		decodeBody(t, w, &sess)
		if _, err := uuid.Parse(sess.ID); err != nil {
			t.Errorf("session_id = %q, want a UUID", sess.ID)
		}
		if sess.Status != types.StatusInProgress {
			t.Errorf("status = %q, want in_progress", sess.Status)
		}
	})

	t.Run("client id", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/sessions", `{"form_id":"`+formID+`","session_id":"kiosk-7"}`, false)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", w.Code)
		}
		var sess types.Session
		decodeBody(t, w, &sess)
		if sess.ID != "kiosk-7" {
			t.Errorf("session_id = %q, want kiosk-7", sess.ID)
		}
	})

	t.Run("missing form id", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/sessions", `{}`, false)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", w.Code)
		}
	})

	t.Run("unknown form", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/sessions", `{"form_id":"01ARZ3NDEKTSV4RRFFQ69G5FAV"}`, false)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/sessions", `{"form_id":`, false)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestRender_FirstPage(t *testing.T) {
	s := newTestServer(t, nil)
	formID, _ := s.importIntake(t)
	titles := pageTitles(t, s, formID)

	// When: a new session is rendered with no answers
	w := s.do(t, http.MethodGet, "/api/v1/render/"+formID+"/visitor-1", "", false)

	// Then: the first page is shown and navigation falls to the default
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var res types.RenderResult
	decodeBody(t, w, &res)

	if res.CurrentPage.Title != "About you" {
		t.Errorf("current page = %q, want About you", res.CurrentPage.Title)
	}
	if res.NextPageID == nil || titles[*res.NextPageID] != "Contact details" {
		t.Errorf("next_page_id = %v, want the details page", res.NextPageID)
	}
	if res.IsComplete {
		t.Error("is_complete = true, want false")
	}
	if res.Progress != 25 {
		t.Errorf("progress = %v, want 25", res.Progress)
	}

	// The state field is shown and required because country defaults to US
	var state *types.RenderedField
	for i := range res.CurrentPage.Fields {
		if res.CurrentPage.Fields[i].Name == "state" {
			state = &res.CurrentPage.Fields[i]
		}
	}
	if state == nil {
		t.Fatal("state field not rendered")
	}
	if !state.IsVisible || !state.IsRequired {
		t.Errorf("state visible=%v required=%v, want both true", state.IsVisible, state.IsRequired)
	}
}

func TestRender_InFlightAnswersChangeNavigation(t *testing.T) {
	s := newTestServer(t, nil)
	formID, _ := s.importIntake(t)
	titles := pageTitles(t, s, formID)

	body := `{"form_id":"` + formID + `","session_id":"visitor-2","current_answers":{"customer_type":"returning"}}`
	w := s.do(t, http.MethodPost, "/api/v1/render", body, false)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var res types.RenderResult
	decodeBody(t, w, &res)
	if res.NextPageID == nil || titles[*res.NextPageID] != "Loyalty" {
		t.Errorf("next_page_id = %v, want the loyalty page", res.NextPageID)
	}

	// In-flight answers are not stored by render
	w = s.do(t, http.MethodGet, "/api/v1/sessions/visitor-2/responses", "", false)
	var resp types.SessionResponses
	decodeBody(t, w, &resp)
	if len(resp.Answers) != 0 {
		t.Errorf("answers = %+v, want none stored", resp.Answers)
	}
}

func TestRender_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	formID, _ := s.importIntake(t)
	otherID, _ := s.importIntake(t)

	// shared-1 belongs to the first form
	if w := s.do(t, http.MethodGet, "/api/v1/render/"+formID+"/shared-1", "", false); w.Code != http.StatusOK {
		t.Fatalf("setup render status = %d", w.Code)
	}

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing ids", `{}`, http.StatusUnprocessableEntity},
		{"bad answer name", `{"form_id":"` + formID + `","session_id":"x","current_answers":{"no spaces allowed":"1"}}`, http.StatusUnprocessableEntity},
		{"unknown form", `{"form_id":"01ARZ3NDEKTSV4RRFFQ69G5FAV","session_id":"x"}`, http.StatusNotFound},
		{"session of another form", `{"form_id":"` + otherID + `","session_id":"shared-1"}`, http.StatusConflict},
		{"not json", `form_id=x`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/render", tt.body, false)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("Content-Type = %q, want application/problem+json", ct)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	formID, fields := s.importIntake(t)
	titles := pageTitles(t, s, formID)
	base := "/api/v1/sessions/flow-1"

	w := s.do(t, http.MethodPost, "/api/v1/sessions", `{"form_id":"`+formID+`","session_id":"flow-1"}`, false)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}

	// Given: a returning customer who has not yet answered the state field
	w = s.do(t, http.MethodPost, base+"/advance", `{"current_answers":{"customer_type":"returning"}}`, false)
	if w.Code != http.StatusOK {
		t.Fatalf("advance status = %d (body %s)", w.Code, w.Body.String())
	}
	var adv types.AdvanceResult
	decodeBody(t, w, &adv)

	// Then: the advance is blocked on the required state field
	if adv.Moved {
		t.Error("moved = true, want blocked")
	}
	if len(adv.MissingFields) != 1 || adv.MissingFields[0] != "state" {
		t.Errorf("missing_fields = %v, want [state]", adv.MissingFields)
	}

	// When: the respondent moves outside the US
	w = s.do(t, http.MethodPost, base+"/advance", `{"current_answers":{"country":"CA"}}`, false)
	adv = types.AdvanceResult{}
	decodeBody(t, w, &adv)

	// Then: state is hidden and the session branches to loyalty
	if !adv.Moved || titles[adv.CurrentPageID] != "Loyalty" {
		t.Fatalf("advance = %+v, want moved to Loyalty", adv)
	}

	// When: years is answered on the loyalty page
	w = s.do(t, http.MethodPost, base+"/answers", `{"field_id":"`+fields["years"]+`","value":3}`, false)
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d (body %s)", w.Code, w.Body.String())
	}
	var sub types.SubmitAnswerResponse
	decodeBody(t, w, &sub)

	// Then: the session auto-advances to the end page
	if !sub.Success || !sub.Advanced {
		t.Errorf("submit = %+v, want success and advanced", sub)
	}
	if sub.NextPageID == nil || titles[*sub.NextPageID] != "Anything else?" {
		t.Errorf("next_page_id = %v, want the end page", sub.NextPageID)
	}

	// When: the last page is answered
	w = s.do(t, http.MethodPost, base+"/answers", `{"field_id":"`+fields["comments"]+`","value":"Thanks!"}`, false)
	sub = types.SubmitAnswerResponse{}
	decodeBody(t, w, &sub)

	// Then: the form completes
	if !sub.IsComplete {
		t.Errorf("is_complete = false, want true (%+v)", sub)
	}
	if sub.Message != "Form completed!" {
		t.Errorf("message = %q, want %q", sub.Message, "Form completed!")
	}

	w = s.do(t, http.MethodGet, base, "", false)
	var sess types.Session
	decodeBody(t, w, &sess)
	if sess.Status != types.StatusCompleted || sess.CompletedAt == nil {
		t.Errorf("session = %+v, want completed with completed_at", sess)
	}

	w = s.do(t, http.MethodGet, base+"/responses", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("responses status = %d", w.Code)
	}
	var resp types.SessionResponses
	decodeBody(t, w, &resp)
	var names []string
	for _, a := range resp.Answers {
		names = append(names, a.Name)
	}
	if got := strings.Join(names, ","); got != "customer_type,country,years,comments" {
		t.Errorf("answers = %s, want customer_type,country,years,comments", got)
	}
	if resp.Status != types.StatusCompleted || resp.FormID != formID {
		t.Errorf("responses header = %+v", resp)
	}
}

func TestSubmitAnswer_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	formID, fields := s.importIntake(t)
	s.do(t, http.MethodPost, "/api/v1/sessions", `{"form_id":"`+formID+`","session_id":"sub-1"}`, false)

	tests := []struct {
		name       string
		session    string
		body       string
		wantStatus int
		wantField  string
	}{
		{"below minimum", "sub-1", `{"field_id":"` + fields["age"] + `","value":12}`, http.StatusUnprocessableEntity, "age"},
		{"not a choice", "sub-1", `{"field_id":"` + fields["customer_type"] + `","value":"vip"}`, http.StatusUnprocessableEntity, "customer_type"},
		{"missing field id", "sub-1", `{"value":"x"}`, http.StatusUnprocessableEntity, "field_id"},
		{"unknown field", "sub-1", `{"field_id":"01ARZ3NDEKTSV4RRFFQ69G5FAV","value":"x"}`, http.StatusNotFound, ""},
		{"unknown session", "nobody", `{"field_id":"` + fields["age"] + `","value":30}`, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/sessions/"+tt.session+"/answers", tt.body, false)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantField == "" {
				return
			}
			p := decodeProblem(t, w)
			if len(p.Errors) == 0 || p.Errors[0].Field != tt.wantField {
				t.Errorf("errors = %+v, want one for %s", p.Errors, tt.wantField)
			}
		})
	}

	// Nothing was stored by the rejected submissions
	w := s.do(t, http.MethodGet, "/api/v1/sessions/sub-1/responses", "", false)
	var resp types.SessionResponses
	decodeBody(t, w, &resp)
	if len(resp.Answers) != 0 {
		t.Errorf("answers = %+v, want none", resp.Answers)
	}
}

func TestAdvance_EmptyBodyAndMissingSession(t *testing.T) {
	s := newTestServer(t, nil)
	formID, _ := s.importIntake(t)
	s.do(t, http.MethodPost, "/api/v1/sessions", `{"form_id":"`+formID+`","session_id":"adv-1"}`, false)

	w := s.do(t, http.MethodPost, "/api/v1/sessions/adv-1/advance", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("empty body status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var adv types.AdvanceResult
	decodeBody(t, w, &adv)
	if adv.Moved {
		t.Error("moved = true with required fields unanswered")
	}
	if len(adv.MissingFields) == 0 {
		t.Error("missing_fields empty, want customer_type and state")
	}

	w = s.do(t, http.MethodPost, "/api/v1/sessions/ghost/advance", "", false)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", w.Code)
	}
}

func TestCompleteSession(t *testing.T) {
	s := newTestServer(t, nil)
	formID, _ := s.importIntake(t)
	s.do(t, http.MethodPost, "/api/v1/sessions", `{"form_id":"`+formID+`","session_id":"done-1"}`, false)

	w := s.do(t, http.MethodPost, "/api/v1/sessions/done-1/complete", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var sess types.Session
	decodeBody(t, w, &sess)
	if sess.Status != types.StatusCompleted {
		t.Errorf("status = %q, want completed", sess.Status)
	}

	if w := s.do(t, http.MethodPost, "/api/v1/sessions/ghost/complete", "", false); w.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", w.Code)
	}
}

// stubUploader presigns a fixed URL or fails.
type stubUploader struct {
	url string
	err error
}

func (u *stubUploader) Upload(ctx context.Context, filePath string) error { return nil }

func (u *stubUploader) PresignedURL(ctx context.Context) (string, time.Time, error) {
	return u.url, time.Now().Add(time.Minute), u.err
}

func TestSnapshot(t *testing.T) {
	tests := []struct {
		name         string
		uploader     snapshot.Uploader
		wantStatus   int
		wantLocation string
	}{
		{
			name:         "redirects to presigned url",
			uploader:     &stubUploader{url: "https://s3.example.com/formpath/snapshot/current.db?sig=abc"},
			wantStatus:   http.StatusTemporaryRedirect,
			wantLocation: "https://s3.example.com/formpath/snapshot/current.db?sig=abc",
		},
		{
			name:       "presign failure",
			uploader:   &stubUploader{err: errors.New("connection refused")},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "local snapshot unavailable for in-memory store",
			uploader:   nil,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.uploader)

			w := s.do(t, http.MethodGet, "/api/v1/snapshot", "", true)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantLocation != "" && w.Header().Get("Location") != tt.wantLocation {
				t.Errorf("Location = %q, want %q", w.Header().Get("Location"), tt.wantLocation)
			}
		})
	}
}

func TestSnapshot_ServesLocalFile(t *testing.T) {
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer slog.SetDefault(oldLogger)

	// Given: a file-backed store with a generated snapshot
	st, err := store.NewSQLiteStore(t.TempDir() + "/formpath.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer st.Close()
	router := NewRouter(NewHandler(st, nil, testAPIKey, "test"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("before generation status = %d, want 503", w.Code)
	}

	if err := st.GenerateSnapshot(context.Background()); err != nil {
		t.Fatalf("GenerateSnapshot() error = %v", err)
	}

	// When: the snapshot is requested
	req = httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Then: the SQLite file is streamed
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("SQLite format 3")) {
		t.Error("body is not a SQLite database")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.sqlite3" {
		t.Errorf("Content-Type = %q, want application/vnd.sqlite3", ct)
	}
}

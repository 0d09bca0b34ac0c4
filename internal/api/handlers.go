package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/engine"
	"github.com/hyperengineering/formpath/internal/formdef"
	"github.com/hyperengineering/formpath/internal/metrics"
	"github.com/hyperengineering/formpath/internal/snapshot"
	"github.com/hyperengineering/formpath/internal/store"
	"github.com/hyperengineering/formpath/internal/types"
	"github.com/hyperengineering/formpath/internal/validation"
)

// Request body limits.
const (
	maxRequestBytes    = 1 << 20
	maxDefinitionBytes = 4 << 20
)

// Handler implements the API handlers
type Handler struct {
	engine   *engine.Engine
	store    store.Store
	uploader snapshot.Uploader
	apiKey   string
	version  string
}

// NewHandler creates a Handler serving the engine over s. A nil uploader
// keeps snapshot downloads local.
func NewHandler(s store.Store, u snapshot.Uploader, apiKey, version string) *Handler {
	if u == nil {
		u = &snapshot.NoopUploader{}
	}
	return &Handler{
		engine:   engine.New(s),
		store:    s,
		uploader: u,
		apiKey:   apiKey,
		version:  version,
	}
}

// decodeJSON reads a bounded JSON body into v and writes a problem response
// on failure. An empty body is accepted when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	err := render.DecodeJSON(r.Body, v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
		return false
	}
	WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
	return false
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		slog.Error("health check failed", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	render.JSON(w, r, types.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		FormCount: stats.FormCount,
		Activity:  metrics.GetActivity(),
	})
}

// Render handles POST /api/v1/render
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req types.RenderRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if errs := validation.ValidateRenderRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	h.render(w, r, req.FormID, req.SessionID, req.CurrentAnswers)
}

// RenderPersisted handles GET /api/v1/render/{formID}/{sessionID}
func (h *Handler) RenderPersisted(w http.ResponseWriter, r *http.Request) {
	req := types.RenderRequest{
		FormID:    chi.URLParam(r, "formID"),
		SessionID: chi.URLParam(r, "sessionID"),
	}
	if errs := validation.ValidateRenderRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	h.render(w, r, req.FormID, req.SessionID, nil)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, formID, sessionID string, inFlight answer.Map) {
	result, err := h.engine.Render(r.Context(), formID, sessionID, inFlight)
	if err != nil {
		MapError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// CreateSession handles POST /api/v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if errs := validation.ValidateCreateSessionRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	sess, err := h.engine.CreateSession(r.Context(), req.FormID, req.SessionID)
	if err != nil {
		MapError(w, r, err)
		return
	}

	slog.Info("session created", "session_id", sess.ID, "form_id", sess.FormID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sess)
}

// GetSession handles GET /api/v1/sessions/{sessionID}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	render.JSON(w, r, sess)
}

// SubmitAnswer handles POST /api/v1/sessions/{sessionID}/answers
func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitAnswerRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if errs := validation.ValidateSubmitAnswerRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	resp, err := h.engine.SubmitAnswer(r.Context(), chi.URLParam(r, "sessionID"), req.FieldID, answer.FromAny(req.Value))
	if err != nil {
		MapError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Advance handles POST /api/v1/sessions/{sessionID}/advance. The body is
// optional.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var req types.AdvanceRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	if errs := validation.ValidateAdvanceRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		MapError(w, r, err)
		return
	}

	result, err := h.engine.Advance(r.Context(), sess.FormID, sess.ID, req.CurrentAnswers)
	if err != nil {
		MapError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// Complete handles POST /api/v1/sessions/{sessionID}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.CompleteSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	render.JSON(w, r, sess)
}

// Responses handles GET /api/v1/sessions/{sessionID}/responses
func (h *Handler) Responses(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		MapError(w, r, err)
		return
	}
	answers, err := h.engine.Responses(r.Context(), sessionID)
	if err != nil {
		MapError(w, r, err)
		return
	}

	render.JSON(w, r, types.SessionResponses{
		SessionID: sess.ID,
		FormID:    sess.FormID,
		Status:    sess.Status,
		Answers:   answers,
	})
}

// ImportForm handles POST /api/v1/forms. The body is a YAML or JSON form
// definition.
func (h *Handler) ImportForm(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDefinitionBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("Form definition exceeds %d bytes", tooLarge.Limit))
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, "Failed to read request body")
		return
	}

	def, err := formdef.Parse(data)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	form, err := formdef.Build(def)
	if err != nil {
		MapError(w, r, err)
		return
	}

	result, err := h.store.ImportForm(r.Context(), form)
	if err != nil {
		MapError(w, r, err)
		return
	}

	slog.Info("form imported", "form_id", result.ID, "title", result.Title, "pages", result.PageCount)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// ListForms handles GET /api/v1/forms
func (h *Handler) ListForms(w http.ResponseWriter, r *http.Request) {
	forms, err := h.store.ListForms(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	render.JSON(w, r, forms)
}

// GetForm handles GET /api/v1/forms/{formID}. With ?format=yaml the form is
// returned as an editable definition instead of the stored graph.
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	form, err := h.store.LoadFormGraph(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		MapError(w, r, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		render.JSON(w, r, form)
	case "yaml":
		data, err := formdef.Marshal(formdef.Export(form))
		if err != nil {
			MapError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	default:
		WriteProblem(w, r, http.StatusBadRequest, "format must be json or yaml")
	}
}

// DeleteForm handles DELETE /api/v1/forms/{formID}
func (h *Handler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "formID")
	if err := h.store.DeleteForm(r.Context(), formID); err != nil {
		MapError(w, r, err)
		return
	}

	slog.Info("form deleted", "form_id", formID)
	w.WriteHeader(http.StatusNoContent)
}

// Snapshot handles GET /api/v1/snapshot. With S3 storage configured the
// client is redirected to a pre-signed URL; otherwise the local snapshot
// file is streamed.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	url, _, err := h.uploader.PresignedURL(r.Context())
	switch {
	case err == nil:
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	case !errors.Is(err, snapshot.ErrNotConfigured):
		slog.Error("presign snapshot failed", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Snapshot storage unavailable")
		return
	}

	path, err := h.store.GetSnapshotPath(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteProblem(w, r, http.StatusServiceUnavailable, "Snapshot not yet generated")
			return
		}
		MapError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Content-Disposition", `attachment; filename="formpath-snapshot.db"`)
	http.ServeFile(w, r, path)
}

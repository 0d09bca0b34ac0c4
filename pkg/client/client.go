// Package client is a Go client for the Formpath HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperengineering/formpath/internal/types"
)

// Response types shared with the server.
type (
	Health           = types.HealthResponse
	Form             = types.Form
	FormSummary      = types.FormSummary
	ImportResult     = types.ImportResult
	Session          = types.Session
	RenderResult     = types.RenderResult
	AdvanceResult    = types.AdvanceResult
	SubmitResult     = types.SubmitAnswerResponse
	SessionResponses = types.SessionResponses
)

// Answers maps field names to answer values. Values are strings, numbers,
// booleans, string slices or nil.
type Answers map[string]any

// Config holds the client configuration
type Config struct {
	BaseURL string        // Formpath service URL
	APIKey  string        // API key for admin routes
	Timeout time.Duration // Per-request timeout (default: 30 seconds)
}

// Client talks to one Formpath server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new Client
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout: cfg.Timeout,
			// Snapshot downloads redirect to object storage; callers want
			// the location, not the body.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Error is a problem response returned by the server.
type Error struct {
	Type   string       `json:"type"`
	Title  string       `json:"title"`
	Status int          `json:"status"`
	Detail string       `json:"detail"`
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError is one invalid field in a 422 response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("formpath: %d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("formpath: %d %s", e.Status, e.Title)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Ping checks connectivity to the server
func (c *Client) Ping(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/health", false, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImportForm uploads a YAML or JSON form definition.
func (c *Client) ImportForm(ctx context.Context, definition []byte) (*ImportResult, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/v1/forms", true, "application/yaml", bytes.NewReader(definition))
	if err != nil {
		return nil, err
	}
	var out ImportResult
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListForms returns a summary of every stored form.
func (c *Client) ListForms(ctx context.Context) ([]FormSummary, error) {
	var out []FormSummary
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/forms", true, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetForm returns the stored form graph.
func (c *Client) GetForm(ctx context.Context, formID string) (*Form, error) {
	var out Form
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/forms/"+url.PathEscape(formID), true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportForm returns the form as an editable YAML definition.
func (c *Client) ExportForm(ctx context.Context, formID string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/v1/forms/"+url.PathEscape(formID)+"?format=yaml", true, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, problemFrom(resp)
	}
	return io.ReadAll(resp.Body)
}

// DeleteForm removes a form with its sessions and answers.
func (c *Client) DeleteForm(ctx context.Context, formID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/forms/"+url.PathEscape(formID), true, nil, nil)
}

// CreateSession starts a session. An empty sessionID lets the server pick one.
func (c *Client) CreateSession(ctx context.Context, formID, sessionID string) (*Session, error) {
	body := types.CreateSessionRequest{FormID: formID, SessionID: sessionID}
	var out Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/sessions", false, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession returns a session's status and position.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var out Session
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(sessionID, ""), false, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Render resolves the current page. current holds answers typed but not yet
// submitted; they affect field state and navigation but are not stored.
func (c *Client) Render(ctx context.Context, formID, sessionID string, current Answers) (*RenderResult, error) {
	var out RenderResult
	var err error
	if current == nil {
		path := "/api/v1/render/" + url.PathEscape(formID) + "/" + url.PathEscape(sessionID)
		err = c.doJSON(ctx, http.MethodGet, path, false, nil, &out)
	} else {
		body := map[string]any{
			"form_id":         formID,
			"session_id":      sessionID,
			"current_answers": current,
		}
		err = c.doJSON(ctx, http.MethodPost, "/api/v1/render", false, body, &out)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer stores one answer by field id.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, fieldID string, value any) (*SubmitResult, error) {
	body := types.SubmitAnswerRequest{FieldID: fieldID, Value: value}
	var out SubmitResult
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/answers"), false, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Advance stores current and moves the session past its page.
func (c *Client) Advance(ctx context.Context, sessionID string, current Answers) (*AdvanceResult, error) {
	var body any
	if current != nil {
		body = map[string]any{"current_answers": current}
	}
	var out AdvanceResult
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/advance"), false, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Complete marks a session completed.
func (c *Client) Complete(ctx context.Context, sessionID string) (*Session, error) {
	var out Session
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/complete"), false, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Responses returns the answers recorded for a session in form order.
func (c *Client) Responses(ctx context.Context, sessionID string) (*SessionResponses, error) {
	var out SessionResponses
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(sessionID, "/responses"), false, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadSnapshot fetches the latest database snapshot. When the server
// redirects to object storage the location is returned and data is nil.
func (c *Client) DownloadSnapshot(ctx context.Context) (data []byte, location string, err error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/v1/snapshot", true, "", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTemporaryRedirect:
		return nil, resp.Header.Get("Location"), nil
	case resp.StatusCode >= 400:
		return nil, "", problemFrom(resp)
	}
	data, err = io.ReadAll(resp.Body)
	return data, "", err
}

func sessionPath(sessionID, suffix string) string {
	return "/api/v1/sessions/" + url.PathEscape(sessionID) + suffix
}

// doJSON sends body as JSON and decodes the response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, auth bool, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	resp, err := c.send(ctx, method, path, auth, contentType, reader)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// send sends a request, authenticated when auth is set.
func (c *Client) send(ctx context.Context, method, path string, auth bool, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return problemFrom(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// problemFrom reads a problem body. Non-problem bodies still yield an Error
// carrying the status.
func problemFrom(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if len(data) > 0 {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Status == 0 {
		apiErr.Status = resp.StatusCode
	}
	return apiErr
}

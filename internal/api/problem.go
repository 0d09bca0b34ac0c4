package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/formpath/internal/engine"
	"github.com/hyperengineering/formpath/internal/store"
	"github.com/hyperengineering/formpath/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusUnauthorized: {
		typeURI: "https://formpath.dev/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://formpath.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://formpath.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusInternalServerError: {
		typeURI: "https://formpath.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://formpath.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://formpath.dev/errors/service-unavailable",
		title:   "Service Unavailable",
	},
	http.StatusConflict: {
		typeURI: "https://formpath.dev/errors/conflict",
		title:   "Conflict",
	},
	http.StatusRequestEntityTooLarge: {
		typeURI: "https://formpath.dev/errors/too-large",
		title:   "Request Entity Too Large",
	},
	http.StatusTooManyRequests: {
		typeURI: "https://formpath.dev/errors/rate-limit",
		title:   "Too Many Requests",
	},
}

func lookupProblemType(status int) problemType {
	if pt, ok := problemTypes[status]; ok {
		return pt
	}
	return problemType{
		typeURI: "https://formpath.dev/errors/unknown",
		title:   http.StatusText(status),
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt := lookupProblemType(status)

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := problemTypes[http.StatusUnprocessableEntity]

	p := ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapError converts engine, store and validation errors to Problem Details
// responses. Unrecognized errors are logged and reported as a bare 500.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var failed *validation.FailedError
	var notFound *engine.NotFoundError

	switch {
	case errors.As(err, &failed):
		WriteProblemWithErrors(w, r, "Request contains invalid fields", failed.Errors)
	case errors.As(err, &notFound):
		WriteProblem(w, r, http.StatusNotFound, notFound.Error())
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, engine.ErrSessionFormMismatch):
		WriteProblem(w, r, http.StatusConflict, "Session belongs to a different form")
	case errors.Is(err, store.ErrDuplicateForm):
		WriteProblem(w, r, http.StatusConflict, "A form with this id already exists")
	case errors.Is(err, store.ErrDuplicateField),
		errors.Is(err, store.ErrDuplicatePage),
		errors.Is(err, store.ErrInvalidGraph):
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrSnapshotUnavailable):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Snapshots are not available for this store")
	default:
		slog.Error("request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
		)
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}

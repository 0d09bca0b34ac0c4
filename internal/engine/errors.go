package engine

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every NotFoundError and InconsistentStateError.
var ErrNotFound = errors.New("not found")

// ErrSessionFormMismatch is returned when a session id is reused for a
// different form than the one it was created for.
var ErrSessionFormMismatch = errors.New("session belongs to a different form")

// Entity kinds carried by NotFoundError.
const (
	KindForm    = "form"
	KindPage    = "page"
	KindField   = "field"
	KindSession = "session"
)

// NotFoundError reports a missing top-level entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFound builds a NotFoundError.
func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InconsistentStateError reports a form graph that cannot be rendered:
// a form with no pages, or a page with no fields.
type InconsistentStateError struct {
	Kind   string
	ID     string
	Reason string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.ID, e.Reason)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *InconsistentStateError) Is(target error) bool {
	return target == ErrNotFound
}

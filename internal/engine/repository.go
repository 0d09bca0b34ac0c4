package engine

import (
	"context"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/types"
)

// Repository is the persistence the engine consumes. Implementations return
// *NotFoundError (or wrap ErrNotFound) for missing entities.
type Repository interface {
	// LoadFormGraph returns the form with pages, fields, inbound field
	// conditions and navigation rules populated.
	LoadFormGraph(ctx context.Context, formID string) (*types.Form, error)

	// LoadAnswers returns the session's recorded answers keyed by field name.
	LoadAnswers(ctx context.Context, sessionID string) (answer.Map, error)

	// UpsertAnswer stores one answer per (session, field).
	UpsertAnswer(ctx context.Context, sessionID, fieldID string, value answer.Value) error

	// GetOrCreateSession returns the session, creating it in_progress when
	// absent. created reports whether it was created by this call.
	GetOrCreateSession(ctx context.Context, formID, sessionID string) (sess *types.Session, created bool, err error)

	// GetSession returns an existing session.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// UpdateSessionPointer sets the current page. An abandoned session is
	// returned to in_progress; a completed one keeps its status.
	UpdateSessionPointer(ctx context.Context, sessionID, pageID string) error

	// MarkSessionComplete sets status completed. The first completion
	// timestamp is kept on repeated calls.
	MarkSessionComplete(ctx context.Context, sessionID string) error
}

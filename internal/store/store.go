package store

import (
	"context"
	"time"

	"github.com/hyperengineering/formpath/internal/engine"
	"github.com/hyperengineering/formpath/internal/types"
)

// Store is the full persistence contract: the engine's Repository plus form
// administration and the maintenance hooks the workers use.
type Store interface {
	engine.Repository

	ImportForm(ctx context.Context, form *types.Form) (*types.ImportResult, error)
	ListForms(ctx context.Context) ([]types.FormSummary, error)
	DeleteForm(ctx context.Context, formID string) error
	GetStats(ctx context.Context) (*types.StoreStats, error)
	AbandonStale(ctx context.Context, threshold time.Time) (int64, error)
	GenerateSnapshot(ctx context.Context) error
	GetSnapshotPath(ctx context.Context) (string, error)
	Close() error
}

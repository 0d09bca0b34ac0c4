package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/formpath/internal/metrics"
)

// AbandonStore defines the store operations needed by the abandonment worker.
type AbandonStore interface {
	AbandonStale(ctx context.Context, threshold time.Time) (int64, error)
}

// AbandonmentWorker periodically marks in-progress sessions that have not
// been touched for a while as abandoned. An abandoned session returns to
// in_progress the next time it is rendered or answered.
type AbandonmentWorker struct {
	store    AbandonStore
	interval time.Duration
	after    time.Duration
	now      func() time.Time
}

// NewAbandonmentWorker creates a worker that sweeps every interval and
// abandons sessions idle for longer than after.
func NewAbandonmentWorker(store AbandonStore, interval, after time.Duration) *AbandonmentWorker {
	return &AbandonmentWorker{
		store:    store,
		interval: interval,
		after:    after,
		now:      time.Now,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// The first sweep happens one interval after start.
func (w *AbandonmentWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "session-abandonment",
		"interval", w.interval.String(),
		"abandon_after", w.after.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "session-abandonment",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs a single abandonment pass.
func (w *AbandonmentWorker) sweep(ctx context.Context) {
	start := w.now()
	threshold := start.Add(-w.after)

	slog.Debug("abandonment sweep started",
		"component", "worker",
		"action", "sweep_start",
		"threshold", threshold.Format(time.RFC3339),
	)

	affected, err := w.store.AbandonStale(ctx, threshold)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("abandonment sweep failed",
			"component", "worker",
			"action", "sweep_failed",
			"error", err,
		)
		return
	}

	metrics.SessionsAbandoned.Add(float64(affected))
	slog.Info("abandonment sweep completed",
		"component", "worker",
		"action", "sweep_complete",
		"abandoned", affected,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/formpath/internal/metrics"
	"github.com/hyperengineering/formpath/internal/snapshot"
)

// SnapshotStore defines the store operations needed by the snapshot worker.
type SnapshotStore interface {
	GenerateSnapshot(ctx context.Context) error
	GetSnapshotPath(ctx context.Context) (string, error)
}

// SnapshotWorker generates periodic database snapshots and, when remote
// storage is configured, uploads each one.
type SnapshotWorker struct {
	store    SnapshotStore
	uploader snapshot.Uploader
	interval time.Duration
}

// NewSnapshotWorker creates a worker with the given store and interval.
// A nil or no-op uploader keeps snapshots local.
func NewSnapshotWorker(store SnapshotStore, interval time.Duration, uploader snapshot.Uploader) *SnapshotWorker {
	if _, ok := uploader.(*snapshot.NoopUploader); ok {
		uploader = nil
	}
	return &SnapshotWorker{
		store:    store,
		uploader: uploader,
		interval: interval,
	}
}

// Run starts the worker loop. Generates a snapshot immediately on start,
// then on each interval, until ctx is cancelled.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "snapshot",
		"interval", w.interval.String(),
		"upload", w.uploader != nil,
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "snapshot",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce generates one snapshot and uploads it. Returns false on any failure.
func (w *SnapshotWorker) runOnce(ctx context.Context) bool {
	slog.Info("snapshot generation started",
		"component", "worker",
		"action", "snapshot_start",
	)

	if err := w.store.GenerateSnapshot(ctx); err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("snapshot generation failed",
			"component", "worker",
			"action", "snapshot_failed",
			"error", err,
		)
		return false
	}

	if w.uploader == nil {
		return true
	}
	return w.upload(ctx)
}

// upload sends the current snapshot to remote storage. Failures are logged
// and counted; the local snapshot stays valid.
func (w *SnapshotWorker) upload(ctx context.Context) bool {
	path, err := w.store.GetSnapshotPath(ctx)
	if err != nil {
		slog.Warn("failed to get snapshot path for upload",
			"component", "worker",
			"action", "snapshot_upload_failed",
			"error", err,
		)
		metrics.SnapshotUploads.WithLabelValues("failed").Inc()
		return false
	}

	if err := w.uploader.Upload(ctx, path); err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("snapshot upload failed",
			"component", "worker",
			"action", "snapshot_upload_failed",
			"error", err,
		)
		metrics.SnapshotUploads.WithLabelValues("failed").Inc()
		return false
	}

	metrics.SnapshotUploads.WithLabelValues("succeeded").Inc()
	slog.Info("snapshot uploaded",
		"component", "worker",
		"action", "snapshot_uploaded",
		"path", path,
	)
	return true
}

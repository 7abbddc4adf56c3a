package store

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = 5 * time.Minute

// CleanupCallback is called after the TTL worker removes expired sessions.
type CleanupCallback func(removed int64)

// RunTTLWorker periodically removes sessions idle longer than ttl. It blocks
// until ctx is cancelled, so callers run it in its own goroutine or group.
func RunTTLWorker(ctx context.Context, repo Repository, ttl, interval time.Duration, onCleanup CleanupCallback) error {
	if interval <= 0 {
		interval = ttlWorkerInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("TTL worker started", "interval", interval, "ttl", ttl)
	for {
		select {
		case <-ticker.C:
			sweepExpiredSessions(ctx, repo, ttl, onCleanup)
		case <-ctx.Done():
			slog.Info("TTL worker shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

func sweepExpiredSessions(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) {
	deleted, err := repo.CleanupExpiredSessions(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("TTL worker: context canceled during cleanup", "error", err)
			return
		}
		slog.Error("TTL worker failed to cleanup expired sessions", "error", err)
		return
	}
	if deleted == 0 {
		return
	}

	slog.Info("TTL worker removed expired sessions", "count", deleted)
	if onCleanup != nil {
		onCleanup(deleted)
	}
}

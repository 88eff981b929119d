package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpiredDeleter removes records that expired before now
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupManager periodically removes expired invites, sessions and keys.
// Expiry is always rechecked at use time, so cleanup is only housekeeping.
type CleanupManager struct {
	targets  map[string]ExpiredDeleter
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager. targets maps a record name
// used in logs to its repository.
func NewCleanupManager(targets map[string]ExpiredDeleter, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupManager{
		targets:  targets,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce sweeps every target and returns the rows removed per target. A
// failing target is logged and does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) map[string]int64 {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.now()
	removed := make(map[string]int64, len(cm.targets))
	for name, target := range cm.targets {
		rows, err := target.DeleteExpired(cleanupCtx, now)
		if err != nil {
			cm.logger.Error("failed to cleanup expired records",
				slog.String("target", name),
				slog.Any("error", err))
			continue
		}
		removed[name] = rows
		if rows > 0 {
			cm.logger.Info("expired records removed",
				slog.String("target", name),
				slog.Int64("rows_deleted", rows))
		}
	}
	return removed
}

// Stop signals the cleanup manager to stop. It is safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

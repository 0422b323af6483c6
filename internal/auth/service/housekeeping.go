package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/store"
)

// HousekeepingService periodically deletes dead rows so the sessions and
// audit_log tables do not grow without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// SessionRetention keeps expired or revoked sessions listable for a while.
	SessionRetention time.Duration
	// AuditRetention of zero keeps audit rows forever.
	AuditRetention time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:            store,
		Logger:           logger,
		Interval:         interval,
		SessionRetention: 7 * 24 * time.Hour,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one pass. Each deletion is independent; a failure in one
// does not stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	s.Logger.Info("starting housekeeping cleanup")
	now := time.Now().UTC()

	var successful int

	if n, err := s.Store.Sessions().DeleteStaleSessions(ctx, now.Add(-s.SessionRetention)); err != nil {
		s.Logger.Error("failed to delete stale sessions", "error", err)
	} else {
		s.Logger.Debug("deleted stale sessions", "count", n)
		successful++
	}

	if s.AuditRetention > 0 {
		if n, err := s.Store.Audit().DeleteAuditBefore(ctx, now.Add(-s.AuditRetention)); err != nil {
			s.Logger.Error("failed to delete old audit entries", "error", err)
		} else {
			s.Logger.Debug("deleted old audit entries", "count", n)
			successful++
		}
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", successful)
}

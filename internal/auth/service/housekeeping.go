package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/finsightai/finsight/internal/auth/metrics"
	"github.com/finsightai/finsight/internal/auth/store"
)

const DefaultWebhookRetention = 30 * 24 * time.Hour

// HousekeepingService periodically deletes expired refresh tokens, expired
// demo tokens and processed webhook events past retention.
type HousekeepingService struct {
	Store            store.Store
	Logger           *slog.Logger
	Interval         time.Duration
	WebhookRetention time.Duration
	Clock            Clock

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour and
// retention to 30 days.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = DefaultWebhookRetention
	}
	return &HousekeepingService{
		Store:            st,
		Logger:           logger,
		Interval:         interval,
		WebhookRetention: retention,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// Start runs cleanup once and then on every tick. It does not block.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop waits for any in-progress cleanup to finish.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

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

// Cleanup runs each deletion independently; one failing does not stop the
// others. It returns the number of successful deletions.
func (s *HousekeepingService) Cleanup(ctx context.Context) int {
	now := s.Clock.now()
	s.Logger.Debug("starting housekeeping cleanup")

	jobs := []struct {
		kind string
		run  func() (int64, error)
	}{
		{"refresh_tokens", func() (int64, error) {
			return s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now)
		}},
		{"demo_tokens", func() (int64, error) {
			return s.Store.DemoTokens().DeleteExpiredDemoTokens(ctx, now)
		}},
		{"webhook_events", func() (int64, error) {
			return s.Store.WebhookEvents().DeleteProcessedWebhookEvents(ctx, now.Add(-s.WebhookRetention))
		}},
	}

	ok := 0
	for _, job := range jobs {
		n, err := job.run()
		if err != nil {
			s.Logger.Error("housekeeping cleanup failed", "kind", job.kind, "error", err)
			continue
		}
		metrics.HousekeepingDeletedTotal.WithLabelValues(job.kind).Add(float64(n))
		s.Logger.Debug("housekeeping deleted rows", "kind", job.kind, "rows", n)
		ok++
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", ok)
	return ok
}

package cardprogram

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	"github.com/poolcard/poolcard_service/pkg/logger"
	"github.com/poolcard/poolcard_service/pkg/metrics"
)

const sweepBatchSize = 500

// ExpireStaleHolds expires PENDING holds older than ttl. Expired holds stop
// blocking the available-to-spend calculation; the ledger is untouched
// because authorizations never move funds.
func (s *Service) ExpireStaleHolds(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)

	expired := 0
	for {
		holds, err := s.holds.PendingHoldsBefore(ctx, cutoff, sweepBatchSize)
		if err != nil {
			return expired, err
		}
		if len(holds) == 0 {
			return expired, nil
		}

		for _, hold := range holds {
			if err := s.holds.UpdateHoldStatus(ctx, hold.ID, entities.HoldStatusExpired); err != nil {
				return expired, err
			}
			expired++
			metrics.CardHoldsExpiredTotal.Inc()
			s.log.Warn("authorization hold expired",
				"hold_id", hold.ID,
				"card_id", hold.CardID,
				"provider_auth_id", hold.ProviderAuthID,
				"amount", hold.AmountMinor,
				"created_at", hold.CreatedAt)
		}

		if len(holds) < sweepBatchSize {
			return expired, nil
		}
	}
}

// Sweeper runs the hold-expiry sweep on a schedule
type Sweeper struct {
	service *Service
	ttl     time.Duration
	cron    *cron.Cron
	log     *logger.Logger
}

// NewSweeper creates the hourly hold sweeper
func NewSweeper(service *Service, ttl time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		service: service,
		ttl:     ttl,
		cron:    cron.New(),
		log:     log,
	}
}

// Start schedules the sweep
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		count, err := s.service.ExpireStaleHolds(ctx, s.ttl)
		if err != nil {
			s.log.Error("hold sweep failed", "error", err, "expired", count)
			return
		}
		if count > 0 {
			s.log.Info("hold sweep complete", "expired", count)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("hold sweeper started", "ttl", s.ttl)
	return nil
}

// Shutdown stops the schedule and waits for a running sweep
func (s *Sweeper) Shutdown(timeout time.Duration) error {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
	}
	return nil
}

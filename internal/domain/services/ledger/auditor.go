package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/poolcard/poolcard_service/pkg/logger"
)

// CardIDLister enumerates every card carrying ledger accounts
type CardIDLister interface {
	AllCardIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Auditor reconciles every card on a schedule. Mismatches are counted and
// logged by ReconcileCard; the auditor exists so drift surfaces without
// waiting for someone to call the reconciliation endpoint.
type Auditor struct {
	service *Service
	cards   CardIDLister
	cron    *cron.Cron
	log     *logger.Logger
}

// NewAuditor creates the daily reconciliation auditor
func NewAuditor(service *Service, cards CardIDLister, log *logger.Logger) *Auditor {
	return &Auditor{
		service: service,
		cards:   cards,
		cron:    cron.New(),
		log:     log,
	}
}

// RunOnce reconciles every card and returns the number of inconsistent ones
func (a *Auditor) RunOnce(ctx context.Context) (int, error) {
	cardIDs, err := a.cards.AllCardIDs(ctx)
	if err != nil {
		return 0, err
	}

	mismatches := 0
	for _, cardID := range cardIDs {
		recon, err := a.service.ReconcileCard(ctx, cardID)
		if err != nil {
			a.log.Error("card reconciliation failed", "card_id", cardID, "error", err)
			continue
		}
		if !recon.Consistent {
			mismatches++
		}
	}
	return mismatches, nil
}

// Start schedules the audit
func (a *Auditor) Start() error {
	_, err := a.cron.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		mismatches, err := a.RunOnce(ctx)
		if err != nil {
			a.log.Error("reconciliation audit failed", "error", err)
			return
		}
		a.log.Info("reconciliation audit complete", "mismatches", mismatches)
	})
	if err != nil {
		return err
	}

	a.cron.Start()
	a.log.Info("reconciliation auditor started")
	return nil
}

// Shutdown stops the schedule and waits for a running audit
func (a *Auditor) Shutdown(timeout time.Duration) error {
	ctx := a.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
	}
	return nil
}

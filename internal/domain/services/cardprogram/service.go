// Package cardprogram drives the card state machine: authorization
// decisions, holds, clearings, reversals and card status updates coming in
// from the BaaS provider.
package cardprogram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/domain/services/ledger"
	"github.com/poolcard/poolcard_service/pkg/logger"
	"github.com/poolcard/poolcard_service/pkg/metrics"
)

// CardStore is the card persistence surface
type CardStore interface {
	CardByID(ctx context.Context, id uuid.UUID) (*entities.Card, error)
	CardByExternalID(ctx context.Context, providerName, externalCardID string) (*entities.Card, error)
	UpdateCardStatus(ctx context.Context, id uuid.UUID, status entities.CardStatus) error
}

// HoldStore is the authorization hold persistence surface
type HoldStore interface {
	CreateHold(ctx context.Context, hold *entities.CardAuthHold) error
	HoldByProviderAuthID(ctx context.Context, providerName, providerAuthID string) (*entities.CardAuthHold, error)
	UpdateHoldStatus(ctx context.Context, id uuid.UUID, status entities.HoldStatus) error
	SumPendingHolds(ctx context.Context, cardID uuid.UUID) (int64, error)
	// PendingHoldsBefore returns PENDING holds created before the cutoff
	PendingHoldsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*entities.CardAuthHold, error)
}

// TxRunner composes multi-store mutations into one storage transaction
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Splitter resolves clearing splits
type Splitter interface {
	Split(ctx context.Context, walletID, payerUserID uuid.UUID, amountMinor int64) ([]entities.SplitShare, error)
}

// Service is the card program state machine
type Service struct {
	cards    CardStore
	holds    HoldStore
	ledger   *ledger.Service
	splitter Splitter
	tx       TxRunner
	log      *logger.Logger
}

// NewService creates the card program service
func NewService(cards CardStore, holds HoldStore, ledgerSvc *ledger.Service, splitter Splitter, tx TxRunner, log *logger.Logger) *Service {
	return &Service{cards: cards, holds: holds, ledger: ledgerSvc, splitter: splitter, tx: tx, log: log}
}

// AvailableToSpend is the pool balance minus all PENDING hold amounts.
// Holds block strictly: an authorization only approves when the available
// amount covers it in full.
func (s *Service) AvailableToSpend(ctx context.Context, cardID uuid.UUID) (int64, error) {
	pool, err := s.ledger.PoolBalance(ctx, cardID)
	if err != nil {
		return 0, err
	}
	held, err := s.holds.SumPendingHolds(ctx, cardID)
	if err != nil {
		return 0, err
	}
	return pool - held, nil
}

// HandleAuth decides an authorization request and records the hold on
// approval. Re-delivery of an already-held authorization re-approves
// without creating a second hold.
func (s *Service) HandleAuth(ctx context.Context, event *entities.NormalizedEvent) (entities.AuthDecision, error) {
	card, err := s.cards.CardByExternalID(ctx, event.ProviderName, event.ProviderCardID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			s.log.Warn("authorization for unknown card",
				"provider", event.ProviderName, "provider_card_id", event.ProviderCardID)
			metrics.CardAuthDecisionsTotal.WithLabelValues(string(entities.AuthDecisionDecline)).Inc()
			return entities.AuthDecisionDecline, nil
		}
		return "", err
	}

	if existing, err := s.holds.HoldByProviderAuthID(ctx, event.ProviderName, event.ProviderAuthID); err == nil {
		s.log.Info("authorization replayed", "hold_id", existing.ID, "provider_auth_id", event.ProviderAuthID)
		return entities.AuthDecisionApprove, nil
	} else if !domainerrors.IsNotFound(err) {
		return "", err
	}

	decision := entities.AuthDecisionDecline
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if !card.Status.CanAuthorize() {
			s.log.Info("authorization declined: card not active",
				"card_id", card.ID, "status", card.Status)
			return nil
		}

		available, err := s.AvailableToSpend(ctx, card.ID)
		if err != nil {
			return err
		}
		if event.AmountMinor <= 0 || available < event.AmountMinor {
			s.log.Info("authorization declined: insufficient available funds",
				"card_id", card.ID, "available", available, "amount", event.AmountMinor)
			return nil
		}

		now := time.Now().UTC()
		hold := &entities.CardAuthHold{
			ID:             uuid.New(),
			WalletID:       card.WalletID,
			CardID:         card.ID,
			ProviderName:   event.ProviderName,
			ProviderAuthID: event.ProviderAuthID,
			AmountMinor:    event.AmountMinor,
			Status:         entities.HoldStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.holds.CreateHold(ctx, hold); err != nil {
			// concurrent delivery already created it; approve idempotently
			if domainerrors.IsAlreadyExists(err) {
				decision = entities.AuthDecisionApprove
				return nil
			}
			return err
		}

		decision = entities.AuthDecisionApprove
		return nil
	})
	if err != nil {
		return "", err
	}

	metrics.CardAuthDecisionsTotal.WithLabelValues(string(decision)).Inc()
	return decision, nil
}

// HandleClearing captures a settled transaction against member equity and
// releases the matching hold. The cleared amount rules, not the hold
// amount. A clearing may arrive without a prior hold (offline auth) and
// still captures.
func (s *Service) HandleClearing(ctx context.Context, event *entities.NormalizedEvent) error {
	card, err := s.cards.CardByExternalID(ctx, event.ProviderName, event.ProviderCardID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			// nothing to post against; record loudly and let the caller ack
			s.log.Error("clearing for unknown card",
				"provider", event.ProviderName,
				"provider_card_id", event.ProviderCardID,
				"provider_event_id", event.ProviderEventID,
				"amount", event.AmountMinor)
			return nil
		}
		return err
	}

	splits, err := s.splitter.Split(ctx, card.WalletID, card.HolderUserID, event.AmountMinor)
	if err != nil {
		return err
	}

	transactionID := clearingTransactionID(event)

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.ledger.PostCardCapture(ctx, ledger.CaptureParams{
			CardID:        card.ID,
			Splits:        splits,
			TransactionID: transactionID,
			Metadata: map[string]any{
				"provider_event_id":       event.ProviderEventID,
				"provider_transaction_id": event.ProviderTransactionID,
			},
		})
		if errors.Is(err, domainerrors.ErrInsufficientEquity) && len(splits) > 1 {
			// an equal split outran someone's equity; charge the payer
			s.log.Warn("equal split exceeds member equity, charging payer",
				"card_id", card.ID, "transaction_id", transactionID)
			_, err = s.ledger.PostCardCapture(ctx, ledger.CaptureParams{
				CardID: card.ID,
				Splits: []entities.SplitShare{{
					UserID:      card.HolderUserID,
					AmountMinor: event.AmountMinor,
				}},
				TransactionID: transactionID,
				Metadata: map[string]any{
					"provider_event_id": event.ProviderEventID,
					"split_fallback":    "payer_only",
				},
			})
		}
		if err != nil {
			return err
		}

		return s.releaseHold(ctx, event, entities.HoldStatusCleared)
	})
}

// HandleReversal releases a hold without any ledger movement, since the
// authorization never moved funds.
func (s *Service) HandleReversal(ctx context.Context, event *entities.NormalizedEvent) error {
	return s.releaseHold(ctx, event, entities.HoldStatusReversed)
}

func (s *Service) releaseHold(ctx context.Context, event *entities.NormalizedEvent, status entities.HoldStatus) error {
	hold, err := s.holds.HoldByProviderAuthID(ctx, event.ProviderName, event.ProviderAuthID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			s.log.Info("no hold to release", "provider_auth_id", event.ProviderAuthID)
			return nil
		}
		return err
	}

	if hold.Status.IsTerminal() {
		s.log.Info("hold already released", "hold_id", hold.ID, "status", hold.Status)
		return nil
	}

	return s.holds.UpdateHoldStatus(ctx, hold.ID, status)
}

// HandleCardStatus applies a provider-driven card status transition
func (s *Service) HandleCardStatus(ctx context.Context, event *entities.NormalizedEvent) error {
	card, err := s.cards.CardByExternalID(ctx, event.ProviderName, event.ProviderCardID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			s.log.Warn("status update for unknown card",
				"provider", event.ProviderName, "provider_card_id", event.ProviderCardID)
			return nil
		}
		return err
	}

	status, err := mapProviderCardStatus(event.Status)
	if err != nil {
		s.log.Warn("unmapped provider card status", "status", event.Status, "card_id", card.ID)
		return nil
	}

	if card.Status == status {
		return nil
	}

	s.log.Info("card status transition", "card_id", card.ID, "from", card.Status, "to", status)
	return s.cards.UpdateCardStatus(ctx, card.ID, status)
}

func mapProviderCardStatus(provider string) (entities.CardStatus, error) {
	switch provider {
	case "ACTIVE", "UNLOCKED":
		return entities.CardStatusActive, nil
	case "LOCKED", "SUSPENDED", "FROZEN":
		return entities.CardStatusLocked, nil
	case "TERMINATED", "CANCELED", "CANCELLED":
		return entities.CardStatusTerminated, nil
	default:
		return "", fmt.Errorf("unknown provider card status: %s", provider)
	}
}

func clearingTransactionID(event *entities.NormalizedEvent) string {
	if event.ProviderTransactionID != "" {
		return fmt.Sprintf("clearing_%s_%s", event.ProviderName, event.ProviderTransactionID)
	}
	return fmt.Sprintf("clearing_%s_%s", event.ProviderName, event.ProviderEventID)
}

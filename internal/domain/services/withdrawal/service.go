// Package withdrawal coordinates the two-phase withdrawal flow: the ledger
// leg parks funds in the pending-withdrawal account, the provider leg pays
// out, and provider callbacks finalize or reverse the parked funds.
package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/adapters/baas"
	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/domain/services/ledger"
	"github.com/poolcard/poolcard_service/pkg/logger"
	"github.com/poolcard/poolcard_service/pkg/metrics"
)

// Store is the withdrawal persistence surface
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateRequest(ctx context.Context, req *entities.WithdrawalRequest) error
	RequestByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error)
	RequestsByWallet(ctx context.Context, walletID uuid.UUID, status *entities.WithdrawalStatus, limit, offset int) ([]*entities.WithdrawalRequest, error)
	UpdateRequest(ctx context.Context, req *entities.WithdrawalRequest) error

	CreateTransfer(ctx context.Context, transfer *entities.WithdrawalTransfer) error
	TransferByRequestID(ctx context.Context, requestID uuid.UUID) (*entities.WithdrawalTransfer, error)
	TransferByProviderID(ctx context.Context, providerName, providerTransferID string) (*entities.WithdrawalTransfer, error)
	UpdateTransfer(ctx context.Context, transfer *entities.WithdrawalTransfer) error
}

// Service is the withdrawal coordinator
type Service struct {
	store    Store
	ledger   *ledger.Service
	cards    ledger.CardStore
	provider baas.Provider
	log      *logger.Logger
}

// NewService creates the withdrawal service
func NewService(store Store, ledgerSvc *ledger.Service, cards ledger.CardStore, provider baas.Provider, log *logger.Logger) *Service {
	return &Service{store: store, ledger: ledgerSvc, cards: cards, provider: provider, log: log}
}

// RequestParams describes a new withdrawal
type RequestParams struct {
	WalletID    uuid.UUID
	CardID      uuid.UUID
	UserID      uuid.UUID
	AmountMinor int64
	Currency    string
}

// Deterministic ledger transaction ids derived from the request id, so
// every leg is replay-safe.
func pendingTxID(requestID uuid.UUID) string {
	return fmt.Sprintf("withdrawal_pending_%s", requestID)
}

func finalizeTxID(requestID uuid.UUID) string {
	return fmt.Sprintf("withdrawal_finalize_%s", requestID)
}

func reverseTxID(requestID uuid.UUID) string {
	return fmt.Sprintf("withdrawal_reverse_%s", requestID)
}

// Request parks the funds and hands the payout to the provider. The ledger
// leg and the request row commit first; a provider refusal rolls the
// parked funds back and fails the request.
func (s *Service) Request(ctx context.Context, params RequestParams) (*entities.WithdrawalRequest, *entities.WithdrawalTransfer, error) {
	if params.AmountMinor <= 0 {
		return nil, nil, domainerrors.ValidationError("amount", "withdrawal amount must be positive")
	}

	card, err := s.cards.CardByID(ctx, params.CardID)
	if err != nil {
		return nil, nil, err
	}
	if card.WalletID != params.WalletID {
		return nil, nil, domainerrors.NotFoundError("CARD")
	}

	now := time.Now().UTC()
	request := &entities.WithdrawalRequest{
		ID:          uuid.New(),
		WalletID:    params.WalletID,
		CardID:      params.CardID,
		UserID:      params.UserID,
		AmountMinor: params.AmountMinor,
		Currency:    params.Currency,
		Status:      entities.WithdrawalStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	transfer := &entities.WithdrawalTransfer{
		ID:                  uuid.New(),
		WithdrawalRequestID: request.ID,
		ProviderName:        s.provider.Name(),
		AmountMinor:         params.AmountMinor,
		Status:              entities.TransferStatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	// phase one: park the funds and persist the request atomically
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		txID := pendingTxID(request.ID)
		if _, err := s.ledger.PostPendingCardWithdrawal(ctx, ledger.WithdrawalParams{
			CardID:        params.CardID,
			UserID:        params.UserID,
			AmountMinor:   params.AmountMinor,
			TransactionID: txID,
			Metadata:      map[string]any{"withdrawal_request_id": request.ID.String()},
		}); err != nil {
			return err
		}

		request.LedgerTransactionID = &txID
		if err := s.store.CreateRequest(ctx, request); err != nil {
			return err
		}
		return s.store.CreateTransfer(ctx, transfer)
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.WithdrawalsTotal.WithLabelValues("requested").Inc()

	// phase two: hand the payout to the provider
	result, err := s.provider.InitiatePayout(ctx, baas.PayoutRequest{
		TransferID:  transfer.ID,
		AmountMinor: params.AmountMinor,
		Currency:    params.Currency,
		Reference:   request.ID.String(),
	})
	if err != nil {
		s.log.Error("payout initiation failed, reversing parked funds",
			"withdrawal_request_id", request.ID, "error", err)
		if failErr := s.fail(ctx, request, transfer, err.Error()); failErr != nil {
			// parked funds stay PENDING; reconciliation will surface them
			s.log.Error("failed to reverse withdrawal after provider refusal",
				"marker", "invariant_violation",
				"withdrawal_request_id", request.ID, "error", failErr)
			return nil, nil, failErr
		}
		return request, transfer, nil
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		transfer.ProviderTransferID = &result.ProviderTransferID
		transfer.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateTransfer(ctx, transfer); err != nil {
			return err
		}

		request.Status = entities.WithdrawalStatusProcessing
		request.UpdatedAt = time.Now().UTC()
		return s.store.UpdateRequest(ctx, request)
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("withdrawal handed to provider",
		"withdrawal_request_id", request.ID,
		"provider_transfer_id", result.ProviderTransferID,
		"amount", params.AmountMinor)
	return request, transfer, nil
}

// HandlePayoutStatus finalizes or reverses a withdrawal from a provider
// callback. Terminal requests ignore further callbacks.
func (s *Service) HandlePayoutStatus(ctx context.Context, event *entities.NormalizedEvent) error {
	transfer, err := s.store.TransferByProviderID(ctx, event.ProviderName, event.ProviderTransferID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			s.log.Warn("payout status for unknown transfer",
				"provider", event.ProviderName, "provider_transfer_id", event.ProviderTransferID)
			return nil
		}
		return err
	}

	request, err := s.store.RequestByID(ctx, transfer.WithdrawalRequestID)
	if err != nil {
		return err
	}

	if request.Status.IsTerminal() {
		s.log.Info("payout status for settled withdrawal ignored",
			"withdrawal_request_id", request.ID, "status", request.Status)
		return nil
	}

	switch entities.TransferStatus(event.Status) {
	case entities.TransferStatusCompleted:
		return s.complete(ctx, request, transfer)
	case entities.TransferStatusFailed:
		return s.fail(ctx, request, transfer, "provider reported payout failure")
	case entities.TransferStatusReversed:
		return s.fail(ctx, request, transfer, "provider reversed the payout")
	default:
		s.log.Info("non-terminal payout status ignored",
			"withdrawal_request_id", request.ID, "status", event.Status)
		return nil
	}
}

func (s *Service) complete(ctx context.Context, request *entities.WithdrawalRequest, transfer *entities.WithdrawalTransfer) error {
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.FinalizeCardWithdrawal(ctx, ledger.WithdrawalParams{
			CardID:        request.CardID,
			UserID:        request.UserID,
			AmountMinor:   request.AmountMinor,
			TransactionID: finalizeTxID(request.ID),
			Metadata:      map[string]any{"withdrawal_request_id": request.ID.String()},
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		transfer.Status = entities.TransferStatusCompleted
		transfer.UpdatedAt = now
		if err := s.store.UpdateTransfer(ctx, transfer); err != nil {
			return err
		}

		request.Status = entities.WithdrawalStatusCompleted
		request.CompletedAt = &now
		request.UpdatedAt = now
		return s.store.UpdateRequest(ctx, request)
	})
	if err != nil {
		return err
	}

	metrics.WithdrawalsTotal.WithLabelValues("completed").Inc()
	s.log.Info("withdrawal completed", "withdrawal_request_id", request.ID)
	return nil
}

func (s *Service) fail(ctx context.Context, request *entities.WithdrawalRequest, transfer *entities.WithdrawalTransfer, reason string) error {
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.ReversePendingCardWithdrawal(ctx, ledger.WithdrawalParams{
			CardID:        request.CardID,
			UserID:        request.UserID,
			AmountMinor:   request.AmountMinor,
			TransactionID: reverseTxID(request.ID),
			Metadata:      map[string]any{"withdrawal_request_id": request.ID.String()},
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		transfer.Status = entities.TransferStatusFailed
		transfer.UpdatedAt = now
		if err := s.store.UpdateTransfer(ctx, transfer); err != nil {
			return err
		}

		request.Status = entities.WithdrawalStatusFailed
		request.FailureReason = &reason
		request.UpdatedAt = now
		return s.store.UpdateRequest(ctx, request)
	})
	if err != nil {
		return err
	}

	metrics.WithdrawalsTotal.WithLabelValues("failed").Inc()
	s.log.Info("withdrawal failed and reversed",
		"withdrawal_request_id", request.ID, "reason", reason)
	return nil
}

// Cancel reverses a withdrawal that has not reached the provider yet. Once
// the request is PROCESSING the provider owns the outcome and cancellation
// is refused.
func (s *Service) Cancel(ctx context.Context, walletID, requestID, userID uuid.UUID) (*entities.WithdrawalRequest, error) {
	request, err := s.store.RequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.WalletID != walletID {
		return nil, domainerrors.NotFoundError("WITHDRAWAL_REQUEST")
	}
	if request.UserID != userID {
		return nil, domainerrors.ForbiddenError("only the requesting member can cancel a withdrawal")
	}

	switch request.Status {
	case entities.WithdrawalStatusPending:
	case entities.WithdrawalStatusProcessing:
		return nil, domainerrors.ErrCannotCancelWithdrawal
	default:
		return nil, domainerrors.NewDomainError(domainerrors.ErrConflict,
			"WITHDRAWAL_ALREADY_SETTLED", "withdrawal is already in a terminal state")
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.ReversePendingCardWithdrawal(ctx, ledger.WithdrawalParams{
			CardID:        request.CardID,
			UserID:        request.UserID,
			AmountMinor:   request.AmountMinor,
			TransactionID: reverseTxID(request.ID),
			Metadata:      map[string]any{"withdrawal_request_id": request.ID.String(), "cancelled": true},
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		request.Status = entities.WithdrawalStatusCancelled
		request.UpdatedAt = now
		return s.store.UpdateRequest(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalsTotal.WithLabelValues("cancelled").Inc()
	s.log.Info("withdrawal cancelled", "withdrawal_request_id", request.ID)
	return request, nil
}

// Get returns one withdrawal request with its transfer
func (s *Service) Get(ctx context.Context, walletID, requestID uuid.UUID) (*entities.WithdrawalRequest, *entities.WithdrawalTransfer, error) {
	request, err := s.store.RequestByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if request.WalletID != walletID {
		return nil, nil, domainerrors.NotFoundError("WITHDRAWAL_REQUEST")
	}

	transfer, err := s.store.TransferByRequestID(ctx, requestID)
	if err != nil && !domainerrors.IsNotFound(err) {
		return nil, nil, err
	}
	return request, transfer, nil
}

// List returns a wallet's withdrawal requests, newest first
func (s *Service) List(ctx context.Context, walletID uuid.UUID, status *entities.WithdrawalStatus, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	return s.store.RequestsByWallet(ctx, walletID, status, limit, offset)
}

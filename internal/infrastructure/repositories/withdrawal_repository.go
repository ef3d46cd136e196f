package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/infrastructure/database"
)

// WithdrawalRepository persists withdrawal requests and their provider transfers
type WithdrawalRepository struct {
	db *database.DB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *database.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// RunInTx delegates to the shared transaction helper
func (r *WithdrawalRepository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.RunInTx(ctx, fn)
}

// CreateRequest inserts a withdrawal request
func (r *WithdrawalRepository) CreateRequest(ctx context.Context, request *entities.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawal_requests (id, wallet_id, card_id, user_id, amount_minor, currency, status,
			failure_reason, ledger_transaction_id, created_at, updated_at, completed_at)
		VALUES (:id, :wallet_id, :card_id, :user_id, :amount_minor, :currency, :status,
			:failure_reason, :ledger_transaction_id, :created_at, :updated_at, :completed_at)`

	_, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, request)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.AlreadyExistsError("WITHDRAWAL_REQUEST")
		}
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return nil
}

// RequestByID fetches one withdrawal request
func (r *WithdrawalRepository) RequestByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	var request entities.WithdrawalRequest
	query := `SELECT * FROM withdrawal_requests WHERE id = $1`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &request, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("WITHDRAWAL_REQUEST")
		}
		return nil, fmt.Errorf("failed to get withdrawal request: %w", err)
	}
	return &request, nil
}

// RequestsByWallet pages through a wallet's withdrawal requests, optionally
// filtered by status, newest first
func (r *WithdrawalRepository) RequestsByWallet(ctx context.Context, walletID uuid.UUID, status *entities.WithdrawalStatus, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	var (
		requests []*entities.WithdrawalRequest
		err      error
	)
	if status != nil {
		query := `
			SELECT * FROM withdrawal_requests
			WHERE wallet_id = $1 AND status = $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3 OFFSET $4`
		err = sqlx.SelectContext(ctx, r.db.Querier(ctx), &requests, query, walletID, *status, limit, offset)
	} else {
		query := `
			SELECT * FROM withdrawal_requests
			WHERE wallet_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3`
		err = sqlx.SelectContext(ctx, r.db.Querier(ctx), &requests, query, walletID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}
	return requests, nil
}

// UpdateRequest writes the mutable fields of a withdrawal request
func (r *WithdrawalRepository) UpdateRequest(ctx context.Context, request *entities.WithdrawalRequest) error {
	query := `
		UPDATE withdrawal_requests
		SET status = :status,
			failure_reason = :failure_reason,
			ledger_transaction_id = :ledger_transaction_id,
			completed_at = :completed_at,
			updated_at = NOW()
		WHERE id = :id`

	result, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, request)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal request: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domainerrors.NotFoundError("WITHDRAWAL_REQUEST")
	}
	return nil
}

// CreateTransfer inserts the provider transfer leg of a withdrawal
func (r *WithdrawalRepository) CreateTransfer(ctx context.Context, transfer *entities.WithdrawalTransfer) error {
	query := `
		INSERT INTO withdrawal_transfers (id, withdrawal_request_id, provider_name, provider_transfer_id,
			amount_minor, status, created_at, updated_at)
		VALUES (:id, :withdrawal_request_id, :provider_name, :provider_transfer_id,
			:amount_minor, :status, :created_at, :updated_at)`

	_, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, transfer)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.AlreadyExistsError("WITHDRAWAL_TRANSFER")
		}
		return fmt.Errorf("failed to create withdrawal transfer: %w", err)
	}
	return nil
}

// TransferByRequestID fetches the transfer leg of one withdrawal
func (r *WithdrawalRepository) TransferByRequestID(ctx context.Context, requestID uuid.UUID) (*entities.WithdrawalTransfer, error) {
	var transfer entities.WithdrawalTransfer
	query := `SELECT * FROM withdrawal_transfers WHERE withdrawal_request_id = $1`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &transfer, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("WITHDRAWAL_TRANSFER")
		}
		return nil, fmt.Errorf("failed to get withdrawal transfer: %w", err)
	}
	return &transfer, nil
}

// TransferByProviderID resolves a transfer from the provider's identifier
func (r *WithdrawalRepository) TransferByProviderID(ctx context.Context, providerName, providerTransferID string) (*entities.WithdrawalTransfer, error) {
	var transfer entities.WithdrawalTransfer
	query := `SELECT * FROM withdrawal_transfers WHERE provider_name = $1 AND provider_transfer_id = $2`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &transfer, query, providerName, providerTransferID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("WITHDRAWAL_TRANSFER")
		}
		return nil, fmt.Errorf("failed to get withdrawal transfer by provider id: %w", err)
	}
	return &transfer, nil
}

// UpdateTransfer writes the mutable fields of a transfer
func (r *WithdrawalRepository) UpdateTransfer(ctx context.Context, transfer *entities.WithdrawalTransfer) error {
	query := `
		UPDATE withdrawal_transfers
		SET provider_transfer_id = :provider_transfer_id,
			status = :status,
			updated_at = NOW()
		WHERE id = :id`

	result, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, transfer)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal transfer: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domainerrors.NotFoundError("WITHDRAWAL_TRANSFER")
	}
	return nil
}

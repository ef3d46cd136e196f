package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WithdrawalStatus represents the state of a withdrawal request
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "PENDING"
	WithdrawalStatusProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalStatusCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalStatusFailed     WithdrawalStatus = "FAILED"
	WithdrawalStatusCancelled  WithdrawalStatus = "CANCELLED"
)

// Validate checks if the withdrawal status is valid
func (s WithdrawalStatus) Validate() error {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusProcessing, WithdrawalStatusCompleted,
		WithdrawalStatusFailed, WithdrawalStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid withdrawal status: %s", s)
	}
}

// IsTerminal returns true once the request can no longer change state
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusFailed || s == WithdrawalStatusCancelled
}

// WithdrawalRequest is a member's request to move their equity off the card.
// The ledger leg and the provider leg commit in two phases: funds park in
// the pending-withdrawal account until the provider settles or fails.
type WithdrawalRequest struct {
	ID                  uuid.UUID        `json:"id" db:"id"`
	WalletID            uuid.UUID        `json:"wallet_id" db:"wallet_id"`
	CardID              uuid.UUID        `json:"card_id" db:"card_id"`
	UserID              uuid.UUID        `json:"user_id" db:"user_id"`
	AmountMinor         int64            `json:"amount_minor" db:"amount_minor"`
	Currency            string           `json:"currency" db:"currency"`
	Status              WithdrawalStatus `json:"status" db:"status"`
	FailureReason       *string          `json:"failure_reason,omitempty" db:"failure_reason"`
	LedgerTransactionID *string          `json:"ledger_transaction_id,omitempty" db:"ledger_transaction_id"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
}

// Validate validates the withdrawal request
func (r *WithdrawalRequest) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("withdrawal request ID is required")
	}

	if r.WalletID == uuid.Nil {
		return fmt.Errorf("wallet ID is required")
	}

	if r.CardID == uuid.Nil {
		return fmt.Errorf("card ID is required")
	}

	if r.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}

	if r.AmountMinor <= 0 {
		return fmt.Errorf("withdrawal amount must be positive")
	}

	if r.Currency == "" {
		return fmt.Errorf("currency is required")
	}

	return r.Status.Validate()
}

// TransferStatus represents the provider-side state of a payout transfer
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusFailed    TransferStatus = "FAILED"

	// TransferStatusReversed only arrives on provider callbacks; the
	// transfer itself is stored as FAILED.
	TransferStatusReversed TransferStatus = "REVERSED"
)

// Validate checks if the transfer status is valid
func (s TransferStatus) Validate() error {
	switch s {
	case TransferStatusPending, TransferStatusCompleted, TransferStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid transfer status: %s", s)
	}
}

// WithdrawalTransfer tracks the provider leg of a withdrawal request
type WithdrawalTransfer struct {
	ID                  uuid.UUID      `json:"id" db:"id"`
	WithdrawalRequestID uuid.UUID      `json:"withdrawal_request_id" db:"withdrawal_request_id"`
	ProviderName        string         `json:"provider_name" db:"provider_name"`
	ProviderTransferID  *string        `json:"provider_transfer_id,omitempty" db:"provider_transfer_id"`
	AmountMinor         int64          `json:"amount_minor" db:"amount_minor"`
	Status              TransferStatus `json:"status" db:"status"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}

// Validate validates the transfer
func (t *WithdrawalTransfer) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("transfer ID is required")
	}

	if t.WithdrawalRequestID == uuid.Nil {
		return fmt.Errorf("withdrawal request ID is required")
	}

	if t.ProviderName == "" {
		return fmt.Errorf("provider name is required")
	}

	if t.AmountMinor <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}

	return t.Status.Validate()
}

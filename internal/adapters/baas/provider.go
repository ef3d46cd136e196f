// Package baas defines the provider abstraction the service talks to for
// payouts and webhook ingestion, independent of any concrete BaaS vendor.
package baas

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
)

// ErrAccountCreationNotSupported is returned by providers that provision
// accounts out of band; callers link an existing provider account instead.
var ErrAccountCreationNotSupported = errors.New("provider does not support account creation")

// CustomerRequest provisions the provider-side customer backing a member.
// UserID doubles as the provider idempotency key.
type CustomerRequest struct {
	UserID    uuid.UUID
	FirstName string
	LastName  string
	Email     string
}

// CustomerResult is the provider's customer record
type CustomerResult struct {
	ProviderCustomerID string
	Status             string
}

// AccountRequest provisions the deposit account backing a wallet's card
// program. WalletID doubles as the provider idempotency key.
type AccountRequest struct {
	WalletID           uuid.UUID
	ProviderCustomerID string
	Currency           string
}

// AccountResult is the provider's account record
type AccountResult struct {
	ProviderAccountID string
	Status            string
}

// CardRequest issues a card on a provisioned account. CardID doubles as
// the provider idempotency key.
type CardRequest struct {
	CardID             uuid.UUID
	ProviderAccountID  string
	ProviderCustomerID string
	Form               string
}

// CardResult is the provider's card record
type CardResult struct {
	ProviderCardID string
	Status         string
}

// PayoutRequest asks the provider to move funds off the card program.
// TransferID doubles as the provider-side idempotency key.
type PayoutRequest struct {
	TransferID  uuid.UUID
	AmountMinor int64
	Currency    string
	Reference   string
}

// PayoutResult is the provider's acknowledgement of a payout
type PayoutResult struct {
	ProviderTransferID string
	Status             entities.TransferStatus
}

// Provider is one BaaS integration
type Provider interface {
	// Name identifies the provider in storage and routing
	Name() string

	// EnsureCustomer provisions the provider-side customer for a member.
	// Safe to re-send; the provider dedupes on UserID.
	EnsureCustomer(ctx context.Context, req CustomerRequest) (*CustomerResult, error)

	// EnsureAccount provisions the deposit account backing a card program.
	// Providers that only link pre-existing accounts return
	// ErrAccountCreationNotSupported.
	EnsureAccount(ctx context.Context, req AccountRequest) (*AccountResult, error)

	// CreateCard issues a card on a provisioned account
	CreateCard(ctx context.Context, req CardRequest) (*CardResult, error)

	// InitiatePayout starts a transfer. A nil error means the provider
	// accepted the transfer; settlement arrives later via webhook.
	InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)

	// VerifyWebhook authenticates a delivery before anything is parsed.
	// It returns ErrInvalidSignature-wrapped errors on failure.
	VerifyWebhook(header http.Header, body []byte) error

	// NormalizeWebhook converts a verified payload into the
	// provider-agnostic event form.
	NormalizeWebhook(body []byte) (*entities.NormalizedEvent, error)
}

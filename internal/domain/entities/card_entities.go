package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CardStatus represents the lifecycle state of a shared card
type CardStatus string

const (
	CardStatusPendingActivation CardStatus = "PENDING_ACTIVATION"
	CardStatusActive            CardStatus = "ACTIVE"
	CardStatusLocked            CardStatus = "LOCKED"
	CardStatusTerminated        CardStatus = "TERMINATED"
)

// Validate checks if the card status is valid
func (s CardStatus) Validate() error {
	switch s {
	case CardStatusPendingActivation, CardStatusActive, CardStatusLocked, CardStatusTerminated:
		return nil
	default:
		return fmt.Errorf("invalid card status: %s", s)
	}
}

// CanAuthorize returns true if authorizations may be approved in this state
func (s CardStatus) CanAuthorize() bool {
	return s == CardStatusActive
}

// Card represents a shared prepaid card issued through a BaaS provider
type Card struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	WalletID       uuid.UUID  `json:"wallet_id" db:"wallet_id"`
	HolderUserID   uuid.UUID  `json:"holder_user_id" db:"holder_user_id"`
	Status         CardStatus `json:"status" db:"status"`
	ProviderName   string     `json:"provider_name" db:"provider_name"`
	ExternalCardID string     `json:"external_card_id" db:"external_card_id"`
	Currency       string     `json:"currency" db:"currency"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Validate validates the card
func (c *Card) Validate() error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("card ID is required")
	}

	if c.WalletID == uuid.Nil {
		return fmt.Errorf("wallet ID is required")
	}

	if c.HolderUserID == uuid.Nil {
		return fmt.Errorf("holder user ID is required")
	}

	if err := c.Status.Validate(); err != nil {
		return err
	}

	if c.ProviderName == "" {
		return fmt.Errorf("provider name is required")
	}

	if c.ExternalCardID == "" {
		return fmt.Errorf("external card ID is required")
	}

	return nil
}

// HoldStatus represents the state of a card authorization hold
type HoldStatus string

const (
	HoldStatusPending  HoldStatus = "PENDING"
	HoldStatusCleared  HoldStatus = "CLEARED"
	HoldStatusReversed HoldStatus = "REVERSED"
	HoldStatusExpired  HoldStatus = "EXPIRED"
)

// Validate checks if the hold status is valid
func (s HoldStatus) Validate() error {
	switch s {
	case HoldStatusPending, HoldStatusCleared, HoldStatusReversed, HoldStatusExpired:
		return nil
	default:
		return fmt.Errorf("invalid hold status: %s", s)
	}
}

// IsTerminal returns true once the hold can no longer change state
func (s HoldStatus) IsTerminal() bool {
	return s == HoldStatusCleared || s == HoldStatusReversed || s == HoldStatusExpired
}

// CardAuthHold is an approved authorization that reserves pool funds until
// it clears, reverses, or expires.
type CardAuthHold struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	WalletID       uuid.UUID  `json:"wallet_id" db:"wallet_id"`
	CardID         uuid.UUID  `json:"card_id" db:"card_id"`
	ProviderName   string     `json:"provider_name" db:"provider_name"`
	ProviderAuthID string     `json:"provider_auth_id" db:"provider_auth_id"`
	AmountMinor    int64      `json:"amount_minor" db:"amount_minor"`
	Status         HoldStatus `json:"status" db:"status"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Validate validates the hold
func (h *CardAuthHold) Validate() error {
	if h.ID == uuid.Nil {
		return fmt.Errorf("hold ID is required")
	}

	if h.CardID == uuid.Nil {
		return fmt.Errorf("card ID is required")
	}

	if h.ProviderName == "" {
		return fmt.Errorf("provider name is required")
	}

	if h.ProviderAuthID == "" {
		return fmt.Errorf("provider auth ID is required")
	}

	if h.AmountMinor <= 0 {
		return fmt.Errorf("hold amount must be positive")
	}

	return h.Status.Validate()
}

// AuthDecision is the outcome of an authorization request
type AuthDecision string

const (
	AuthDecisionApprove AuthDecision = "APPROVE"
	AuthDecisionDecline AuthDecision = "DECLINE"
)

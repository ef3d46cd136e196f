package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the normalized category of a provider webhook event
type EventType string

const (
	EventTypeCardAuth      EventType = "CARD_AUTH"
	EventTypeCardClearing  EventType = "CARD_CLEARING"
	EventTypeCardReversal  EventType = "CARD_REVERSAL"
	EventTypeCardStatus    EventType = "CARD_STATUS"
	EventTypeDeposit       EventType = "DEPOSIT"
	EventTypePayoutStatus  EventType = "PAYOUT_STATUS"
	EventTypeAccountStatus EventType = "ACCOUNT_STATUS"
	EventTypeKYCStatus     EventType = "KYC_STATUS"
)

// Validate checks if the event type is valid
func (t EventType) Validate() error {
	switch t {
	case EventTypeCardAuth, EventTypeCardClearing, EventTypeCardReversal, EventTypeCardStatus,
		EventTypeDeposit, EventTypePayoutStatus, EventTypeAccountStatus, EventTypeKYCStatus:
		return nil
	default:
		return fmt.Errorf("invalid event type: %s", t)
	}
}

// NormalizedEvent is the provider-agnostic form of a webhook event,
// produced by the provider adapter before dispatch.
type NormalizedEvent struct {
	ProviderName          string          `json:"provider_name"`
	ProviderEventID       string          `json:"provider_event_id"`
	Type                  EventType       `json:"type"`
	ProviderCardID        string          `json:"provider_card_id,omitempty"`
	ProviderAuthID        string          `json:"provider_auth_id,omitempty"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	ProviderTransferID    string          `json:"provider_transfer_id,omitempty"`
	ProviderAccountID     string          `json:"provider_account_id,omitempty"`
	Reference             string          `json:"reference,omitempty"`
	AmountMinor           int64           `json:"amount_minor,omitempty"`
	Currency              string          `json:"currency,omitempty"`
	Status                string          `json:"status,omitempty"`
	OccurredAt            time.Time       `json:"occurred_at"`
	Raw                   json.RawMessage `json:"raw,omitempty"`
}

// Validate validates the normalized event
func (e *NormalizedEvent) Validate() error {
	if e.ProviderName == "" {
		return fmt.Errorf("provider name is required")
	}

	if e.ProviderEventID == "" {
		return fmt.Errorf("provider event ID is required")
	}

	return e.Type.Validate()
}

// BaasEvent is the audit journal record of a received webhook delivery.
// Rows are written before any handling and never mutated except for the
// processed timestamp.
type BaasEvent struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	ProviderName    string     `json:"provider_name" db:"provider_name"`
	ProviderEventID string     `json:"provider_event_id" db:"provider_event_id"`
	EventType       string     `json:"event_type" db:"event_type"`
	Payload         []byte     `json:"payload" db:"payload"`
	ReceivedAt      time.Time  `json:"received_at" db:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// ProcessedEvent is the dedup journal record. Insertion happens inside the
// same transaction as the handler's state changes, so a second delivery of
// the same (provider, event id) pair cannot apply effects twice.
type ProcessedEvent struct {
	ProviderName    string    `json:"provider_name" db:"provider_name"`
	ProviderEventID string    `json:"provider_event_id" db:"provider_event_id"`
	ProcessedAt     time.Time `json:"processed_at" db:"processed_at"`
}

package synctera

import (
	"encoding/json"
	"time"
)

// ProviderName identifies Synctera in storage and routing
const ProviderName = "SYNCTERA"

// webhookEnvelope is the outer shape of a Synctera webhook delivery
type webhookEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	EventTime time.Time       `json:"event_time"`
	Data      json.RawMessage `json:"data"`
}

// authorizationData is the payload of card authorization/clearing/reversal events
type authorizationData struct {
	CardID        string `json:"card_id"`
	AuthID        string `json:"authorization_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"` // minor units
	Currency      string `json:"currency"`
	Status        string `json:"status"`
}

// cardStatusData is the payload of card lifecycle events
type cardStatusData struct {
	CardID     string `json:"card_id"`
	CardStatus string `json:"card_status"`
}

// depositData is the payload of incoming ACH/wire credits
type depositData struct {
	AccountID     string `json:"account_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Memo          string `json:"memo"`
}

// payoutData is the payload of outgoing transfer status events
type payoutData struct {
	TransferID string `json:"transfer_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
}

// accountStatusData is the payload of account/KYC status events
type accountStatusData struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

// customerRequest is the body of a customer creation
type customerRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
}

// customerResponse is the provider's customer record
type customerResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// accountRequest is the body of an account creation from a template
type accountRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	TemplateID     string `json:"account_template_id"`
	CustomerID     string `json:"customer_id"`
	Currency       string `json:"currency"`
}

// accountResponse is the provider's account record
type accountResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// cardIssueRequest is the body of a card issuance
type cardIssueRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	AccountID      string `json:"account_id"`
	CustomerID     string `json:"customer_id"`
	ProductID      string `json:"card_product_id"`
	Form           string `json:"form,omitempty"`
}

// cardIssueResponse is the provider's card record
type cardIssueResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// payoutRequest is the body of an outgoing transfer creation
type payoutRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Description    string `json:"description,omitempty"`
}

// payoutResponse is the provider's transfer acknowledgement
type payoutResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

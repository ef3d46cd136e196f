// Package synctera adapts the Synctera BaaS API to the provider interface.
package synctera

import (
	"context"
	"fmt"
	"net/http"

	"github.com/poolcard/poolcard_service/internal/adapters/baas"
	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/infrastructure/config"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

// Adapter implements baas.Provider for Synctera
type Adapter struct {
	client        *Client
	cfg           config.SyncteraConfig
	webhookSecret []byte
	log           *logger.Logger
}

var _ baas.Provider = (*Adapter)(nil)

// NewAdapter creates the Synctera adapter
func NewAdapter(cfg config.SyncteraConfig, log *logger.Logger) *Adapter {
	return &Adapter{
		client:        NewClient(cfg, log),
		cfg:           cfg,
		webhookSecret: []byte(cfg.WebhookSecret),
		log:           log,
	}
}

// Name implements baas.Provider
func (a *Adapter) Name() string { return ProviderName }

// EnsureCustomer creates the Synctera customer for a member. The user id
// is the idempotency key, so retries converge on one customer.
func (a *Adapter) EnsureCustomer(ctx context.Context, req baas.CustomerRequest) (*baas.CustomerResult, error) {
	var resp customerResponse
	err := a.client.doRequest(ctx, http.MethodPost, "/customers", customerRequest{
		IdempotencyKey: req.UserID.String(),
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &baas.CustomerResult{
		ProviderCustomerID: resp.ID,
		Status:             resp.Status,
	}, nil
}

// EnsureAccount opens the deposit account from the configured template.
// Without a template the environment links pre-existing accounts instead.
func (a *Adapter) EnsureAccount(ctx context.Context, req baas.AccountRequest) (*baas.AccountResult, error) {
	if a.cfg.AccountTemplateID == "" {
		return nil, baas.ErrAccountCreationNotSupported
	}

	currency := req.Currency
	if currency == "" {
		currency = a.cfg.AccountCurrency
	}

	var resp accountResponse
	err := a.client.doRequest(ctx, http.MethodPost, "/accounts", accountRequest{
		IdempotencyKey: req.WalletID.String(),
		TemplateID:     a.cfg.AccountTemplateID,
		CustomerID:     req.ProviderCustomerID,
		Currency:       currency,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &baas.AccountResult{
		ProviderAccountID: resp.ID,
		Status:            resp.Status,
	}, nil
}

// CreateCard issues a card from the configured card product
func (a *Adapter) CreateCard(ctx context.Context, req baas.CardRequest) (*baas.CardResult, error) {
	var resp cardIssueResponse
	err := a.client.doRequest(ctx, http.MethodPost, "/cards", cardIssueRequest{
		IdempotencyKey: req.CardID.String(),
		AccountID:      req.ProviderAccountID,
		CustomerID:     req.ProviderCustomerID,
		ProductID:      a.cfg.CardProductID,
		Form:           req.Form,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &baas.CardResult{
		ProviderCardID: resp.ID,
		Status:         resp.Status,
	}, nil
}

// InitiatePayout creates an outgoing transfer. The caller's transfer id is
// passed as the idempotency key, so re-sending after a timeout cannot
// duplicate the payout.
func (a *Adapter) InitiatePayout(ctx context.Context, req baas.PayoutRequest) (*baas.PayoutResult, error) {
	var resp payoutResponse
	err := a.client.doRequest(ctx, http.MethodPost, "/transfers", payoutRequest{
		IdempotencyKey: req.TransferID.String(),
		Amount:         req.AmountMinor,
		Currency:       req.Currency,
		Description:    req.Reference,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &baas.PayoutResult{
		ProviderTransferID: resp.ID,
		Status:             mapTransferStatus(resp.Status),
	}, nil
}

func mapTransferStatus(status string) entities.TransferStatus {
	switch status {
	case "COMPLETED", "SETTLED", "SUCCEEDED":
		return entities.TransferStatusCompleted
	case "FAILED", "RETURNED", "REVERSED", "CANCELED", "CANCELLED", "DECLINED":
		return entities.TransferStatusFailed
	default:
		return entities.TransferStatusPending
	}
}

// NormalizeWebhook converts a verified Synctera delivery into the
// provider-agnostic event form. Unknown event types are rejected so the
// pipeline can count them as unroutable.
func (a *Adapter) NormalizeWebhook(body []byte) (*entities.NormalizedEvent, error) {
	envelope, err := parseEnvelope(body)
	if err != nil {
		return nil, err
	}

	event := &entities.NormalizedEvent{
		ProviderName:    ProviderName,
		ProviderEventID: envelope.ID,
		OccurredAt:      envelope.EventTime,
		Raw:             body,
	}

	switch envelope.Type {
	case "card.authorization.created":
		data, err := decode[authorizationData](envelope.Data)
		if err != nil {
			return nil, err
		}
		event.Type = entities.EventTypeCardAuth
		event.ProviderCardID = data.CardID
		event.ProviderAuthID = data.AuthID
		event.AmountMinor = data.Amount
		event.Currency = data.Currency

	case "card.transaction.posted":
		data, err := decode[authorizationData](envelope.Data)
		if err != nil {
			return nil, err
		}
		event.Type = entities.EventTypeCardClearing
		event.ProviderCardID = data.CardID
		event.ProviderAuthID = data.AuthID
		event.ProviderTransactionID = data.TransactionID
		event.AmountMinor = data.Amount
		event.Currency = data.Currency

	case "card.authorization.reversed", "card.authorization.expired":
		data, err := decode[authorizationData](envelope.Data)
		if err != nil {
			return nil, err
		}
		event.Type = entities.EventTypeCardReversal
		event.ProviderCardID = data.CardID
		event.ProviderAuthID = data.AuthID
		event.AmountMinor = data.Amount

	case "card.status.updated":
		data, err := decode[cardStatusData](envelope.Data)
		if err != nil {
			return nil, err
		}
		event.Type = entities.EventTypeCardStatus
		event.ProviderCardID = data.CardID
		event.Status = data.CardStatus

	case "transaction.credit.posted":
		data, err := decode[depositData](envelope.Data)
		if err != nil {
			return nil, err
		}
		event.Type = entities.EventTypeDeposit
		event.ProviderAccountID = data.AccountID
		event.ProviderTransactionID = data.TransactionID
		event.AmountMinor = data.Amount
		event.Currency = data.Currency
		event.Reference = data.Memo

	case "transfer.status.updated":
		data, err := decode[payoutData](envelope.Data)
		if err != nil {
			return nil, err
		}
		event.Type = entities.EventTypePayoutStatus
		event.ProviderTransferID = data.TransferID
		event.AmountMinor = data.Amount
		event.Status = string(mapTransferStatus(data.Status))

	case "account.status.updated":
		data, err := decode[accountStatusData](envelope.Data)
		if err != nil {
			return nil, err
		}
		event.Type = entities.EventTypeAccountStatus
		event.ProviderAccountID = data.AccountID
		event.Status = data.Status

	case "customer.kyc.updated":
		data, err := decode[accountStatusData](envelope.Data)
		if err != nil {
			return nil, err
		}
		event.Type = entities.EventTypeKYCStatus
		event.ProviderAccountID = data.AccountID
		event.Status = data.Status

	default:
		return nil, domainerrors.ValidationError("type", fmt.Sprintf("unsupported event type: %s", envelope.Type))
	}

	if err := event.Validate(); err != nil {
		return nil, domainerrors.ValidationError("payload", err.Error())
	}
	return event, nil
}

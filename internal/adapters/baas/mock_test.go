package baas

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
)

func TestMockProvisioningIdempotent(t *testing.T) {
	provider := NewMockProvider("secret")
	userID := uuid.New()
	walletID := uuid.New()
	cardID := uuid.New()

	customer, err := provider.EnsureCustomer(context.Background(), CustomerRequest{
		UserID:    userID,
		FirstName: "Ada",
		LastName:  "Okafor",
		Email:     "ada@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "mock_customer_"+userID.String(), customer.ProviderCustomerID)

	again, err := provider.EnsureCustomer(context.Background(), CustomerRequest{
		UserID: userID,
		Email:  "ada@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, customer.ProviderCustomerID, again.ProviderCustomerID)

	account, err := provider.EnsureAccount(context.Background(), AccountRequest{
		WalletID:           walletID,
		ProviderCustomerID: customer.ProviderCustomerID,
		Currency:           "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "mock_account_"+walletID.String(), account.ProviderAccountID)

	card, err := provider.CreateCard(context.Background(), CardRequest{
		CardID:             cardID,
		ProviderAccountID:  account.ProviderAccountID,
		ProviderCustomerID: customer.ProviderCustomerID,
	})
	require.NoError(t, err)
	assert.Equal(t, "mock_card_"+cardID.String(), card.ProviderCardID)

	dup, err := provider.CreateCard(context.Background(), CardRequest{
		CardID:            cardID,
		ProviderAccountID: account.ProviderAccountID,
	})
	require.NoError(t, err)
	assert.Equal(t, card.ProviderCardID, dup.ProviderCardID)
}

func TestMockProvisioningRejectsIncompleteRequests(t *testing.T) {
	provider := NewMockProvider("secret")

	_, err := provider.EnsureCustomer(context.Background(), CustomerRequest{UserID: uuid.New()})
	assert.ErrorIs(t, err, domainerrors.ErrProviderRejected)

	_, err = provider.EnsureAccount(context.Background(), AccountRequest{WalletID: uuid.New()})
	assert.ErrorIs(t, err, domainerrors.ErrProviderRejected)

	_, err = provider.CreateCard(context.Background(), CardRequest{CardID: uuid.New()})
	assert.ErrorIs(t, err, domainerrors.ErrProviderRejected)
}

func TestMockInitiatePayoutIdempotent(t *testing.T) {
	provider := NewMockProvider("secret")
	transferID := uuid.New()

	first, err := provider.InitiatePayout(context.Background(), PayoutRequest{
		TransferID:  transferID,
		AmountMinor: 1000,
		Currency:    "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "mock_transfer_"+transferID.String(), first.ProviderTransferID)
	assert.Equal(t, entities.TransferStatusPending, first.Status)

	second, err := provider.InitiatePayout(context.Background(), PayoutRequest{
		TransferID:  transferID,
		AmountMinor: 1000,
		Currency:    "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ProviderTransferID, second.ProviderTransferID)
}

func TestMockInitiatePayoutRejectsNonPositiveAmount(t *testing.T) {
	provider := NewMockProvider("secret")

	_, err := provider.InitiatePayout(context.Background(), PayoutRequest{
		TransferID:  uuid.New(),
		AmountMinor: 0,
	})
	assert.ErrorIs(t, err, domainerrors.ErrProviderRejected)
}

func TestMockVerifyWebhook(t *testing.T) {
	provider := NewMockProvider("secret")
	body := []byte(`{"provider_event_id":"evt_1"}`)

	header := http.Header{}
	header.Set(MockSignatureHeader, provider.Sign(body))
	assert.NoError(t, provider.VerifyWebhook(header, body))

	header.Set(MockSignatureHeader, "bogus")
	assert.ErrorIs(t, provider.VerifyWebhook(header, body), domainerrors.ErrInvalidSignature)

	assert.ErrorIs(t, provider.VerifyWebhook(http.Header{}, body), domainerrors.ErrInvalidSignature)
}

func TestMockNormalizeWebhook(t *testing.T) {
	provider := NewMockProvider("secret")

	body, err := json.Marshal(entities.NormalizedEvent{
		ProviderEventID:   "evt_1",
		Type:              entities.EventTypeDeposit,
		ProviderAccountID: "acct_1",
		AmountMinor:       500,
		Currency:          "USD",
		OccurredAt:        time.Now().UTC(),
	})
	require.NoError(t, err)

	event, err := provider.NormalizeWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, MockProviderName, event.ProviderName)
	assert.Equal(t, entities.EventTypeDeposit, event.Type)
	assert.Equal(t, body, []byte(event.Raw))
}

func TestMockNormalizeWebhookRejectsInvalidEvent(t *testing.T) {
	provider := NewMockProvider("secret")

	_, err := provider.NormalizeWebhook([]byte(`not json`))
	assert.True(t, domainerrors.IsInvalidInput(err))

	_, err = provider.NormalizeWebhook([]byte(`{"type":"DEPOSIT"}`))
	assert.True(t, domainerrors.IsInvalidInput(err), "missing event id must fail validation")
}

package baas

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
)

// MockProviderName identifies the in-process provider
const MockProviderName = "MOCK"

// MockSignatureHeader carries the hex HMAC-SHA256 of the raw body
const MockSignatureHeader = "X-Mock-Signature"

// MockProvider is an in-process Provider for development and tests. Its
// webhook payloads are already in normalized form.
type MockProvider struct {
	secret []byte

	mu        sync.Mutex
	customers map[uuid.UUID]*CustomerResult
	accounts  map[uuid.UUID]*AccountResult
	cards     map[uuid.UUID]*CardResult
	payouts   map[uuid.UUID]*PayoutResult
}

// NewMockProvider creates the mock provider with the given webhook secret
func NewMockProvider(secret string) *MockProvider {
	return &MockProvider{
		secret:    []byte(secret),
		customers: make(map[uuid.UUID]*CustomerResult),
		accounts:  make(map[uuid.UUID]*AccountResult),
		cards:     make(map[uuid.UUID]*CardResult),
		payouts:   make(map[uuid.UUID]*PayoutResult),
	}
}

// Name implements Provider
func (m *MockProvider) Name() string { return MockProviderName }

// EnsureCustomer registers the member and is idempotent per UserID
func (m *MockProvider) EnsureCustomer(_ context.Context, req CustomerRequest) (*CustomerResult, error) {
	if req.Email == "" {
		return nil, domainerrors.ProviderRejectedError(MockProviderName, "email is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.customers[req.UserID]; ok {
		return existing, nil
	}

	result := &CustomerResult{
		ProviderCustomerID: fmt.Sprintf("mock_customer_%s", req.UserID),
		Status:             "ACTIVE",
	}
	m.customers[req.UserID] = result
	return result, nil
}

// EnsureAccount opens the backing account and is idempotent per WalletID
func (m *MockProvider) EnsureAccount(_ context.Context, req AccountRequest) (*AccountResult, error) {
	if req.ProviderCustomerID == "" {
		return nil, domainerrors.ProviderRejectedError(MockProviderName, "customer is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.accounts[req.WalletID]; ok {
		return existing, nil
	}

	result := &AccountResult{
		ProviderAccountID: fmt.Sprintf("mock_account_%s", req.WalletID),
		Status:            "ACTIVE",
	}
	m.accounts[req.WalletID] = result
	return result, nil
}

// CreateCard issues a card and is idempotent per CardID
func (m *MockProvider) CreateCard(_ context.Context, req CardRequest) (*CardResult, error) {
	if req.ProviderAccountID == "" {
		return nil, domainerrors.ProviderRejectedError(MockProviderName, "account is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.cards[req.CardID]; ok {
		return existing, nil
	}

	result := &CardResult{
		ProviderCardID: fmt.Sprintf("mock_card_%s", req.CardID),
		Status:         "ACTIVE",
	}
	m.cards[req.CardID] = result
	return result, nil
}

// InitiatePayout accepts every transfer and is idempotent per TransferID
func (m *MockProvider) InitiatePayout(_ context.Context, req PayoutRequest) (*PayoutResult, error) {
	if req.AmountMinor <= 0 {
		return nil, domainerrors.ProviderRejectedError(MockProviderName, "amount must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.payouts[req.TransferID]; ok {
		return existing, nil
	}

	result := &PayoutResult{
		ProviderTransferID: fmt.Sprintf("mock_transfer_%s", req.TransferID),
		Status:             entities.TransferStatusPending,
	}
	m.payouts[req.TransferID] = result
	return result, nil
}

// VerifyWebhook checks the HMAC header against the raw body
func (m *MockProvider) VerifyWebhook(header http.Header, body []byte) error {
	sig := header.Get(MockSignatureHeader)
	if sig == "" {
		return domainerrors.NewDomainError(domainerrors.ErrInvalidSignature, "INVALID_SIGNATURE", "missing signature header")
	}

	mac := hmac.New(sha256.New, m.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return domainerrors.NewDomainError(domainerrors.ErrInvalidSignature, "INVALID_SIGNATURE", "signature mismatch")
	}
	return nil
}

// NormalizeWebhook decodes the already-normalized mock payload
func (m *MockProvider) NormalizeWebhook(body []byte) (*entities.NormalizedEvent, error) {
	var event entities.NormalizedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, domainerrors.ValidationError("payload", fmt.Sprintf("malformed mock event: %v", err))
	}

	event.ProviderName = MockProviderName
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.Raw = body

	if err := event.Validate(); err != nil {
		return nil, domainerrors.ValidationError("payload", err.Error())
	}
	return &event, nil
}

// Sign computes the webhook signature for a body. Test helper.
func (m *MockProvider) Sign(body []byte) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

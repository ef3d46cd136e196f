package withdrawal

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolcard/poolcard_service/internal/adapters/baas"
	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/domain/services/ledger"
	"github.com/poolcard/poolcard_service/internal/testsupport"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

// refusingProvider rejects every payout
type refusingProvider struct{}

func (refusingProvider) Name() string { return "MOCK" }

func (refusingProvider) EnsureCustomer(context.Context, baas.CustomerRequest) (*baas.CustomerResult, error) {
	return nil, domainerrors.ProviderRejectedError("MOCK", "account closed")
}

func (refusingProvider) EnsureAccount(context.Context, baas.AccountRequest) (*baas.AccountResult, error) {
	return nil, baas.ErrAccountCreationNotSupported
}

func (refusingProvider) CreateCard(context.Context, baas.CardRequest) (*baas.CardResult, error) {
	return nil, domainerrors.ProviderRejectedError("MOCK", "account closed")
}

func (refusingProvider) InitiatePayout(context.Context, baas.PayoutRequest) (*baas.PayoutResult, error) {
	return nil, domainerrors.ProviderRejectedError("MOCK", "account closed")
}

func (refusingProvider) VerifyWebhook(http.Header, []byte) error { return nil }

func (refusingProvider) NormalizeWebhook([]byte) (*entities.NormalizedEvent, error) { return nil, nil }

type fixture struct {
	store   *testsupport.MemStore
	ledger  *ledger.Service
	service *Service
	wallet  entities.Wallet
	card    entities.Card
	member  uuid.UUID
}

func newFixture(t *testing.T, provider baas.Provider) *fixture {
	t.Helper()

	store := testsupport.NewMemStore()
	log := logger.NewNop()
	ledgerSvc := ledger.NewService(store, ledger.NewEngine(store, log), store, store, log)
	service := NewService(store, ledgerSvc, store, provider, log)

	member := uuid.New()
	now := time.Now().UTC()

	wallet := entities.Wallet{
		ID:          uuid.New(),
		Name:        "vacation fund",
		AdminUserID: member,
		SplitPolicy: entities.SplitPolicyPayerOnly,
		Currency:    "USD",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	store.SeedWallet(wallet)
	store.SeedMember(entities.WalletMember{WalletID: wallet.ID, UserID: member, Role: entities.WalletRoleAdmin, JoinedAt: now})

	card := entities.Card{
		ID:             uuid.New(),
		WalletID:       wallet.ID,
		HolderUserID:   member,
		Status:         entities.CardStatusActive,
		ProviderName:   "MOCK",
		ExternalCardID: "ext_card_1",
		Currency:       "USD",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	store.SeedCard(card)

	require.NoError(t, ledgerSvc.InitializeCardAccounts(context.Background(), &card, []uuid.UUID{member}))

	_, err := ledgerSvc.PostCardDeposit(context.Background(), ledger.DepositParams{
		CardID:        card.ID,
		UserID:        member,
		AmountMinor:   10000,
		TransactionID: "dep_seed",
	})
	require.NoError(t, err)

	return &fixture{store: store, ledger: ledgerSvc, service: service, wallet: wallet, card: card, member: member}
}

func (f *fixture) params(amount int64) RequestParams {
	return RequestParams{
		WalletID:    f.wallet.ID,
		CardID:      f.card.ID,
		UserID:      f.member,
		AmountMinor: amount,
		Currency:    "USD",
	}
}

func payoutEvent(transfer *entities.WithdrawalTransfer, status entities.TransferStatus) *entities.NormalizedEvent {
	return &entities.NormalizedEvent{
		ProviderName:       transfer.ProviderName,
		ProviderEventID:    "evt_payout_" + transfer.ID.String(),
		Type:               entities.EventTypePayoutStatus,
		ProviderTransferID: *transfer.ProviderTransferID,
		AmountMinor:        transfer.AmountMinor,
		Currency:           "USD",
		Status:             string(status),
		OccurredAt:         time.Now().UTC(),
	}
}

func TestRequestParksFundsAndHandsToProvider(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	request, transfer, err := f.service.Request(context.Background(), f.params(4000))
	require.NoError(t, err)

	assert.Equal(t, entities.WithdrawalStatusProcessing, request.Status)
	require.NotNil(t, transfer.ProviderTransferID)
	assert.Equal(t, "mock_transfer_"+transfer.ID.String(), *transfer.ProviderTransferID)

	equity, err := f.ledger.MemberEquityBalance(context.Background(), f.card.ID, f.member)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), equity)

	// pool untouched until the provider settles
	pool, err := f.ledger.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), pool)

	recon, err := f.ledger.ReconcileCard(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), recon.PendingWithdrawals)
	assert.True(t, recon.Consistent)
}

func TestRequestInsufficientEquityLeavesNoRequestRow(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	_, _, err := f.service.Request(context.Background(), f.params(20000))
	assert.ErrorIs(t, err, domainerrors.ErrInsufficientEquity)

	requests, listErr := f.service.List(context.Background(), f.wallet.ID, nil, 10, 0)
	require.NoError(t, listErr)
	assert.Empty(t, requests)
}

func TestRequestRejectsCardOutsideWallet(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	params := f.params(1000)
	params.WalletID = uuid.New()
	_, _, err := f.service.Request(context.Background(), params)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestRequestProviderRefusalReversesParkedFunds(t *testing.T) {
	f := newFixture(t, refusingProvider{})

	request, transfer, err := f.service.Request(context.Background(), f.params(4000))
	require.NoError(t, err)

	assert.Equal(t, entities.WithdrawalStatusFailed, request.Status)
	require.NotNil(t, request.FailureReason)
	assert.Equal(t, entities.TransferStatusFailed, transfer.Status)

	equity, err := f.ledger.MemberEquityBalance(context.Background(), f.card.ID, f.member)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), equity, "parked funds return on refusal")

	recon, err := f.ledger.ReconcileCard(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Zero(t, recon.PendingWithdrawals)
}

func TestHandlePayoutStatusCompleted(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	request, transfer, err := f.service.Request(context.Background(), f.params(4000))
	require.NoError(t, err)

	require.NoError(t, f.service.HandlePayoutStatus(context.Background(),
		payoutEvent(transfer, entities.TransferStatusCompleted)))

	settled, _, err := f.service.Get(context.Background(), f.wallet.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusCompleted, settled.Status)
	require.NotNil(t, settled.CompletedAt)

	pool, err := f.ledger.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), pool)

	recon, err := f.ledger.ReconcileCard(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Zero(t, recon.PendingWithdrawals)
	assert.True(t, recon.Consistent)
}

func TestHandlePayoutStatusFailed(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	request, transfer, err := f.service.Request(context.Background(), f.params(4000))
	require.NoError(t, err)

	require.NoError(t, f.service.HandlePayoutStatus(context.Background(),
		payoutEvent(transfer, entities.TransferStatusFailed)))

	settled, _, err := f.service.Get(context.Background(), f.wallet.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusFailed, settled.Status)
	require.NotNil(t, settled.FailureReason)

	equity, err := f.ledger.MemberEquityBalance(context.Background(), f.card.ID, f.member)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), equity)

	pool, err := f.ledger.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), pool)
}

func TestHandlePayoutStatusReversedReturnsParkedFunds(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	request, transfer, err := f.service.Request(context.Background(), f.params(4000))
	require.NoError(t, err)
	require.Equal(t, entities.WithdrawalStatusProcessing, request.Status)

	require.NoError(t, f.service.HandlePayoutStatus(context.Background(),
		payoutEvent(transfer, entities.TransferStatusReversed)))

	settled, settledTransfer, err := f.service.Get(context.Background(), f.wallet.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusFailed, settled.Status)
	require.NotNil(t, settled.FailureReason)
	assert.Equal(t, entities.TransferStatusFailed, settledTransfer.Status)

	equity, err := f.ledger.MemberEquityBalance(context.Background(), f.card.ID, f.member)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), equity, "parked funds return on reversal")

	recon, err := f.ledger.ReconcileCard(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Zero(t, recon.PendingWithdrawals)
	assert.True(t, recon.Consistent)
}

func TestHandlePayoutStatusUnknownTransferAcks(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	event := &entities.NormalizedEvent{
		ProviderName:       "MOCK",
		ProviderEventID:    "evt_ghost",
		Type:               entities.EventTypePayoutStatus,
		ProviderTransferID: "mock_transfer_ghost",
		Status:             string(entities.TransferStatusCompleted),
		OccurredAt:         time.Now().UTC(),
	}
	assert.NoError(t, f.service.HandlePayoutStatus(context.Background(), event))
}

func TestHandlePayoutStatusTerminalRequestIgnoresCallbacks(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	_, transfer, err := f.service.Request(context.Background(), f.params(4000))
	require.NoError(t, err)

	require.NoError(t, f.service.HandlePayoutStatus(context.Background(),
		payoutEvent(transfer, entities.TransferStatusCompleted)))

	// a late FAILED callback must not reverse settled funds
	require.NoError(t, f.service.HandlePayoutStatus(context.Background(),
		payoutEvent(transfer, entities.TransferStatusFailed)))

	pool, err := f.ledger.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), pool)
}

func TestHandlePayoutStatusNonTerminalStatusIgnored(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	request, transfer, err := f.service.Request(context.Background(), f.params(4000))
	require.NoError(t, err)

	require.NoError(t, f.service.HandlePayoutStatus(context.Background(),
		payoutEvent(transfer, entities.TransferStatusPending)))

	current, _, err := f.service.Get(context.Background(), f.wallet.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusProcessing, current.Status)
}

func TestCancelProcessingWithdrawalRefused(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	request, _, err := f.service.Request(context.Background(), f.params(4000))
	require.NoError(t, err)
	require.Equal(t, entities.WithdrawalStatusProcessing, request.Status)

	_, err = f.service.Cancel(context.Background(), f.wallet.ID, request.ID, f.member)
	assert.ErrorIs(t, err, domainerrors.ErrCannotCancelWithdrawal)
}

func TestCancelPendingWithdrawalReverses(t *testing.T) {
	f := newFixture(t, refusingProvider{})

	// a refused request ends FAILED; fabricate a PENDING one directly
	now := time.Now().UTC()
	request := &entities.WithdrawalRequest{
		ID:          uuid.New(),
		WalletID:    f.wallet.ID,
		CardID:      f.card.ID,
		UserID:      f.member,
		AmountMinor: 2000,
		Currency:    "USD",
		Status:      entities.WithdrawalStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := f.ledger.PostPendingCardWithdrawal(context.Background(), ledger.WithdrawalParams{
		CardID:        f.card.ID,
		UserID:        f.member,
		AmountMinor:   2000,
		TransactionID: "withdrawal_pending_" + request.ID.String(),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.CreateRequest(context.Background(), request))

	cancelled, err := f.service.Cancel(context.Background(), f.wallet.ID, request.ID, f.member)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusCancelled, cancelled.Status)

	equity, err := f.ledger.MemberEquityBalance(context.Background(), f.card.ID, f.member)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), equity)
}

func TestCancelByNonRequesterForbidden(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	request, _, err := f.service.Request(context.Background(), f.params(1000))
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), f.wallet.ID, request.ID, uuid.New())
	assert.True(t, domainerrors.IsForbidden(err))
}

func TestCancelTerminalWithdrawalConflicts(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	request, transfer, err := f.service.Request(context.Background(), f.params(1000))
	require.NoError(t, err)
	require.NoError(t, f.service.HandlePayoutStatus(context.Background(),
		payoutEvent(transfer, entities.TransferStatusCompleted)))

	_, err = f.service.Cancel(context.Background(), f.wallet.ID, request.ID, f.member)
	assert.True(t, domainerrors.IsConflict(err))
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t, baas.NewMockProvider("secret"))

	first, _, err := f.service.Request(context.Background(), f.params(1000))
	require.NoError(t, err)
	_, transfer, err := f.service.Request(context.Background(), f.params(2000))
	require.NoError(t, err)
	require.NoError(t, f.service.HandlePayoutStatus(context.Background(),
		payoutEvent(transfer, entities.TransferStatusCompleted)))

	status := entities.WithdrawalStatusProcessing
	requests, err := f.service.List(context.Background(), f.wallet.ID, &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, first.ID, requests[0].ID)
}

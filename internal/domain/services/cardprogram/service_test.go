package cardprogram

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	"github.com/poolcard/poolcard_service/internal/domain/services/ledger"
	"github.com/poolcard/poolcard_service/internal/domain/services/splitting"
	"github.com/poolcard/poolcard_service/internal/testsupport"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

type fixture struct {
	store   *testsupport.MemStore
	ledger  *ledger.Service
	service *Service
	wallet  entities.Wallet
	card    entities.Card
	admin   uuid.UUID
	member  uuid.UUID
}

func newFixture(t *testing.T, policy entities.SplitPolicy) *fixture {
	t.Helper()

	store := testsupport.NewMemStore()
	log := logger.NewNop()
	ledgerSvc := ledger.NewService(store, ledger.NewEngine(store, log), store, store, log)
	splitter := splitting.NewService(store, log)
	service := NewService(store, store, ledgerSvc, splitter, store, log)

	admin := uuid.New()
	member := uuid.New()
	now := time.Now().UTC()

	wallet := entities.Wallet{
		ID:          uuid.New(),
		Name:        "household",
		AdminUserID: admin,
		SplitPolicy: policy,
		Currency:    "USD",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	store.SeedWallet(wallet)
	store.SeedMember(entities.WalletMember{WalletID: wallet.ID, UserID: admin, Role: entities.WalletRoleAdmin, JoinedAt: now})
	store.SeedMember(entities.WalletMember{WalletID: wallet.ID, UserID: member, Role: entities.WalletRoleMember, JoinedAt: now.Add(time.Second)})

	card := entities.Card{
		ID:             uuid.New(),
		WalletID:       wallet.ID,
		HolderUserID:   admin,
		Status:         entities.CardStatusActive,
		ProviderName:   "MOCK",
		ExternalCardID: "ext_card_1",
		Currency:       "USD",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	store.SeedCard(card)

	require.NoError(t, ledgerSvc.InitializeCardAccounts(context.Background(), &card, []uuid.UUID{admin, member}))

	return &fixture{store: store, ledger: ledgerSvc, service: service, wallet: wallet, card: card, admin: admin, member: member}
}

func (f *fixture) deposit(t *testing.T, userID uuid.UUID, amount int64, txID string) {
	t.Helper()
	_, err := f.ledger.PostCardDeposit(context.Background(), ledger.DepositParams{
		CardID:        f.card.ID,
		UserID:        userID,
		AmountMinor:   amount,
		TransactionID: txID,
	})
	require.NoError(t, err)
}

func authEvent(f *fixture, authID string, amount int64) *entities.NormalizedEvent {
	return &entities.NormalizedEvent{
		ProviderName:    f.card.ProviderName,
		ProviderEventID: "evt_" + authID,
		Type:            entities.EventTypeCardAuth,
		ProviderCardID:  f.card.ExternalCardID,
		ProviderAuthID:  authID,
		AmountMinor:     amount,
		Currency:        "USD",
		OccurredAt:      time.Now().UTC(),
	}
}

func TestHandleAuthApprovesAndHolds(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)
	f.deposit(t, f.admin, 5000, "dep_1")

	decision, err := f.service.HandleAuth(context.Background(), authEvent(f, "auth_1", 3000))
	require.NoError(t, err)
	assert.Equal(t, entities.AuthDecisionApprove, decision)

	hold, err := f.store.HoldByProviderAuthID(context.Background(), f.card.ProviderName, "auth_1")
	require.NoError(t, err)
	assert.Equal(t, entities.HoldStatusPending, hold.Status)
	assert.Equal(t, int64(3000), hold.AmountMinor)

	available, err := f.service.AvailableToSpend(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), available)
}

func TestHandleAuthDeclinesWhenHoldsBlockFunds(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)
	f.deposit(t, f.admin, 5000, "dep_1")

	decision, err := f.service.HandleAuth(context.Background(), authEvent(f, "auth_1", 3000))
	require.NoError(t, err)
	require.Equal(t, entities.AuthDecisionApprove, decision)

	// 2000 available, 2500 requested
	decision, err = f.service.HandleAuth(context.Background(), authEvent(f, "auth_2", 2500))
	require.NoError(t, err)
	assert.Equal(t, entities.AuthDecisionDecline, decision)
}

func TestHandleAuthDeclinesInactiveCard(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)
	f.deposit(t, f.admin, 5000, "dep_1")
	require.NoError(t, f.store.UpdateCardStatus(context.Background(), f.card.ID, entities.CardStatusLocked))

	decision, err := f.service.HandleAuth(context.Background(), authEvent(f, "auth_1", 100))
	require.NoError(t, err)
	assert.Equal(t, entities.AuthDecisionDecline, decision)
}

func TestHandleAuthDeclinesUnknownCard(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)

	event := authEvent(f, "auth_1", 100)
	event.ProviderCardID = "no_such_card"

	decision, err := f.service.HandleAuth(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, entities.AuthDecisionDecline, decision)
}

func TestHandleAuthRedeliveryApprovesWithoutSecondHold(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)
	f.deposit(t, f.admin, 5000, "dep_1")

	_, err := f.service.HandleAuth(context.Background(), authEvent(f, "auth_1", 3000))
	require.NoError(t, err)

	decision, err := f.service.HandleAuth(context.Background(), authEvent(f, "auth_1", 3000))
	require.NoError(t, err)
	assert.Equal(t, entities.AuthDecisionApprove, decision)

	held, err := f.store.SumPendingHolds(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), held, "redelivery must not stack holds")
}

func TestHandleClearingCapturesAndReleasesHold(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)
	f.deposit(t, f.admin, 5000, "dep_1")

	_, err := f.service.HandleAuth(context.Background(), authEvent(f, "auth_1", 3000))
	require.NoError(t, err)

	// cleared amount differs from the hold amount; the clearing rules
	event := authEvent(f, "auth_1", 2800)
	event.Type = entities.EventTypeCardClearing
	event.ProviderTransactionID = "txn_1"
	require.NoError(t, f.service.HandleClearing(context.Background(), event))

	pool, err := f.ledger.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2200), pool)

	equity, err := f.ledger.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2200), equity)

	hold, err := f.store.HoldByProviderAuthID(context.Background(), f.card.ProviderName, "auth_1")
	require.NoError(t, err)
	assert.Equal(t, entities.HoldStatusCleared, hold.Status)

	available, err := f.service.AvailableToSpend(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2200), available)
}

func TestHandleClearingWithoutPriorHold(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)
	f.deposit(t, f.admin, 5000, "dep_1")

	event := authEvent(f, "auth_offline", 1000)
	event.Type = entities.EventTypeCardClearing
	require.NoError(t, f.service.HandleClearing(context.Background(), event))

	pool, err := f.ledger.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), pool)
}

func TestHandleClearingIdempotent(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)
	f.deposit(t, f.admin, 5000, "dep_1")

	event := authEvent(f, "auth_1", 1000)
	event.Type = entities.EventTypeCardClearing
	event.ProviderTransactionID = "txn_1"

	require.NoError(t, f.service.HandleClearing(context.Background(), event))
	require.NoError(t, f.service.HandleClearing(context.Background(), event))

	pool, err := f.ledger.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), pool, "replayed clearing must capture once")
}

func TestHandleClearingEqualSplit(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyEqualSplit)
	f.deposit(t, f.admin, 3000, "dep_a")
	f.deposit(t, f.member, 3000, "dep_b")

	event := authEvent(f, "auth_1", 1001)
	event.Type = entities.EventTypeCardClearing
	require.NoError(t, f.service.HandleClearing(context.Background(), event))

	adminEquity, err := f.ledger.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	memberEquity, err := f.ledger.MemberEquityBalance(context.Background(), f.card.ID, f.member)
	require.NoError(t, err)

	// admin joined first and absorbs the odd minor unit
	assert.Equal(t, int64(2499), adminEquity)
	assert.Equal(t, int64(2500), memberEquity)
}

func TestHandleClearingEqualSplitFallsBackToPayer(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyEqualSplit)
	f.deposit(t, f.admin, 5000, "dep_a")
	f.deposit(t, f.member, 100, "dep_b")

	event := authEvent(f, "auth_1", 2000)
	event.Type = entities.EventTypeCardClearing
	require.NoError(t, f.service.HandleClearing(context.Background(), event))

	adminEquity, err := f.ledger.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	memberEquity, err := f.ledger.MemberEquityBalance(context.Background(), f.card.ID, f.member)
	require.NoError(t, err)

	assert.Equal(t, int64(3000), adminEquity, "payer carries the whole clearing")
	assert.Equal(t, int64(100), memberEquity)
}

func TestHandleReversalReleasesHold(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)
	f.deposit(t, f.admin, 5000, "dep_1")

	_, err := f.service.HandleAuth(context.Background(), authEvent(f, "auth_1", 3000))
	require.NoError(t, err)

	event := authEvent(f, "auth_1", 3000)
	event.Type = entities.EventTypeCardReversal
	require.NoError(t, f.service.HandleReversal(context.Background(), event))

	hold, err := f.store.HoldByProviderAuthID(context.Background(), f.card.ProviderName, "auth_1")
	require.NoError(t, err)
	assert.Equal(t, entities.HoldStatusReversed, hold.Status)

	pool, err := f.ledger.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), pool, "reversal never moves funds")

	available, err := f.service.AvailableToSpend(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), available)
}

func TestHandleReversalUnknownHoldAcks(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)

	event := authEvent(f, "auth_missing", 100)
	event.Type = entities.EventTypeCardReversal
	assert.NoError(t, f.service.HandleReversal(context.Background(), event))
}

func TestHandleReversalTerminalHoldIsNoop(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)
	f.deposit(t, f.admin, 5000, "dep_1")

	_, err := f.service.HandleAuth(context.Background(), authEvent(f, "auth_1", 1000))
	require.NoError(t, err)

	clearing := authEvent(f, "auth_1", 1000)
	clearing.Type = entities.EventTypeCardClearing
	require.NoError(t, f.service.HandleClearing(context.Background(), clearing))

	reversal := authEvent(f, "auth_1", 1000)
	reversal.Type = entities.EventTypeCardReversal
	require.NoError(t, f.service.HandleReversal(context.Background(), reversal))

	hold, err := f.store.HoldByProviderAuthID(context.Background(), f.card.ProviderName, "auth_1")
	require.NoError(t, err)
	assert.Equal(t, entities.HoldStatusCleared, hold.Status, "terminal state sticks")
}

func TestHandleCardStatusTransitions(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)

	cases := []struct {
		provider string
		want     entities.CardStatus
	}{
		{"LOCKED", entities.CardStatusLocked},
		{"FROZEN", entities.CardStatusLocked},
		{"ACTIVE", entities.CardStatusActive},
		{"TERMINATED", entities.CardStatusTerminated},
	}
	for _, tc := range cases {
		event := authEvent(f, "auth_status", 0)
		event.Type = entities.EventTypeCardStatus
		event.Status = tc.provider
		require.NoError(t, f.service.HandleCardStatus(context.Background(), event))

		card, err := f.store.CardByID(context.Background(), f.card.ID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, card.Status, "provider status %s", tc.provider)
	}
}

func TestHandleCardStatusUnknownStatusAcks(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)

	event := authEvent(f, "auth_status", 0)
	event.Type = entities.EventTypeCardStatus
	event.Status = "SOMETHING_NEW"
	require.NoError(t, f.service.HandleCardStatus(context.Background(), event))

	card, err := f.store.CardByID(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.CardStatusActive, card.Status)
}

func TestExpireStaleHolds(t *testing.T) {
	f := newFixture(t, entities.SplitPolicyPayerOnly)
	f.deposit(t, f.admin, 10000, "dep_1")

	_, err := f.service.HandleAuth(context.Background(), authEvent(f, "auth_old", 2000))
	require.NoError(t, err)
	_, err = f.service.HandleAuth(context.Background(), authEvent(f, "auth_new", 1000))
	require.NoError(t, err)

	// age the first hold past the ttl
	old, err := f.store.HoldByProviderAuthID(context.Background(), f.card.ProviderName, "auth_old")
	require.NoError(t, err)
	f.store.AgeHold(old.ID, 48*time.Hour)

	expired, err := f.service.ExpireStaleHolds(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	available, err := f.service.AvailableToSpend(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), available, "expired holds stop blocking spend")
}

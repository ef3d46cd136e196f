package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/testsupport"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

type fixture struct {
	store   *testsupport.MemStore
	service *Service
	wallet  entities.Wallet
	card    entities.Card
	admin   uuid.UUID
	member  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := testsupport.NewMemStore()
	log := logger.NewNop()
	service := NewService(store, NewEngine(store, log), store, store, log)

	admin := uuid.New()
	member := uuid.New()
	now := time.Now().UTC()

	wallet := entities.Wallet{
		ID:          uuid.New(),
		Name:        "trip wallet",
		AdminUserID: admin,
		SplitPolicy: entities.SplitPolicyPayerOnly,
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

	require.NoError(t, service.InitializeCardAccounts(context.Background(), &card, []uuid.UUID{admin, member}))

	return &fixture{store: store, service: service, wallet: wallet, card: card, admin: admin, member: member}
}

// assertBalanced checks the card's accounts sum to zero and the reported
// pool equals member equity plus pending withdrawals.
func assertBalanced(t *testing.T, f *fixture) {
	t.Helper()

	accounts, err := f.store.AccountsByCard(context.Background(), f.card.ID)
	require.NoError(t, err)

	var raw int64
	for _, account := range accounts {
		raw += account.Balance
	}
	assert.Zero(t, raw, "card accounts must sum to zero")

	recon, err := f.service.ReconcileCard(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.True(t, recon.Consistent)
	assert.Equal(t, recon.PoolBalance, recon.SumOfMemberEquity+recon.PendingWithdrawals)
}

func deposit(t *testing.T, f *fixture, userID uuid.UUID, amount int64, txID string) {
	t.Helper()
	_, err := f.service.PostCardDeposit(context.Background(), DepositParams{
		CardID:        f.card.ID,
		UserID:        userID,
		AmountMinor:   amount,
		TransactionID: txID,
	})
	require.NoError(t, err)
}

func TestPostCardDeposit(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 10000, "dep_1")

	pool, err := f.service.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), pool)

	equity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), equity)

	assertBalanced(t, f)
}

func TestPostCardDepositRejectsNonMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.PostCardDeposit(context.Background(), DepositParams{
		CardID:        f.card.ID,
		UserID:        uuid.New(),
		AmountMinor:   1000,
		TransactionID: "dep_outsider",
	})
	assert.ErrorIs(t, err, domainerrors.ErrUserNotMember)
}

func TestPostCardDepositRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)

	for _, amount := range []int64{0, -50} {
		_, err := f.service.PostCardDeposit(context.Background(), DepositParams{
			CardID:        f.card.ID,
			UserID:        f.admin,
			AmountMinor:   amount,
			TransactionID: "dep_bad",
		})
		assert.True(t, domainerrors.IsInvalidInput(err))
	}
}

func TestPostCardDepositIdempotent(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 5000, "dep_same")

	result, err := f.service.PostCardDeposit(context.Background(), DepositParams{
		CardID:        f.card.ID,
		UserID:        f.admin,
		AmountMinor:   5000,
		TransactionID: "dep_same",
	})
	require.NoError(t, err)
	assert.True(t, result.Replayed)

	equity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), equity)
}

func TestPostCardCaptureSplitsAcrossMembers(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 10000, "dep_a")
	deposit(t, f, f.member, 5000, "dep_b")

	_, err := f.service.PostCardCapture(context.Background(), CaptureParams{
		CardID: f.card.ID,
		Splits: []entities.SplitShare{
			{UserID: f.admin, AmountMinor: 600},
			{UserID: f.member, AmountMinor: 400},
		},
		TransactionID: "cap_1",
	})
	require.NoError(t, err)

	adminEquity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(9400), adminEquity)

	memberEquity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, f.member)
	require.NoError(t, err)
	assert.Equal(t, int64(4600), memberEquity)

	pool, err := f.service.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(14000), pool)

	assertBalanced(t, f)
}

func TestPostCardCaptureInsufficientEquityRollsBack(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 10000, "dep_a")
	deposit(t, f, f.member, 100, "dep_b")

	_, err := f.service.PostCardCapture(context.Background(), CaptureParams{
		CardID: f.card.ID,
		Splits: []entities.SplitShare{
			{UserID: f.admin, AmountMinor: 600},
			{UserID: f.member, AmountMinor: 400},
		},
		TransactionID: "cap_short",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInsufficientEquity)

	// the admin's leg must not survive the failed capture
	adminEquity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), adminEquity)

	assertBalanced(t, f)
}

func TestPostCardCaptureChecksCombinedSplitsPerMember(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 1000, "dep_a")

	// two splits land on the same equity account; each fits alone but not
	// together
	_, err := f.service.PostCardCapture(context.Background(), CaptureParams{
		CardID: f.card.ID,
		Splits: []entities.SplitShare{
			{UserID: f.admin, AmountMinor: 600},
			{UserID: f.admin, AmountMinor: 600},
		},
		TransactionID: "cap_combined",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInsufficientEquity)

	equity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), equity)

	assertBalanced(t, f)
}

// missingOnceStore drops the first member-equity lookup, as when a
// concurrent posting creates the account between lookup and insert.
type missingOnceStore struct {
	*testsupport.MemStore
	missed bool
}

func (s *missingOnceStore) AccountByScope(ctx context.Context, cardID uuid.UUID, scope entities.AccountScope, userID *uuid.UUID) (*entities.LedgerAccount, error) {
	if !s.missed && scope == entities.ScopeCardMemberEquity {
		s.missed = true
		return nil, domainerrors.NotFoundError("LEDGER_ACCOUNT")
	}
	return s.MemStore.AccountByScope(ctx, cardID, scope, userID)
}

func TestEnsureMemberEquityAccountRecoversFromCreateRace(t *testing.T) {
	f := newFixture(t)

	member := f.member
	existing, err := f.store.AccountByScope(context.Background(), f.card.ID, entities.ScopeCardMemberEquity, &member)
	require.NoError(t, err)

	racing := &missingOnceStore{MemStore: f.store}
	log := logger.NewNop()
	service := NewService(racing, NewEngine(racing, log), f.store, f.store, log)

	account, err := service.EnsureMemberEquityAccount(context.Background(), &f.card, member)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, account.ID)
	assert.True(t, racing.missed)
}

func TestPostCardCaptureIdempotent(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 1000, "dep_a")

	splits := []entities.SplitShare{{UserID: f.admin, AmountMinor: 900}}
	_, err := f.service.PostCardCapture(context.Background(), CaptureParams{
		CardID:        f.card.ID,
		Splits:        splits,
		TransactionID: "cap_dup",
	})
	require.NoError(t, err)

	// replay must not re-check equity against the post-commit balance
	result, err := f.service.PostCardCapture(context.Background(), CaptureParams{
		CardID:        f.card.ID,
		Splits:        splits,
		TransactionID: "cap_dup",
	})
	require.NoError(t, err)
	assert.True(t, result.Replayed)

	equity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(100), equity)
}

func TestImmediateWithdrawal(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 3000, "dep_a")

	_, err := f.service.PostImmediateCardWithdrawal(context.Background(), WithdrawalParams{
		CardID:        f.card.ID,
		UserID:        f.admin,
		AmountMinor:   1200,
		TransactionID: "wd_now",
	})
	require.NoError(t, err)

	pool, err := f.service.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), pool)

	equity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), equity)

	assertBalanced(t, f)
}

func TestPendingWithdrawalParksFundsWithoutTouchingPool(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 5000, "dep_a")

	_, err := f.service.PostPendingCardWithdrawal(context.Background(), WithdrawalParams{
		CardID:        f.card.ID,
		UserID:        f.admin,
		AmountMinor:   2000,
		TransactionID: "wd_pending",
	})
	require.NoError(t, err)

	pool, err := f.service.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), pool, "parking funds must not change the pool")

	equity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), equity)

	recon, err := f.service.ReconcileCard(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), recon.PendingWithdrawals)

	assertBalanced(t, f)
}

func TestFinalizeWithdrawalDrainsPool(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 5000, "dep_a")

	_, err := f.service.PostPendingCardWithdrawal(context.Background(), WithdrawalParams{
		CardID: f.card.ID, UserID: f.admin, AmountMinor: 2000, TransactionID: "wd_pending",
	})
	require.NoError(t, err)

	_, err = f.service.FinalizeCardWithdrawal(context.Background(), WithdrawalParams{
		CardID: f.card.ID, UserID: f.admin, AmountMinor: 2000, TransactionID: "wd_finalize",
	})
	require.NoError(t, err)

	pool, err := f.service.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), pool)

	recon, err := f.service.ReconcileCard(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Zero(t, recon.PendingWithdrawals)

	assertBalanced(t, f)
}

func TestReverseWithdrawalRestoresEquity(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 5000, "dep_a")

	_, err := f.service.PostPendingCardWithdrawal(context.Background(), WithdrawalParams{
		CardID: f.card.ID, UserID: f.admin, AmountMinor: 2000, TransactionID: "wd_pending",
	})
	require.NoError(t, err)

	_, err = f.service.ReversePendingCardWithdrawal(context.Background(), WithdrawalParams{
		CardID: f.card.ID, UserID: f.admin, AmountMinor: 2000, TransactionID: "wd_reverse",
	})
	require.NoError(t, err)

	equity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), equity)

	pool, err := f.service.PoolBalance(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), pool)

	assertBalanced(t, f)
}

func TestPendingWithdrawalInsufficientEquity(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 500, "dep_a")

	_, err := f.service.PostPendingCardWithdrawal(context.Background(), WithdrawalParams{
		CardID: f.card.ID, UserID: f.admin, AmountMinor: 1000, TransactionID: "wd_over",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInsufficientEquity)
}

func TestFinalizeBeyondPendingBalanceIsInvariantViolation(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 5000, "dep_a")

	_, err := f.service.FinalizeCardWithdrawal(context.Background(), WithdrawalParams{
		CardID: f.card.ID, UserID: f.admin, AmountMinor: 100, TransactionID: "wd_ghost",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInsufficientPendingBalance)
	assert.True(t, domainerrors.IsInvariant(err))
}

func TestLazyMemberEquityAccount(t *testing.T) {
	f := newFixture(t)

	// joins the wallet after the card's accounts were initialized
	late := uuid.New()
	f.store.SeedMember(entities.WalletMember{
		WalletID: f.wallet.ID, UserID: late, Role: entities.WalletRoleMember, JoinedAt: time.Now().UTC(),
	})

	deposit(t, f, late, 700, "dep_late")

	equity, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, late)
	require.NoError(t, err)
	assert.Equal(t, int64(700), equity)

	assertBalanced(t, f)
}

func TestMemberEquityBalanceMissingAccountReadsZero(t *testing.T) {
	f := newFixture(t)

	balance, err := f.service.MemberEquityBalance(context.Background(), f.card.ID, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestReconcileCardDetectsDrift(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 1000, "dep_a")

	// corrupt one balance behind the engine's back
	accounts, err := f.store.AccountsByCard(context.Background(), f.card.ID)
	require.NoError(t, err)
	for _, account := range accounts {
		if account.Scope == entities.ScopeCardMemberEquity {
			require.NoError(t, f.store.UpdateAccountBalance(context.Background(), account.ID, account.Balance+1))
			break
		}
	}

	recon, err := f.service.ReconcileCard(context.Background(), f.card.ID)
	require.NoError(t, err)
	assert.False(t, recon.Consistent)
}

func TestReconcileWallet(t *testing.T) {
	f := newFixture(t)

	deposit(t, f, f.admin, 2500, "dep_a")

	recon, err := f.service.ReconcileWallet(context.Background(), f.wallet.ID, []uuid.UUID{f.card.ID})
	require.NoError(t, err)
	assert.True(t, recon.Consistent)
	require.Len(t, recon.Cards, 1)
	assert.Equal(t, int64(2500), recon.Cards[0].PoolBalance)
}

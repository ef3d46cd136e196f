package splitting

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

func seedWallet(t *testing.T, store *testsupport.MemStore, policy entities.SplitPolicy, memberCount int) (uuid.UUID, []uuid.UUID) {
	t.Helper()

	now := time.Now().UTC()
	walletID := uuid.New()
	admin := uuid.New()
	store.SeedWallet(entities.Wallet{
		ID:          walletID,
		Name:        "shared",
		AdminUserID: admin,
		SplitPolicy: policy,
		Currency:    "USD",
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	members := make([]uuid.UUID, 0, memberCount)
	for i := 0; i < memberCount; i++ {
		userID := admin
		role := entities.WalletRoleAdmin
		if i > 0 {
			userID = uuid.New()
			role = entities.WalletRoleMember
		}
		store.SeedMember(entities.WalletMember{
			WalletID: walletID,
			UserID:   userID,
			Role:     role,
			JoinedAt: now.Add(time.Duration(i) * time.Second),
		})
		members = append(members, userID)
	}
	return walletID, members
}

func TestSplitPayerOnly(t *testing.T) {
	store := testsupport.NewMemStore()
	service := NewService(store, logger.NewNop())

	walletID, members := seedWallet(t, store, entities.SplitPolicyPayerOnly, 3)
	payer := members[1]

	shares, err := service.Split(context.Background(), walletID, payer, 1234)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, payer, shares[0].UserID)
	assert.Equal(t, int64(1234), shares[0].AmountMinor)
}

func TestSplitEqualRemainderGoesToEarliestMembers(t *testing.T) {
	store := testsupport.NewMemStore()
	service := NewService(store, logger.NewNop())

	walletID, members := seedWallet(t, store, entities.SplitPolicyEqualSplit, 3)

	shares, err := service.Split(context.Background(), walletID, members[2], 1000)
	require.NoError(t, err)
	require.Len(t, shares, 3)

	var total int64
	byUser := make(map[uuid.UUID]int64)
	for _, share := range shares {
		total += share.AmountMinor
		byUser[share.UserID] = share.AmountMinor
	}
	assert.Equal(t, int64(1000), total)
	assert.Equal(t, int64(334), byUser[members[0]])
	assert.Equal(t, int64(333), byUser[members[1]])
	assert.Equal(t, int64(333), byUser[members[2]])
}

func TestSplitEqualOmitsZeroShares(t *testing.T) {
	store := testsupport.NewMemStore()
	service := NewService(store, logger.NewNop())

	walletID, members := seedWallet(t, store, entities.SplitPolicyEqualSplit, 3)

	shares, err := service.Split(context.Background(), walletID, members[0], 2)
	require.NoError(t, err)
	require.Len(t, shares, 2)

	var total int64
	for _, share := range shares {
		assert.Equal(t, int64(1), share.AmountMinor)
		total += share.AmountMinor
	}
	assert.Equal(t, int64(2), total)
}

func TestSplitRejectsNonPositiveAmount(t *testing.T) {
	store := testsupport.NewMemStore()
	service := NewService(store, logger.NewNop())

	walletID, members := seedWallet(t, store, entities.SplitPolicyPayerOnly, 1)

	_, err := service.Split(context.Background(), walletID, members[0], 0)
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestSplitUnknownWallet(t *testing.T) {
	store := testsupport.NewMemStore()
	service := NewService(store, logger.NewNop())

	_, err := service.Split(context.Background(), uuid.New(), uuid.New(), 100)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestInvalidateDropsCachedPolicy(t *testing.T) {
	store := testsupport.NewMemStore()
	service := NewService(store, logger.NewNop())

	walletID, members := seedWallet(t, store, entities.SplitPolicyPayerOnly, 2)

	// prime the cache under PAYER_ONLY
	shares, err := service.Split(context.Background(), walletID, members[0], 100)
	require.NoError(t, err)
	require.Len(t, shares, 1)

	require.NoError(t, store.UpdateSplitPolicy(context.Background(), walletID, entities.SplitPolicyEqualSplit))

	// stale snapshot until invalidated
	shares, err = service.Split(context.Background(), walletID, members[0], 100)
	require.NoError(t, err)
	assert.Len(t, shares, 1)

	service.Invalidate(walletID)

	shares, err = service.Split(context.Background(), walletID, members[0], 100)
	require.NoError(t, err)
	assert.Len(t, shares, 2)
}

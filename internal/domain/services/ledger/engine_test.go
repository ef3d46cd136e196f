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

func seedAccount(t *testing.T, store *testsupport.MemStore, cardID uuid.UUID, scope entities.AccountScope, userID *uuid.UUID) *entities.LedgerAccount {
	t.Helper()

	now := time.Now().UTC()
	account := &entities.LedgerAccount{
		ID:        uuid.New(),
		WalletID:  uuid.New(),
		CardID:    cardID,
		Scope:     scope,
		UserID:    userID,
		Currency:  "USD",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateAccount(context.Background(), account))
	return account
}

func TestEnginePostMovesBalances(t *testing.T) {
	store := testsupport.NewMemStore()
	engine := NewEngine(store, logger.NewNop())
	cardID := uuid.New()
	userID := uuid.New()

	pool := seedAccount(t, store, cardID, entities.ScopeCardPool, nil)
	equity := seedAccount(t, store, cardID, entities.ScopeCardMemberEquity, &userID)

	result, err := engine.Post(context.Background(), "tx_1", []entities.Posting{{
		DebitAccountID:  pool.ID,
		CreditAccountID: equity.ID,
		Amount:          2500,
	}})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "tx_1", result.Entries[0].TransactionID)

	poolAfter, err := store.AccountByID(context.Background(), pool.ID)
	require.NoError(t, err)
	equityAfter, err := store.AccountByID(context.Background(), equity.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(-2500), poolAfter.Balance)
	assert.Equal(t, int64(2500), equityAfter.Balance)
}

func TestEnginePostReplayReturnsStoredEntries(t *testing.T) {
	store := testsupport.NewMemStore()
	engine := NewEngine(store, logger.NewNop())
	cardID := uuid.New()
	userID := uuid.New()

	pool := seedAccount(t, store, cardID, entities.ScopeCardPool, nil)
	equity := seedAccount(t, store, cardID, entities.ScopeCardMemberEquity, &userID)

	postings := []entities.Posting{{
		DebitAccountID:  pool.ID,
		CreditAccountID: equity.ID,
		Amount:          1000,
	}}

	first, err := engine.Post(context.Background(), "tx_replay", postings)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := engine.Post(context.Background(), "tx_replay", postings)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, first.Entries[0].ID, second.Entries[0].ID)

	// balances applied exactly once
	equityAfter, err := store.AccountByID(context.Background(), equity.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), equityAfter.Balance)
}

func TestEnginePostValidation(t *testing.T) {
	store := testsupport.NewMemStore()
	engine := NewEngine(store, logger.NewNop())

	_, err := engine.Post(context.Background(), "", []entities.Posting{{
		DebitAccountID:  uuid.New(),
		CreditAccountID: uuid.New(),
		Amount:          100,
	}})
	assert.ErrorIs(t, err, domainerrors.ErrMissingTransactionID)

	_, err = engine.Post(context.Background(), "tx_empty", nil)
	assert.ErrorIs(t, err, domainerrors.ErrNoPostings)

	_, err = engine.Post(context.Background(), "tx_bad", []entities.Posting{{
		DebitAccountID:  uuid.New(),
		CreditAccountID: uuid.New(),
		Amount:          0,
	}})
	assert.True(t, domainerrors.IsInvalidInput(err))

	same := uuid.New()
	_, err = engine.Post(context.Background(), "tx_same", []entities.Posting{{
		DebitAccountID:  same,
		CreditAccountID: same,
		Amount:          100,
	}})
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestEnginePostUnknownAccount(t *testing.T) {
	store := testsupport.NewMemStore()
	engine := NewEngine(store, logger.NewNop())
	cardID := uuid.New()

	pool := seedAccount(t, store, cardID, entities.ScopeCardPool, nil)

	_, err := engine.Post(context.Background(), "tx_missing", []entities.Posting{{
		DebitAccountID:  pool.ID,
		CreditAccountID: uuid.New(),
		Amount:          100,
	}})
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestEnginePostRejectsCrossCardPostings(t *testing.T) {
	store := testsupport.NewMemStore()
	engine := NewEngine(store, logger.NewNop())
	userID := uuid.New()

	pool := seedAccount(t, store, uuid.New(), entities.ScopeCardPool, nil)
	otherEquity := seedAccount(t, store, uuid.New(), entities.ScopeCardMemberEquity, &userID)

	_, err := engine.Post(context.Background(), "tx_cross", []entities.Posting{{
		DebitAccountID:  pool.ID,
		CreditAccountID: otherEquity.ID,
		Amount:          100,
	}})
	assert.ErrorIs(t, err, domainerrors.ErrCrossCardPosting)

	// nothing committed
	poolAfter, err := store.AccountByID(context.Background(), pool.ID)
	require.NoError(t, err)
	assert.Zero(t, poolAfter.Balance)
}

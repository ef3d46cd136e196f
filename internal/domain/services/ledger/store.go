package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
)

// Store is the persistence surface the ledger needs. Implementations must
// honor the transaction-in-context convention: mutations issued inside a
// RunInTx callback commit or roll back together.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateAccount(ctx context.Context, account *entities.LedgerAccount) error
	AccountByID(ctx context.Context, id uuid.UUID) (*entities.LedgerAccount, error)
	// AccountsForUpdate loads and locks the given accounts in ascending id
	// order so concurrent postings touching the same accounts serialize.
	AccountsForUpdate(ctx context.Context, ids []uuid.UUID) ([]*entities.LedgerAccount, error)
	AccountByScope(ctx context.Context, cardID uuid.UUID, scope entities.AccountScope, userID *uuid.UUID) (*entities.LedgerAccount, error)
	AccountsByCard(ctx context.Context, cardID uuid.UUID) ([]*entities.LedgerAccount, error)
	UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance int64) error

	CreateEntry(ctx context.Context, entry *entities.LedgerEntry) error
	EntriesByTransactionID(ctx context.Context, transactionID string) ([]*entities.LedgerEntry, error)
	EntriesByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.LedgerEntry, error)
	EntriesByCardID(ctx context.Context, cardID uuid.UUID, limit, offset int) ([]*entities.LedgerEntry, error)
}

// CardStore resolves cards for recipe validation
type CardStore interface {
	CardByID(ctx context.Context, id uuid.UUID) (*entities.Card, error)
}

// WalletStore resolves wallet membership for recipe validation
type WalletStore interface {
	IsMember(ctx context.Context, walletID, userID uuid.UUID) (bool, error)
}

// Package repositories contains the postgres implementations of the
// domain store interfaces. All methods execute against the transaction
// carried in the context when one is present.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/infrastructure/database"
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// LedgerRepository persists ledger accounts and entries
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// RunInTx delegates to the shared transaction helper
func (r *LedgerRepository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.RunInTx(ctx, fn)
}

// CreateAccount inserts a ledger account
func (r *LedgerRepository) CreateAccount(ctx context.Context, account *entities.LedgerAccount) error {
	// ON CONFLICT DO NOTHING keeps the surrounding transaction usable when
	// two postings race to create the same account, so the caller can
	// re-read the winning row.
	query := `
		INSERT INTO ledger_accounts (id, wallet_id, card_id, scope, user_id, balance, currency, created_at, updated_at)
		VALUES (:id, :wallet_id, :card_id, :scope, :user_id, :balance, :currency, :created_at, :updated_at)
		ON CONFLICT DO NOTHING`

	res, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, account)
	if err != nil {
		return fmt.Errorf("failed to create ledger account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create ledger account: %w", err)
	}
	if rows == 0 {
		return domainerrors.AlreadyExistsError("LEDGER_ACCOUNT")
	}
	return nil
}

// AccountByID fetches one account
func (r *LedgerRepository) AccountByID(ctx context.Context, id uuid.UUID) (*entities.LedgerAccount, error) {
	var account entities.LedgerAccount
	query := `SELECT * FROM ledger_accounts WHERE id = $1`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("LEDGER_ACCOUNT")
		}
		return nil, fmt.Errorf("failed to get ledger account: %w", err)
	}
	return &account, nil
}

// AccountsForUpdate locks the given accounts with SELECT ... FOR UPDATE.
// Callers pass ids in ascending order; the ORDER BY keeps the lock
// acquisition order identical across concurrent transactions.
func (r *LedgerRepository) AccountsForUpdate(ctx context.Context, ids []uuid.UUID) ([]*entities.LedgerAccount, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT * FROM ledger_accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	var accounts []*entities.LedgerAccount
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &accounts, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to lock ledger accounts: %w", err)
	}
	return accounts, nil
}

// AccountByScope resolves a card's account by scope, and by user for
// member equity accounts
func (r *LedgerRepository) AccountByScope(ctx context.Context, cardID uuid.UUID, scope entities.AccountScope, userID *uuid.UUID) (*entities.LedgerAccount, error) {
	var (
		account entities.LedgerAccount
		err     error
	)
	if userID != nil {
		query := `SELECT * FROM ledger_accounts WHERE card_id = $1 AND scope = $2 AND user_id = $3`
		err = sqlx.GetContext(ctx, r.db.Querier(ctx), &account, query, cardID, scope, *userID)
	} else {
		query := `SELECT * FROM ledger_accounts WHERE card_id = $1 AND scope = $2 AND user_id IS NULL`
		err = sqlx.GetContext(ctx, r.db.Querier(ctx), &account, query, cardID, scope)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("LEDGER_ACCOUNT")
		}
		return nil, fmt.Errorf("failed to get ledger account by scope: %w", err)
	}
	return &account, nil
}

// AccountsByCard lists every account of a card
func (r *LedgerRepository) AccountsByCard(ctx context.Context, cardID uuid.UUID) ([]*entities.LedgerAccount, error) {
	query := `SELECT * FROM ledger_accounts WHERE card_id = $1 ORDER BY scope, created_at`

	var accounts []*entities.LedgerAccount
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &accounts, query, cardID); err != nil {
		return nil, fmt.Errorf("failed to list card ledger accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccountBalance writes the new balance of one account
func (r *LedgerRepository) UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	query := `UPDATE ledger_accounts SET balance = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Querier(ctx).ExecContext(ctx, query, id, balance)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domainerrors.NotFoundError("LEDGER_ACCOUNT")
	}
	return nil
}

// CreateEntry appends an immutable ledger entry
func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *entities.LedgerEntry) error {
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ledger_entries (id, transaction_id, debit_account_id, credit_account_id, amount, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.Querier(ctx).ExecContext(ctx, query,
		entry.ID, entry.TransactionID, entry.DebitAccountID, entry.CreditAccountID,
		entry.Amount, metadata, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.AlreadyExistsError("LEDGER_ENTRY")
		}
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

// EntriesByTransactionID returns the entries of one posted transaction
func (r *LedgerRepository) EntriesByTransactionID(ctx context.Context, transactionID string) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT id, transaction_id, debit_account_id, credit_account_id, amount, metadata, created_at
		FROM ledger_entries WHERE transaction_id = $1 ORDER BY created_at, id`

	return r.selectEntries(ctx, query, transactionID)
}

// EntriesByAccountID pages through entries touching one account
func (r *LedgerRepository) EntriesByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT id, transaction_id, debit_account_id, credit_account_id, amount, metadata, created_at
		FROM ledger_entries
		WHERE debit_account_id = $1 OR credit_account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	return r.selectEntries(ctx, query, accountID, limit, offset)
}

// EntriesByCardID pages through a card's full entry history
func (r *LedgerRepository) EntriesByCardID(ctx context.Context, cardID uuid.UUID, limit, offset int) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT e.id, e.transaction_id, e.debit_account_id, e.credit_account_id, e.amount, e.metadata, e.created_at
		FROM ledger_entries e
		JOIN ledger_accounts a ON a.id = e.debit_account_id
		WHERE a.card_id = $1
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT $2 OFFSET $3`

	return r.selectEntries(ctx, query, cardID, limit, offset)
}

func (r *LedgerRepository) selectEntries(ctx context.Context, query string, args ...any) ([]*entities.LedgerEntry, error) {
	rows, err := r.db.Querier(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*entities.LedgerEntry
	for rows.Next() {
		var (
			entry    entities.LedgerEntry
			metadata []byte
		)
		if err := rows.Scan(&entry.ID, &entry.TransactionID, &entry.DebitAccountID,
			&entry.CreditAccountID, &entry.Amount, &metadata, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode entry metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry metadata: %w", err)
	}
	return b, nil
}

// Package ledger implements the double-entry posting engine and the
// card-scoped account recipes built on top of it.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

// Engine posts balanced transactions. It is sign-agnostic: each posting
// moves amount from its debit account to its credit account. Callers own
// the account semantics.
type Engine struct {
	store Store
	log   *logger.Logger
}

// NewEngine creates a posting engine
func NewEngine(store Store, log *logger.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Post atomically applies the postings under the given transaction id.
// Posting the same transaction id again returns the stored entries with
// Replayed set and applies nothing.
func (e *Engine) Post(ctx context.Context, transactionID string, postings []entities.Posting) (*entities.PostingResult, error) {
	if transactionID == "" {
		return nil, domainerrors.ErrMissingTransactionID
	}
	if len(postings) == 0 {
		return nil, domainerrors.ErrNoPostings
	}
	for i := range postings {
		if err := postings[i].Validate(); err != nil {
			return nil, domainerrors.ValidationError("postings", err.Error())
		}
	}

	var result *entities.PostingResult
	err := e.store.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := e.store.EntriesByTransactionID(ctx, transactionID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			accounts, err := e.loadAccounts(ctx, entriesAccountIDs(existing))
			if err != nil {
				return err
			}
			result = &entities.PostingResult{
				TransactionID: transactionID,
				Entries:       existing,
				Accounts:      accounts,
				Replayed:      true,
			}
			return nil
		}

		accounts, err := e.lockAccounts(ctx, postings)
		if err != nil {
			return err
		}

		if err := e.sameCard(accounts); err != nil {
			return err
		}

		now := time.Now().UTC()
		entries := make([]*entities.LedgerEntry, 0, len(postings))
		for _, p := range postings {
			accounts[p.DebitAccountID].Balance -= p.Amount
			accounts[p.CreditAccountID].Balance += p.Amount

			entries = append(entries, &entities.LedgerEntry{
				ID:              uuid.New(),
				TransactionID:   transactionID,
				DebitAccountID:  p.DebitAccountID,
				CreditAccountID: p.CreditAccountID,
				Amount:          p.Amount,
				Metadata:        p.Metadata,
				CreatedAt:       now,
			})
		}

		for _, entry := range entries {
			if err := e.store.CreateEntry(ctx, entry); err != nil {
				return err
			}
		}
		for _, account := range accounts {
			if err := e.store.UpdateAccountBalance(ctx, account.ID, account.Balance); err != nil {
				return err
			}
		}

		result = &entities.PostingResult{
			TransactionID: transactionID,
			Entries:       entries,
			Accounts:      accounts,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		e.log.Info("transaction replayed", "transaction_id", transactionID)
	}
	return result, nil
}

// lockAccounts loads every account the postings touch with row locks taken
// in ascending id order, which keeps concurrent postings deadlock-free.
func (e *Engine) lockAccounts(ctx context.Context, postings []entities.Posting) (map[uuid.UUID]*entities.LedgerAccount, error) {
	seen := make(map[uuid.UUID]struct{})
	ids := make([]uuid.UUID, 0, len(postings)*2)
	for _, p := range postings {
		for _, id := range []uuid.UUID{p.DebitAccountID, p.CreditAccountID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	accounts, err := e.store.AccountsForUpdate(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*entities.LedgerAccount, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, domainerrors.NotFoundError("LEDGER_ACCOUNT").WithDetails(map[string]interface{}{
				"account_id": id.String(),
			})
		}
	}
	return byID, nil
}

func (e *Engine) sameCard(accounts map[uuid.UUID]*entities.LedgerAccount) error {
	var cardID uuid.UUID
	for _, a := range accounts {
		if cardID == uuid.Nil {
			cardID = a.CardID
			continue
		}
		if a.CardID != cardID {
			return domainerrors.ErrCrossCardPosting
		}
	}
	return nil
}

func (e *Engine) loadAccounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entities.LedgerAccount, error) {
	byID := make(map[uuid.UUID]*entities.LedgerAccount, len(ids))
	for _, id := range ids {
		account, err := e.store.AccountByID(ctx, id)
		if err != nil {
			return nil, err
		}
		byID[id] = account
	}
	return byID, nil
}

func entriesAccountIDs(entries []*entities.LedgerEntry) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	ids := make([]uuid.UUID, 0, len(entries)*2)
	for _, e := range entries {
		for _, id := range []uuid.UUID{e.DebitAccountID, e.CreditAccountID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}

package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccountScope identifies the role a ledger account plays within a card.
type AccountScope string

const (
	// ScopeCardPool is the contra account for everything held on the card.
	// Its stored balance is the negative of the spendable pool; the
	// reconciliation view reports it negated.
	ScopeCardPool AccountScope = "CARD_POOL"

	// ScopeCardMemberEquity tracks one member's claim on the pool.
	ScopeCardMemberEquity AccountScope = "CARD_MEMBER_EQUITY"

	// ScopeCardPendingWithdrawal parks funds between withdrawal request
	// and provider settlement.
	ScopeCardPendingWithdrawal AccountScope = "CARD_PENDING_WITHDRAWAL"
)

// Validate checks if the account scope is valid
func (s AccountScope) Validate() error {
	switch s {
	case ScopeCardPool, ScopeCardMemberEquity, ScopeCardPendingWithdrawal:
		return nil
	default:
		return fmt.Errorf("invalid account scope: %s", s)
	}
}

// RequiresUser returns true if accounts of this scope belong to a member
func (s AccountScope) RequiresUser() bool {
	return s == ScopeCardMemberEquity
}

// LedgerAccount represents one account in the card-scoped double-entry system.
// Amounts are integer minor units (cents).
type LedgerAccount struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	WalletID  uuid.UUID    `json:"wallet_id" db:"wallet_id"`
	CardID    uuid.UUID    `json:"card_id" db:"card_id"`
	Scope     AccountScope `json:"scope" db:"scope"`
	UserID    *uuid.UUID   `json:"user_id,omitempty" db:"user_id"`
	Balance   int64        `json:"balance" db:"balance"`
	Currency  string       `json:"currency" db:"currency"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// Validate validates the ledger account
func (a *LedgerAccount) Validate() error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("account ID is required")
	}

	if a.WalletID == uuid.Nil {
		return fmt.Errorf("wallet ID is required")
	}

	if a.CardID == uuid.Nil {
		return fmt.Errorf("card ID is required")
	}

	if err := a.Scope.Validate(); err != nil {
		return err
	}

	if a.Scope.RequiresUser() && a.UserID == nil {
		return fmt.Errorf("member equity account requires user_id")
	}

	if !a.Scope.RequiresUser() && a.UserID != nil {
		return fmt.Errorf("%s account cannot have user_id", a.Scope)
	}

	if a.Currency == "" {
		return fmt.Errorf("currency is required")
	}

	return nil
}

// LedgerEntry represents one immutable movement of value between two
// accounts of the same card. Entries are append-only.
type LedgerEntry struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	TransactionID   string         `json:"transaction_id" db:"transaction_id"`
	DebitAccountID  uuid.UUID      `json:"debit_account_id" db:"debit_account_id"`
	CreditAccountID uuid.UUID      `json:"credit_account_id" db:"credit_account_id"`
	Amount          int64          `json:"amount" db:"amount"`
	Metadata        map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// Validate validates the ledger entry
func (e *LedgerEntry) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("entry ID is required")
	}

	if e.TransactionID == "" {
		return fmt.Errorf("transaction ID is required")
	}

	if e.DebitAccountID == uuid.Nil {
		return fmt.Errorf("debit account ID is required")
	}

	if e.CreditAccountID == uuid.Nil {
		return fmt.Errorf("credit account ID is required")
	}

	if e.DebitAccountID == e.CreditAccountID {
		return fmt.Errorf("debit and credit accounts must differ")
	}

	if e.Amount <= 0 {
		return fmt.Errorf("entry amount must be positive")
	}

	return nil
}

// Posting is one requested debit/credit pair inside a transaction.
type Posting struct {
	DebitAccountID  uuid.UUID      `json:"debit_account_id"`
	CreditAccountID uuid.UUID      `json:"credit_account_id"`
	Amount          int64          `json:"amount"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Validate validates the posting
func (p *Posting) Validate() error {
	if p.DebitAccountID == uuid.Nil {
		return fmt.Errorf("debit account ID is required")
	}

	if p.CreditAccountID == uuid.Nil {
		return fmt.Errorf("credit account ID is required")
	}

	if p.DebitAccountID == p.CreditAccountID {
		return fmt.Errorf("debit and credit accounts must differ")
	}

	if p.Amount <= 0 {
		return fmt.Errorf("posting amount must be positive")
	}

	return nil
}

// PostingResult is the outcome of posting a transaction. Replayed is true
// when the transaction id had already been posted and the stored entries
// were returned instead of applying new ones.
type PostingResult struct {
	TransactionID string                       `json:"transaction_id"`
	Entries       []*LedgerEntry               `json:"entries"`
	Accounts      map[uuid.UUID]*LedgerAccount `json:"accounts,omitempty"`
	Replayed      bool                         `json:"replayed"`
}

// MemberEquity is one member's slice of a card reconciliation view.
type MemberEquity struct {
	UserID       uuid.UUID `json:"user_id"`
	BalanceMinor int64     `json:"balance_minor"`
}

// CardReconciliation is the invariant verdict for a single card. The pool
// balance is reported in user-facing orientation (non-negative in a
// consistent ledger).
type CardReconciliation struct {
	CardID             uuid.UUID      `json:"card_id"`
	WalletID           uuid.UUID      `json:"wallet_id"`
	PoolBalance        int64          `json:"pool_balance"`
	MemberEquities     []MemberEquity `json:"member_equities"`
	SumOfMemberEquity  int64          `json:"sum_of_member_equity"`
	PendingWithdrawals int64          `json:"pending_withdrawals"`
	Consistent         bool           `json:"consistent"`
	Timestamp          time.Time      `json:"timestamp"`
}

// WalletReconciliation aggregates the per-card verdicts of a wallet.
type WalletReconciliation struct {
	WalletID   uuid.UUID            `json:"wallet_id"`
	Cards      []CardReconciliation `json:"cards"`
	Consistent bool                 `json:"consistent"`
	Timestamp  time.Time            `json:"timestamp"`
}

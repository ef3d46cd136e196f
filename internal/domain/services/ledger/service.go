package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/pkg/logger"
	"github.com/poolcard/poolcard_service/pkg/metrics"
)

// Service owns the card account recipes. Every committed posting keeps the
// card's accounts summing to zero: the pool account is the contra side of
// member equity and pending withdrawals, so its stored balance is the
// negative of the spendable pool.
type Service struct {
	store   Store
	engine  *Engine
	cards   CardStore
	wallets WalletStore
	log     *logger.Logger
}

// NewService creates the ledger service
func NewService(store Store, engine *Engine, cards CardStore, wallets WalletStore, log *logger.Logger) *Service {
	return &Service{store: store, engine: engine, cards: cards, wallets: wallets, log: log}
}

// DepositParams describes a funding credit to one member
type DepositParams struct {
	CardID        uuid.UUID
	UserID        uuid.UUID
	AmountMinor   int64
	TransactionID string
	Metadata      map[string]any
}

// CaptureParams describes a clearing charged across member equity
type CaptureParams struct {
	CardID        uuid.UUID
	Splits        []entities.SplitShare
	TransactionID string
	Metadata      map[string]any
}

// WithdrawalParams describes one leg of a two-phase withdrawal
type WithdrawalParams struct {
	CardID        uuid.UUID
	UserID        uuid.UUID
	AmountMinor   int64
	TransactionID string
	Metadata      map[string]any
}

// InitializeCardAccounts creates the pool, pending-withdrawal and one
// equity account per initial member for a freshly issued card.
func (s *Service) InitializeCardAccounts(ctx context.Context, card *entities.Card, memberIDs []uuid.UUID) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()

		for _, scope := range []entities.AccountScope{entities.ScopeCardPool, entities.ScopeCardPendingWithdrawal} {
			account := &entities.LedgerAccount{
				ID:        uuid.New(),
				WalletID:  card.WalletID,
				CardID:    card.ID,
				Scope:     scope,
				Currency:  card.Currency,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.store.CreateAccount(ctx, account); err != nil {
				return err
			}
		}

		for _, userID := range memberIDs {
			uid := userID
			account := &entities.LedgerAccount{
				ID:        uuid.New(),
				WalletID:  card.WalletID,
				CardID:    card.ID,
				Scope:     entities.ScopeCardMemberEquity,
				UserID:    &uid,
				Currency:  card.Currency,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.store.CreateAccount(ctx, account); err != nil {
				return err
			}
		}

		s.log.Info("card accounts initialized", "card_id", card.ID, "members", len(memberIDs))
		return nil
	})
}

// EnsureMemberEquityAccount returns the member's equity account, creating
// it on first use. Members who join after card issuance get their account
// lazily on the first posting that targets them.
func (s *Service) EnsureMemberEquityAccount(ctx context.Context, card *entities.Card, userID uuid.UUID) (*entities.LedgerAccount, error) {
	account, err := s.store.AccountByScope(ctx, card.ID, entities.ScopeCardMemberEquity, &userID)
	if err == nil {
		return account, nil
	}
	if !domainerrors.IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	uid := userID
	account = &entities.LedgerAccount{
		ID:        uuid.New(),
		WalletID:  card.WalletID,
		CardID:    card.ID,
		Scope:     entities.ScopeCardMemberEquity,
		UserID:    &uid,
		Currency:  card.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		// lost a creation race: the unique (card, scope, user) index fired
		if domainerrors.IsAlreadyExists(err) {
			return s.store.AccountByScope(ctx, card.ID, entities.ScopeCardMemberEquity, &userID)
		}
		return nil, err
	}
	return account, nil
}

// PostCardDeposit credits a member's equity with funds that arrived on the
// card: debit pool, credit member equity.
func (s *Service) PostCardDeposit(ctx context.Context, params DepositParams) (*entities.PostingResult, error) {
	if params.AmountMinor <= 0 {
		return nil, domainerrors.ValidationError("amount", "deposit amount must be positive")
	}

	card, err := s.cards.CardByID(ctx, params.CardID)
	if err != nil {
		return nil, err
	}

	isMember, err := s.wallets.IsMember(ctx, card.WalletID, params.UserID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, domainerrors.ErrUserNotMember
	}

	var result *entities.PostingResult
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		pool, err := s.store.AccountByScope(ctx, card.ID, entities.ScopeCardPool, nil)
		if err != nil {
			return err
		}
		equity, err := s.EnsureMemberEquityAccount(ctx, card, params.UserID)
		if err != nil {
			return err
		}

		result, err = s.engine.Post(ctx, params.TransactionID, []entities.Posting{{
			DebitAccountID:  pool.ID,
			CreditAccountID: equity.ID,
			Amount:          params.AmountMinor,
			Metadata:        params.Metadata,
		}})
		return err
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		metrics.LedgerPostingsTotal.WithLabelValues("deposit").Inc()
	}
	return result, nil
}

// PostCardCapture charges a clearing across member equity: one posting per
// split, each debiting the member and crediting the pool. A split that
// would push its member's equity negative fails the whole capture.
func (s *Service) PostCardCapture(ctx context.Context, params CaptureParams) (*entities.PostingResult, error) {
	if len(params.Splits) == 0 {
		return nil, domainerrors.ValidationError("splits", "capture requires at least one split")
	}
	for _, split := range params.Splits {
		if split.AmountMinor <= 0 {
			return nil, domainerrors.ValidationError("splits", "split amounts must be positive")
		}
	}

	card, err := s.cards.CardByID(ctx, params.CardID)
	if err != nil {
		return nil, err
	}

	var result *entities.PostingResult
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		replayed, err := s.replayIfPosted(ctx, params.TransactionID)
		if err != nil || replayed != nil {
			result = replayed
			return err
		}

		pool, err := s.store.AccountByScope(ctx, card.ID, entities.ScopeCardPool, nil)
		if err != nil {
			return err
		}

		required := make(map[uuid.UUID]int64, len(params.Splits))
		ids := []uuid.UUID{pool.ID}
		postings := make([]entities.Posting, 0, len(params.Splits))
		for _, split := range params.Splits {
			equity, err := s.EnsureMemberEquityAccount(ctx, card, split.UserID)
			if err != nil {
				return err
			}
			if _, ok := required[equity.ID]; !ok {
				ids = append(ids, equity.ID)
			}
			required[equity.ID] += split.AmountMinor

			postings = append(postings, entities.Posting{
				DebitAccountID:  equity.ID,
				CreditAccountID: pool.ID,
				Amount:          split.AmountMinor,
				Metadata:        params.Metadata,
			})
		}

		// one lock pass over pool plus equities, in the engine's ascending
		// id order; locking split-by-split can deadlock against a
		// concurrent posting on the same rows
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		locked, err := s.store.AccountsForUpdate(ctx, ids)
		if err != nil {
			return err
		}
		for _, account := range locked {
			if need, ok := required[account.ID]; ok && account.Balance < need {
				return domainerrors.ErrInsufficientEquity
			}
		}

		result, err = s.engine.Post(ctx, params.TransactionID, postings)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		metrics.LedgerPostingsTotal.WithLabelValues("capture").Inc()
	}
	return result, nil
}

// PostImmediateCardWithdrawal removes funds from a member's equity without
// a provider leg: debit member equity, credit pool.
func (s *Service) PostImmediateCardWithdrawal(ctx context.Context, params WithdrawalParams) (*entities.PostingResult, error) {
	return s.postEquityLeg(ctx, params, "withdraw_immediate", entities.ScopeCardPool)
}

// PostPendingCardWithdrawal parks withdrawal funds: debit member equity,
// credit pending withdrawal. Fails with INSUFFICIENT_EQUITY when the
// member's equity cannot cover the amount.
func (s *Service) PostPendingCardWithdrawal(ctx context.Context, params WithdrawalParams) (*entities.PostingResult, error) {
	return s.postEquityLeg(ctx, params, "withdrawal_pending", entities.ScopeCardPendingWithdrawal)
}

// FinalizeCardWithdrawal settles a provider-confirmed payout: debit pending
// withdrawal, credit pool. The pool's reported balance drops by the amount.
func (s *Service) FinalizeCardWithdrawal(ctx context.Context, params WithdrawalParams) (*entities.PostingResult, error) {
	return s.postPendingLeg(ctx, params, "withdrawal_finalize", entities.ScopeCardPool)
}

// ReversePendingCardWithdrawal returns parked funds to the member after a
// failed or cancelled payout: debit pending withdrawal, credit equity.
func (s *Service) ReversePendingCardWithdrawal(ctx context.Context, params WithdrawalParams) (*entities.PostingResult, error) {
	return s.postPendingLeg(ctx, params, "withdrawal_reverse", entities.ScopeCardMemberEquity)
}

// postEquityLeg debits the member's equity account in favor of the credit
// scope, enforcing the equity floor under a row lock.
func (s *Service) postEquityLeg(ctx context.Context, params WithdrawalParams, operation string, creditScope entities.AccountScope) (*entities.PostingResult, error) {
	if params.AmountMinor <= 0 {
		return nil, domainerrors.ValidationError("amount", "amount must be positive")
	}

	card, err := s.cards.CardByID(ctx, params.CardID)
	if err != nil {
		return nil, err
	}

	isMember, err := s.wallets.IsMember(ctx, card.WalletID, params.UserID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, domainerrors.ErrUserNotMember
	}

	var result *entities.PostingResult
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		replayed, err := s.replayIfPosted(ctx, params.TransactionID)
		if err != nil || replayed != nil {
			result = replayed
			return err
		}

		equity, err := s.store.AccountByScope(ctx, card.ID, entities.ScopeCardMemberEquity, &params.UserID)
		if err != nil {
			if domainerrors.IsNotFound(err) {
				return domainerrors.ErrInsufficientEquity
			}
			return err
		}
		credit, err := s.store.AccountByScope(ctx, card.ID, creditScope, nil)
		if err != nil {
			return err
		}

		locked, err := s.store.AccountsForUpdate(ctx, []uuid.UUID{equity.ID})
		if err != nil {
			return err
		}
		if locked[0].Balance < params.AmountMinor {
			return domainerrors.ErrInsufficientEquity
		}

		result, err = s.engine.Post(ctx, params.TransactionID, []entities.Posting{{
			DebitAccountID:  equity.ID,
			CreditAccountID: credit.ID,
			Amount:          params.AmountMinor,
			Metadata:        params.Metadata,
		}})
		return err
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		metrics.LedgerPostingsTotal.WithLabelValues(operation).Inc()
	}
	return result, nil
}

// postPendingLeg debits the pending-withdrawal account in favor of the
// credit scope. A shortfall here means an earlier invariant was broken.
func (s *Service) postPendingLeg(ctx context.Context, params WithdrawalParams, operation string, creditScope entities.AccountScope) (*entities.PostingResult, error) {
	if params.AmountMinor <= 0 {
		return nil, domainerrors.ValidationError("amount", "amount must be positive")
	}

	card, err := s.cards.CardByID(ctx, params.CardID)
	if err != nil {
		return nil, err
	}

	var result *entities.PostingResult
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		replayed, err := s.replayIfPosted(ctx, params.TransactionID)
		if err != nil || replayed != nil {
			result = replayed
			return err
		}

		pending, err := s.store.AccountByScope(ctx, card.ID, entities.ScopeCardPendingWithdrawal, nil)
		if err != nil {
			return err
		}

		var credit *entities.LedgerAccount
		if creditScope == entities.ScopeCardMemberEquity {
			credit, err = s.EnsureMemberEquityAccount(ctx, card, params.UserID)
		} else {
			credit, err = s.store.AccountByScope(ctx, card.ID, creditScope, nil)
		}
		if err != nil {
			return err
		}

		locked, err := s.store.AccountsForUpdate(ctx, []uuid.UUID{pending.ID})
		if err != nil {
			return err
		}
		if locked[0].Balance < params.AmountMinor {
			s.log.Error("pending withdrawal balance below settlement amount",
				"marker", "invariant_violation",
				"card_id", card.ID,
				"transaction_id", params.TransactionID,
				"pending_balance", locked[0].Balance,
				"amount", params.AmountMinor)
			return domainerrors.ErrInsufficientPendingBalance
		}

		result, err = s.engine.Post(ctx, params.TransactionID, []entities.Posting{{
			DebitAccountID:  pending.ID,
			CreditAccountID: credit.ID,
			Amount:          params.AmountMinor,
			Metadata:        params.Metadata,
		}})
		return err
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		metrics.LedgerPostingsTotal.WithLabelValues(operation).Inc()
	}
	return result, nil
}

// replayIfPosted short-circuits recipes whose transaction id was already
// committed, before any precondition runs against the post-commit state.
func (s *Service) replayIfPosted(ctx context.Context, transactionID string) (*entities.PostingResult, error) {
	if transactionID == "" {
		return nil, domainerrors.ErrMissingTransactionID
	}
	existing, err := s.store.EntriesByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, nil
	}
	return &entities.PostingResult{
		TransactionID: transactionID,
		Entries:       existing,
		Replayed:      true,
	}, nil
}

// PoolBalance reports the card's spendable pool in user-facing orientation
func (s *Service) PoolBalance(ctx context.Context, cardID uuid.UUID) (int64, error) {
	pool, err := s.store.AccountByScope(ctx, cardID, entities.ScopeCardPool, nil)
	if err != nil {
		return 0, err
	}
	return -pool.Balance, nil
}

// MemberEquityBalance reports one member's equity on the card. A missing
// account reads as zero.
func (s *Service) MemberEquityBalance(ctx context.Context, cardID, userID uuid.UUID) (int64, error) {
	account, err := s.store.AccountByScope(ctx, cardID, entities.ScopeCardMemberEquity, &userID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

// EntriesByCard lists a card's ledger entries, newest first
func (s *Service) EntriesByCard(ctx context.Context, cardID uuid.UUID, limit, offset int) ([]*entities.LedgerEntry, error) {
	return s.store.EntriesByCardID(ctx, cardID, limit, offset)
}

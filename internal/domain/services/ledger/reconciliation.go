package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	"github.com/poolcard/poolcard_service/pkg/metrics"
)

// ReconcileCard reads all of a card's accounts and reports whether the
// pool covers member equity plus pending withdrawals. Stored balances sum
// to zero in a consistent ledger; the pool is reported negated so the
// verdict reads as pool == sum(equity) + pending.
func (s *Service) ReconcileCard(ctx context.Context, cardID uuid.UUID) (*entities.CardReconciliation, error) {
	accounts, err := s.store.AccountsByCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	rec := &entities.CardReconciliation{
		CardID:         cardID,
		MemberEquities: make([]entities.MemberEquity, 0),
		Timestamp:      time.Now().UTC(),
	}

	for _, account := range accounts {
		rec.WalletID = account.WalletID
		switch account.Scope {
		case entities.ScopeCardPool:
			rec.PoolBalance = -account.Balance
		case entities.ScopeCardPendingWithdrawal:
			rec.PendingWithdrawals = account.Balance
		case entities.ScopeCardMemberEquity:
			rec.MemberEquities = append(rec.MemberEquities, entities.MemberEquity{
				UserID:       *account.UserID,
				BalanceMinor: account.Balance,
			})
			rec.SumOfMemberEquity += account.Balance
		}
	}

	rec.Consistent = rec.PoolBalance == rec.SumOfMemberEquity+rec.PendingWithdrawals

	if !rec.Consistent {
		metrics.ReconciliationMismatchTotal.Inc()
		s.log.Error("card ledger failed reconciliation",
			"marker", "invariant_violation",
			"card_id", cardID,
			"pool_balance", rec.PoolBalance,
			"sum_of_member_equity", rec.SumOfMemberEquity,
			"pending_withdrawals", rec.PendingWithdrawals)
	}

	return rec, nil
}

// ReconcileWallet aggregates the per-card verdicts for every card the
// wallet owns.
func (s *Service) ReconcileWallet(ctx context.Context, walletID uuid.UUID, cardIDs []uuid.UUID) (*entities.WalletReconciliation, error) {
	rec := &entities.WalletReconciliation{
		WalletID:   walletID,
		Cards:      make([]entities.CardReconciliation, 0, len(cardIDs)),
		Consistent: true,
		Timestamp:  time.Now().UTC(),
	}

	for _, cardID := range cardIDs {
		cardRec, err := s.ReconcileCard(ctx, cardID)
		if err != nil {
			return nil, err
		}
		rec.Cards = append(rec.Cards, *cardRec)
		if !cardRec.Consistent {
			rec.Consistent = false
		}
	}

	return rec, nil
}

// Package splitting computes how a clearing amount is attributed across
// wallet members according to the wallet's split policy.
package splitting

import (
	"context"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

// WalletStore loads split policies and memberships
type WalletStore interface {
	WalletByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)
	// Members returns the wallet's members ordered by join time, earliest
	// first. The order decides who absorbs integer-division remainders.
	Members(ctx context.Context, walletID uuid.UUID) ([]*entities.WalletMember, error)
}

// Service resolves split shares for clearings
type Service struct {
	wallets WalletStore
	cache   *policyCache
	log     *logger.Logger
}

// NewService creates the splitting service
func NewService(wallets WalletStore, log *logger.Logger) *Service {
	return &Service{
		wallets: wallets,
		cache:   newPolicyCache(defaultCacheSize, defaultCacheTTL),
		log:     log,
	}
}

// Split divides amount across members per the wallet's policy. Shares sum
// exactly to amount; members with a zero share are omitted.
func (s *Service) Split(ctx context.Context, walletID, payerUserID uuid.UUID, amountMinor int64) ([]entities.SplitShare, error) {
	if amountMinor <= 0 {
		return nil, domainerrors.ValidationError("amount", "split amount must be positive")
	}

	snap, err := s.snapshot(ctx, walletID)
	if err != nil {
		return nil, err
	}

	switch snap.Policy {
	case entities.SplitPolicyPayerOnly:
		return []entities.SplitShare{{UserID: payerUserID, AmountMinor: amountMinor}}, nil

	case entities.SplitPolicyEqualSplit:
		if len(snap.MemberIDs) == 0 {
			return nil, domainerrors.InvariantError("wallet has no members", map[string]interface{}{
				"wallet_id": walletID.String(),
			})
		}
		return equalSplit(snap.MemberIDs, amountMinor), nil

	default:
		return nil, domainerrors.ValidationError("split_policy", "unknown split policy")
	}
}

// Invalidate drops the cached policy snapshot after a wallet change
func (s *Service) Invalidate(walletID uuid.UUID) {
	s.cache.invalidate(walletID)
}

func (s *Service) snapshot(ctx context.Context, walletID uuid.UUID) (*walletSnapshot, error) {
	if snap, ok := s.cache.get(walletID); ok {
		return snap, nil
	}

	wallet, err := s.wallets.WalletByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	members, err := s.wallets.Members(ctx, walletID)
	if err != nil {
		return nil, err
	}

	memberIDs := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		memberIDs = append(memberIDs, m.UserID)
	}

	snap := &walletSnapshot{Policy: wallet.SplitPolicy, MemberIDs: memberIDs}
	s.cache.put(walletID, snap)
	return snap, nil
}

// equalSplit divides amount evenly; the first amount%n members (earliest
// joined) each carry one extra minor unit.
func equalSplit(memberIDs []uuid.UUID, amountMinor int64) []entities.SplitShare {
	n := int64(len(memberIDs))
	base := amountMinor / n
	remainder := amountMinor % n

	shares := make([]entities.SplitShare, 0, n)
	for i, userID := range memberIDs {
		share := base
		if int64(i) < remainder {
			share++
		}
		if share == 0 {
			continue
		}
		shares = append(shares, entities.SplitShare{UserID: userID, AmountMinor: share})
	}
	return shares
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/infrastructure/database"
)

// WalletRepository persists wallets and their memberships
type WalletRepository struct {
	db *database.DB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *database.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// RunInTx delegates to the shared transaction helper
func (r *WalletRepository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.RunInTx(ctx, fn)
}

// CreateWallet inserts a wallet
func (r *WalletRepository) CreateWallet(ctx context.Context, wallet *entities.Wallet) error {
	query := `
		INSERT INTO wallets (id, name, admin_user_id, split_policy, currency, created_at, updated_at)
		VALUES (:id, :name, :admin_user_id, :split_policy, :currency, :created_at, :updated_at)`

	_, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, wallet)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.AlreadyExistsError("WALLET")
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// WalletByID fetches one wallet
func (r *WalletRepository) WalletByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	var wallet entities.Wallet
	query := `SELECT * FROM wallets WHERE id = $1`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &wallet, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("WALLET")
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

// UpdateSplitPolicy changes the wallet's clearing split policy
func (r *WalletRepository) UpdateSplitPolicy(ctx context.Context, id uuid.UUID, policy entities.SplitPolicy) error {
	query := `UPDATE wallets SET split_policy = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Querier(ctx).ExecContext(ctx, query, id, policy)
	if err != nil {
		return fmt.Errorf("failed to update split policy: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domainerrors.NotFoundError("WALLET")
	}
	return nil
}

// AddMember enrolls a user into the wallet
func (r *WalletRepository) AddMember(ctx context.Context, member *entities.WalletMember) error {
	query := `
		INSERT INTO wallet_members (wallet_id, user_id, role, joined_at)
		VALUES (:wallet_id, :user_id, :role, :joined_at)`

	_, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, member)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.AlreadyExistsError("WALLET_MEMBER")
		}
		return fmt.Errorf("failed to add wallet member: %w", err)
	}
	return nil
}

// IsMember reports whether the user belongs to the wallet
func (r *WalletRepository) IsMember(ctx context.Context, walletID, userID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM wallet_members WHERE wallet_id = $1 AND user_id = $2)`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &exists, query, walletID, userID); err != nil {
		return false, fmt.Errorf("failed to check wallet membership: %w", err)
	}
	return exists, nil
}

// Members lists the wallet's members ordered by join time, earliest first.
// The split engine relies on this order being stable.
func (r *WalletRepository) Members(ctx context.Context, walletID uuid.UUID) ([]*entities.WalletMember, error) {
	query := `SELECT * FROM wallet_members WHERE wallet_id = $1 ORDER BY joined_at, user_id`

	var members []*entities.WalletMember
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &members, query, walletID); err != nil {
		return nil, fmt.Errorf("failed to list wallet members: %w", err)
	}
	return members, nil
}

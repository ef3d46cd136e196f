package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/infrastructure/database"
)

// CardRepository persists cards and their authorization holds
type CardRepository struct {
	db *database.DB
}

// NewCardRepository creates a new card repository
func NewCardRepository(db *database.DB) *CardRepository {
	return &CardRepository{db: db}
}

// RunInTx delegates to the shared transaction helper
func (r *CardRepository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.RunInTx(ctx, fn)
}

// CreateCard inserts a card
func (r *CardRepository) CreateCard(ctx context.Context, card *entities.Card) error {
	query := `
		INSERT INTO cards (id, wallet_id, holder_user_id, status, provider_name, external_card_id, currency, created_at, updated_at)
		VALUES (:id, :wallet_id, :holder_user_id, :status, :provider_name, :external_card_id, :currency, :created_at, :updated_at)`

	_, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, card)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.AlreadyExistsError("CARD")
		}
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// CardByID fetches one card
func (r *CardRepository) CardByID(ctx context.Context, id uuid.UUID) (*entities.Card, error) {
	var card entities.Card
	query := `SELECT * FROM cards WHERE id = $1`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &card, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("CARD")
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return &card, nil
}

// CardByExternalID resolves a card from its provider identity
func (r *CardRepository) CardByExternalID(ctx context.Context, providerName, externalCardID string) (*entities.Card, error) {
	var card entities.Card
	query := `SELECT * FROM cards WHERE provider_name = $1 AND external_card_id = $2`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &card, query, providerName, externalCardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("CARD")
		}
		return nil, fmt.Errorf("failed to get card by external id: %w", err)
	}
	return &card, nil
}

// CardsByWallet lists a wallet's cards
func (r *CardRepository) CardsByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.Card, error) {
	query := `SELECT * FROM cards WHERE wallet_id = $1 ORDER BY created_at`

	var cards []*entities.Card
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &cards, query, walletID); err != nil {
		return nil, fmt.Errorf("failed to list wallet cards: %w", err)
	}
	return cards, nil
}

// AllCardIDs enumerates every card id, for the reconciliation auditor
func (r *CardRepository) AllCardIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT id FROM cards ORDER BY created_at`

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list card ids: %w", err)
	}
	return ids, nil
}

// UpdateCardStatus transitions a card's lifecycle state
func (r *CardRepository) UpdateCardStatus(ctx context.Context, id uuid.UUID, status entities.CardStatus) error {
	query := `UPDATE cards SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Querier(ctx).ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update card status: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domainerrors.NotFoundError("CARD")
	}
	return nil
}

// CreateHold inserts an authorization hold
func (r *CardRepository) CreateHold(ctx context.Context, hold *entities.CardAuthHold) error {
	query := `
		INSERT INTO card_auth_holds (id, wallet_id, card_id, provider_name, provider_auth_id, amount_minor, status, created_at, updated_at)
		VALUES (:id, :wallet_id, :card_id, :provider_name, :provider_auth_id, :amount_minor, :status, :created_at, :updated_at)`

	_, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, hold)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.AlreadyExistsError("CARD_AUTH_HOLD")
		}
		return fmt.Errorf("failed to create auth hold: %w", err)
	}
	return nil
}

// HoldByProviderAuthID resolves a hold from the provider's authorization id
func (r *CardRepository) HoldByProviderAuthID(ctx context.Context, providerName, providerAuthID string) (*entities.CardAuthHold, error) {
	var hold entities.CardAuthHold
	query := `SELECT * FROM card_auth_holds WHERE provider_name = $1 AND provider_auth_id = $2`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &hold, query, providerName, providerAuthID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("CARD_AUTH_HOLD")
		}
		return nil, fmt.Errorf("failed to get auth hold: %w", err)
	}
	return &hold, nil
}

// UpdateHoldStatus transitions a hold's state
func (r *CardRepository) UpdateHoldStatus(ctx context.Context, id uuid.UUID, status entities.HoldStatus) error {
	query := `UPDATE card_auth_holds SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Querier(ctx).ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update hold status: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domainerrors.NotFoundError("CARD_AUTH_HOLD")
	}
	return nil
}

// SumPendingHolds totals a card's live holds
func (r *CardRepository) SumPendingHolds(ctx context.Context, cardID uuid.UUID) (int64, error) {
	var sum int64
	query := `SELECT COALESCE(SUM(amount_minor), 0) FROM card_auth_holds WHERE card_id = $1 AND status = $2`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &sum, query, cardID, entities.HoldStatusPending); err != nil {
		return 0, fmt.Errorf("failed to sum pending holds: %w", err)
	}
	return sum, nil
}

// PendingHoldsBefore returns live holds created before the cutoff, oldest
// first, for the expiry sweeper
func (r *CardRepository) PendingHoldsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*entities.CardAuthHold, error) {
	query := `
		SELECT * FROM card_auth_holds
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`

	var holds []*entities.CardAuthHold
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &holds, query, entities.HoldStatusPending, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale holds: %w", err)
	}
	return holds, nil
}

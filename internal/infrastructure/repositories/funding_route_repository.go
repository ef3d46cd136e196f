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

// FundingRouteRepository persists deposit routing rules
type FundingRouteRepository struct {
	db *database.DB
}

// NewFundingRouteRepository creates a new funding route repository
func NewFundingRouteRepository(db *database.DB) *FundingRouteRepository {
	return &FundingRouteRepository{db: db}
}

// RouteByKey resolves the route for (provider, account, reference). The
// empty reference is the account's default route.
func (r *FundingRouteRepository) RouteByKey(ctx context.Context, providerName, providerAccountID, reference string) (*entities.BaasFundingRoute, error) {
	var route entities.BaasFundingRoute
	query := `
		SELECT * FROM baas_funding_routes
		WHERE provider_name = $1 AND provider_account_id = $2 AND reference = $3`

	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &route, query, providerName, providerAccountID, reference); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("FUNDING_ROUTE")
		}
		return nil, fmt.Errorf("failed to get funding route: %w", err)
	}
	return &route, nil
}

// UpsertRoute inserts the route or repoints an existing one
func (r *FundingRouteRepository) UpsertRoute(ctx context.Context, route *entities.BaasFundingRoute) error {
	query := `
		INSERT INTO baas_funding_routes (id, provider_name, provider_account_id, reference,
			wallet_id, card_id, user_id, created_at, updated_at)
		VALUES (:id, :provider_name, :provider_account_id, :reference,
			:wallet_id, :card_id, :user_id, :created_at, :updated_at)
		ON CONFLICT (provider_name, provider_account_id, reference)
		DO UPDATE SET wallet_id = EXCLUDED.wallet_id,
			card_id = EXCLUDED.card_id,
			user_id = EXCLUDED.user_id,
			updated_at = EXCLUDED.updated_at`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, route); err != nil {
		return fmt.Errorf("failed to upsert funding route: %w", err)
	}
	return nil
}

// RoutesByWallet lists the routes feeding a wallet's cards
func (r *FundingRouteRepository) RoutesByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.BaasFundingRoute, error) {
	query := `SELECT * FROM baas_funding_routes WHERE wallet_id = $1 ORDER BY created_at`

	var routes []*entities.BaasFundingRoute
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &routes, query, walletID); err != nil {
		return nil, fmt.Errorf("failed to list funding routes: %w", err)
	}
	return routes, nil
}

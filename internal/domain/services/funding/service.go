// Package funding routes inbound provider deposits to the card member they
// fund and posts the resulting ledger credit.
package funding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/domain/services/ledger"
	"github.com/poolcard/poolcard_service/pkg/logger"
	"github.com/poolcard/poolcard_service/pkg/metrics"
)

// RouteStore is the funding route persistence surface
type RouteStore interface {
	// RouteByKey resolves the route for (provider, account, reference).
	RouteByKey(ctx context.Context, providerName, providerAccountID, reference string) (*entities.BaasFundingRoute, error)
	UpsertRoute(ctx context.Context, route *entities.BaasFundingRoute) error
	RoutesByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.BaasFundingRoute, error)
}

// Service is the funding router
type Service struct {
	routes RouteStore
	ledger *ledger.Service
	log    *logger.Logger
}

// NewService creates the funding service
func NewService(routes RouteStore, ledgerSvc *ledger.Service, log *logger.Logger) *Service {
	return &Service{routes: routes, ledger: ledgerSvc, log: log}
}

// HandleDeposit resolves the route for an inbound credit and posts the
// deposit. An exact reference match wins; otherwise the account's default
// route (empty reference) catches the deposit. No route at all is counted
// and logged, and the event is acknowledged so the provider stops
// retrying something we can never place.
func (s *Service) HandleDeposit(ctx context.Context, event *entities.NormalizedEvent) error {
	route, err := s.resolve(ctx, event)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			metrics.FundingRouteMissesTotal.Inc()
			s.log.Error("deposit matched no funding route",
				"provider", event.ProviderName,
				"provider_account_id", event.ProviderAccountID,
				"reference", event.Reference,
				"provider_event_id", event.ProviderEventID,
				"amount", event.AmountMinor)
			return nil
		}
		return err
	}

	_, err = s.ledger.PostCardDeposit(ctx, ledger.DepositParams{
		CardID:        route.CardID,
		UserID:        route.UserID,
		AmountMinor:   event.AmountMinor,
		TransactionID: depositTransactionID(event),
		Metadata: map[string]any{
			"provider_event_id":       event.ProviderEventID,
			"provider_transaction_id": event.ProviderTransactionID,
			"provider_account_id":     event.ProviderAccountID,
			"reference":               event.Reference,
		},
	})
	return err
}

func (s *Service) resolve(ctx context.Context, event *entities.NormalizedEvent) (*entities.BaasFundingRoute, error) {
	if event.Reference != "" {
		route, err := s.routes.RouteByKey(ctx, event.ProviderName, event.ProviderAccountID, event.Reference)
		if err == nil {
			return route, nil
		}
		if !domainerrors.IsNotFound(err) {
			return nil, err
		}
	}
	// fall back to the account's default route
	return s.routes.RouteByKey(ctx, event.ProviderName, event.ProviderAccountID, "")
}

func depositTransactionID(event *entities.NormalizedEvent) string {
	if event.ProviderTransactionID != "" {
		return fmt.Sprintf("deposit_%s_%s", event.ProviderName, event.ProviderTransactionID)
	}
	return fmt.Sprintf("deposit_%s_%s", event.ProviderName, event.ProviderEventID)
}

// UpsertRoute creates or replaces a funding route
func (s *Service) UpsertRoute(ctx context.Context, route *entities.BaasFundingRoute) error {
	if route.ID == uuid.Nil {
		route.ID = uuid.New()
	}
	now := time.Now().UTC()
	if route.CreatedAt.IsZero() {
		route.CreatedAt = now
	}
	route.UpdatedAt = now

	if err := route.Validate(); err != nil {
		return domainerrors.ValidationError("route", err.Error())
	}
	return s.routes.UpsertRoute(ctx, route)
}

// RoutesByWallet lists a wallet's funding routes
func (s *Service) RoutesByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.BaasFundingRoute, error) {
	return s.routes.RoutesByWallet(ctx, walletID)
}

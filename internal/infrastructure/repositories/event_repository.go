package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/infrastructure/database"
)

// EventRepository persists the webhook audit journal and the processed-event
// dedup table
type EventRepository struct {
	db *database.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

// RunInTx delegates to the shared transaction helper
func (r *EventRepository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.RunInTx(ctx, fn)
}

// InsertBaasEvent appends a delivery to the audit journal. Redelivery of an
// already journaled event is a no-op.
func (r *EventRepository) InsertBaasEvent(ctx context.Context, event *entities.BaasEvent) error {
	query := `
		INSERT INTO baas_events (id, provider_name, provider_event_id, event_type, payload, received_at, processed_at)
		VALUES (:id, :provider_name, :provider_event_id, :event_type, :payload, :received_at, :processed_at)
		ON CONFLICT (provider_name, provider_event_id) DO NOTHING`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, event); err != nil {
		return fmt.Errorf("failed to journal webhook event: %w", err)
	}
	return nil
}

// MarkBaasEventProcessed stamps the journal row once handling committed
func (r *EventRepository) MarkBaasEventProcessed(ctx context.Context, providerName, providerEventID string) error {
	query := `
		UPDATE baas_events SET processed_at = NOW()
		WHERE provider_name = $1 AND provider_event_id = $2`

	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, providerName, providerEventID); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// InsertProcessedEvent claims the event for exactly-once handling. The
// unique constraint turns a duplicate delivery into an already-exists error.
func (r *EventRepository) InsertProcessedEvent(ctx context.Context, providerName, providerEventID string) error {
	query := `
		INSERT INTO processed_events (provider_name, provider_event_id, processed_at)
		VALUES ($1, $2, NOW())`

	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, providerName, providerEventID); err != nil {
		if isUniqueViolation(err) {
			return domainerrors.AlreadyExistsError("PROCESSED_EVENT")
		}
		return fmt.Errorf("failed to claim webhook event: %w", err)
	}
	return nil
}

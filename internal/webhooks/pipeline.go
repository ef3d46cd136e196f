// Package webhooks implements the provider webhook ingestion pipeline:
// verify, journal, normalize, deduplicate, dispatch.
package webhooks

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/poolcard/poolcard_service/internal/adapters/baas"
	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/pkg/logger"
	"github.com/poolcard/poolcard_service/pkg/metrics"
	"github.com/poolcard/poolcard_service/pkg/tracing"
)

// EventStore journals deliveries and guards exactly-once dispatch
type EventStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// InsertBaasEvent appends to the audit journal; re-inserting the same
	// (provider, event id) is a no-op.
	InsertBaasEvent(ctx context.Context, event *entities.BaasEvent) error
	MarkBaasEventProcessed(ctx context.Context, providerName, providerEventID string) error

	// InsertProcessedEvent claims the event for processing. A second claim
	// fails with an already-exists error, which is how concurrent
	// deliveries of the same event lose the race.
	InsertProcessedEvent(ctx context.Context, providerName, providerEventID string) error
}

// Handler processes one normalized event inside the dedup transaction
type Handler func(ctx context.Context, event *entities.NormalizedEvent) error

// Pipeline ingests provider webhooks
type Pipeline struct {
	providers map[string]baas.Provider
	handlers  map[entities.EventType]Handler
	store     EventStore
	log       *logger.Logger
}

// NewPipeline creates the pipeline
func NewPipeline(store EventStore, log *logger.Logger) *Pipeline {
	return &Pipeline{
		providers: make(map[string]baas.Provider),
		handlers:  make(map[entities.EventType]Handler),
		store:     store,
		log:       log,
	}
}

// RegisterProvider makes a provider's webhooks ingestible
func (p *Pipeline) RegisterProvider(provider baas.Provider) {
	p.providers[provider.Name()] = provider
}

// RegisterHandler binds an event type to its handler
func (p *Pipeline) RegisterHandler(eventType entities.EventType, handler Handler) {
	p.handlers[eventType] = handler
}

// Ingest runs one delivery through the pipeline. The returned error is
// classified through the domain taxonomy so the HTTP layer can map it:
// unknown provider and unroutable payloads are not retryable by the
// caller, handler failures are.
func (p *Pipeline) Ingest(ctx context.Context, providerName string, header http.Header, body []byte) error {
	provider, ok := p.providers[providerName]
	if !ok {
		return domainerrors.NotFoundError("PROVIDER")
	}

	if err := provider.VerifyWebhook(header, body); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(providerName, "unknown", "invalid_signature").Inc()
		p.log.Warn("webhook signature verification failed", "provider", providerName, "error", err)
		return err
	}

	event, err := provider.NormalizeWebhook(body)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(providerName, "unknown", "unroutable").Inc()
		p.log.Warn("webhook payload not normalizable", "provider", providerName, "error", err)
		return err
	}

	// audit journal first: every verified delivery leaves a trace even if
	// handling fails
	if err := p.store.InsertBaasEvent(ctx, &entities.BaasEvent{
		ID:              uuid.New(),
		ProviderName:    event.ProviderName,
		ProviderEventID: event.ProviderEventID,
		EventType:       string(event.Type),
		Payload:         body,
		ReceivedAt:      time.Now().UTC(),
	}); err != nil {
		return err
	}

	return p.dispatch(ctx, event)
}

func (p *Pipeline) dispatch(ctx context.Context, event *entities.NormalizedEvent) error {
	tracer := tracing.GetTracer("webhooks")
	ctx, span := tracer.Start(ctx, "webhook.dispatch")
	span.SetAttributes(
		attribute.String("provider", event.ProviderName),
		attribute.String("event.type", string(event.Type)),
		attribute.String("event.id", event.ProviderEventID),
	)
	defer span.End()

	handler, ok := p.handlers[event.Type]
	if !ok {
		metrics.WebhookEventsTotal.WithLabelValues(event.ProviderName, string(event.Type), "unroutable").Inc()
		p.log.Warn("no handler for event type", "type", event.Type, "provider", event.ProviderName)
		return nil
	}

	duplicate := false
	err := p.store.RunInTx(ctx, func(ctx context.Context) error {
		// claim the event; losing the claim means another delivery of the
		// same event already applied the effects
		if err := p.store.InsertProcessedEvent(ctx, event.ProviderName, event.ProviderEventID); err != nil {
			if domainerrors.IsAlreadyExists(err) {
				duplicate = true
				return nil
			}
			return err
		}

		if err := handler(ctx, event); err != nil {
			return err
		}

		return p.store.MarkBaasEventProcessed(ctx, event.ProviderName, event.ProviderEventID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		metrics.WebhookEventsTotal.WithLabelValues(event.ProviderName, string(event.Type), "handler_error").Inc()
		p.log.Error("webhook handler failed",
			"provider", event.ProviderName,
			"type", event.Type,
			"provider_event_id", event.ProviderEventID,
			"error", err)
		return err
	}

	if duplicate {
		metrics.WebhookEventsTotal.WithLabelValues(event.ProviderName, string(event.Type), "duplicate").Inc()
		p.log.Info("duplicate webhook delivery ignored",
			"provider", event.ProviderName, "provider_event_id", event.ProviderEventID)
		return nil
	}

	metrics.WebhookEventsTotal.WithLabelValues(event.ProviderName, string(event.Type), "processed").Inc()
	return nil
}

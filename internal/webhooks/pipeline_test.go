package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolcard/poolcard_service/internal/adapters/baas"
	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/testsupport"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

func signedDelivery(t *testing.T, provider *baas.MockProvider, event entities.NormalizedEvent) (http.Header, []byte) {
	t.Helper()

	body, err := json.Marshal(event)
	require.NoError(t, err)

	header := http.Header{}
	header.Set(baas.MockSignatureHeader, provider.Sign(body))
	return header, body
}

func depositEvent(eventID string) entities.NormalizedEvent {
	return entities.NormalizedEvent{
		ProviderEventID:   eventID,
		Type:              entities.EventTypeDeposit,
		ProviderAccountID: "acct_1",
		AmountMinor:       1000,
		Currency:          "USD",
		OccurredAt:        time.Now().UTC(),
	}
}

func TestIngestProcessesOnceAndDeduplicates(t *testing.T) {
	store := testsupport.NewMemStore()
	provider := baas.NewMockProvider("secret")
	pipeline := NewPipeline(store, logger.NewNop())
	pipeline.RegisterProvider(provider)

	calls := 0
	pipeline.RegisterHandler(entities.EventTypeDeposit, func(context.Context, *entities.NormalizedEvent) error {
		calls++
		return nil
	})

	header, body := signedDelivery(t, provider, depositEvent("evt_1"))

	require.NoError(t, pipeline.Ingest(context.Background(), provider.Name(), header, body))
	require.NoError(t, pipeline.Ingest(context.Background(), provider.Name(), header, body))

	assert.Equal(t, 1, calls, "effects apply exactly once")

	journaled, ok := store.BaasEvent(provider.Name(), "evt_1")
	require.True(t, ok)
	assert.NotNil(t, journaled.ProcessedAt)
}

func TestIngestInvalidSignature(t *testing.T) {
	store := testsupport.NewMemStore()
	provider := baas.NewMockProvider("secret")
	pipeline := NewPipeline(store, logger.NewNop())
	pipeline.RegisterProvider(provider)

	called := false
	pipeline.RegisterHandler(entities.EventTypeDeposit, func(context.Context, *entities.NormalizedEvent) error {
		called = true
		return nil
	})

	_, body := signedDelivery(t, provider, depositEvent("evt_1"))
	header := http.Header{}
	header.Set(baas.MockSignatureHeader, "deadbeef")

	err := pipeline.Ingest(context.Background(), provider.Name(), header, body)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidSignature)
	assert.False(t, called)

	// unverified deliveries never reach the journal
	_, ok := store.BaasEvent(provider.Name(), "evt_1")
	assert.False(t, ok)
}

func TestIngestHandlerErrorReleasesClaim(t *testing.T) {
	store := testsupport.NewMemStore()
	provider := baas.NewMockProvider("secret")
	pipeline := NewPipeline(store, logger.NewNop())
	pipeline.RegisterProvider(provider)

	fail := true
	pipeline.RegisterHandler(entities.EventTypeDeposit, func(context.Context, *entities.NormalizedEvent) error {
		if fail {
			return domainerrors.InternalError("downstream unavailable", nil)
		}
		return nil
	})

	header, body := signedDelivery(t, provider, depositEvent("evt_1"))

	require.Error(t, pipeline.Ingest(context.Background(), provider.Name(), header, body))

	// the failed claim rolled back, so redelivery processes the event
	fail = false
	require.NoError(t, pipeline.Ingest(context.Background(), provider.Name(), header, body))

	journaled, ok := store.BaasEvent(provider.Name(), "evt_1")
	require.True(t, ok)
	assert.NotNil(t, journaled.ProcessedAt)
}

func TestIngestUnhandledEventTypeAcks(t *testing.T) {
	store := testsupport.NewMemStore()
	provider := baas.NewMockProvider("secret")
	pipeline := NewPipeline(store, logger.NewNop())
	pipeline.RegisterProvider(provider)

	event := depositEvent("evt_1")
	event.Type = entities.EventTypeKYCStatus
	event.Status = "APPROVED"
	event.ProviderAccountID = "acct_1"
	header, body := signedDelivery(t, provider, event)

	assert.NoError(t, pipeline.Ingest(context.Background(), provider.Name(), header, body))

	// still journaled for audit even without a handler
	_, ok := store.BaasEvent(provider.Name(), "evt_1")
	assert.True(t, ok)
}

func TestIngestMalformedPayload(t *testing.T) {
	store := testsupport.NewMemStore()
	provider := baas.NewMockProvider("secret")
	pipeline := NewPipeline(store, logger.NewNop())
	pipeline.RegisterProvider(provider)

	body := []byte(`{"type": "NOT_A_REAL_TYPE"}`)
	header := http.Header{}
	header.Set(baas.MockSignatureHeader, provider.Sign(body))

	err := pipeline.Ingest(context.Background(), provider.Name(), header, body)
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestIngestUnknownProvider(t *testing.T) {
	store := testsupport.NewMemStore()
	pipeline := NewPipeline(store, logger.NewNop())

	err := pipeline.Ingest(context.Background(), "NOBODY", http.Header{}, []byte("{}"))
	assert.True(t, domainerrors.IsNotFound(err))
}

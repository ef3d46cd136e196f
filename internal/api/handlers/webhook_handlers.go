package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/poolcard/poolcard_service/internal/adapters/synctera"
	"github.com/poolcard/poolcard_service/internal/webhooks"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

const maxWebhookBodySize = 1 << 20 // 1MB

// WebhookHandler serves the unauthenticated provider webhook endpoints.
// Signature verification inside the pipeline is the only gate.
type WebhookHandler struct {
	pipeline *webhooks.Pipeline
	log      *logger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(pipeline *webhooks.Pipeline, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline, log: log}
}

// Receive handles POST /webhooks/baas/:provider. The raw body is kept
// byte-for-byte for signature verification before any parsing.
func (h *WebhookHandler) Receive(c *gin.Context) {
	h.ingest(c, c.Param("provider"))
}

// ReceiveSynctera handles POST /webhooks/synctera
func (h *WebhookHandler) ReceiveSynctera(c *gin.Context) {
	h.ingest(c, synctera.ProviderName)
}

func (h *WebhookHandler) ingest(c *gin.Context, providerName string) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, "failed to read request body")
		return
	}

	if err := h.pipeline.Ingest(c.Request.Context(), providerName, c.Request.Header, body); err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

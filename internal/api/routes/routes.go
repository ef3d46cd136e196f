// Package routes wires the HTTP surface onto the gin engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poolcard/poolcard_service/internal/api/handlers"
	"github.com/poolcard/poolcard_service/internal/api/middleware"
	"github.com/poolcard/poolcard_service/internal/infrastructure/cache"
	"github.com/poolcard/poolcard_service/internal/infrastructure/config"
	"github.com/poolcard/poolcard_service/pkg/idempotency"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Ledger       *handlers.LedgerHandler
	Withdrawals  *handlers.WithdrawalHandler
	FundingRoute *handlers.FundingRouteHandler
	Webhooks     *handlers.WebhookHandler
	Health       *handlers.HealthHandler
}

// Setup builds the gin engine with the full middleware chain and routes
func Setup(cfg *config.Config, h Handlers, redis *cache.RedisClient, log *logger.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.SecurityHeaders(),
		middleware.CORS(),
		middleware.RequestSizeLimit(),
	)

	limiter := middleware.NewRateLimiter(50, 100)

	router.GET("/health", h.Health.Live)
	router.GET("/health/ready", h.Health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// webhooks are unauthenticated; the signature is the credential
	webhookGroup := v1.Group("/webhooks")
	webhookGroup.Use(limiter.Middleware())
	{
		webhookGroup.POST("/baas/:provider", h.Webhooks.Receive)
		webhookGroup.POST("/synctera", h.Webhooks.ReceiveSynctera)
	}

	authed := v1.Group("")
	authed.Use(limiter.Middleware(), middleware.Auth(cfg.JWTSecret))
	if redis != nil {
		authed.Use(idempotency.Middleware(redis, log))
	}
	{
		ledgerGroup := authed.Group("/ledger")
		{
			ledgerGroup.POST("/cards/:cardId/deposit", h.Ledger.Deposit)
			ledgerGroup.POST("/cards/:cardId/withdraw", h.Ledger.Withdraw)
			ledgerGroup.POST("/cards/:cardId/capture", h.Ledger.Capture)
			ledgerGroup.GET("/cards/:cardId/reconciliation", h.Ledger.Reconciliation)
			ledgerGroup.GET("/cards/:cardId/entries", h.Ledger.Entries)
			ledgerGroup.GET("/wallets/:walletId/reconciliation", h.Ledger.WalletReconciliation)
		}

		walletGroup := authed.Group("/wallet/:walletId")
		{
			walletGroup.POST("/withdrawals", h.Withdrawals.Create)
			walletGroup.GET("/withdrawals", h.Withdrawals.List)
			walletGroup.GET("/withdrawals/:withdrawalId", h.Withdrawals.Get)
			walletGroup.POST("/withdrawals/:withdrawalId/cancel", h.Withdrawals.Cancel)

			walletGroup.POST("/funding-routes", h.FundingRoute.Upsert)
			walletGroup.GET("/funding-routes", h.FundingRoute.List)
		}
	}

	return router
}

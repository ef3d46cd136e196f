package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/poolcard/poolcard_service/internal/adapters/baas"
	"github.com/poolcard/poolcard_service/internal/adapters/synctera"
	"github.com/poolcard/poolcard_service/internal/api/handlers"
	"github.com/poolcard/poolcard_service/internal/api/routes"
	"github.com/poolcard/poolcard_service/internal/domain/entities"
	"github.com/poolcard/poolcard_service/internal/domain/services/cardprogram"
	"github.com/poolcard/poolcard_service/internal/domain/services/funding"
	"github.com/poolcard/poolcard_service/internal/domain/services/ledger"
	"github.com/poolcard/poolcard_service/internal/domain/services/splitting"
	"github.com/poolcard/poolcard_service/internal/domain/services/withdrawal"
	"github.com/poolcard/poolcard_service/internal/infrastructure/cache"
	"github.com/poolcard/poolcard_service/internal/infrastructure/config"
	"github.com/poolcard/poolcard_service/internal/infrastructure/database"
	"github.com/poolcard/poolcard_service/internal/infrastructure/repositories"
	"github.com/poolcard/poolcard_service/internal/webhooks"
	"github.com/poolcard/poolcard_service/pkg/graceful"
	"github.com/poolcard/poolcard_service/pkg/logger"
	"github.com/poolcard/poolcard_service/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	ctx := context.Background()

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.OTLPEndpoint,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     !cfg.IsProduction(),
	}, log)
	if err != nil {
		log.Fatal("failed to initialize tracing", "error", err)
	}

	db, err := database.NewConnection(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(cfg.DatabaseURL, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	redis, err := cache.NewRedisClient(cfg.Redis, log)
	if err != nil {
		// idempotency caching degrades gracefully without redis
		log.Warn("redis unavailable, idempotency caching disabled", "error", err)
		redis = nil
	}

	// repositories
	ledgerRepo := repositories.NewLedgerRepository(db)
	cardRepo := repositories.NewCardRepository(db)
	walletRepo := repositories.NewWalletRepository(db)
	withdrawalRepo := repositories.NewWithdrawalRepository(db)
	eventRepo := repositories.NewEventRepository(db)
	routeRepo := repositories.NewFundingRouteRepository(db)

	// domain services
	engine := ledger.NewEngine(ledgerRepo, log)
	ledgerSvc := ledger.NewService(ledgerRepo, engine, cardRepo, walletRepo, log)
	splitter := splitting.NewService(walletRepo, log)
	cardProgram := cardprogram.NewService(cardRepo, cardRepo, ledgerSvc, splitter, db, log)
	fundingSvc := funding.NewService(routeRepo, ledgerSvc, log)

	var provider baas.Provider
	switch cfg.BaasProvider {
	case synctera.ProviderName:
		provider = synctera.NewAdapter(cfg.Synctera, log)
	default:
		provider = baas.NewMockProvider(cfg.MockWebhookSecret)
	}
	log.Info("baas provider configured", "provider", provider.Name())

	withdrawalSvc := withdrawal.NewService(withdrawalRepo, ledgerSvc, cardRepo, provider, log)

	// webhook pipeline
	pipeline := webhooks.NewPipeline(eventRepo, log)
	pipeline.RegisterProvider(provider)
	pipeline.RegisterHandler(entities.EventTypeCardAuth, func(ctx context.Context, event *entities.NormalizedEvent) error {
		_, err := cardProgram.HandleAuth(ctx, event)
		return err
	})
	pipeline.RegisterHandler(entities.EventTypeCardClearing, cardProgram.HandleClearing)
	pipeline.RegisterHandler(entities.EventTypeCardReversal, cardProgram.HandleReversal)
	pipeline.RegisterHandler(entities.EventTypeCardStatus, cardProgram.HandleCardStatus)
	pipeline.RegisterHandler(entities.EventTypeDeposit, fundingSvc.HandleDeposit)
	pipeline.RegisterHandler(entities.EventTypePayoutStatus, withdrawalSvc.HandlePayoutStatus)
	pipeline.RegisterHandler(entities.EventTypeAccountStatus, func(_ context.Context, event *entities.NormalizedEvent) error {
		log.Info("account status update", "provider_account_id", event.ProviderAccountID, "status", event.Status)
		return nil
	})
	pipeline.RegisterHandler(entities.EventTypeKYCStatus, func(_ context.Context, event *entities.NormalizedEvent) error {
		log.Info("kyc status update", "provider_account_id", event.ProviderAccountID, "status", event.Status)
		return nil
	})

	// background jobs
	sweeper := cardprogram.NewSweeper(cardProgram, time.Duration(cfg.HoldTTLHours)*time.Hour, log)
	if err := sweeper.Start(); err != nil {
		log.Fatal("failed to start hold sweeper", "error", err)
	}

	auditor := ledger.NewAuditor(ledgerSvc, cardRepo, log)
	if err := auditor.Start(); err != nil {
		log.Fatal("failed to start reconciliation auditor", "error", err)
	}

	// HTTP surface
	router := routes.Setup(cfg, routes.Handlers{
		Ledger:       handlers.NewLedgerHandler(ledgerSvc, cardRepo, cardRepo, log),
		Withdrawals:  handlers.NewWithdrawalHandler(withdrawalSvc, cardRepo, log),
		FundingRoute: handlers.NewFundingRouteHandler(fundingSvc, walletRepo, log),
		Webhooks:     handlers.NewWebhookHandler(pipeline, log),
		Health:       handlers.NewHealthHandler(db, redis),
	}, redis, log)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdown := graceful.NewShutdownManager(server, log)
	shutdown.Register("hold_sweeper", sweeper)
	shutdown.Register("reconciliation_auditor", auditor)
	shutdown.RegisterCloser("database", db.Close)
	if redis != nil {
		shutdown.RegisterCloser("redis", redis.Close)
	}
	shutdown.RegisterContext("tracer", shutdownTracer)

	go func() {
		log.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err)
		}
	}()

	shutdown.WaitForShutdown()
}

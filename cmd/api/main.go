package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/config"
	"github.com/MihaCh13/PaySafe--Hackathon/db/migrations"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/catalog"
	httpHandler "github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/handler"
	pgStorage "github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/storage/postgres"
	redisStorage "github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/storage/redis"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/notification"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/service"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/logger"

	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting PaySafe Ledger")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if err := pgStorage.ApplyMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	accountRepo := pgStorage.NewAccountRepo(pool)
	entryRepo := pgStorage.NewEntryRepo(pool)
	escrowRepo := pgStorage.NewEscrowRepo(pool)
	loanRepo := pgStorage.NewLoanRepo(pool)
	subscriptionRepo := pgStorage.NewSubscriptionRepo(pool)
	obligationRepo := pgStorage.NewObligationRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	opClaims := redisStorage.NewOpClaimStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Event notifier: webhook when configured, log-only otherwise
	var notifier ports.Notifier
	if cfg.Notifier.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.Notifier, log)
		log.Info().Str("url", cfg.Notifier.WebhookURL).Msg("Webhook notifier enabled")
	} else {
		notifier = notification.NewLogNotifier(log)
	}

	// Listing catalog
	var listings []domain.Listing
	if cfg.Catalog.File != "" {
		listings, err = catalog.LoadFile(cfg.Catalog.File)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Catalog.File).Msg("Failed to load listing catalog")
		}
		log.Info().Int("listings", len(listings)).Msg("Listing catalog loaded")
	}
	listingCatalog := catalog.NewStaticCatalog(listings)

	// Initialize core services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	transferSvc := service.NewTransferService(
		accountRepo,
		entryRepo,
		idempotencyCache,
		opClaims,
		notifier,
		transactor,
		cfg.Ledger,
		log,
	)
	escrowSvc := service.NewEscrowService(escrowRepo, accountRepo, listingCatalog, transferSvc, notifier, transactor, cfg.Ledger, log)
	budgetSvc := service.NewBudgetService(accountRepo, entryRepo, transferSvc, log)
	loanSvc := service.NewLoanService(loanRepo, accountRepo, transferSvc, notifier, transactor, cfg.Ledger, log)
	subscriptionSvc := service.NewSubscriptionService(subscriptionRepo, obligationRepo, accountRepo, entryRepo, transferSvc, cfg.Scheduler, log)
	accountSvc := service.NewAccountService(accountRepo, log)
	reportingSvc := service.NewReportingService(accountRepo, entryRepo, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AccountSvc:      accountSvc,
		TransferSvc:     transferSvc,
		EscrowSvc:       escrowSvc,
		BudgetSvc:       budgetSvc,
		LoanSvc:         loanSvc,
		SubscriptionSvc: subscriptionSvc,
		ReportingSvc:    reportingSvc,
		TokenSvc:        tokenSvc,
		RateLimitStore:  rateLimitStore,
		HealthCheckers:  []ports.HealthChecker{pgHealth, redisHealth},
		TokenMint:       cfg.Server.Mode != "release",
		Logger:          log,
	})

	// Background subscription scheduler
	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	if cfg.Scheduler.SyncInterval > 0 {
		go runScheduler(schedCtx, subscriptionSvc, cfg.Scheduler.SyncInterval, log)
		log.Info().Dur("interval", cfg.Scheduler.SyncInterval).Msg("Subscription scheduler started")
	}

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// runScheduler drives the subscription scheduler: each tick materializes
// upcoming obligations and then charges everything due. Both calls are
// idempotent, so a missed or doubled tick never double-charges.
func runScheduler(ctx context.Context, subs ports.SubscriptionService, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if report, err := subs.SyncAll(ctx); err != nil {
				log.Error().Err(err).Msg("Subscription sync failed")
			} else if report.Created > 0 {
				log.Info().Int("created", report.Created).Msg("Subscription obligations materialized")
			}

			if report, err := subs.RunDue(ctx, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("Subscription charge run failed")
			} else if report.Due > 0 {
				log.Info().
					Int("due", report.Due).
					Int("settled", report.Settled).
					Int("failed", report.Failed).
					Msg("Subscription charges processed")
			}
		}
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rps-wager-system/config"
	"rps-wager-system/coordinator"
	"rps-wager-system/handlers"
	"rps-wager-system/middleware"
	"rps-wager-system/models"
	"rps-wager-system/services"
	"rps-wager-system/utils"
	"rps-wager-system/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	var receipts services.ReceiptStore
	if cfg.R2.Enabled() {
		archiver, err := utils.NewR2Archiver(ctx, utils.R2Options{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
			PublicBaseURL:   cfg.R2.PublicBaseURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		receipts = archiver
	} else {
		log.Warn().Msg("⚠️  R2_BUCKET_NAME not set, settlement receipts are not archived")
	}

	ledger := services.NewLedger(db, receipts)
	registry := coordinator.NewRegistry()
	joins := coordinator.NewJoinCoordinator(registry, ledger, cfg.JoinPollInterval)
	moves := coordinator.NewMoveCoordinator(registry, ledger, ledger, cfg.MovePollInterval)

	matchService := services.NewMatchService(ledger, joins, moves)
	accountService := services.NewAccountService(ledger, cfg.StartingBalance)

	janitor := workers.NewMatchJanitor(registry, ledger, moves, cfg.MatchAbandonAfter, cfg.MatchJanitorInterval)
	if err := janitor.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start match janitor")
	}
	if cfg.ProfileSyncURL != "" {
		workers.NewProfileSyncWorker(db, cfg.ProfileSyncURL, cfg.GameServiceToken, cfg.ProfileSyncInterval).Start(ctx)
	}

	app := fiber.New(fiber.Config{
		// SSE streams stay open for the whole match
		IdleTimeout: 5 * time.Minute,
	})

	handlers.SetupSystemRoutes(app, db)

	// 🔐❗ GLOBAL: Only Gateway requests allowed past this point
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken))

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-User-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	limiter := middleware.NewUserLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	handlers.SetupAccountRoutes(app, accountService, limiter)
	handlers.SetupMatchRoutes(app, matchService, limiter)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("✅ Server running")
	log.Info().Str("origins", allowedOrigins).Msg("✅ CORS configured")

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if n := moves.Unsettled(); n > 0 {
		log.Warn().Int("unsettled", n).Msg("exiting with unsettled matches")
	}
}

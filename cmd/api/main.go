package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/bots"
	"github.com/skins-market/backend/internal/config"
	"github.com/skins-market/backend/internal/db"
	"github.com/skins-market/backend/internal/events"
	apphttp "github.com/skins-market/backend/internal/http"
	"github.com/skins-market/backend/internal/http/handlers"
	"github.com/skins-market/backend/internal/repositories"
	"github.com/skins-market/backend/internal/services"
	"github.com/skins-market/backend/internal/steam"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	listingRepo := repositories.NewListingRepo(pool)
	tradeRepo := repositories.NewTradeRepo(pool)
	ledgerRepo := repositories.NewLedgerRepo(pool, cfg.PlatformAccountID, log)
	notifRepo := repositories.NewNotificationRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Steam bridge + bots. The API never drives offers itself, but the cancel
	// path withdraws outstanding ones, so it gets the same delivery service
	// wired to the shared session store.
	steamClient := steam.NewClient(cfg.SteamBridgeURL, cfg.SteamTimeoutMS, cfg.SteamRateLimitRPS, cfg.SteamRateLimitBurst, log)
	sessionStore := bots.NewSessionStore(rdb, log)
	registry := bots.NewRegistry(log)
	botManager := bots.NewManager(registry, sessionStore, steamClient, cfg, log)
	deliveryService := services.NewDeliveryService(steamClient, botManager, cfg.DeliveryMaxAttempts, cfg.DeliveryBackoffBase, cfg.DeliveryBackoffMax, log)

	// Services
	tradeService := services.NewTradeService(tradeRepo, listingRepo, ledgerRepo, notifRepo, registry, deliveryService, publisher, cfg, log)
	listingService := services.NewListingService(listingRepo, log)
	walletService := services.NewWalletService(ledgerRepo, notifRepo, log)

	// Handlers
	listingHandler := handlers.NewListingHandler(listingService, log)
	tradeHandler := handlers.NewTradeHandler(tradeService, log)
	paymentHandler := handlers.NewPaymentHandler(tradeService, log)
	walletHandler := handlers.NewWalletHandler(walletService, log)
	botHandler := handlers.NewBotHandler(cfg, sessionStore, tradeRepo, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, listingHandler, tradeHandler, paymentHandler, walletHandler, botHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

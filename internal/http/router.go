package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/config"
	"github.com/skins-market/backend/internal/http/handlers"
	"github.com/skins-market/backend/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	listingHandler *handlers.ListingHandler,
	tradeHandler *handlers.TradeHandler,
	paymentHandler *handlers.PaymentHandler,
	walletHandler *handlers.WalletHandler,
	botHandler *handlers.BotHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Collaborator webhooks (shared-secret, no user auth)
	internal := api.Group("", middleware.InternalMiddleware(cfg))
	internal.Post("/payments/confirm", paymentHandler.ConfirmPayment)
	internal.Post("/wallet/credit", walletHandler.CreditWallet)

	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Listings
	protected.Post("/listings", listingHandler.CreateListing)
	protected.Get("/listings", listingHandler.ListListings)
	protected.Get("/listings/:id", listingHandler.GetListing)
	protected.Delete("/listings/:id", listingHandler.RemoveListing)

	// Trades
	protected.Post("/trades", tradeHandler.CreateTrade)
	protected.Get("/trades", tradeHandler.ListTrades)
	protected.Get("/trades/:id", tradeHandler.GetTrade)
	protected.Post("/trades/:id/cancel", tradeHandler.CancelTrade)
	protected.Post("/trades/:id/retry", tradeHandler.RetryTrade)

	// Wallet and notifications
	protected.Get("/me/balance", walletHandler.GetBalance)
	protected.Get("/notifications", walletHandler.GetNotifications)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Get("/bots", botHandler.ListBots)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/bots"
	"github.com/skins-market/backend/internal/config"
	"github.com/skins-market/backend/internal/db"
	"github.com/skins-market/backend/internal/events"
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

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	listingRepo := repositories.NewListingRepo(pool)
	tradeRepo := repositories.NewTradeRepo(pool)
	ledgerRepo := repositories.NewLedgerRepo(pool, cfg.PlatformAccountID, log)
	notifRepo := repositories.NewNotificationRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Bots and delivery
	steamClient := steam.NewClient(cfg.SteamBridgeURL, cfg.SteamTimeoutMS, cfg.SteamRateLimitRPS, cfg.SteamRateLimitBurst, log)
	sessionStore := bots.NewSessionStore(rdb, log)
	registry := bots.NewRegistry(log)
	botManager := bots.NewManager(registry, sessionStore, steamClient, cfg, log)
	deliveryService := services.NewDeliveryService(steamClient, botManager, cfg.DeliveryMaxAttempts, cfg.DeliveryBackoffBase, cfg.DeliveryBackoffMax, log)

	tradeService := services.NewTradeService(tradeRepo, listingRepo, ledgerRepo, notifRepo, registry, deliveryService, publisher, cfg, log)

	// Bring the fleet online, seed load counters from DB truth so a restart
	// does not forget slots held by in-flight trades, then resume any trade
	// stranded between persisted steps by the previous run.
	botManager.StartAll(ctx)
	runReconcile(ctx, tradeRepo, botManager, log)
	runRecovery(ctx, tradeService, log)

	// Fast paths: payment confirmations and manual retries arrive over Redis;
	// the sweeps below remain the safety net when a message is missed.
	_ = subscriber.Subscribe(ctx, events.StreamPayment, func(event events.Event) {
		if id := eventTradeID(event); id != uuid.Nil {
			if err := tradeService.AssignAndSend(ctx, id); err != nil {
				log.Error("assignment failed", zap.String("trade_id", id.String()), zap.Error(err))
			}
		}
	})
	_ = subscriber.Subscribe(ctx, events.StreamRetry, func(event events.Event) {
		if id := eventTradeID(event); id != uuid.Nil {
			if err := tradeService.RetryDelivery(ctx, id); err != nil {
				log.Error("retry failed", zap.String("trade_id", id.String()), zap.Error(err))
			}
		}
	})

	log.Info("worker started", zap.Int("bots", len(cfg.BotAccounts)))

	assignTicker := time.NewTicker(30 * time.Second)
	pollTicker := time.NewTicker(15 * time.Second)
	expiryTicker := time.NewTicker(1 * time.Minute)
	recoveryTicker := time.NewTicker(1 * time.Minute)
	reconcileTicker := time.NewTicker(2 * time.Minute)
	sessionTicker := time.NewTicker(10 * time.Minute)
	defer assignTicker.Stop()
	defer pollTicker.Stop()
	defer expiryTicker.Stop()
	defer recoveryTicker.Stop()
	defer reconcileTicker.Stop()
	defer sessionTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-assignTicker.C:
			runAssignment(ctx, tradeService, log)
		case <-pollTicker.C:
			runOfferPoll(ctx, tradeService, log)
		case <-expiryTicker.C:
			runExpiry(ctx, tradeService, log)
		case <-recoveryTicker.C:
			runRecovery(ctx, tradeService, log)
		case <-reconcileTicker.C:
			runReconcile(ctx, tradeRepo, botManager, log)
		case <-sessionTicker.C:
			botManager.RefreshSessions(ctx)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func eventTradeID(event events.Event) uuid.UUID {
	s, _ := event.Payload["trade_id"].(string)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// runAssignment picks up paid trades that missed the fast path.
func runAssignment(ctx context.Context, tradeService *services.TradeService, log *zap.Logger) {
	trades, err := tradeService.Assignable(ctx, 50)
	if err != nil {
		log.Error("failed to list assignable trades", zap.Error(err))
		return
	}
	for _, t := range trades {
		if err := tradeService.AssignAndSend(ctx, t.ID); err != nil {
			log.Error("assignment failed", zap.String("trade_id", t.ID.String()), zap.Error(err))
		}
	}
}

func runOfferPoll(ctx context.Context, tradeService *services.TradeService, log *zap.Logger) {
	trades, err := tradeService.OpenOffers(ctx, 100)
	if err != nil {
		log.Error("failed to list open offers", zap.Error(err))
		return
	}
	for _, t := range trades {
		if err := tradeService.PollTrade(ctx, t); err != nil {
			log.Warn("offer poll failed",
				zap.String("trade_id", t.ID.String()), zap.Error(err))
		}
	}
}

func runExpiry(ctx context.Context, tradeService *services.TradeService, log *zap.Logger) {
	if err := tradeService.ExpireStale(ctx, 100); err != nil {
		log.Error("expiry sweep failed", zap.Error(err))
	}
}

// runRecovery resumes trades stranded mid-leg: accepted pickups whose
// delivery never started, accepted deliveries whose settlement never ran,
// and sends that died before the offer id was recorded.
func runRecovery(ctx context.Context, tradeService *services.TradeService, log *zap.Logger) {
	if err := tradeService.ResumeStalled(ctx, 100); err != nil {
		log.Error("recovery sweep failed", zap.Error(err))
	}
}

func runReconcile(ctx context.Context, tradeRepo *repositories.TradeRepo, botManager *bots.Manager, log *zap.Logger) {
	counts, err := tradeRepo.CountActiveByBot(ctx)
	if err != nil {
		log.Error("failed to count active trades by bot", zap.Error(err))
		return
	}
	botManager.Reconcile(counts)
}

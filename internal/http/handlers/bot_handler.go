package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/bots"
	"github.com/skins-market/backend/internal/config"
	"github.com/skins-market/backend/internal/http/dto"
	"github.com/skins-market/backend/internal/models"
	"github.com/skins-market/backend/internal/repositories"
)

// BotHandler exposes the bot fleet to admins. The worker owns the live
// registry, so the API composes its view from shared truth: configured
// accounts, stored sessions and in-flight trade counts.
type BotHandler struct {
	cfg      *config.Config
	sessions *bots.SessionStore
	trades   *repositories.TradeRepo
	log      *zap.Logger
}

func NewBotHandler(cfg *config.Config, sessions *bots.SessionStore, trades *repositories.TradeRepo, log *zap.Logger) *BotHandler {
	return &BotHandler{cfg: cfg, sessions: sessions, trades: trades, log: log}
}

func (h *BotHandler) ListBots(c *fiber.Ctx) error {
	counts, err := h.trades.CountActiveByBot(c.Context())
	if err != nil {
		h.log.Error("count active trades by bot failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	fleet := make([]models.Bot, 0, len(h.cfg.BotAccounts))
	for _, account := range h.cfg.BotAccounts {
		bot := models.Bot{
			Handle:       account.Handle,
			MaxTrades:    account.MaxTrades,
			ActiveTrades: counts[account.Handle],
			Status:       models.BotStatusOffline,
		}
		session, err := h.sessions.Load(c.Context(), account.Handle)
		if err == nil {
			bot.Status = models.BotStatusOnline
			bot.SessionExpiresAt = session.ExpiresAt
		} else if !errors.Is(err, bots.ErrSessionNotFound) {
			h.log.Warn("session lookup failed", zap.String("bot", account.Handle), zap.Error(err))
		}
		fleet = append(fleet, bot)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: fleet})
}

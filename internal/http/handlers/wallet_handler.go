package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/http/dto"
	"github.com/skins-market/backend/internal/middleware"
	"github.com/skins-market/backend/internal/services"
)

type WalletHandler struct {
	walletService *services.WalletService
	log           *zap.Logger
}

func NewWalletHandler(walletService *services.WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{walletService: walletService, log: log}
}

func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	balance, err := h.walletService.Balance(c.Context(), userID)
	if err != nil {
		h.log.Error("get balance failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.BalanceResponse{
		UserID:  userID.String(),
		Balance: balance.StringFixed(2),
	}})
}

// GetNotifications serves the durable catch-up feed. since is RFC3339; absent
// means the last 24 hours.
func (h *WalletHandler) GetNotifications(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	since := time.Now().Add(-24 * time.Hour)
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid since, expected RFC3339"})
		}
		since = t
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	events, err := h.walletService.MissedEvents(c.Context(), userID, since, limit)
	if err != nil {
		h.log.Error("list notifications failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: events})
}

// CreditWallet is the wallet collaborator's top-up hook, internal-token only.
func (h *WalletHandler) CreditWallet(c *fiber.Ctx) error {
	var req dto.CreditWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid user_id"})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid amount"})
	}

	if err := h.walletService.Credit(c.Context(), userID, amount); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/http/dto"
	"github.com/skins-market/backend/internal/repositories"
	"github.com/skins-market/backend/internal/services"
)

// PaymentHandler receives the payment collaborator's capture webhook. The
// route sits behind the internal-token middleware, not user auth.
type PaymentHandler struct {
	tradeService *services.TradeService
	log          *zap.Logger
}

func NewPaymentHandler(tradeService *services.TradeService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{tradeService: tradeService, log: log}
}

func (h *PaymentHandler) ConfirmPayment(c *fiber.Ctx) error {
	var req dto.ConfirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	tradeID, err := uuid.Parse(req.TradeID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid trade_id"})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid amount"})
	}

	if err := h.tradeService.ConfirmPayment(c.Context(), tradeID, amount); err != nil {
		switch {
		case errors.Is(err, repositories.ErrInsufficientFunds):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "insufficient funds"})
		case errors.Is(err, repositories.ErrConflict):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		default:
			h.log.Error("payment confirm failed",
				zap.String("trade_id", tradeID.String()), zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

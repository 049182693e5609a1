package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/http/dto"
	"github.com/skins-market/backend/internal/middleware"
	"github.com/skins-market/backend/internal/repositories"
	"github.com/skins-market/backend/internal/services"
)

type TradeHandler struct {
	tradeService *services.TradeService
	log          *zap.Logger
}

func NewTradeHandler(tradeService *services.TradeService, log *zap.Logger) *TradeHandler {
	return &TradeHandler{tradeService: tradeService, log: log}
}

func (h *TradeHandler) CreateTrade(c *fiber.Ctx) error {
	var req dto.CreateTradeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid listing_id"})
	}

	buyerID := middleware.GetUserID(c)
	trade, err := h.tradeService.CreateTrade(c.Context(), buyerID, listingID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: trade})
}

func (h *TradeHandler) GetTrade(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid trade id"})
	}

	trade, err := h.tradeService.GetTrade(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, services.ErrNotParticipant) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "access denied"})
		}
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "trade not found"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: trade})
}

func (h *TradeHandler) ListTrades(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	filter := repositories.TradeFilter{
		Limit:  20,
		Offset: 0,
	}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}

	switch c.Query("role") {
	case "seller":
		filter.SellerUserID = &userID
	default:
		filter.BuyerUserID = &userID
	}

	trades, err := h.tradeService.ListTrades(c.Context(), filter)
	if err != nil {
		h.log.Error("list trades failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: trades})
}

func (h *TradeHandler) CancelTrade(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid trade id"})
	}

	var req dto.CancelTradeRequest
	_ = c.BodyParser(&req) // reason is optional

	actorID := middleware.GetUserID(c)
	if err := h.tradeService.CancelTrade(c.Context(), id, actorID, req.Reason); err != nil {
		switch {
		case errors.Is(err, services.ErrNotParticipant):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "access denied"})
		case errors.Is(err, services.ErrTradeTerminal), errors.Is(err, repositories.ErrConflict):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		default:
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *TradeHandler) RetryTrade(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid trade id"})
	}

	actorID := middleware.GetUserID(c)
	if err := h.tradeService.RequestRetry(c.Context(), id, actorID); err != nil {
		if errors.Is(err, services.ErrNotParticipant) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "access denied"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true})
}

package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/http/dto"
	"github.com/skins-market/backend/internal/middleware"
	"github.com/skins-market/backend/internal/repositories"
	"github.com/skins-market/backend/internal/services"
)

type ListingHandler struct {
	listingService *services.ListingService
	log            *zap.Logger
}

func NewListingHandler(listingService *services.ListingService, log *zap.Logger) *ListingHandler {
	return &ListingHandler{listingService: listingService, log: log}
}

func (h *ListingHandler) CreateListing(c *fiber.Ctx) error {
	var req dto.CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid price"})
	}

	sellerID := middleware.GetUserID(c)
	listing, err := h.listingService.Create(c.Context(), sellerID, req.AssetID, req.Title, req.ItemMeta, price)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: listing})
}

func (h *ListingHandler) GetListing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid listing id"})
	}

	listing, err := h.listingService.Get(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "listing not found"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: listing})
}

func (h *ListingHandler) ListListings(c *fiber.Ctx) error {
	filter := repositories.ListingFilter{
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
	if c.Query("mine") == "true" {
		sellerID := middleware.GetUserID(c)
		filter.SellerUserID = &sellerID
	}

	listings, err := h.listingService.List(c.Context(), filter)
	if err != nil {
		h.log.Error("list listings failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: listings})
}

func (h *ListingHandler) RemoveListing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid listing id"})
	}

	if err := h.listingService.Remove(c.Context(), id, middleware.GetUserID(c)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/models"
	"github.com/skins-market/backend/internal/repositories"
)

type ListingService struct {
	listings *repositories.ListingRepo
	log      *zap.Logger
}

func NewListingService(listings *repositories.ListingRepo, log *zap.Logger) *ListingService {
	return &ListingService{listings: listings, log: log}
}

func (s *ListingService) Create(ctx context.Context, sellerID uuid.UUID, assetID, title string, itemMeta json.RawMessage, price decimal.Decimal) (*models.Listing, error) {
	if assetID == "" {
		return nil, fmt.Errorf("asset_id is required")
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("price must be positive")
	}

	listing := &models.Listing{
		SellerUserID: sellerID,
		AssetID:      assetID,
		Title:        title,
		ItemMeta:     itemMeta,
		Price:        price.Round(2),
		Status:       models.ListingStatusActive,
	}
	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *ListingService) Get(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return s.listings.GetByID(ctx, id)
}

func (s *ListingService) List(ctx context.Context, f repositories.ListingFilter) ([]models.Listing, error) {
	return s.listings.List(ctx, f)
}

// Remove takes an active listing off the market. Reserved and sold listings
// cannot be removed; the trade owns them.
func (s *ListingService) Remove(ctx context.Context, id, sellerID uuid.UUID) error {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if listing.SellerUserID != sellerID {
		return fmt.Errorf("listing belongs to another seller")
	}
	return s.listings.UpdateStatus(ctx, id, models.ListingStatusActive, models.ListingStatusRemoved)
}

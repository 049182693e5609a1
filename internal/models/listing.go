package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Listing statuses
const (
	ListingStatusActive   = "active"
	ListingStatusReserved = "reserved" // an open trade holds the item
	ListingStatusSold     = "sold"
	ListingStatusRemoved  = "removed"
)

type Listing struct {
	ID           uuid.UUID       `json:"id"`
	SellerUserID uuid.UUID       `json:"seller_user_id"`
	AssetID      string          `json:"asset_id"`
	Title        string          `json:"title"`
	ItemMeta     json.RawMessage `json:"item_meta,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

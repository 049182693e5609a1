package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade statuses
const (
	TradeStatusPendingPayment  = "pending_payment"
	TradeStatusPaymentReceived = "payment_received"
	TradeStatusAwaitingSeller  = "awaiting_seller"
	TradeStatusSellerAccepted  = "seller_accepted"
	TradeStatusAwaitingBuyer   = "awaiting_buyer"
	TradeStatusBuyerAccepted   = "buyer_accepted"
	TradeStatusCompleted       = "completed"
	TradeStatusErrorSending    = "error_sending"
	TradeStatusCancelled       = "cancelled"
	TradeStatusRefunded        = "refunded"
	TradeStatusExpired         = "expired"
)

// Valid state transitions: from -> []to
var ValidTradeTransitions = map[string][]string{
	TradeStatusPendingPayment:  {TradeStatusPaymentReceived, TradeStatusCancelled, TradeStatusExpired},
	TradeStatusPaymentReceived: {TradeStatusAwaitingSeller, TradeStatusCancelled, TradeStatusRefunded, TradeStatusExpired},
	TradeStatusAwaitingSeller:  {TradeStatusSellerAccepted, TradeStatusErrorSending, TradeStatusCancelled, TradeStatusRefunded, TradeStatusExpired},
	TradeStatusSellerAccepted:  {TradeStatusAwaitingBuyer, TradeStatusErrorSending, TradeStatusCancelled, TradeStatusRefunded, TradeStatusExpired},
	TradeStatusAwaitingBuyer:   {TradeStatusBuyerAccepted, TradeStatusErrorSending, TradeStatusCancelled, TradeStatusRefunded, TradeStatusExpired},
	TradeStatusBuyerAccepted:   {TradeStatusCompleted, TradeStatusCancelled, TradeStatusRefunded, TradeStatusExpired},
	// Retry re-enters the leg that failed; cancel-and-refund is the manual way out.
	TradeStatusErrorSending: {TradeStatusAwaitingSeller, TradeStatusAwaitingBuyer, TradeStatusCancelled, TradeStatusRefunded, TradeStatusExpired},
	TradeStatusCompleted:    {},
	TradeStatusCancelled:    {},
	TradeStatusRefunded:     {},
	TradeStatusExpired:      {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidTradeTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalStatus(status string) bool {
	switch status {
	case TradeStatusCompleted, TradeStatusCancelled, TradeStatusRefunded, TradeStatusExpired:
		return true
	}
	return false
}

// Human-readable labels shown to buyers/sellers alongside every event.
var TradeStatusLabels = map[string]string{
	TradeStatusPendingPayment:  "Waiting for payment",
	TradeStatusPaymentReceived: "Payment received, assigning a trade bot",
	TradeStatusAwaitingSeller:  "Waiting for the seller to hand the item to our bot",
	TradeStatusSellerAccepted:  "Item received by our bot",
	TradeStatusAwaitingBuyer:   "Delivery offer sent, waiting for the buyer to accept",
	TradeStatusBuyerAccepted:   "Item accepted by the buyer",
	TradeStatusCompleted:       "Trade completed",
	TradeStatusErrorSending:    "Delivery problem, retry or cancel for a refund",
	TradeStatusCancelled:       "Trade cancelled",
	TradeStatusRefunded:        "Trade refunded",
	TradeStatusExpired:         "Trade expired",
}

func StatusLabel(status string) string {
	if l, ok := TradeStatusLabels[status]; ok {
		return l
	}
	return status
}

type Trade struct {
	ID           uuid.UUID       `json:"id"`
	ListingID    uuid.UUID       `json:"listing_id"`
	BuyerUserID  uuid.UUID       `json:"buyer_user_id"`
	SellerUserID uuid.UUID       `json:"seller_user_id"`
	AssetID      string          `json:"asset_id"`
	ItemMeta     json.RawMessage `json:"item_meta,omitempty"` // opaque snapshot, never interpreted
	Price        decimal.Decimal `json:"price"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	SellerPayout decimal.Decimal `json:"seller_payout"`
	AssignedBot  *string         `json:"assigned_bot,omitempty"`
	OfferID      *string         `json:"offer_id,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HoldsBotSlot reports whether a trade in this status occupies a slot on its
// assigned bot. Used to pair every acquire with exactly one release.
func HoldsBotSlot(status string) bool {
	switch status {
	case TradeStatusAwaitingSeller, TradeStatusSellerAccepted, TradeStatusAwaitingBuyer, TradeStatusBuyerAccepted:
		return true
	}
	return false
}

// StatusHistoryEntry is append-only; seq is monotonically increasing per trade.
type StatusHistoryEntry struct {
	ID        uuid.UUID `json:"id"`
	TradeID   uuid.UUID `json:"trade_id"`
	Seq       int       `json:"seq"`
	Status    string    `json:"status"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type TradeWithHistory struct {
	Trade
	History []StatusHistoryEntry `json:"history"`
}

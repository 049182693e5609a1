package dto

import "encoding/json"

type CreateListingRequest struct {
	AssetID  string          `json:"asset_id"`
	Title    string          `json:"title"`
	ItemMeta json.RawMessage `json:"item_meta,omitempty"`
	Price    string          `json:"price"`
}

type CreateTradeRequest struct {
	ListingID string `json:"listing_id"`
}

type CancelTradeRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ConfirmPaymentRequest is posted by the payment collaborator once funds are
// captured for a trade.
type ConfirmPaymentRequest struct {
	TradeID string `json:"trade_id"`
	Amount  string `json:"amount"`
}

// CreditWalletRequest is the wallet collaborator's top-up hook.
type CreditWalletRequest struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

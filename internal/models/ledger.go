package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger entry types. At most one entry of each type exists per trade; the
// (trade_id, entry_type) unique key is what makes every operation idempotent.
const (
	LedgerEntryReserve = "reserve" // buyer funds held on payment capture
	LedgerEntryRelease = "release" // reservation reversed on cancel/expiry
	LedgerEntryRefund  = "refund"  // reservation reversed by explicit refund
	LedgerEntryPayout  = "payout"  // seller credit on completion
	LedgerEntryFee     = "fee"     // platform credit on completion
)

type LedgerEntry struct {
	ID        uuid.UUID       `json:"id"`
	TradeID   uuid.UUID       `json:"trade_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"` // signed
	EntryType string          `json:"entry_type"`
	CreatedAt time.Time       `json:"created_at"`
}

type Balance struct {
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

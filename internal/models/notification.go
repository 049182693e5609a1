package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationEvent is the durable copy of a trade state change. Seq mirrors
// the trade's status-history sequence number, so delivery order is the history
// order.
type NotificationEvent struct {
	ID        uuid.UUID `json:"id"`
	TradeID   uuid.UUID `json:"trade_id"`
	UserID    uuid.UUID `json:"user_id"` // recipient
	Seq       int       `json:"seq"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

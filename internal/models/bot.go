package models

import "time"

// Bot statuses
const (
	BotStatusOnline  = "online"
	BotStatusOffline = "offline"
	BotStatusError   = "error"
)

// Bot is an automated trading account. Identity is the account handle; the
// credential itself lives behind SecretRef and never appears in trade records.
type Bot struct {
	Handle           string    `json:"handle"`
	SecretRef        string    `json:"-"`
	MaxTrades        int       `json:"max_trades"`
	ActiveTrades     int       `json:"active_trades"`
	Status           string    `json:"status"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
	LastAssignedAt   time.Time `json:"last_assigned_at"`
}

// Eligible reports whether the bot can take one more trade right now.
func (b *Bot) Eligible(now time.Time) bool {
	return b.Status == BotStatusOnline &&
		b.ActiveTrades < b.MaxTrades &&
		b.SessionExpiresAt.After(now)
}

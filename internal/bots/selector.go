package bots

import (
	"time"

	"github.com/skins-market/backend/internal/models"
)

// SelectBot picks the eligible bot with the lowest current load; ties go to
// the bot that was assigned least recently, spreading work across the pool.
// Pure function over a snapshot; the registry applies the result under its
// own lock.
func SelectBot(bots []models.Bot, now time.Time) (string, error) {
	var best *models.Bot
	for i := range bots {
		b := &bots[i]
		if !b.Eligible(now) {
			continue
		}
		if best == nil ||
			b.ActiveTrades < best.ActiveTrades ||
			(b.ActiveTrades == best.ActiveTrades && b.LastAssignedAt.Before(best.LastAssignedAt)) {
			best = b
		}
	}
	if best == nil {
		return "", ErrNoBotAvailable
	}
	return best.Handle, nil
}

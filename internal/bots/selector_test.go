package bots

import (
	"errors"
	"testing"
	"time"

	"github.com/skins-market/backend/internal/models"
)

func onlineBot(handle string, active, max int, lastAssigned time.Time) models.Bot {
	return models.Bot{
		Handle:           handle,
		MaxTrades:        max,
		ActiveTrades:     active,
		Status:           models.BotStatusOnline,
		SessionExpiresAt: time.Now().Add(time.Hour),
		LastAssignedAt:   lastAssigned,
	}
}

func TestSelectBot(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		bots    []models.Bot
		want    string
		wantErr error
	}{
		{
			name: "lowest load wins",
			bots: []models.Bot{
				onlineBot("bot_a", 3, 5, now),
				onlineBot("bot_b", 1, 5, now),
				onlineBot("bot_c", 2, 5, now),
			},
			want: "bot_b",
		},
		{
			name: "tie broken by least recently assigned",
			bots: []models.Bot{
				onlineBot("bot_a", 2, 5, now.Add(-time.Minute)),
				onlineBot("bot_b", 2, 5, now.Add(-time.Hour)),
			},
			want: "bot_b",
		},
		{
			name: "full bot skipped",
			bots: []models.Bot{
				onlineBot("bot_a", 5, 5, now.Add(-time.Hour)),
				onlineBot("bot_b", 4, 5, now),
			},
			want: "bot_b",
		},
		{
			name: "offline bot skipped",
			bots: []models.Bot{
				{Handle: "bot_a", MaxTrades: 5, Status: models.BotStatusOffline, SessionExpiresAt: now.Add(time.Hour)},
				onlineBot("bot_b", 4, 5, now),
			},
			want: "bot_b",
		},
		{
			name: "expired session skipped",
			bots: []models.Bot{
				{Handle: "bot_a", MaxTrades: 5, Status: models.BotStatusOnline, SessionExpiresAt: now.Add(-time.Minute)},
				onlineBot("bot_b", 4, 5, now),
			},
			want: "bot_b",
		},
		{
			name:    "no bots",
			bots:    nil,
			wantErr: ErrNoBotAvailable,
		},
		{
			name: "all at capacity",
			bots: []models.Bot{
				onlineBot("bot_a", 5, 5, now),
				onlineBot("bot_b", 3, 3, now),
			},
			wantErr: ErrNoBotAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectBot(tt.bots, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SelectBot() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectBot() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("SelectBot() = %q, want %q", got, tt.want)
			}
		})
	}
}

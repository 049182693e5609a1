package services

import (
	"testing"
	"time"

	"github.com/skins-market/backend/internal/models"
)

func TestRecoveryAction(t *testing.T) {
	now := time.Now()
	offerID := "offer-123"

	tests := []struct {
		name    string
		status  string
		offerID *string
		age     time.Duration
		want    string
	}{
		{"accepted pickup resumes delivery", models.TradeStatusSellerAccepted, nil, time.Second, recoveryDropoff},
		{"accepted delivery resumes settlement", models.TradeStatusBuyerAccepted, nil, time.Second, recoverySettle},
		{"awaiting seller without recorded offer is parked", models.TradeStatusAwaitingSeller, nil, 5 * time.Minute, recoveryPark},
		{"awaiting buyer without recorded offer is parked", models.TradeStatusAwaitingBuyer, nil, 5 * time.Minute, recoveryPark},
		{"fresh awaiting trade is left for the sender", models.TradeStatusAwaitingSeller, nil, 10 * time.Second, recoveryNone},
		{"awaiting trade with an offer belongs to the poll sweep", models.TradeStatusAwaitingBuyer, &offerID, 5 * time.Minute, recoveryNone},
		{"paid trade belongs to the assignment sweep", models.TradeStatusPaymentReceived, nil, 5 * time.Minute, recoveryNone},
		{"parked trade waits for a manual retry", models.TradeStatusErrorSending, nil, 5 * time.Minute, recoveryNone},
		{"completed trade needs nothing", models.TradeStatusCompleted, nil, 5 * time.Minute, recoveryNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := &models.Trade{
				Status:    tt.status,
				OfferID:   tt.offerID,
				UpdatedAt: now.Add(-tt.age),
			}
			if got := recoveryAction(trade, now); got != tt.want {
				t.Errorf("recoveryAction(%s, offer=%v, age=%s) = %q, want %q",
					tt.status, tt.offerID != nil, tt.age, got, tt.want)
			}
		})
	}
}

package models

import "testing"

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{TradeStatusPendingPayment, TradeStatusPaymentReceived, true},
		{TradeStatusPaymentReceived, TradeStatusAwaitingSeller, true},
		{TradeStatusAwaitingSeller, TradeStatusSellerAccepted, true},
		{TradeStatusSellerAccepted, TradeStatusAwaitingBuyer, true},
		{TradeStatusAwaitingBuyer, TradeStatusBuyerAccepted, true},
		{TradeStatusBuyerAccepted, TradeStatusCompleted, true},

		// Delivery failure and retry loop
		{TradeStatusAwaitingSeller, TradeStatusErrorSending, true},
		{TradeStatusSellerAccepted, TradeStatusErrorSending, true},
		{TradeStatusAwaitingBuyer, TradeStatusErrorSending, true},
		{TradeStatusErrorSending, TradeStatusAwaitingSeller, true},
		{TradeStatusErrorSending, TradeStatusAwaitingBuyer, true},
		{TradeStatusErrorSending, TradeStatusRefunded, true},

		// Cancellation and expiry paths
		{TradeStatusPendingPayment, TradeStatusCancelled, true},
		{TradeStatusPendingPayment, TradeStatusExpired, true},
		{TradeStatusPaymentReceived, TradeStatusRefunded, true},
		{TradeStatusAwaitingSeller, TradeStatusCancelled, true},
		{TradeStatusAwaitingBuyer, TradeStatusExpired, true},
		{TradeStatusErrorSending, TradeStatusCancelled, true},

		// Invalid transitions
		{TradeStatusPendingPayment, TradeStatusAwaitingSeller, false},
		{TradeStatusPendingPayment, TradeStatusRefunded, false},
		{TradeStatusPaymentReceived, TradeStatusSellerAccepted, false},
		{TradeStatusAwaitingSeller, TradeStatusAwaitingBuyer, false},
		{TradeStatusAwaitingSeller, TradeStatusBuyerAccepted, false},
		{TradeStatusBuyerAccepted, TradeStatusErrorSending, false},
		{TradeStatusCompleted, TradeStatusCancelled, false},
		{TradeStatusCancelled, TradeStatusPendingPayment, false},
		{TradeStatusRefunded, TradeStatusCompleted, false},
		{TradeStatusExpired, TradeStatusAwaitingSeller, false},
		{"nonexistent", TradeStatusCompleted, false},
		{TradeStatusPendingPayment, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		TradeStatusPendingPayment, TradeStatusPaymentReceived,
		TradeStatusAwaitingSeller, TradeStatusSellerAccepted,
		TradeStatusAwaitingBuyer, TradeStatusBuyerAccepted,
		TradeStatusCompleted, TradeStatusErrorSending,
		TradeStatusCancelled, TradeStatusRefunded, TradeStatusExpired,
	}

	for _, status := range allStatuses {
		if _, ok := ValidTradeTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidTradeTransitions map", status)
		}
		if _, ok := TradeStatusLabels[status]; !ok {
			t.Errorf("status %q missing from TradeStatusLabels map", status)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{TradeStatusCompleted, TradeStatusCancelled, TradeStatusRefunded, TradeStatusExpired}
	for _, status := range terminal {
		if !IsTerminalStatus(status) {
			t.Errorf("IsTerminalStatus(%q) = false, want true", status)
		}
		transitions := ValidTradeTransitions[status]
		if len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}
}

func TestHoldsBotSlot(t *testing.T) {
	holding := []string{TradeStatusAwaitingSeller, TradeStatusSellerAccepted, TradeStatusAwaitingBuyer, TradeStatusBuyerAccepted}
	for _, status := range holding {
		if !HoldsBotSlot(status) {
			t.Errorf("HoldsBotSlot(%q) = false, want true", status)
		}
	}

	notHolding := []string{
		TradeStatusPendingPayment, TradeStatusPaymentReceived, TradeStatusErrorSending,
		TradeStatusCompleted, TradeStatusCancelled, TradeStatusRefunded, TradeStatusExpired,
	}
	for _, status := range notHolding {
		if HoldsBotSlot(status) {
			t.Errorf("HoldsBotSlot(%q) = true, want false", status)
		}
	}
}

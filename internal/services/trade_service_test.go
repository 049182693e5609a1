package services

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestComputeFee(t *testing.T) {
	tests := []struct {
		price      string
		feeBPS     int
		wantFee    string
		wantPayout string
	}{
		{"100.00", 500, "5.00", "95.00"},
		{"10.00", 500, "0.50", "9.50"},
		{"0.03", 500, "0.00", "0.03"},
		{"19.99", 500, "1.00", "18.99"},
		{"249.50", 1000, "24.95", "224.55"},
		{"1.00", 0, "0.00", "1.00"},
		{"33.33", 333, "1.11", "32.22"},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			price := decimal.RequireFromString(tt.price)
			fee, payout := ComputeFee(price, tt.feeBPS)

			if fee.StringFixed(2) != tt.wantFee {
				t.Errorf("fee = %s, want %s", fee.StringFixed(2), tt.wantFee)
			}
			if payout.StringFixed(2) != tt.wantPayout {
				t.Errorf("payout = %s, want %s", payout.StringFixed(2), tt.wantPayout)
			}
			if !fee.Add(payout).Equal(price) {
				t.Errorf("fee %s + payout %s != price %s", fee, payout, price)
			}
		})
	}
}

// Two goroutines under the same trade lock must never overlap; different
// trades must not block each other.
func TestTradeLocksSerializePerTrade(t *testing.T) {
	locks := newTradeLocks()
	tradeID := uuid.New()

	var inCritical int
	var maxInCritical int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.lock(tradeID)
			defer locks.unlock(tradeID)

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInCritical)
	}

	// The map must be empty once every holder released.
	locks.mu.Lock()
	remaining := len(locks.locks)
	locks.mu.Unlock()
	if remaining != 0 {
		t.Errorf("lock map has %d stale entries, want 0", remaining)
	}
}

func TestTradeLocksIndependentTrades(t *testing.T) {
	locks := newTradeLocks()
	a, b := uuid.New(), uuid.New()

	locks.lock(a)
	done := make(chan struct{})
	go func() {
		locks.lock(b)
		locks.unlock(b)
		close(done)
	}()

	<-done // would deadlock if b waited on a
	locks.unlock(a)
}

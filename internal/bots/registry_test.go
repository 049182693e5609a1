package bots

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/models"
)

func newTestRegistry(t *testing.T, maxPerBot int, handles ...string) *Registry {
	t.Helper()
	r := NewRegistry(zap.NewNop())
	for _, h := range handles {
		r.Register(models.Bot{
			Handle:           h,
			MaxTrades:        maxPerBot,
			Status:           models.BotStatusOnline,
			SessionExpiresAt: time.Now().Add(time.Hour),
		})
	}
	return r
}

// Fifty goroutines race for ten slots; exactly ten must win and no bot may
// exceed its maximum.
func TestAcquireBestConcurrentCapacity(t *testing.T) {
	const maxPerBot = 5
	r := newTestRegistry(t, maxPerBot, "bot_a", "bot_b")

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := make(map[string]int)
	var denied int

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle, err := r.AcquireBest()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, ErrNoBotAvailable) {
					t.Errorf("unexpected error: %v", err)
				}
				denied++
				return
			}
			acquired[handle]++
		}()
	}
	wg.Wait()

	total := 0
	for handle, n := range acquired {
		if n > maxPerBot {
			t.Errorf("bot %s acquired %d times, max is %d", handle, n, maxPerBot)
		}
		total += n
	}
	if total != 2*maxPerBot {
		t.Errorf("total acquired = %d, want %d", total, 2*maxPerBot)
	}
	if denied != 50-2*maxPerBot {
		t.Errorf("denied = %d, want %d", denied, 50-2*maxPerBot)
	}
}

func TestAcquireSpecificBot(t *testing.T) {
	r := newTestRegistry(t, 1, "bot_a")

	if err := r.Acquire("bot_a"); err != nil {
		t.Fatalf("Acquire() unexpected error: %v", err)
	}
	if err := r.Acquire("bot_a"); !errors.Is(err, ErrNoBotAvailable) {
		t.Errorf("Acquire() on full bot = %v, want ErrNoBotAvailable", err)
	}
	if err := r.Acquire("bot_z"); err == nil || errors.Is(err, ErrNoBotAvailable) {
		t.Errorf("Acquire() on unknown bot = %v, want a distinct error", err)
	}

	r.Release("bot_a")
	if err := r.Acquire("bot_a"); err != nil {
		t.Errorf("Acquire() after release = %v, want nil", err)
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	r := newTestRegistry(t, 5, "bot_a")

	r.Release("bot_a")
	r.Release("bot_a")

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(snap))
	}
	if snap[0].ActiveTrades != 0 {
		t.Errorf("ActiveTrades = %d, want 0", snap[0].ActiveTrades)
	}
}

func TestSetLoadCorrectsDrift(t *testing.T) {
	r := newTestRegistry(t, 5, "bot_a")

	if _, err := r.AcquireBest(); err != nil {
		t.Fatalf("AcquireBest() unexpected error: %v", err)
	}

	// Reconciliation found three in-flight trades for this bot.
	r.SetLoad("bot_a", 3)

	snap := r.Snapshot()
	if snap[0].ActiveTrades != 3 {
		t.Errorf("ActiveTrades = %d, want 3", snap[0].ActiveTrades)
	}
}

package handlers

import (
	"testing"

	"github.com/google/uuid"
)

func TestWSConnSubscriptionFiltering(t *testing.T) {
	tradeA := uuid.New()
	tradeB := uuid.New()
	tradeC := uuid.New()

	wc := &wsConn{subs: make(map[uuid.UUID]bool)}

	// No subscriptions: every trade event is wanted.
	for _, id := range []uuid.UUID{tradeA, tradeB, tradeC} {
		if !wc.wants(id) {
			t.Fatalf("expected empty subscription set to want trade %s", id)
		}
	}

	// Subscribing narrows the filter to the named trades.
	wc.subscribe(tradeA)
	wc.subscribe(tradeB)
	if !wc.wants(tradeA) || !wc.wants(tradeB) {
		t.Fatal("expected subscribed trades to be wanted")
	}
	if wc.wants(tradeC) {
		t.Fatal("expected unsubscribed trade to be filtered out")
	}

	// Unsubscribing one trade keeps the rest of the filter.
	wc.unsubscribe(tradeB)
	if !wc.wants(tradeA) {
		t.Fatal("expected remaining subscription to still be wanted")
	}
	if wc.wants(tradeB) {
		t.Fatal("expected unsubscribed trade to be filtered out")
	}

	// Dropping the last subscription reverts to receive-everything.
	wc.unsubscribe(tradeA)
	for _, id := range []uuid.UUID{tradeA, tradeB, tradeC} {
		if !wc.wants(id) {
			t.Fatalf("expected empty subscription set to want trade %s again", id)
		}
	}
}

func TestWSConnUnsubscribeUnknownTrade(t *testing.T) {
	wc := &wsConn{subs: make(map[uuid.UUID]bool)}
	known := uuid.New()
	wc.subscribe(known)

	wc.unsubscribe(uuid.New())
	if !wc.wants(known) {
		t.Fatal("expected unrelated unsubscribe to leave the filter intact")
	}
	if wc.wants(uuid.New()) {
		t.Fatal("expected filter to stay narrowed to the known trade")
	}
}

package bots

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/skins-market/backend/internal/steam"
	"go.uber.org/zap"
)

func TestSaveRejectsExpiredSession(t *testing.T) {
	store := NewSessionStore(nil, zap.NewNop())
	session := &steam.Session{
		Token:     "tok",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := store.Save(context.Background(), "bot_a", session); err == nil {
		t.Fatal("expected an error saving an already-expired session")
	}
}

func TestDecodeSession(t *testing.T) {
	now := time.Now()

	fresh, err := json.Marshal(steam.Session{Token: "tok", ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	session, err := decodeSession(fresh, now)
	if err != nil {
		t.Fatalf("decode fresh session: %v", err)
	}
	if session.Token != "tok" {
		t.Fatalf("token = %q, want tok", session.Token)
	}

	// A session that expired while stored must not be handed out; login
	// must happen again.
	stale, err := json.Marshal(steam.Session{Token: "tok", ExpiresAt: now.Add(-time.Second)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := decodeSession(stale, now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("stale session err = %v, want ErrSessionNotFound", err)
	}

	// Expiring exactly now counts as expired.
	boundary, err := json.Marshal(steam.Session{Token: "tok", ExpiresAt: now})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := decodeSession(boundary, now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("boundary session err = %v, want ErrSessionNotFound", err)
	}

	// Corrupt payloads are a decode error, not a silent miss; Load uses the
	// distinction to drop the stored value.
	if _, err := decodeSession([]byte("{not json"), now); err == nil || errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("corrupt payload err = %v, want a decode error", err)
	}
}

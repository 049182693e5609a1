package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/steam"
)

type stubSessions struct{}

func (stubSessions) Session(ctx context.Context, handle string) (*steam.Session, error) {
	return &steam.Session{Token: "t-" + handle, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// stubAPI serves queued errors for successive SendOffer calls, then succeeds.
type stubAPI struct {
	sendErrs     []error
	confirmErr   error
	sendCalls    int
	confirmCalls int
	cancelled    []string
	state        string
}

func (s *stubAPI) SendOffer(ctx context.Context, session *steam.Session, assetID, counterpartyRef, direction string) (string, error) {
	s.sendCalls++
	if len(s.sendErrs) > 0 {
		err := s.sendErrs[0]
		s.sendErrs = s.sendErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "offer-1", nil
}

func (s *stubAPI) GetOfferState(ctx context.Context, session *steam.Session, offerID string) (string, error) {
	return s.state, nil
}

func (s *stubAPI) ConfirmOffer(ctx context.Context, session *steam.Session, offerID string) error {
	s.confirmCalls++
	return s.confirmErr
}

func (s *stubAPI) CancelOffer(ctx context.Context, session *steam.Session, offerID string) error {
	s.cancelled = append(s.cancelled, offerID)
	return nil
}

func newTestDelivery(api *stubAPI, maxAttempts int) *DeliveryService {
	return NewDeliveryService(api, stubSessions{}, maxAttempts, time.Millisecond, 2*time.Millisecond, zap.NewNop())
}

func transientErr() error {
	return &steam.APIError{StatusCode: http.StatusServiceUnavailable, Message: "upstream down"}
}

func TestSendOfferFirstAttemptSucceeds(t *testing.T) {
	api := &stubAPI{}
	d := newTestDelivery(api, 4)

	offerID, err := d.SendOffer(context.Background(), uuid.New(), "bot_a", "asset-1", "user-1", DirectionPickup)
	if err != nil {
		t.Fatalf("SendOffer() unexpected error: %v", err)
	}
	if offerID != "offer-1" {
		t.Errorf("offerID = %q, want %q", offerID, "offer-1")
	}
	if api.sendCalls != 1 || api.confirmCalls != 1 {
		t.Errorf("sendCalls = %d, confirmCalls = %d, want 1 and 1", api.sendCalls, api.confirmCalls)
	}
}

func TestSendOfferRetriesTransientThenSucceeds(t *testing.T) {
	api := &stubAPI{sendErrs: []error{transientErr(), transientErr()}}
	d := newTestDelivery(api, 4)

	offerID, err := d.SendOffer(context.Background(), uuid.New(), "bot_a", "asset-1", "user-1", DirectionPickup)
	if err != nil {
		t.Fatalf("SendOffer() unexpected error: %v", err)
	}
	if offerID != "offer-1" {
		t.Errorf("offerID = %q, want %q", offerID, "offer-1")
	}
	if api.sendCalls != 3 {
		t.Errorf("sendCalls = %d, want 3", api.sendCalls)
	}
}

// Every attempt fails transiently: the ceiling is hit after exactly
// maxAttempts sends.
func TestSendOfferExhaustsAttempts(t *testing.T) {
	const maxAttempts = 4
	api := &stubAPI{sendErrs: []error{transientErr(), transientErr(), transientErr(), transientErr()}}
	d := newTestDelivery(api, maxAttempts)

	_, err := d.SendOffer(context.Background(), uuid.New(), "bot_a", "asset-1", "user-1", DirectionPickup)
	if !errors.Is(err, ErrDeliveryExhausted) {
		t.Fatalf("SendOffer() error = %v, want ErrDeliveryExhausted", err)
	}
	if api.sendCalls != maxAttempts {
		t.Errorf("sendCalls = %d, want %d", api.sendCalls, maxAttempts)
	}
}

// A definite rejection is never retried.
func TestSendOfferAmbiguousStopsImmediately(t *testing.T) {
	api := &stubAPI{sendErrs: []error{&steam.APIError{StatusCode: http.StatusBadRequest, Message: "bad asset"}}}
	d := newTestDelivery(api, 4)

	_, err := d.SendOffer(context.Background(), uuid.New(), "bot_a", "asset-1", "user-1", DirectionPickup)
	if !errors.Is(err, ErrAmbiguousOutcome) {
		t.Fatalf("SendOffer() error = %v, want ErrAmbiguousOutcome", err)
	}
	if api.sendCalls != 1 {
		t.Errorf("sendCalls = %d, want 1", api.sendCalls)
	}
}

// A confirm failure after a successful send must never resend the offer.
func TestSendOfferConfirmFailureIsAmbiguous(t *testing.T) {
	api := &stubAPI{confirmErr: transientErr()}
	d := newTestDelivery(api, 4)

	_, err := d.SendOffer(context.Background(), uuid.New(), "bot_a", "asset-1", "user-1", DirectionDelivery)
	if !errors.Is(err, ErrAmbiguousOutcome) {
		t.Fatalf("SendOffer() error = %v, want ErrAmbiguousOutcome", err)
	}
	if api.sendCalls != 1 {
		t.Errorf("sendCalls = %d, want 1: a sent offer must not be resent", api.sendCalls)
	}
}

func TestPollOffer(t *testing.T) {
	api := &stubAPI{state: steam.OfferStateAccepted}
	d := newTestDelivery(api, 4)

	state, err := d.PollOffer(context.Background(), "bot_a", "offer-1")
	if err != nil {
		t.Fatalf("PollOffer() unexpected error: %v", err)
	}
	if state != steam.OfferStateAccepted {
		t.Errorf("state = %q, want %q", state, steam.OfferStateAccepted)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/steam"
)

// Offer directions understood by the steam bridge.
const (
	DirectionPickup   = "pickup"   // seller hands the item to the bot
	DirectionDelivery = "delivery" // bot hands the item to the buyer
)

var (
	// ErrDeliveryExhausted means every attempt failed transiently and the
	// ceiling was reached. The trade fails closed into ERROR_SENDING.
	ErrDeliveryExhausted = errors.New("delivery attempts exhausted")

	// ErrAmbiguousOutcome means a call failed in a way where the offer may
	// still have gone out. Never auto-retried: a blind resend risks a
	// duplicate offer.
	ErrAmbiguousOutcome = errors.New("ambiguous delivery outcome")
)

// offerAPI is the capability surface of the external trading protocol.
type offerAPI interface {
	SendOffer(ctx context.Context, session *steam.Session, assetID, counterpartyRef, direction string) (string, error)
	GetOfferState(ctx context.Context, session *steam.Session, offerID string) (string, error)
	ConfirmOffer(ctx context.Context, session *steam.Session, offerID string) error
	CancelOffer(ctx context.Context, session *steam.Session, offerID string) error
}

// sessionSource resolves a bot handle to a live session.
type sessionSource interface {
	Session(ctx context.Context, handle string) (*steam.Session, error)
}

// DeliveryService drives protocol offers with a bounded exponential retry.
// Only transient failures are retried; anything ambiguous stops immediately.
type DeliveryService struct {
	api         offerAPI
	sessions    sessionSource
	maxAttempts int
	base        time.Duration
	max         time.Duration
	log         *zap.Logger
}

func NewDeliveryService(api offerAPI, sessions sessionSource, maxAttempts int, base, max time.Duration, log *zap.Logger) *DeliveryService {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &DeliveryService{
		api:         api,
		sessions:    sessions,
		maxAttempts: maxAttempts,
		base:        base,
		max:         max,
		log:         log,
	}
}

func (d *DeliveryService) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.base
	bo.MaxInterval = d.max
	return bo
}

// SendOffer sends (and mobile-confirms) one offer on behalf of a trade.
func (d *DeliveryService) SendOffer(ctx context.Context, tradeID uuid.UUID, botHandle, assetID, counterpartyRef, direction string) (string, error) {
	bo := d.newBackOff()
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		offerID, err := d.trySend(ctx, botHandle, assetID, counterpartyRef, direction)
		if err == nil {
			d.log.Info("offer sent",
				zap.String("trade_id", tradeID.String()),
				zap.String("bot", botHandle),
				zap.String("offer_id", offerID),
				zap.Int("attempt", attempt),
			)
			return offerID, nil
		}

		if !steam.IsTransient(err) {
			d.log.Error("offer send failed with unknown true outcome",
				zap.String("trade_id", tradeID.String()),
				zap.String("bot", botHandle),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return "", fmt.Errorf("%w: %v", ErrAmbiguousOutcome, err)
		}

		lastErr = err
		delay := bo.NextBackOff()
		d.log.Warn("offer send failed, retrying",
			zap.String("trade_id", tradeID.String()),
			zap.String("bot", botHandle),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrDeliveryExhausted, d.maxAttempts, lastErr)
}

// trySend is one attempt: resolve session, send, confirm. A confirm failure
// after a successful send is always ambiguous: the offer exists and must
// not be sent again.
func (d *DeliveryService) trySend(ctx context.Context, botHandle, assetID, counterpartyRef, direction string) (string, error) {
	session, err := d.sessions.Session(ctx, botHandle)
	if err != nil {
		return "", fmt.Errorf("no session for bot %s: %w", botHandle, err)
	}

	offerID, err := d.api.SendOffer(ctx, session, assetID, counterpartyRef, direction)
	if err != nil {
		return "", err
	}

	if err := d.api.ConfirmOffer(ctx, session, offerID); err != nil {
		return "", fmt.Errorf("%w: offer %s sent but confirm failed: %v", ErrAmbiguousOutcome, offerID, err)
	}
	return offerID, nil
}

// PollOffer fetches the current protocol state of an offer. No retry here:
// the poll sweep comes back around on its own.
func (d *DeliveryService) PollOffer(ctx context.Context, botHandle, offerID string) (string, error) {
	session, err := d.sessions.Session(ctx, botHandle)
	if err != nil {
		return "", fmt.Errorf("no session for bot %s: %w", botHandle, err)
	}
	return d.api.GetOfferState(ctx, session, offerID)
}

// CancelOffer is best-effort; the caller proceeds regardless.
func (d *DeliveryService) CancelOffer(ctx context.Context, botHandle, offerID string) {
	session, err := d.sessions.Session(ctx, botHandle)
	if err != nil {
		d.log.Warn("cannot cancel offer, no session",
			zap.String("bot", botHandle), zap.String("offer_id", offerID), zap.Error(err))
		return
	}
	if err := d.api.CancelOffer(ctx, session, offerID); err != nil {
		d.log.Warn("offer cancel failed",
			zap.String("bot", botHandle), zap.String("offer_id", offerID), zap.Error(err))
	}
}

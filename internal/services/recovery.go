package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/models"
)

// Recovery actions for trades stranded mid-leg by a worker crash or restart.
const (
	recoveryNone    = ""
	recoveryDropoff = "dropoff" // item is with the bot, re-send the delivery offer
	recoverySettle  = "settle"  // buyer already accepted, finish settlement
	recoveryPark    = "park"    // offer id never recorded, true state unknown
)

// offerRecordGrace is how long an awaiting trade may sit without a recorded
// offer id before the sweep treats it as stranded. A live send in this
// process holds the trade lock, so the grace only has to outlast the gap
// between the status flip and SetOffer.
const offerRecordGrace = 2 * time.Minute

// recoveryAction classifies a trade for the recovery sweep. Trades mid-flight
// with a recorded offer are healthy; the poll sweep owns those.
func recoveryAction(t *models.Trade, now time.Time) string {
	switch t.Status {
	case models.TradeStatusSellerAccepted:
		return recoveryDropoff
	case models.TradeStatusBuyerAccepted:
		return recoverySettle
	case models.TradeStatusAwaitingSeller, models.TradeStatusAwaitingBuyer:
		if t.OfferID == nil && now.Sub(t.UpdatedAt) > offerRecordGrace {
			return recoveryPark
		}
	}
	return recoveryNone
}

// ResumeStalled picks up trades stranded between persisted steps: a
// SELLER_ACCEPTED trade resumes the delivery leg, a BUYER_ACCEPTED trade
// finishes settlement, and an awaiting trade whose offer id was never
// recorded is parked in ERROR_SENDING because the offer may or may not have
// gone out and a blind resend risks a duplicate.
func (s *TradeService) ResumeStalled(ctx context.Context, limit int) error {
	now := time.Now()
	for _, status := range []string{
		models.TradeStatusSellerAccepted,
		models.TradeStatusBuyerAccepted,
		models.TradeStatusAwaitingSeller,
		models.TradeStatusAwaitingBuyer,
	} {
		trades, err := s.trades.ListByStatus(ctx, status, limit)
		if err != nil {
			return err
		}
		for _, t := range trades {
			action := recoveryAction(&t, now)
			if action == recoveryNone {
				continue
			}
			if err := s.recover(ctx, t.ID, action); err != nil {
				s.log.Error("failed to recover stranded trade",
					zap.String("trade_id", t.ID.String()),
					zap.String("action", action),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// recover re-reads the trade under its lock and re-classifies before acting;
// the sweep's snapshot may be stale by the time the lock is held.
func (s *TradeService) recover(ctx context.Context, tradeID uuid.UUID, want string) error {
	s.locks.lock(tradeID)
	defer s.locks.unlock(tradeID)

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if recoveryAction(trade, time.Now()) != want {
		return nil
	}

	switch want {
	case recoveryDropoff:
		if trade.AssignedBot == nil {
			return fmt.Errorf("trade holds an item but has no assigned bot")
		}
		s.log.Info("resuming delivery leg", zap.String("trade_id", trade.ID.String()))
		return s.startLegFromAccepted(ctx, trade)
	case recoverySettle:
		s.log.Info("resuming settlement", zap.String("trade_id", trade.ID.String()))
		return s.complete(ctx, trade)
	case recoveryPark:
		s.failDelivery(ctx, trade, fmt.Errorf("offer not recorded, true protocol state unknown"))
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/bots"
	"github.com/skins-market/backend/internal/config"
	"github.com/skins-market/backend/internal/events"
	"github.com/skins-market/backend/internal/models"
	"github.com/skins-market/backend/internal/repositories"
	"github.com/skins-market/backend/internal/steam"
)

var (
	ErrNotParticipant = errors.New("user is not a participant of this trade")
	ErrTradeTerminal  = errors.New("trade is already in a terminal status")
)

// TradeService owns the trade state machine. Every path that changes a trade
// runs under that trade's lock and moves status through a compare-and-set, so
// concurrent actors (API handlers, worker sweeps, webhooks) serialize cleanly.
type TradeService struct {
	trades   *repositories.TradeRepo
	listings *repositories.ListingRepo
	ledger   *repositories.LedgerRepo
	notifs   *repositories.NotificationRepo
	registry *bots.Registry
	delivery *DeliveryService
	pub      events.Publisher
	cfg      *config.Config
	log      *zap.Logger
	locks    *tradeLocks
}

func NewTradeService(
	trades *repositories.TradeRepo,
	listings *repositories.ListingRepo,
	ledger *repositories.LedgerRepo,
	notifs *repositories.NotificationRepo,
	registry *bots.Registry,
	delivery *DeliveryService,
	pub events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *TradeService {
	return &TradeService{
		trades:   trades,
		listings: listings,
		ledger:   ledger,
		notifs:   notifs,
		registry: registry,
		delivery: delivery,
		pub:      pub,
		cfg:      cfg,
		log:      log,
		locks:    newTradeLocks(),
	}
}

// ComputeFee splits a price into platform fee and seller payout. The fee is
// rounded to cents; payout is the remainder, so the two always sum to price.
func ComputeFee(price decimal.Decimal, feeBPS int) (fee, payout decimal.Decimal) {
	fee = price.Mul(decimal.NewFromInt(int64(feeBPS))).Div(decimal.NewFromInt(10000)).Round(2)
	payout = price.Sub(fee)
	return fee, payout
}

// CreateTrade reserves the listing and opens a trade in PENDING_PAYMENT.
// Price, fee and payout are snapshotted from the listing at this moment and
// never change afterwards.
func (s *TradeService) CreateTrade(ctx context.Context, buyerID, listingID uuid.UUID) (*models.Trade, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerUserID == buyerID {
		return nil, fmt.Errorf("cannot buy your own listing")
	}
	if listing.Status != models.ListingStatusActive {
		return nil, fmt.Errorf("listing is not available")
	}

	// Compare-and-set active -> reserved; a concurrent buyer loses here.
	if err := s.listings.UpdateStatus(ctx, listingID, models.ListingStatusActive, models.ListingStatusReserved); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, fmt.Errorf("listing is no longer available")
		}
		return nil, err
	}

	fee, payout := ComputeFee(listing.Price, s.cfg.PlatformFeeBPS)
	trade := &models.Trade{
		ListingID:    listing.ID,
		BuyerUserID:  buyerID,
		SellerUserID: listing.SellerUserID,
		AssetID:      listing.AssetID,
		ItemMeta:     listing.ItemMeta,
		Price:        listing.Price,
		PlatformFee:  fee,
		SellerPayout: payout,
		Status:       models.TradeStatusPendingPayment,
	}
	if err := s.trades.Create(ctx, trade); err != nil {
		if rbErr := s.listings.UpdateStatus(ctx, listingID, models.ListingStatusReserved, models.ListingStatusActive); rbErr != nil {
			s.log.Error("failed to release listing after trade create failure",
				zap.String("listing_id", listingID.String()), zap.Error(rbErr))
		}
		return nil, err
	}

	s.recordStatus(ctx, trade, nil)
	return trade, nil
}

// ConfirmPayment is the payment collaborator webhook: funds are reserved on
// the escrow ledger and the trade moves to PAYMENT_RECEIVED. The hold and the
// status flip commit in one transaction inside Reserve, so a duplicate or
// racing webhook rolls back whole and never leaves (or removes) a hold it
// does not own.
func (s *TradeService) ConfirmPayment(ctx context.Context, tradeID uuid.UUID, captured decimal.Decimal) error {
	s.locks.lock(tradeID)
	defer s.locks.unlock(tradeID)

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade.Status != models.TradeStatusPendingPayment {
		return fmt.Errorf("trade is not awaiting payment (status %s): %w", trade.Status, repositories.ErrConflict)
	}
	if !captured.Equal(trade.Price) {
		return fmt.Errorf("captured amount %s does not match trade price %s", captured, trade.Price)
	}

	if err := s.ledger.Reserve(ctx, trade.ID, trade.BuyerUserID, trade.Price,
		models.TradeStatusPendingPayment, models.TradeStatusPaymentReceived); err != nil {
		return err
	}
	trade.Status = models.TradeStatusPaymentReceived
	s.recordStatus(ctx, trade, nil)

	// Fast-path nudge for the worker; the assignment sweep is the fallback.
	if err := s.pub.Publish(ctx, events.StreamPayment, events.Event{
		Type:    events.EventPaymentReceived,
		Payload: map[string]any{"trade_id": trade.ID.String()},
	}); err != nil {
		s.log.Warn("failed to publish payment event", zap.Error(err))
	}
	return nil
}

// AssignAndSend picks the least-loaded bot and starts the pickup leg. Called
// by the worker, both from the payment event fast path and the periodic sweep.
// No bot available is a normal outcome: the trade stays in PAYMENT_RECEIVED
// and the next sweep tries again.
func (s *TradeService) AssignAndSend(ctx context.Context, tradeID uuid.UUID) error {
	s.locks.lock(tradeID)
	defer s.locks.unlock(tradeID)

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade.Status != models.TradeStatusPaymentReceived {
		return nil
	}

	handle, err := s.registry.AcquireBest()
	if err != nil {
		if errors.Is(err, bots.ErrNoBotAvailable) {
			s.log.Debug("no bot available, trade queued", zap.String("trade_id", trade.ID.String()))
			return nil
		}
		return err
	}

	if err := s.trades.SetAssignedBot(ctx, trade.ID, handle); err != nil {
		s.registry.Release(handle)
		return err
	}
	trade.AssignedBot = &handle

	return s.startLeg(ctx, trade, models.TradeStatusAwaitingSeller, DirectionPickup)
}

// startLeg transitions into an awaiting status and sends the matching offer.
// A send failure is absorbed into ERROR_SENDING rather than returned: the
// trade is parked for a manual retry and the caller moves on.
func (s *TradeService) startLeg(ctx context.Context, trade *models.Trade, awaiting, direction string) error {
	var reason *string
	if trade.AssignedBot != nil {
		r := fmt.Sprintf("bot %s assigned", *trade.AssignedBot)
		reason = &r
	}
	if err := s.transition(ctx, trade, awaiting, reason); err != nil {
		s.registry.Release(*trade.AssignedBot)
		return err
	}

	counterparty := trade.SellerUserID
	if direction == DirectionDelivery {
		counterparty = trade.BuyerUserID
	}

	offerID, err := s.delivery.SendOffer(ctx, trade.ID, *trade.AssignedBot, trade.AssetID, counterparty.String(), direction)
	if err != nil {
		s.failDelivery(ctx, trade, err)
		return nil
	}

	if err := s.trades.SetOffer(ctx, trade.ID, offerID); err != nil {
		return err
	}
	trade.OfferID = &offerID
	return nil
}

// failDelivery parks a trade in ERROR_SENDING, frees the bot slot and raises
// an operator alert. The offer id, if any, is kept on the trade so an operator
// can inspect the ambiguous case.
func (s *TradeService) failDelivery(ctx context.Context, trade *models.Trade, cause error) {
	reason := cause.Error()
	if err := s.transition(ctx, trade, models.TradeStatusErrorSending, &reason); err != nil {
		s.log.Error("failed to park trade in error status",
			zap.String("trade_id", trade.ID.String()), zap.Error(err))
		return
	}
	if trade.AssignedBot != nil {
		s.registry.Release(*trade.AssignedBot)
	}

	if err := s.pub.Publish(ctx, events.StreamOps, events.Event{
		Type: events.EventOperatorAlert,
		Payload: map[string]any{
			"trade_id": trade.ID.String(),
			"bot":      derefOr(trade.AssignedBot, ""),
			"reason":   reason,
		},
	}); err != nil {
		s.log.Warn("failed to publish operator alert", zap.Error(err))
	}
}

// HandleOfferState applies a polled protocol offer state to the trade. Pending
// offers are ignored; everything else advances or fails the current leg.
func (s *TradeService) HandleOfferState(ctx context.Context, tradeID uuid.UUID, state string) error {
	s.locks.lock(tradeID)
	defer s.locks.unlock(tradeID)

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade.OfferID == nil {
		return nil
	}

	switch trade.Status {
	case models.TradeStatusAwaitingSeller:
		return s.handleSellerLeg(ctx, trade, state)
	case models.TradeStatusAwaitingBuyer:
		return s.handleBuyerLeg(ctx, trade, state)
	default:
		// Stale poll result; the trade has moved on.
		return nil
	}
}

func (s *TradeService) handleSellerLeg(ctx context.Context, trade *models.Trade, state string) error {
	switch state {
	case steam.OfferStateAccepted:
		if err := s.transition(ctx, trade, models.TradeStatusSellerAccepted, nil); err != nil {
			return err
		}
		if err := s.trades.ClearOffer(ctx, trade.ID); err != nil {
			return err
		}
		trade.OfferID = nil
		// Item is in the bot's inventory; send it onward immediately.
		return s.startLegFromAccepted(ctx, trade)
	case steam.OfferStateDeclined, steam.OfferStateExpired, steam.OfferStateInvalid:
		reason := fmt.Sprintf("pickup offer %s by seller", state)
		return s.cancelInternal(ctx, trade, models.TradeStatusCancelled, &reason)
	default:
		return nil
	}
}

// startLegFromAccepted starts the delivery leg from SELLER_ACCEPTED. The bot
// slot is already held, so a transition race must not release it twice.
func (s *TradeService) startLegFromAccepted(ctx context.Context, trade *models.Trade) error {
	if err := s.transition(ctx, trade, models.TradeStatusAwaitingBuyer, nil); err != nil {
		return err
	}

	offerID, err := s.delivery.SendOffer(ctx, trade.ID, *trade.AssignedBot, trade.AssetID, trade.BuyerUserID.String(), DirectionDelivery)
	if err != nil {
		s.failDelivery(ctx, trade, err)
		return nil
	}

	if err := s.trades.SetOffer(ctx, trade.ID, offerID); err != nil {
		return err
	}
	trade.OfferID = &offerID
	return nil
}

func (s *TradeService) handleBuyerLeg(ctx context.Context, trade *models.Trade, state string) error {
	switch state {
	case steam.OfferStateAccepted:
		if err := s.transition(ctx, trade, models.TradeStatusBuyerAccepted, nil); err != nil {
			return err
		}
		return s.complete(ctx, trade)
	case steam.OfferStateDeclined, steam.OfferStateExpired, steam.OfferStateInvalid:
		s.failDelivery(ctx, trade, fmt.Errorf("delivery offer %s by buyer", state))
		return nil
	default:
		return nil
	}
}

// complete settles the escrow: payout to the seller, fee to the platform,
// listing marked sold, bot slot freed.
func (s *TradeService) complete(ctx context.Context, trade *models.Trade) error {
	if err := s.transition(ctx, trade, models.TradeStatusCompleted, nil); err != nil {
		return err
	}

	if err := s.ledger.Settle(ctx, trade.ID, trade.SellerUserID, trade.SellerPayout, trade.PlatformFee); err != nil {
		// The transition is already committed; settlement failures need an
		// operator, not a rollback.
		s.log.Error("settlement failed for completed trade",
			zap.String("trade_id", trade.ID.String()), zap.Error(err))
		s.opsAlert(ctx, trade, "settlement failed: "+err.Error())
	}

	if err := s.listings.UpdateStatus(ctx, trade.ListingID, models.ListingStatusReserved, models.ListingStatusSold); err != nil && !errors.Is(err, repositories.ErrConflict) {
		s.log.Error("failed to mark listing sold",
			zap.String("listing_id", trade.ListingID.String()), zap.Error(err))
	}

	if trade.AssignedBot != nil {
		s.registry.Release(*trade.AssignedBot)
	}
	if err := s.trades.ClearOffer(ctx, trade.ID); err != nil {
		return err
	}
	trade.OfferID = nil
	return nil
}

// RequestRetry validates a manual retry and hands it to the worker over
// Redis. Only the worker process owns bot slots, so the API never re-runs the
// leg itself.
func (s *TradeService) RequestRetry(ctx context.Context, tradeID, actorID uuid.UUID) error {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if actorID != uuid.Nil && actorID != trade.BuyerUserID && actorID != trade.SellerUserID {
		return ErrNotParticipant
	}
	if trade.Status != models.TradeStatusErrorSending {
		return fmt.Errorf("trade is not in a retryable status (%s)", trade.Status)
	}

	return s.pub.Publish(ctx, events.StreamRetry, events.Event{
		Type:    events.EventRetryRequested,
		Payload: map[string]any{"trade_id": trade.ID.String()},
	})
}

// RetryDelivery re-runs the failed leg of a trade parked in ERROR_SENDING.
// If the item already reached a bot (the history contains SELLER_ACCEPTED),
// the retry must use that same bot; otherwise any eligible bot will do.
func (s *TradeService) RetryDelivery(ctx context.Context, tradeID uuid.UUID) error {
	s.locks.lock(tradeID)
	defer s.locks.unlock(tradeID)

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade.Status != models.TradeStatusErrorSending {
		return fmt.Errorf("trade is not in a retryable status (%s)", trade.Status)
	}

	history, err := s.trades.History(ctx, trade.ID)
	if err != nil {
		return err
	}
	itemWithBot := false
	for _, h := range history {
		if h.Status == models.TradeStatusSellerAccepted {
			itemWithBot = true
			break
		}
	}

	if itemWithBot {
		if trade.AssignedBot == nil {
			return fmt.Errorf("trade holds an item but has no assigned bot")
		}
		if err := s.registry.Acquire(*trade.AssignedBot); err != nil {
			return err
		}
		return s.startLeg(ctx, trade, models.TradeStatusAwaitingBuyer, DirectionDelivery)
	}

	handle, err := s.registry.AcquireBest()
	if err != nil {
		return err
	}
	if err := s.trades.SetAssignedBot(ctx, trade.ID, handle); err != nil {
		s.registry.Release(handle)
		return err
	}
	trade.AssignedBot = &handle
	return s.startLeg(ctx, trade, models.TradeStatusAwaitingSeller, DirectionPickup)
}

// CancelTrade cancels on behalf of a participant, an admin or the system
// (actorID uuid.Nil). A trade parked in ERROR_SENDING after payment refunds
// the buyer; any other cancel releases the hold.
func (s *TradeService) CancelTrade(ctx context.Context, tradeID, actorID uuid.UUID, reason string) error {
	s.locks.lock(tradeID)
	defer s.locks.unlock(tradeID)

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if actorID != uuid.Nil && actorID != trade.BuyerUserID && actorID != trade.SellerUserID {
		return ErrNotParticipant
	}
	if models.IsTerminalStatus(trade.Status) {
		return ErrTradeTerminal
	}

	target := models.TradeStatusCancelled
	if trade.Status == models.TradeStatusErrorSending {
		target = models.TradeStatusRefunded
	}
	var r *string
	if reason != "" {
		r = &reason
	}
	return s.cancelInternal(ctx, trade, target, r)
}

// ExpireTrade force-terminates a stale trade from the expiry sweep.
func (s *TradeService) ExpireTrade(ctx context.Context, tradeID uuid.UUID) error {
	s.locks.lock(tradeID)
	defer s.locks.unlock(tradeID)

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if models.IsTerminalStatus(trade.Status) {
		return nil
	}
	reason := "trade exceeded its maximum age"
	if trade.Status == models.TradeStatusPendingPayment {
		reason = "payment window elapsed"
	}
	return s.cancelInternal(ctx, trade, models.TradeStatusExpired, &reason)
}

// cancelInternal is the shared terminal path for cancel, refund and expiry:
// withdraw any outstanding offer, transition, reverse the ledger hold, free
// the bot slot and put the listing back on the market.
func (s *TradeService) cancelInternal(ctx context.Context, trade *models.Trade, target string, reason *string) error {
	from := trade.Status

	if trade.OfferID != nil && trade.AssignedBot != nil {
		s.delivery.CancelOffer(ctx, *trade.AssignedBot, *trade.OfferID)
	}

	if err := s.transition(ctx, trade, target, reason); err != nil {
		return err
	}

	var ledgerErr error
	if target == models.TradeStatusRefunded {
		ledgerErr = s.ledger.Refund(ctx, trade.ID)
	} else {
		ledgerErr = s.ledger.Release(ctx, trade.ID)
	}
	if ledgerErr != nil {
		s.log.Error("failed to reverse escrow hold",
			zap.String("trade_id", trade.ID.String()),
			zap.String("target", target),
			zap.Error(ledgerErr),
		)
		s.opsAlert(ctx, trade, "escrow reversal failed: "+ledgerErr.Error())
	}

	if models.HoldsBotSlot(from) && trade.AssignedBot != nil {
		s.registry.Release(*trade.AssignedBot)
	}
	if trade.OfferID != nil {
		if err := s.trades.ClearOffer(ctx, trade.ID); err != nil {
			return err
		}
		trade.OfferID = nil
	}

	if err := s.listings.UpdateStatus(ctx, trade.ListingID, models.ListingStatusReserved, models.ListingStatusActive); err != nil && !errors.Is(err, repositories.ErrConflict) {
		s.log.Error("failed to reactivate listing",
			zap.String("listing_id", trade.ListingID.String()), zap.Error(err))
	}
	return nil
}

// transition validates and applies one state-machine step, then records it.
// The compare-and-set update is the serialization point between processes: a
// lost race surfaces as ErrConflict and nothing else happens.
func (s *TradeService) transition(ctx context.Context, trade *models.Trade, to string, reason *string) error {
	if !models.IsValidTransition(trade.Status, to) {
		return fmt.Errorf("invalid transition from %s to %s", trade.Status, to)
	}
	if err := s.trades.UpdateStatus(ctx, trade.ID, trade.Status, to); err != nil {
		return err
	}
	trade.Status = to
	s.recordStatus(ctx, trade, reason)
	return nil
}

// recordStatus appends history, writes durable notifications for both
// participants and pushes a live event. The transition itself is already
// committed, so failures here are logged and never unwound.
func (s *TradeService) recordStatus(ctx context.Context, trade *models.Trade, reason *string) {
	seq, err := s.trades.AppendHistory(ctx, trade.ID, trade.Status, reason)
	if err != nil {
		s.log.Error("failed to append status history",
			zap.String("trade_id", trade.ID.String()),
			zap.String("status", trade.Status),
			zap.Error(err),
		)
		return
	}

	message := models.StatusLabel(trade.Status)
	for _, userID := range []uuid.UUID{trade.BuyerUserID, trade.SellerUserID} {
		n := &models.NotificationEvent{
			TradeID: trade.ID,
			UserID:  userID,
			Seq:     seq,
			Status:  trade.Status,
			Message: message,
		}
		if err := s.notifs.Insert(ctx, n); err != nil {
			s.log.Error("failed to insert notification",
				zap.String("trade_id", trade.ID.String()),
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
	}

	if err := s.pub.Publish(ctx, events.StreamTrade, events.Event{
		Type: events.EventTradeStatusChanged,
		Payload: map[string]any{
			"trade_id":       trade.ID.String(),
			"buyer_user_id":  trade.BuyerUserID.String(),
			"seller_user_id": trade.SellerUserID.String(),
			"status":         trade.Status,
			"seq":            seq,
			"message":        message,
		},
	}); err != nil {
		s.log.Warn("failed to publish trade event",
			zap.String("trade_id", trade.ID.String()), zap.Error(err))
	}
}

func (s *TradeService) opsAlert(ctx context.Context, trade *models.Trade, reason string) {
	if err := s.pub.Publish(ctx, events.StreamOps, events.Event{
		Type: events.EventOperatorAlert,
		Payload: map[string]any{
			"trade_id": trade.ID.String(),
			"reason":   reason,
		},
	}); err != nil {
		s.log.Warn("failed to publish operator alert", zap.Error(err))
	}
}

// GetTrade returns a trade with its full history; only participants and
// admins may read it.
func (s *TradeService) GetTrade(ctx context.Context, tradeID, actorID uuid.UUID) (*models.TradeWithHistory, error) {
	trade, err := s.trades.GetWithHistory(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if actorID != uuid.Nil && actorID != trade.BuyerUserID && actorID != trade.SellerUserID && !s.cfg.IsAdmin(actorID) {
		return nil, ErrNotParticipant
	}
	return trade, nil
}

func (s *TradeService) ListTrades(ctx context.Context, f repositories.TradeFilter) ([]models.Trade, error) {
	return s.trades.List(ctx, f)
}

// Assignable returns trades waiting for a bot, for the assignment sweep.
func (s *TradeService) Assignable(ctx context.Context, limit int) ([]models.Trade, error) {
	return s.trades.ListByStatus(ctx, models.TradeStatusPaymentReceived, limit)
}

// OpenOffers returns trades with an outstanding protocol offer to poll.
func (s *TradeService) OpenOffers(ctx context.Context, limit int) ([]models.Trade, error) {
	awaiting, err := s.trades.ListByStatus(ctx, models.TradeStatusAwaitingSeller, limit)
	if err != nil {
		return nil, err
	}
	delivering, err := s.trades.ListByStatus(ctx, models.TradeStatusAwaitingBuyer, limit)
	if err != nil {
		return nil, err
	}
	return append(awaiting, delivering...), nil
}

// PollTrade refreshes one trade from its outstanding offer.
func (s *TradeService) PollTrade(ctx context.Context, trade models.Trade) error {
	if trade.OfferID == nil || trade.AssignedBot == nil {
		return nil
	}
	state, err := s.delivery.PollOffer(ctx, *trade.AssignedBot, *trade.OfferID)
	if err != nil {
		return err
	}
	return s.HandleOfferState(ctx, trade.ID, state)
}

// ExpireStale sweeps both expiry clocks: the short payment window and the
// overall trade age ceiling.
func (s *TradeService) ExpireStale(ctx context.Context, limit int) error {
	unpaid, err := s.trades.ListStale(ctx, []string{models.TradeStatusPendingPayment}, s.cfg.PaymentTimeout, limit)
	if err != nil {
		return err
	}
	// BUYER_ACCEPTED is deliberately absent: the buyer already holds the item,
	// so releasing the escrow would strand the seller. The recovery sweep
	// settles those instead.
	inflight, err := s.trades.ListStale(ctx, []string{
		models.TradeStatusPaymentReceived,
		models.TradeStatusAwaitingSeller,
		models.TradeStatusSellerAccepted,
		models.TradeStatusAwaitingBuyer,
		models.TradeStatusErrorSending,
	}, s.cfg.TradeMaxAge, limit)
	if err != nil {
		return err
	}

	for _, t := range append(unpaid, inflight...) {
		if err := s.ExpireTrade(ctx, t.ID); err != nil {
			s.log.Error("failed to expire trade",
				zap.String("trade_id", t.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func derefOr(s *string, fallback string) string {
	if s != nil {
		return *s
	}
	return fallback
}

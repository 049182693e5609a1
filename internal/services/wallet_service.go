package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/models"
	"github.com/skins-market/backend/internal/repositories"
)

// WalletService is the thin read/top-up surface over the escrow ledger. All
// trade-driven movements go through TradeService; this only serves balances,
// notification catch-up and the wallet collaborator's top-up hook.
type WalletService struct {
	ledger *repositories.LedgerRepo
	notifs *repositories.NotificationRepo
	log    *zap.Logger
}

func NewWalletService(ledger *repositories.LedgerRepo, notifs *repositories.NotificationRepo, log *zap.Logger) *WalletService {
	return &WalletService{ledger: ledger, notifs: notifs, log: log}
}

func (s *WalletService) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.ledger.GetBalance(ctx, userID)
}

func (s *WalletService) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	if err := s.ledger.Credit(ctx, userID, amount); err != nil {
		return err
	}
	s.log.Info("wallet credited",
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()),
	)
	return nil
}

// MissedEvents returns the durable notifications a client skipped while
// disconnected, oldest first.
func (s *WalletService) MissedEvents(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]models.NotificationEvent, error) {
	return s.notifs.ListByUserSince(ctx, userID, since, limit)
}

func (s *WalletService) TradeEntries(ctx context.Context, tradeID uuid.UUID) ([]models.LedgerEntry, error) {
	return s.ledger.EntriesByTrade(ctx, tradeID)
}

package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/models"
)

// LedgerRepo is the escrow ledger. Every operation runs in a single
// transaction, takes row locks on the balances it touches, and is made
// idempotent by the (trade_id, entry_type) unique key: a duplicate call finds
// its entry already present and becomes a warn-logged no-op.
type LedgerRepo struct {
	pool       *pgxpool.Pool
	platformID uuid.UUID
	log        *zap.Logger
}

func NewLedgerRepo(pool *pgxpool.Pool, platformID uuid.UUID, log *zap.Logger) *LedgerRepo {
	return &LedgerRepo{pool: pool, platformID: platformID, log: log}
}

// Reserve holds the buyer's funds for a trade and flips the trade's status in
// the same transaction. The balance read and the debit happen under the same
// row lock, so two concurrent purchases against one wallet cannot both pass
// the sufficiency check; and because the status compare-and-set commits or
// rolls back together with the hold, a caller that loses the status race
// leaves no reservation behind. A duplicate call finds the reserve entry
// already present and returns ErrConflict without writing anything.
func (r *LedgerRepo) Reserve(ctx context.Context, tradeID, buyerID uuid.UUID, amount decimal.Decimal, fromStatus, toStatus string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var balance string
		err := tx.QueryRow(ctx, `
			SELECT amount::text FROM balances WHERE user_id = $1 FOR UPDATE
		`, buyerID).Scan(&balance)
		if err == pgx.ErrNoRows {
			return ErrInsufficientFunds
		}
		if err != nil {
			return err
		}
		available, err := decimal.NewFromString(balance)
		if err != nil {
			return err
		}
		if available.LessThan(amount) {
			return ErrInsufficientFunds
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO ledger_entries (trade_id, user_id, amount, entry_type)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (trade_id, entry_type) DO NOTHING
		`, tradeID, buyerID, amount.Neg().String(), models.LedgerEntryReserve)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			r.log.Warn("duplicate reserve ignored", zap.String("trade_id", tradeID.String()))
			return ErrConflict
		}

		_, err = tx.Exec(ctx, `
			UPDATE balances SET amount = amount - $1, updated_at = now() WHERE user_id = $2
		`, amount.String(), buyerID)
		if err != nil {
			return err
		}

		tag, err = tx.Exec(ctx, `
			UPDATE trades SET status = $1, updated_at = now()
			WHERE id = $2 AND status = $3
		`, toStatus, tradeID, fromStatus)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// Another actor moved the trade; abort so the hold is rolled
			// back with us.
			return ErrConflict
		}
		return nil
	})
}

// Settle credits the seller payout and the platform fee exactly once.
func (r *LedgerRepo) Settle(ctx context.Context, tradeID, sellerID uuid.UUID, payout, fee decimal.Decimal) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		types, err := entryTypes(ctx, tx, tradeID)
		if err != nil {
			return err
		}
		if !types[models.LedgerEntryReserve] {
			return fmt.Errorf("%w: settle without reservation", ErrLedgerConflict)
		}
		if types[models.LedgerEntryRelease] || types[models.LedgerEntryRefund] {
			return fmt.Errorf("%w: settle after reversal", ErrLedgerConflict)
		}
		if types[models.LedgerEntryPayout] {
			r.log.Warn("duplicate settle ignored", zap.String("trade_id", tradeID.String()))
			return nil
		}

		if err := r.credit(ctx, tx, tradeID, sellerID, payout, models.LedgerEntryPayout); err != nil {
			return err
		}
		return r.credit(ctx, tx, tradeID, r.platformID, fee, models.LedgerEntryFee)
	})
}

// Release reverses the reservation after a cancel or expiry.
func (r *LedgerRepo) Release(ctx context.Context, tradeID uuid.UUID) error {
	return r.reverse(ctx, tradeID, models.LedgerEntryRelease)
}

// Refund reverses the reservation for an explicit refund.
func (r *LedgerRepo) Refund(ctx context.Context, tradeID uuid.UUID) error {
	return r.reverse(ctx, tradeID, models.LedgerEntryRefund)
}

func (r *LedgerRepo) reverse(ctx context.Context, tradeID uuid.UUID, entryType string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		types, err := entryTypes(ctx, tx, tradeID)
		if err != nil {
			return err
		}
		if types[models.LedgerEntryPayout] {
			return fmt.Errorf("%w: reversal after settle", ErrLedgerConflict)
		}
		if types[models.LedgerEntryRelease] || types[models.LedgerEntryRefund] {
			r.log.Warn("duplicate reversal ignored",
				zap.String("trade_id", tradeID.String()),
				zap.String("entry_type", entryType),
			)
			return nil
		}

		var buyerID uuid.UUID
		var amount string
		err = tx.QueryRow(ctx, `
			SELECT user_id, amount::text FROM ledger_entries
			WHERE trade_id = $1 AND entry_type = $2
		`, tradeID, models.LedgerEntryReserve).Scan(&buyerID, &amount)
		if err == pgx.ErrNoRows {
			// Nothing was reserved, nothing to reverse.
			return nil
		}
		if err != nil {
			return err
		}
		reserved, err := decimal.NewFromString(amount)
		if err != nil {
			return err
		}

		return r.credit(ctx, tx, tradeID, buyerID, reserved.Neg(), entryType)
	})
}

// credit inserts a ledger entry and applies it to the user's balance inside
// the caller's transaction.
func (r *LedgerRepo) credit(ctx context.Context, tx pgx.Tx, tradeID, userID uuid.UUID, amount decimal.Decimal, entryType string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (trade_id, user_id, amount, entry_type)
		VALUES ($1, $2, $3, $4)
	`, tradeID, userID, amount.String(), entryType)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
	`, userID, amount.String())
	return err
}

// entryTypes locks and returns the set of entry types already recorded for a
// trade; every ledger decision is taken against this set inside the same tx.
func entryTypes(ctx context.Context, tx pgx.Tx, tradeID uuid.UUID) (map[string]bool, error) {
	rows, err := tx.Query(ctx, `
		SELECT entry_type FROM ledger_entries WHERE trade_id = $1 FOR UPDATE
	`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types[t] = true
	}
	return types, rows.Err()
}

func (r *LedgerRepo) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var amount string
	err := r.pool.QueryRow(ctx, `
		SELECT amount::text FROM balances WHERE user_id = $1
	`, userID).Scan(&amount)
	if err == pgx.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(amount)
}

// Credit tops up a user balance outside any trade (wallet collaborator).
func (r *LedgerRepo) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("credit amount must be positive")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
	`, userID, amount.String())
	return err
}

func (r *LedgerRepo) EntriesByTrade(ctx context.Context, tradeID uuid.UUID) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trade_id, user_id, amount::text, entry_type, created_at
		FROM ledger_entries WHERE trade_id = $1 ORDER BY created_at ASC
	`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var amount string
		if err := rows.Scan(&e.ID, &e.TradeID, &e.UserID, &amount, &e.EntryType, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumByTrade is the audit check: zero once a trade is terminal.
func (r *LedgerRepo) SumByTrade(ctx context.Context, tradeID uuid.UUID) (decimal.Decimal, error) {
	var sum string
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM ledger_entries WHERE trade_id = $1
	`, tradeID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sum)
}

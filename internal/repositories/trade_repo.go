package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/skins-market/backend/internal/models"
)

type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

// Money columns travel as text; pgx scans them into strings and we convert.
const tradeColumns = `
	id, listing_id, buyer_user_id, seller_user_id, asset_id, item_meta,
	price::text, platform_fee::text, seller_payout::text,
	assigned_bot, offer_id, status, created_at, updated_at
`

func scanTrade(row pgx.Row) (*models.Trade, error) {
	var t models.Trade
	var price, fee, payout string
	err := row.Scan(&t.ID, &t.ListingID, &t.BuyerUserID, &t.SellerUserID, &t.AssetID, &t.ItemMeta,
		&price, &fee, &payout,
		&t.AssignedBot, &t.OfferID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	if t.PlatformFee, err = decimal.NewFromString(fee); err != nil {
		return nil, err
	}
	if t.SellerPayout, err = decimal.NewFromString(payout); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TradeRepo) Create(ctx context.Context, t *models.Trade) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO trades (listing_id, buyer_user_id, seller_user_id, asset_id, item_meta,
		                    price, platform_fee, seller_payout, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, t.ListingID, t.BuyerUserID, t.SellerUserID, t.AssetID, t.ItemMeta,
		t.Price.String(), t.PlatformFee.String(), t.SellerPayout.String(), t.Status,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TradeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	return scanTrade(r.pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id))
}

// UpdateStatus is a compare-and-set: it only wins if the trade is still in
// the expected previous status. Losing returns ErrConflict and the caller
// must re-read; this is what keeps API and worker from racing a transition.
func (r *TradeRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE trades SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *TradeRepo) SetAssignedBot(ctx context.Context, id uuid.UUID, handle string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE trades SET assigned_bot = $1, updated_at = now() WHERE id = $2
	`, handle, id)
	return err
}

// SetOffer records the live protocol offer; it is replaced when the delivery
// leg starts and cleared when no offer is outstanding.
func (r *TradeRepo) SetOffer(ctx context.Context, id uuid.UUID, offerID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE trades SET offer_id = $1, updated_at = now() WHERE id = $2
	`, offerID, id)
	return err
}

func (r *TradeRepo) ClearOffer(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE trades SET offer_id = NULL, updated_at = now() WHERE id = $1
	`, id)
	return err
}

// AppendHistory writes the next status-history row and returns its sequence
// number. History is append-only; the unique (trade_id, seq) key makes a
// concurrent duplicate append fail loudly instead of reordering.
func (r *TradeRepo) AppendHistory(ctx context.Context, tradeID uuid.UUID, status string, reason *string) (int, error) {
	var seq int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO trade_status_history (trade_id, seq, status, reason)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3
		FROM trade_status_history WHERE trade_id = $1
		RETURNING seq
	`, tradeID, status, reason).Scan(&seq)
	return seq, err
}

func (r *TradeRepo) History(ctx context.Context, tradeID uuid.UUID) ([]models.StatusHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trade_id, seq, status, reason, created_at
		FROM trade_status_history
		WHERE trade_id = $1
		ORDER BY seq ASC
	`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.StatusHistoryEntry
	for rows.Next() {
		var e models.StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.TradeID, &e.Seq, &e.Status, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

func (r *TradeRepo) GetWithHistory(ctx context.Context, id uuid.UUID) (*models.TradeWithHistory, error) {
	trade, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := r.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.TradeWithHistory{Trade: *trade, History: history}, nil
}

type TradeFilter struct {
	BuyerUserID  *uuid.UUID
	SellerUserID *uuid.UUID
	Status       *string
	Limit        int
	Offset       int
}

func (r *TradeRepo) List(ctx context.Context, f TradeFilter) ([]models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.BuyerUserID != nil {
		where = append(where, fmt.Sprintf("buyer_user_id = $%d", argIdx))
		args = append(args, *f.BuyerUserID)
		argIdx++
	}
	if f.SellerUserID != nil {
		where = append(where, fmt.Sprintf("seller_user_id = $%d", argIdx))
		args = append(args, *f.SellerUserID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	return r.queryTrades(ctx, query, args...)
}

// ListByStatus feeds the worker sweeps.
func (r *TradeRepo) ListByStatus(ctx context.Context, status string, limit int) ([]models.Trade, error) {
	return r.queryTrades(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE status = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, status, limit)
}

// ListStale returns trades sitting in one of the given statuses longer than
// maxAge, candidates for the expiry sweep.
func (r *TradeRepo) ListStale(ctx context.Context, statuses []string, maxAge time.Duration, limit int) ([]models.Trade, error) {
	return r.queryTrades(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE status = ANY($1) AND created_at < now() - ($2 || ' seconds')::interval
		ORDER BY created_at ASC
		LIMIT $3
	`, statuses, fmt.Sprintf("%d", int(maxAge.Seconds())), limit)
}

// CountActiveByBot recomputes bot load from in-flight trade records for the
// reconciliation sweep.
func (r *TradeRepo) CountActiveByBot(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT assigned_bot, COUNT(*) FROM trades
		WHERE assigned_bot IS NOT NULL
		  AND status IN ('awaiting_seller', 'seller_accepted', 'awaiting_buyer', 'buyer_accepted')
		GROUP BY assigned_bot
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var bot string
		var n int
		if err := rows.Scan(&bot, &n); err != nil {
			return nil, err
		}
		counts[bot] = n
	}
	return counts, rows.Err()
}

func (r *TradeRepo) queryTrades(ctx context.Context, query string, args ...any) ([]models.Trade, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skins-market/backend/internal/models"
)

// NotificationRepo is the durable side of the fan-out: every trade state
// change lands here regardless of whether a live push succeeded, so clients
// that were offline can catch up.
type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Insert(ctx context.Context, e *models.NotificationEvent) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO notification_events (trade_id, user_id, seq, status, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, e.TradeID, e.UserID, e.Seq, e.Status, e.Message).Scan(&e.ID, &e.CreatedAt)
}

// ListByUserSince serves the reconnect path: everything the user missed,
// oldest first, ordered per trade by history sequence.
func (r *NotificationRepo) ListByUserSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]models.NotificationEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, trade_id, user_id, seq, status, message, created_at
		FROM notification_events
		WHERE user_id = $1 AND created_at > $2
		ORDER BY created_at ASC, seq ASC
		LIMIT $3
	`, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.NotificationEvent
	for rows.Next() {
		var e models.NotificationEvent
		if err := rows.Scan(&e.ID, &e.TradeID, &e.UserID, &e.Seq, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *NotificationRepo) ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]models.NotificationEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trade_id, user_id, seq, status, message, created_at
		FROM notification_events
		WHERE trade_id = $1
		ORDER BY seq ASC
	`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.NotificationEvent
	for rows.Next() {
		var e models.NotificationEvent
		if err := rows.Scan(&e.ID, &e.TradeID, &e.UserID, &e.Seq, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

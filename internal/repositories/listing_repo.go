package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/skins-market/backend/internal/models"
)

type ListingRepo struct {
	pool *pgxpool.Pool
}

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

const listingColumns = `
	id, seller_user_id, asset_id, title, item_meta, price::text, status, created_at, updated_at
`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	var price string
	err := row.Scan(&l.ID, &l.SellerUserID, &l.AssetID, &l.Title, &l.ItemMeta, &price, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if l.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ListingRepo) Create(ctx context.Context, l *models.Listing) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO listings (seller_user_id, asset_id, title, item_meta, price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, l.SellerUserID, l.AssetID, l.Title, l.ItemMeta, l.Price.String(), l.Status,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

func (r *ListingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return scanListing(r.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
}

// UpdateStatus compare-and-sets a listing's status, so only one purchase can
// move a listing from active to reserved.
func (r *ListingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE listings SET status = $1, updated_at = now()
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

type ListingFilter struct {
	SellerUserID *uuid.UUID
	Status       *string
	Limit        int
	Offset       int
}

func (r *ListingRepo) List(ctx context.Context, f ListingFilter) ([]models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings`
	args := []any{}
	argIdx := 1
	where := []string{}

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

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

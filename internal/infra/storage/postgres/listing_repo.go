package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cryptomart/indexer/internal/core/domain"
)

// ListingRepo implements storage.ListingRepository using PostgreSQL.
type ListingRepo struct {
	q sqlx.ExtContext
}

type listingRow struct {
	ID            string    `db:"id"`
	OnchainID     int64     `db:"onchain_id"`
	SellerAddress string    `db:"seller_address"`
	Title         string    `db:"title"`
	Price         string    `db:"price"`
	CreatedAt     time.Time `db:"created_at"`
}

// GetByOnchainID resolves a listing by its on-chain identifier.
func (r *ListingRepo) GetByOnchainID(ctx context.Context, onchainID uint64) (*domain.Listing, error) {
	query := `
		SELECT id, onchain_id, seller_address, title, price, created_at
		FROM listings
		WHERE onchain_id = $1
	`
	var row listingRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, int64(onchainID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return &domain.Listing{
		ID:            row.ID,
		OnchainID:     uint64(row.OnchainID),
		SellerAddress: row.SellerAddress,
		Title:         row.Title,
		Price:         row.Price,
		CreatedAt:     row.CreatedAt,
	}, nil
}

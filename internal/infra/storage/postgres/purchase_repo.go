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

// PurchaseRepo implements storage.PurchaseRepository using PostgreSQL.
type PurchaseRepo struct {
	q sqlx.ExtContext
}

type purchaseRow struct {
	ID           string    `db:"id"`
	ListingID    string    `db:"listing_id"`
	BuyerAddress string    `db:"buyer_address"`
	TxHash       string    `db:"tx_hash"`
	Amount       string    `db:"amount"`
	Verified     bool      `db:"verified"`
	BlockNumber  int64     `db:"block_number"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Upsert inserts a purchase keyed by tx hash. A conflicting insert only
// touches updated_at, so replays never change business data.
func (r *PurchaseRepo) Upsert(ctx context.Context, p *domain.Purchase) error {
	query := `
		INSERT INTO purchases (
			id, listing_id, buyer_address, tx_hash, amount, verified, block_number, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (tx_hash) DO UPDATE SET updated_at = NOW()
	`
	_, err := r.q.ExecContext(ctx, query,
		p.ID, p.ListingID, p.BuyerAddress, p.TxHash,
		p.Amount, p.Verified, int64(p.BlockNumber),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert purchase: %w", err)
	}
	return nil
}

// GetByTxHash retrieves a purchase by transaction hash.
func (r *PurchaseRepo) GetByTxHash(ctx context.Context, txHash string) (*domain.Purchase, error) {
	query := `
		SELECT id, listing_id, buyer_address, tx_hash, amount, verified, block_number, created_at, updated_at
		FROM purchases
		WHERE tx_hash = $1
	`
	var row purchaseRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, txHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return rowToPurchase(row), nil
}

// Count returns the total number of purchases.
func (r *PurchaseRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.q, &count, `SELECT COUNT(*) FROM purchases`); err != nil {
		return 0, fmt.Errorf("failed to count purchases: %w", err)
	}
	return count, nil
}

func rowToPurchase(row purchaseRow) *domain.Purchase {
	return &domain.Purchase{
		ID:           row.ID,
		ListingID:    row.ListingID,
		BuyerAddress: row.BuyerAddress,
		TxHash:       row.TxHash,
		Amount:       row.Amount,
		Verified:     row.Verified,
		BlockNumber:  uint64(row.BlockNumber),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

package storage

import (
	"context"

	"github.com/cryptomart/indexer/internal/core/domain"
)

// ListingRepository reads listings owned by the marketplace API layer.
type ListingRepository interface {
	// GetByOnchainID resolves a listing by its on-chain identifier.
	// Returns (nil, nil) when no listing exists.
	GetByOnchainID(ctx context.Context, onchainID uint64) (*domain.Listing, error)
}

// PurchaseRepository handles purchase storage operations.
type PurchaseRepository interface {
	// Upsert inserts a purchase keyed by tx hash. If a purchase with the same
	// tx hash already exists the call is a no-op.
	Upsert(ctx context.Context, p *domain.Purchase) error

	// GetByTxHash retrieves a purchase by transaction hash.
	// Returns (nil, nil) when not found.
	GetByTxHash(ctx context.Context, txHash string) (*domain.Purchase, error)

	// Count returns the total number of purchases.
	Count(ctx context.Context) (int, error)
}

// EventLogRepository handles the dedup/audit ledger.
type EventLogRepository interface {
	// Insert adds a ledger row. Inserting a duplicate (tx_hash, log_index) is
	// a no-op: the uniqueness constraint is the final arbiter when the poller
	// and a backfill race on the same event.
	Insert(ctx context.Context, e *domain.EventLog) error

	// Exists reports whether a ledger row exists for (txHash, logIndex).
	Exists(ctx context.Context, txHash string, logIndex uint32) (bool, error)

	// HighestBlock returns the highest block number across all ledger rows.
	// found is false when the ledger is empty.
	HighestBlock(ctx context.Context) (block uint64, found bool, err error)

	// Latest returns the most recently created ledger row.
	// Returns (nil, nil) when the ledger is empty.
	Latest(ctx context.Context) (*domain.EventLog, error)

	// Count returns the total number of ledger rows.
	Count(ctx context.Context) (int, error)
}

// Repos bundles the repositories the event processor writes through.
type Repos interface {
	Listings() ListingRepository
	Purchases() PurchaseRepository
	EventLogs() EventLogRepository
}

// Store is the persistence boundary. WithTx runs fn against transactional
// repositories; every write inside fn commits together or not at all.
type Store interface {
	Repos

	WithTx(ctx context.Context, fn func(Repos) error) error
}

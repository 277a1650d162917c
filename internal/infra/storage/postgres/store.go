package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cryptomart/indexer/internal/infra/storage"
)

// Store implements storage.Store on PostgreSQL. Repositories are bound to
// either the pool or an open transaction through sqlx.ExtContext, so the same
// query code serves both paths.
type Store struct {
	db *DB
	repos
}

// NewStore creates a PostgreSQL-backed store.
func NewStore(db *DB) *Store {
	return &Store{db: db, repos: repos{q: db.DB}}
}

// WithTx runs fn inside a single database transaction. All writes made
// through the repositories handed to fn commit together or roll back
// together.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Repos) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(repos{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type repos struct {
	q sqlx.ExtContext
}

func (r repos) Listings() storage.ListingRepository   { return &ListingRepo{q: r.q} }
func (r repos) Purchases() storage.PurchaseRepository { return &PurchaseRepo{q: r.q} }
func (r repos) EventLogs() storage.EventLogRepository { return &EventLogRepo{q: r.q} }

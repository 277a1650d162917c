package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryptomart/indexer/internal/core/domain"
	"github.com/cryptomart/indexer/internal/infra/storage"
)

func TestWithTxRollbackRestoresInserts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.WithTx(ctx, func(r storage.Repos) error {
		require.NoError(t, r.Purchases().Upsert(ctx, &domain.Purchase{ID: "p1", TxHash: "0xaa"}))
		require.NoError(t, r.EventLogs().Insert(ctx, &domain.EventLog{ID: "e1", TxHash: "0xaa"}))
		return errors.New("boom")
	})
	require.Error(t, err)

	purchases, err := store.Purchases().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, purchases)

	events, err := store.EventLogs().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, events)
}

// TestWithTxRollbackRestoresRowMutations covers in-place updates: Upsert on
// an existing tx hash touches the stored row, and a rollback must undo that
// too, not just undo new inserts.
func TestWithTxRollbackRestoresRowMutations(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	before := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Purchases().Upsert(ctx, &domain.Purchase{
		ID: "p1", TxHash: "0xaa", UpdatedAt: before,
	}))

	err := store.WithTx(ctx, func(r storage.Repos) error {
		require.NoError(t, r.Purchases().Upsert(ctx, &domain.Purchase{
			ID: "p1-dup", TxHash: "0xaa", UpdatedAt: before.Add(time.Hour),
		}))
		return errors.New("boom")
	})
	require.Error(t, err)

	got, err := store.Purchases().GetByTxHash(ctx, "0xaa")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, before, got.UpdatedAt)
}

func TestWithTxCommitKeepsWrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.WithTx(ctx, func(r storage.Repos) error {
		return r.Purchases().Upsert(ctx, &domain.Purchase{ID: "p1", TxHash: "0xaa"})
	})
	require.NoError(t, err)

	got, err := store.Purchases().GetByTxHash(ctx, "0xaa")
	require.NoError(t, err)
	require.NotNil(t, got)
}

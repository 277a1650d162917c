package backfill

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cryptomart/indexer/internal/core/domain"
	"github.com/cryptomart/indexer/internal/indexing/processor"
	"github.com/cryptomart/indexer/internal/infra/storage"
	"github.com/cryptomart/indexer/internal/infra/storage/memory"
)

type fakeSource struct {
	logs       []domain.RawLog
	fetchCalls int
	events     map[string]domain.DecodedEvent // by tx hash
}

func (s *fakeSource) LatestHeight(ctx context.Context) (uint64, error) {
	return 0, nil
}

func (s *fakeSource) FetchLogs(ctx context.Context, from, to uint64) ([]domain.RawLog, error) {
	s.fetchCalls++
	var out []domain.RawLog
	for _, l := range s.logs {
		if l.BlockNumber != nil && *l.BlockNumber >= from && *l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeSource) Decode(log domain.RawLog) (domain.DecodedEvent, error) {
	if ev, ok := s.events[log.TxHash]; ok {
		return ev, nil
	}
	return domain.DecodedEvent{}, fmt.Errorf("%w: no event for %s", domain.ErrDecode, log.TxHash)
}

func rawLog(txHash string, block uint64, logIndex uint32) domain.RawLog {
	return domain.RawLog{
		TxHash:      txHash,
		BlockNumber: &block,
		LogIndex:    &logIndex,
		Topics:      []string{"0xsig"},
	}
}

func purchaseEvent(onchainID uint64) domain.DecodedEvent {
	return domain.DecodedEvent{
		Kind: domain.EventPurchaseCompleted,
		PurchaseCompleted: &domain.PurchaseCompletedEvent{
			ListingOnchainID: onchainID,
			BuyerAddress:     "0xbuyer",
			Amount:           "1000",
		},
	}
}

func newTestRunner(src *fakeSource, store *memory.Store, maxRange uint64) *Runner {
	proc := processor.New(src, store, nil)
	return NewRunner(src, store.EventLogs(), proc, maxRange)
}

func TestRunEmptyRange(t *testing.T) {
	store := memory.NewStore()
	src := &fakeSource{}
	r := newTestRunner(src, store, 2000)

	report, err := r.Run(context.Background(), 1000, 2000, false)
	require.NoError(t, err)

	require.Equal(t, uint64(1001), report.BlocksScanned)
	require.Equal(t, 0, report.EventsFound)
	require.Equal(t, 0, report.Created)
	require.Equal(t, 0, report.Skipped)
	require.Equal(t, 0, report.Failed)
	require.Empty(t, report.Details)
}

func TestRunCreatesAndLedgers(t *testing.T) {
	store := memory.NewStore()
	store.SeedListing(&domain.Listing{ID: "l1", OnchainID: 7, SellerAddress: "0xseller"})

	src := &fakeSource{
		logs:   []domain.RawLog{rawLog("0xaa", 1500, 0)},
		events: map[string]domain.DecodedEvent{"0xaa": purchaseEvent(7)},
	}
	r := newTestRunner(src, store, 2000)

	report, err := r.Run(context.Background(), 1000, 2000, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.EventsFound)
	require.Equal(t, 1, report.Created)

	count, err := store.Purchases().Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

// TestRunReplayIsAllSkips replays a range that was already indexed live: every
// event must classify as skipped and nothing new may be written.
func TestRunReplayIsAllSkips(t *testing.T) {
	store := memory.NewStore()
	store.SeedListing(&domain.Listing{ID: "l1", OnchainID: 7, SellerAddress: "0xseller"})

	src := &fakeSource{
		logs:   []domain.RawLog{rawLog("0xaa", 1500, 0)},
		events: map[string]domain.DecodedEvent{"0xaa": purchaseEvent(7)},
	}
	r := newTestRunner(src, store, 2000)
	ctx := context.Background()

	first, err := r.Run(ctx, 1000, 2000, false)
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	second, err := r.Run(ctx, 1000, 2000, false)
	require.NoError(t, err)
	require.Equal(t, 1, second.EventsFound)
	require.Equal(t, 0, second.Created)
	require.Equal(t, 1, second.Skipped)

	count, err := store.Purchases().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRunInvalidRangeBeforeAnyFetch(t *testing.T) {
	store := memory.NewStore()
	src := &fakeSource{}
	r := newTestRunner(src, store, 2000)

	_, err := r.Run(context.Background(), 2000, 1000, false)
	require.ErrorIs(t, err, domain.ErrInvalidRange)
	require.Equal(t, 0, src.fetchCalls)
}

// TestRunContinuesPastFailures is the contract that separates backfill from
// the live poller: one broken event does not abort the run.
func TestRunContinuesPastFailures(t *testing.T) {
	store := memory.NewStore()
	// Listing 2 exists, listing 1 does not.
	store.SeedListing(&domain.Listing{ID: "l2", OnchainID: 2, SellerAddress: "0xseller"})

	src := &fakeSource{
		logs: []domain.RawLog{
			rawLog("0xbroken", 1100, 0),
			rawLog("0xgood", 1200, 0),
		},
		events: map[string]domain.DecodedEvent{
			"0xbroken": purchaseEvent(1),
			"0xgood":   purchaseEvent(2),
		},
	}
	r := newTestRunner(src, store, 2000)

	report, err := r.Run(context.Background(), 1000, 2000, false)
	require.NoError(t, err)
	require.Equal(t, 2, report.EventsFound)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, report.Failed)

	require.Len(t, report.Details, 2)
	require.Equal(t, StatusError, report.Details[0].Status)
	require.Contains(t, report.Details[0].Error, "listing")
	require.Equal(t, StatusCreated, report.Details[1].Status)

	// The failure is still ledgered, like in the live path.
	exists, err := store.EventLogs().Exists(context.Background(), "0xbroken", 0)
	require.NoError(t, err)
	require.True(t, exists)

	count, err := store.Purchases().Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	store := memory.NewStore()
	store.SeedListing(&domain.Listing{ID: "l1", OnchainID: 7, SellerAddress: "0xseller"})

	src := &fakeSource{
		logs: []domain.RawLog{
			rawLog("0xnew", 1500, 0),
			rawLog("0xseen", 1600, 0),
		},
		events: map[string]domain.DecodedEvent{
			"0xnew":  purchaseEvent(7),
			"0xseen": purchaseEvent(7),
		},
	}
	r := newTestRunner(src, store, 2000)
	ctx := context.Background()

	require.NoError(t, store.EventLogs().Insert(ctx, &domain.EventLog{
		ID: "e1", TxHash: "0xseen", LogIndex: 0, BlockNumber: 1600,
		EventType: string(domain.EventPurchaseCompleted), Processed: true,
	}))

	report, err := r.Run(ctx, 1000, 2000, true)
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Equal(t, 2, report.EventsFound)
	require.Equal(t, 1, report.Created) // would be created
	require.Equal(t, 1, report.Skipped)

	purchases, err := store.Purchases().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, purchases)

	events, err := store.EventLogs().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, events)
}

// flakyLedgerStore fails a configured number of ledger Exists calls before
// recovering, simulating a momentary database outage during the dedup check.
type flakyLedgerStore struct {
	*memory.Store
	failures int
}

type flakyLedger struct {
	storage.EventLogRepository
	s *flakyLedgerStore
}

func (s *flakyLedgerStore) EventLogs() storage.EventLogRepository {
	return flakyLedger{EventLogRepository: s.Store.EventLogs(), s: s}
}

func (l flakyLedger) Exists(ctx context.Context, txHash string, logIndex uint32) (bool, error) {
	if l.s.failures > 0 {
		l.s.failures--
		return false, errors.New("connection refused")
	}
	return l.EventLogRepository.Exists(ctx, txHash, logIndex)
}

// TestRunStoreOutageLeavesNoFailureRow: a failed dedup read counts as a
// failure in the report but writes no ledger row, so a later run can still
// index the event.
func TestRunStoreOutageLeavesNoFailureRow(t *testing.T) {
	store := &flakyLedgerStore{Store: memory.NewStore(), failures: 1}
	store.SeedListing(&domain.Listing{ID: "l1", OnchainID: 7, SellerAddress: "0xseller"})
	ctx := context.Background()

	src := &fakeSource{
		logs:   []domain.RawLog{rawLog("0xaa", 1500, 0)},
		events: map[string]domain.DecodedEvent{"0xaa": purchaseEvent(7)},
	}
	proc := processor.New(src, store, nil)
	r := NewRunner(src, store.EventLogs(), proc, 2000)

	report, err := r.Run(ctx, 1000, 2000, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 0, report.Created)

	events, err := store.Store.EventLogs().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, events)

	// The store recovers; the replay indexes the event.
	report, err = r.Run(ctx, 1000, 2000, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)

	count, err := store.Purchases().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRunChunksLargeRange(t *testing.T) {
	store := memory.NewStore()
	src := &fakeSource{}
	r := newTestRunner(src, store, 2000)

	report, err := r.Run(context.Background(), 1000, 5195, false)
	require.NoError(t, err)
	require.Equal(t, 3, src.fetchCalls)
	require.Equal(t, uint64(4196), report.BlocksScanned)
}

package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryptomart/indexer/internal/core/domain"
	"github.com/cryptomart/indexer/internal/indexing/processor"
	"github.com/cryptomart/indexer/internal/infra/storage"
	"github.com/cryptomart/indexer/internal/infra/storage/memory"
)

type fakeSource struct {
	mu          sync.Mutex
	height      uint64
	heightCalls int
	heightGate  chan struct{} // when set, LatestHeight blocks until closed
	logs        []domain.RawLog
	fetchCalls  []Range
	events      map[string]domain.DecodedEvent // by tx hash
}

func (s *fakeSource) LatestHeight(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	s.heightCalls++
	gate := s.heightGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return s.height, nil
}

func (s *fakeSource) FetchLogs(ctx context.Context, from, to uint64) ([]domain.RawLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls = append(s.fetchCalls, Range{From: from, To: to})

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

func newTestPoller(src *fakeSource, store *memory.Store, cfg Config) *Poller {
	proc := processor.New(src, store, nil)
	return NewPoller(cfg, src, store.EventLogs(), proc)
}

func TestPollIndexesConfirmedLogs(t *testing.T) {
	store := memory.NewStore()
	store.SeedListing(&domain.Listing{ID: "l1", OnchainID: 7, SellerAddress: "0xseller"})

	src := &fakeSource{
		height: 1512, // confirmed head = 1500 with depth 12
		logs:   []domain.RawLog{rawLog("0xaa", 1500, 0)},
		events: map[string]domain.DecodedEvent{"0xaa": purchaseEvent(7)},
	}

	p := newTestPoller(src, store, Config{
		Interval:      time.Second,
		Confirmations: 12,
		MaxBlockRange: 2000,
		StartWindow:   5000,
	})
	require.NoError(t, p.Poll(context.Background()))

	count, err := store.Purchases().Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	purchase, err := store.Purchases().GetByTxHash(context.Background(), "0xaa")
	require.NoError(t, err)
	require.NotNil(t, purchase)
	require.True(t, purchase.Verified)
	require.Equal(t, "l1", purchase.ListingID)

	exists, err := store.EventLogs().Exists(context.Background(), "0xaa", 0)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestPollNoopWhenCursorAheadOfConfirmedHead(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.EventLogs().Insert(context.Background(), &domain.EventLog{
		ID: "e1", TxHash: "0xold", LogIndex: 0, BlockNumber: 150,
		EventType: string(domain.EventPurchaseCompleted), Processed: true,
		CreatedAt: time.Now(),
	}))

	src := &fakeSource{height: 112} // confirmed = 100, cursor = 150

	p := newTestPoller(src, store, Config{
		Interval: time.Second, Confirmations: 12, MaxBlockRange: 2000, StartWindow: 5000,
	})
	require.NoError(t, p.Poll(context.Background()))
	require.Empty(t, src.fetchCalls)
}

// TestPollFailFast covers the ordering contract: when the first log in a
// cycle fails, the second is never processed and the cycle surfaces the
// error.
func TestPollFailFast(t *testing.T) {
	store := memory.NewStore()
	// Listing 2 exists, listing 1 does not: the first log fails lookup.
	store.SeedListing(&domain.Listing{ID: "l2", OnchainID: 2, SellerAddress: "0xseller"})

	src := &fakeSource{
		height: 1012,
		logs: []domain.RawLog{
			rawLog("0xfirst", 900, 0),
			rawLog("0xsecond", 901, 0),
		},
		events: map[string]domain.DecodedEvent{
			"0xfirst":  purchaseEvent(1),
			"0xsecond": purchaseEvent(2),
		},
	}

	p := newTestPoller(src, store, Config{
		Interval: time.Second, Confirmations: 12, MaxBlockRange: 2000, StartWindow: 5000,
	})
	err := p.Poll(context.Background())
	require.ErrorIs(t, err, domain.ErrListingNotFound)

	count, err := store.Purchases().Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, count)

	// The failure is ledgered for operators; the second log is untouched.
	exists, err := store.EventLogs().Exists(context.Background(), "0xfirst", 0)
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = store.EventLogs().Exists(context.Background(), "0xsecond", 0)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestPollDropsTickWhileInFlight(t *testing.T) {
	store := memory.NewStore()
	gate := make(chan struct{})
	src := &fakeSource{height: 1000, heightGate: gate}

	p := newTestPoller(src, store, Config{
		Interval: time.Second, Confirmations: 12, MaxBlockRange: 2000, StartWindow: 100,
	})

	done := make(chan error, 1)
	go func() { done <- p.Poll(context.Background()) }()

	// Wait for the first cycle to be blocked inside LatestHeight.
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.heightCalls == 1
	}, time.Second, 5*time.Millisecond)

	// Overlapping poll is dropped, not queued.
	require.NoError(t, p.Poll(context.Background()))
	src.mu.Lock()
	require.Equal(t, 1, src.heightCalls)
	src.mu.Unlock()

	close(gate)
	require.NoError(t, <-done)
}

// TestPollReobservesCursorBlock composes resume-at-cursor with ledger dedup:
// the cursor block is scanned again, the already-ledgered log is a no-op and
// the log the previous cycle missed at the same block gets indexed.
func TestPollReobservesCursorBlock(t *testing.T) {
	store := memory.NewStore()
	store.SeedListing(&domain.Listing{ID: "l1", OnchainID: 7, SellerAddress: "0xseller"})
	ctx := context.Background()

	// txA at block 1500 was indexed by an earlier cycle; txB at the same
	// block was not (e.g. the process died between the two).
	require.NoError(t, store.EventLogs().Insert(ctx, &domain.EventLog{
		ID: "e1", TxHash: "0xaa", LogIndex: 0, BlockNumber: 1500,
		EventType: string(domain.EventPurchaseCompleted), Processed: true,
		CreatedAt: time.Now(),
	}))

	src := &fakeSource{
		height: 1512, // confirmed head = 1500
		logs: []domain.RawLog{
			rawLog("0xaa", 1500, 0),
			rawLog("0xbb", 1500, 1),
		},
		events: map[string]domain.DecodedEvent{
			"0xaa": purchaseEvent(7),
			"0xbb": purchaseEvent(7),
		},
	}

	p := newTestPoller(src, store, Config{
		Interval: time.Second, Confirmations: 12, MaxBlockRange: 2000, StartWindow: 5000,
	})
	require.NoError(t, p.Poll(ctx))

	require.Equal(t, []Range{{From: 1500, To: 1500}}, src.fetchCalls)

	count, err := store.Purchases().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	purchase, err := store.Purchases().GetByTxHash(ctx, "0xbb")
	require.NoError(t, err)
	require.NotNil(t, purchase)

	events, err := store.EventLogs().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, events)
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

// TestPollLedgerOutageDoesNotDropEvent: a failed dedup read aborts the cycle
// but leaves no ledger row, so the next cycle indexes the event normally.
func TestPollLedgerOutageDoesNotDropEvent(t *testing.T) {
	store := &flakyLedgerStore{Store: memory.NewStore(), failures: 1}
	store.SeedListing(&domain.Listing{ID: "l1", OnchainID: 7, SellerAddress: "0xseller"})
	ctx := context.Background()

	src := &fakeSource{
		height: 1512,
		logs:   []domain.RawLog{rawLog("0xaa", 1500, 0)},
		events: map[string]domain.DecodedEvent{"0xaa": purchaseEvent(7)},
	}

	proc := processor.New(src, store, nil)
	p := NewPoller(Config{
		Interval: time.Second, Confirmations: 12, MaxBlockRange: 2000, StartWindow: 5000,
	}, src, store.EventLogs(), proc)

	err := p.Poll(ctx)
	require.ErrorIs(t, err, domain.ErrStore)

	// No failure row: recording one would mask the event as a duplicate
	// forever.
	events, err := store.Store.EventLogs().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, events)

	// The store recovers; the same cursor re-observes the log.
	require.NoError(t, p.Poll(ctx))

	count, err := store.Purchases().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestPollerStartStop(t *testing.T) {
	store := memory.NewStore()
	src := &fakeSource{height: 100}

	p := newTestPoller(src, store, Config{
		Interval: 5 * time.Millisecond, Confirmations: 12, MaxBlockRange: 2000, StartWindow: 100,
	})

	var stopped atomic.Bool
	done := make(chan struct{})
	go func() {
		_ = p.Start(context.Background())
		stopped.Store(true)
		close(done)
	}()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.heightCalls > 0
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	require.True(t, stopped.Load())
}

func TestPollerStopIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	src := &fakeSource{height: 100}

	p := newTestPoller(src, store, Config{
		Interval: 5 * time.Millisecond, Confirmations: 12, MaxBlockRange: 2000, StartWindow: 100,
	})

	done := make(chan struct{})
	go func() {
		_ = p.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.heightCalls > 0
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Stop()
		}()
	}
	wg.Wait()
	p.Stop() // and again after shutdown

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

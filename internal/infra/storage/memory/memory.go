// Package memory provides an in-memory storage.Store used when no database
// is configured and as the store for tests. WithTx takes a snapshot of all
// tables and restores it on failure, so transactional behavior matches the
// PostgreSQL store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cryptomart/indexer/internal/core/domain"
	"github.com/cryptomart/indexer/internal/infra/storage"
)

type tables struct {
	listings  map[uint64]*domain.Listing  // keyed by onchain id
	purchases map[string]*domain.Purchase // keyed by tx hash
	events    []*domain.EventLog          // in insertion order
}

func newTables() *tables {
	return &tables{
		listings:  make(map[uint64]*domain.Listing),
		purchases: make(map[string]*domain.Purchase),
	}
}

// snapshot deep-copies every row: Upsert mutates rows in place, so sharing
// pointers with the live tables would leak those writes past a rollback.
func (t *tables) snapshot() *tables {
	s := newTables()
	for k, v := range t.listings {
		cp := *v
		s.listings[k] = &cp
	}
	for k, v := range t.purchases {
		cp := *v
		s.purchases[k] = &cp
	}
	for _, e := range t.events {
		cp := *e
		s.events = append(s.events, &cp)
	}
	return s
}

// Store implements storage.Store in memory.
type Store struct {
	mu   sync.RWMutex
	data *tables
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: newTables()}
}

// SeedListing adds a listing. This subsystem never writes listings in
// production; the marketplace API owns them.
func (s *Store) SeedListing(l *domain.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.listings[l.OnchainID] = l
}

func (s *Store) Listings() storage.ListingRepository   { return &listingRepo{s: s} }
func (s *Store) Purchases() storage.PurchaseRepository { return &purchaseRepo{s: s} }
func (s *Store) EventLogs() storage.EventLogRepository { return &eventLogRepo{s: s} }

// WithTx runs fn against the store and restores the pre-transaction snapshot
// if fn returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Repos) error) error {
	s.mu.Lock()
	snap := s.data.snapshot()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

type listingRepo struct {
	s *Store
}

func (r *listingRepo) GetByOnchainID(ctx context.Context, onchainID uint64) (*domain.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.data.listings[onchainID], nil
}

type purchaseRepo struct {
	s *Store
}

func (r *purchaseRepo) Upsert(ctx context.Context, p *domain.Purchase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.data.purchases[p.TxHash]; ok {
		existing.UpdatedAt = p.UpdatedAt
		return nil
	}
	cp := *p
	r.s.data.purchases[p.TxHash] = &cp
	return nil
}

func (r *purchaseRepo) GetByTxHash(ctx context.Context, txHash string) (*domain.Purchase, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.data.purchases[txHash], nil
}

func (r *purchaseRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.data.purchases), nil
}

type eventLogRepo struct {
	s *Store
}

func (r *eventLogRepo) Insert(ctx context.Context, e *domain.EventLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.events {
		if existing.TxHash == e.TxHash && existing.LogIndex == e.LogIndex {
			return nil // uniqueness constraint: duplicate insert is a no-op
		}
	}
	cp := *e
	r.s.data.events = append(r.s.data.events, &cp)
	return nil
}

func (r *eventLogRepo) Exists(ctx context.Context, txHash string, logIndex uint32) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.data.events {
		if e.TxHash == txHash && e.LogIndex == logIndex {
			return true, nil
		}
	}
	return false, nil
}

func (r *eventLogRepo) HighestBlock(ctx context.Context) (uint64, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if len(r.s.data.events) == 0 {
		return 0, false, nil
	}
	var max uint64
	for _, e := range r.s.data.events {
		if e.BlockNumber > max {
			max = e.BlockNumber
		}
	}
	return max, true, nil
}

func (r *eventLogRepo) Latest(ctx context.Context) (*domain.EventLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if len(r.s.data.events) == 0 {
		return nil, nil
	}
	events := make([]*domain.EventLog, len(r.s.data.events))
	copy(events, r.s.data.events)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events[len(events)-1], nil
}

func (r *eventLogRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.data.events), nil
}

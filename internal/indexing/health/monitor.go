// Package health reports indexing staleness from persisted state.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptomart/indexer/internal/infra/storage"
)

// Health is a snapshot of indexing freshness derived from the ledger.
type Health struct {
	LastProcessedBlock uint64    `json:"last_processed_block"`
	LastEventAt        time.Time `json:"last_event_at"`
	Stale              bool      `json:"stale"`
}

// Monitor derives health from the most recent ledger row. Pure read, no side
// effects.
type Monitor struct {
	ledger    storage.EventLogRepository
	threshold time.Duration
	now       func() time.Time
}

// NewMonitor creates a monitor. An empty ledger, or a newest row older than
// threshold, reports stale.
func NewMonitor(ledger storage.EventLogRepository, threshold time.Duration) *Monitor {
	return &Monitor{
		ledger:    ledger,
		threshold: threshold,
		now:       time.Now,
	}
}

// Check returns the current health snapshot.
func (m *Monitor) Check(ctx context.Context) (Health, error) {
	latest, err := m.ledger.Latest(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("failed to read ledger: %w", err)
	}
	if latest == nil {
		return Health{Stale: true}, nil
	}

	return Health{
		LastProcessedBlock: latest.BlockNumber,
		LastEventAt:        latest.CreatedAt,
		Stale:              m.now().Sub(latest.CreatedAt) > m.threshold,
	}, nil
}

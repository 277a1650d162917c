package scan

import (
	"context"
	"fmt"

	"github.com/cryptomart/indexer/internal/infra/storage"
)

// ResolveFromBlock determines where the next scan resumes. The cursor is
// derived entirely from the ledger: resumption starts AT the highest recorded
// block, not one past it, so logs from a partially persisted block are
// re-observed (the dedup ledger makes the overlap safe). On a cold start the
// scan begins a bounded window behind the confirmed head rather than at
// genesis.
//
// The resolver never writes; forward progress is emergent from new ledger
// rows appearing as events are processed.
func ResolveFromBlock(
	ctx context.Context,
	ledger storage.EventLogRepository,
	confirmed uint64,
	startWindow uint64,
) (uint64, error) {
	block, found, err := ledger.HighestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve cursor: %w", err)
	}
	if found {
		return block, nil
	}
	if confirmed > startWindow {
		return confirmed - startWindow, nil
	}
	return 0, nil
}

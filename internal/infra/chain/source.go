// Package chain defines the boundary to the chain log source.
package chain

import (
	"context"

	"github.com/cryptomart/indexer/internal/core/domain"
)

// LogSource exposes the append-only event log of the marketplace contract.
// The contract address and event signature are bound at construction.
//
// Implementations must distinguish transient network failures (retryable)
// from malformed responses (not retryable); see internal/infra/rpc.
type LogSource interface {
	// LatestHeight returns the current chain head block number.
	LatestHeight(ctx context.Context) (uint64, error)

	// FetchLogs returns the contract's event logs in [fromBlock, toBlock],
	// both inclusive, ordered as returned by the node.
	FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]domain.RawLog, error)

	// Decode turns a raw log into a typed event.
	Decode(log domain.RawLog) (domain.DecodedEvent, error)
}

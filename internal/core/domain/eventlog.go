package domain

import "time"

// EventLog is the dedup/audit ledger. One row per unique (TxHash, LogIndex),
// written once and never mutated. Failed events keep their row (processed =
// false, with error text) so operators can see what was skipped; the poller
// never retries them automatically.
type EventLog struct {
	ID          string
	TxHash      string
	LogIndex    uint32
	BlockNumber uint64
	EventType   string
	Processed   bool
	Error       string
	CreatedAt   time.Time
}

package domain

// RawLog is an undecoded log entry as returned by the chain source.
// BlockNumber and LogIndex are pointers because the node returns null for
// pending logs; the processor treats missing fields as source noise.
type RawLog struct {
	Address     string
	Topics      []string
	Data        string
	BlockNumber *uint64
	TxHash      string
	LogIndex    *uint32
	Removed     bool
}

// HasKeys reports whether the log carries the fields that form the
// idempotency key.
func (l RawLog) HasKeys() bool {
	return l.BlockNumber != nil && l.LogIndex != nil && l.TxHash != ""
}

// EventKind tags the decoded event variant.
type EventKind string

const (
	EventPurchaseCompleted EventKind = "purchase_completed"
)

// DecodedEvent is the typed result of decoding a raw log, decoded once at the
// chain boundary so downstream code never re-inspects untyped shape.
type DecodedEvent struct {
	Kind              EventKind
	PurchaseCompleted *PurchaseCompletedEvent
}

// PurchaseCompletedEvent carries the fields of the marketplace's
// PurchaseCompleted contract event.
type PurchaseCompletedEvent struct {
	ListingOnchainID uint64
	BuyerAddress     string
	Amount           string // decimal string, wei
}

// ProcessResult classifies what the processor did with a log.
type ProcessResult string

const (
	ResultCreated   ProcessResult = "created"
	ResultDuplicate ProcessResult = "duplicate"
	ResultMalformed ProcessResult = "malformed"
)

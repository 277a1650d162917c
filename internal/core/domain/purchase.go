package domain

import "time"

// Purchase represents one completed on-chain sale. Rows are created only by
// the event processor and keyed by transaction hash: at most one purchase
// can ever exist for a given tx.
type Purchase struct {
	ID           string
	ListingID    string
	BuyerAddress string
	TxHash       string
	Amount       string // decimal string, wei
	Verified     bool
	BlockNumber  uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

package domain

import "time"

// Listing is owned by the marketplace API layer; this subsystem only reads it
// to resolve the internal id referenced by a purchase event.
type Listing struct {
	ID            string
	OnchainID     uint64
	SellerAddress string
	Title         string
	Price         string
	CreatedAt     time.Time
}

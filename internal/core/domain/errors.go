package domain

import "errors"

var (
	// ErrInvalidRange is returned when a caller supplies from > to. Rejected
	// before any I/O happens.
	ErrInvalidRange = errors.New("invalid block range")

	// ErrDecode indicates an event payload that does not match the expected
	// shape. Fatal to the current cycle: a wrong ABI or contract address will
	// not self-correct by retrying.
	ErrDecode = errors.New("event decode failed")

	// ErrListingNotFound indicates a purchase event referencing an on-chain id
	// with no local listing. Fatal to the current cycle; recorded in the
	// ledger for operator visibility.
	ErrListingNotFound = errors.New("listing not found")

	// ErrStore indicates an infrastructure failure while reading the ledger.
	// Fatal to the current cycle but never recorded as an event failure: the
	// next cycle's cursor re-observes the same log.
	ErrStore = errors.New("store unavailable")
)

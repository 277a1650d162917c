// Package scan contains the live polling pipeline: confirmation policy,
// range chunking, cursor resolution and the poller loop.
package scan

// ConfirmedHeight returns the highest block treated as final. Blocks within
// the confirmation depth may still be displaced by a reorganization, so they
// are excluded from scanning. Saturates at 0.
func ConfirmedHeight(latest, depth uint64) uint64 {
	if depth >= latest {
		return 0
	}
	return latest - depth
}

// Package sync drives staleness-aware synchronization passes: it decides
// per fetch unit whether the remote source is worth calling, ingests the
// results, and records fetch history.
package sync

import (
	"time"

	"github.com/starford/ansuz/internal/store"
)

// ShouldFetch reports whether a fetch unit is due for a remote fetch.
// Forced fetches and units with no prior record always fetch; otherwise a
// unit is due when strictly more than window has elapsed since the last
// fetch. Exactly at the boundary it is still considered fresh.
func ShouldFetch(rec *store.FetchRecord, window time.Duration, forced bool, now time.Time) bool {
	if forced || rec == nil {
		return true
	}
	return now.Sub(rec.LastFetched) > window
}

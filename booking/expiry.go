package booking

import "time"

// IsExpired reports whether a record has lapsed as of now.
//
// The same function runs on the authoritative write path (inside the
// ledger's transaction), in the sweeper, and in the read-side catalogs,
// so display and enforcement can never diverge: a record whose stored
// status lags behind its deadline is still treated as expired everywhere.
//
// Pure function, no side effects. A cancelled record is not "expired" -
// it is terminal for a different reason, and admission handles it via
// the status check.
func IsExpired(r Record, now time.Time) bool {
	if r.Status == StatusExpired || r.Status == StatusCompleted {
		return true
	}
	if r.Deadline != nil && !r.Deadline.After(now) {
		return true
	}
	return false
}

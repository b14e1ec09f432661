package sessionsync

import (
	"time"

	"talent-hub/backend/internal/authevent"
)

// DebounceWindow is the interval within which a repeated identical event kind
// is suppressed. Providers redeliver the same logical event in rapid
// succession (e.g. tab refocus); only the first drives work.
const DebounceWindow = 750 * time.Millisecond

// debouncer suppresses duplicate event notifications. Single-writer state
// owned by the synchronizer instance; callers hold the instance lock.
type debouncer struct {
	lastKind authevent.Kind
	lastAt   time.Time
}

// shouldProcess reports whether an event of kind arriving at now should be
// processed. Suppressed events leave state unchanged; processed events record
// (kind, now) as the new most-recent pair.
func (d *debouncer) shouldProcess(kind authevent.Kind, now time.Time) bool {
	if kind == d.lastKind && !d.lastAt.IsZero() && now.Sub(d.lastAt) < DebounceWindow {
		return false
	}
	d.lastKind = kind
	d.lastAt = now
	return true
}

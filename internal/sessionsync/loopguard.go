package sessionsync

import (
	"time"

	"talent-hub/backend/internal/authevent"
)

// Loop detection bounds. A misconfigured credential or provider bug can emit
// SIGNED_OUT → SIGNED_IN storms forever; more than LoopMaxEvents qualifying
// events inside LoopWindow converts the storm into one actionable error.
const (
	LoopWindow    = 10 * time.Second
	LoopMaxEvents = 20
)

// LoopResult is the outcome of observing one event.
type LoopResult int

const (
	LoopContinue LoopResult = iota
	LoopDetected
)

// loopGuard counts event frequency in a rolling window. Single-writer state
// owned by the synchronizer instance; callers hold the instance lock.
type loopGuard struct {
	windowStart time.Time
	count       int
}

// observe counts the event and reports whether a runaway storm was detected.
//
// InitialSession is never counted: a startup burst is not a loop.
// SignedIn and MfaVerified reset the window after being counted, so a fresh
// sign-in does not inherit a prior burst's count. TokenRefreshed and
// UserUpdated deliberately do not get that reset (observed provider behavior,
// kept as-is pending product clarification).
func (g *loopGuard) observe(kind authevent.Kind, now time.Time) LoopResult {
	if kind == authevent.KindInitialSession {
		return LoopContinue
	}
	if g.windowStart.IsZero() || now.Sub(g.windowStart) > LoopWindow {
		g.windowStart = now
		g.count = 0
	}
	g.count++
	if g.count > LoopMaxEvents {
		g.reset(now)
		return LoopDetected
	}
	if kind == authevent.KindSignedIn || kind == authevent.KindMfaVerified {
		g.reset(now)
	}
	return LoopContinue
}

// reset restarts the window at now with a zero count. Also used when a
// handled refresh failure clears the session.
func (g *loopGuard) reset(now time.Time) {
	g.windowStart = now
	g.count = 0
}

// Package authevent defines the auth provider's event stream model consumed by
// the session synchronizer.
package authevent

import (
	"strings"
	"time"
)

// Kind identifies the provider event type. The set is closed; unrecognized
// provider strings map to KindOther via ParseKind.
type Kind string

const (
	KindInitialSession     Kind = "INITIAL_SESSION"
	KindSignedIn           Kind = "SIGNED_IN"
	KindTokenRefreshed     Kind = "TOKEN_REFRESHED"
	KindUserUpdated        Kind = "USER_UPDATED"
	KindMfaVerified        Kind = "MFA_CHALLENGE_VERIFIED"
	KindSignedOut          Kind = "SIGNED_OUT"
	KindUserDeleted        Kind = "USER_DELETED"
	KindTokenRefreshFailed Kind = "TOKEN_REFRESH_FAILED"
	KindPasswordRecovery   Kind = "PASSWORD_RECOVERY"
	KindOther              Kind = "OTHER"
)

// ParseKind maps a raw provider event name to a Kind. Unknown names map to
// KindOther so a provider upgrade cannot crash the dispatcher.
func ParseKind(raw string) Kind {
	switch Kind(strings.ToUpper(strings.TrimSpace(raw))) {
	case KindInitialSession, KindSignedIn, KindTokenRefreshed, KindUserUpdated,
		KindMfaVerified, KindSignedOut, KindUserDeleted, KindTokenRefreshFailed,
		KindPasswordRecovery:
		return Kind(strings.ToUpper(strings.TrimSpace(raw)))
	default:
		return KindOther
	}
}

// SessionPayload is the provider's session snapshot attached to an event.
// Owned by the provider; the synchronizer only reads it. Nil on sign-out-like
// events.
type SessionPayload struct {
	UserID   string
	Email    string
	Metadata map[string]any
}

// MetaString returns the metadata value for key if it is a non-empty string.
func (p *SessionPayload) MetaString(key string) string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	if s, ok := p.Metadata[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// Event is a single provider notification. Immutable once emitted.
// RawError carries the provider's error text for failure kinds
// (e.g. TOKEN_REFRESH_FAILED); empty otherwise.
type Event struct {
	Kind     Kind
	Payload  *SessionPayload
	RawError string
	At       time.Time
}

// Handler consumes events in arrival order.
type Handler func(Event)

// Source delivers provider events. Implementations must deliver
// KindInitialSession at most once per subscription, followed by the remaining
// kinds in real-time arrival order.
type Source interface {
	// Subscribe registers handler and returns an unsubscribe func. Unsubscribe
	// is idempotent.
	Subscribe(handler Handler) (unsubscribe func())
}

// Package telemetry defines best-effort emission of session sync events to
// backends such as Kafka and OTel logs.
package telemetry

import (
	"context"
	"time"
)

// EventType identifies what happened during session synchronization.
type EventType string

const (
	EventSignedIn        EventType = "session.signed_in"
	EventSignedOut       EventType = "session.signed_out"
	EventSyncFailed      EventType = "session.sync_failed"
	EventLoopDetected    EventType = "session.loop_detected"
	EventAdmissionDenied EventType = "session.admission_denied"
)

// Event is a single sync telemetry record. Serialized as JSON on the wire.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	PrincipalID string    `json:"principal_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// EventEmitter emits telemetry events (e.g. to Kafka or OTel Logs).
// Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

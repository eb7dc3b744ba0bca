package events

import (
	"time"

	"github.com/google/uuid"
)

// Metadata is embedded in every event: a 128-bit id, monotonic and
// wall-clock timestamps, the producing module's name, and an optional
// trace id used to correlate a causal chain (spec.md §3, §5).
type Metadata struct {
	ID        uuid.UUID
	Monotonic time.Time // captured via time.Now(); only deltas are meaningful
	WallClock time.Time
	Producer  string
	TraceID   uuid.UUID // a fresh id from NewMetadata unless an inherited one is set
}

// NewMetadata builds event metadata stamped "now" for the given producer.
// TraceID defaults to a fresh id; callers that are propagating an existing
// trace id should set it explicitly afterward.
func NewMetadata(producer string) Metadata {
	now := time.Now()
	return Metadata{
		ID:        uuid.New(),
		Monotonic: now,
		WallClock: now,
		Producer:  producer,
		TraceID:   uuid.New(),
	}
}

// WithTraceID returns a copy of m with TraceID set to trace.
// Used to inherit a trace id from a triggering LogEntry/PacketEvent/AlertEvent,
// per spec.md §3's trace-id propagation invariant.
func (m Metadata) WithTraceID(trace uuid.UUID) Metadata {
	m.TraceID = trace
	return m
}

package events

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// AlertEvent is produced by the log-pipeline rule engine and by the SBOM
// scanner (high/critical findings). TraceID MUST be inherited from the
// triggering LogEntry/PacketEvent when one is available (spec.md §3).
type AlertEvent struct {
	Meta Metadata

	AlertID     uuid.UUID
	Title       string
	Description string
	Severity    Severity
	RuleName    string

	SourceIP *netip.Addr
	TargetIP *netip.Addr

	CreatedAt time.Time
}

// NewAlertEvent constructs an AlertEvent with a fresh AlertID, inheriting
// traceID for causal-chain propagation.
func NewAlertEvent(producer, title, ruleName string, sev Severity, traceID uuid.UUID) AlertEvent {
	meta := NewMetadata(producer).WithTraceID(traceID)
	return AlertEvent{
		Meta:      meta,
		AlertID:   uuid.New(),
		Title:     title,
		RuleName:  ruleName,
		Severity:  sev,
		CreatedAt: time.Now(),
	}
}

// ActionKind is the isolation action the container guard executed.
type ActionKind uint8

const (
	ActionPause ActionKind = iota
	ActionStop
	ActionNetworkDisconnect
)

func (a ActionKind) String() string {
	switch a {
	case ActionPause:
		return "pause"
	case ActionStop:
		return "stop"
	case ActionNetworkDisconnect:
		return "network_disconnect"
	default:
		return "unknown"
	}
}

// ActionEvent is emitted by the isolation executor once per executed
// isolation action, after its retries, successful or not (spec.md §3, §4.6).
type ActionEvent struct {
	Meta Metadata

	Kind        ActionKind
	ContainerID string
	Success     bool
	Error       string
}

// NewActionEvent constructs an ActionEvent, inheriting the alert's trace id.
func NewActionEvent(producer string, kind ActionKind, containerID string, success bool, errMsg string, traceID uuid.UUID) ActionEvent {
	return ActionEvent{
		Meta:        NewMetadata(producer).WithTraceID(traceID),
		Kind:        kind,
		ContainerID: containerID,
		Success:     success,
		Error:       errMsg,
	}
}

// ScanEvent summarizes one SBOM/lockfile scan pass (spec.md §3).
type ScanEvent struct {
	Meta Metadata

	ScanID        uuid.UUID
	LockfilePath  string
	Ecosystem     string
	FindingCount  int
	SeverityHisto map[Severity]int
}

// NewScanEvent constructs a ScanEvent with a fresh ScanID.
func NewScanEvent(producer, lockfilePath, ecosystem string) ScanEvent {
	return ScanEvent{
		Meta:          NewMetadata(producer),
		ScanID:        uuid.New(),
		LockfilePath:  lockfilePath,
		Ecosystem:     ecosystem,
		SeverityHisto: make(map[Severity]int),
	}
}

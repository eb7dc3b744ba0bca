// Package channelfabric builds the three bounded, typed in-process channels
// that wire Ironpost's plugins together (spec.md §4.2). No module calls
// another directly — every cross-plugin signal rides one of these queues.
package channelfabric

import (
	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/events"
)

const (
	// PacketCapacity is the packet channel's bound (spec.md §4.2).
	PacketCapacity = 1024
	// AlertCapacity is the alert channel's bound (spec.md §4.2).
	AlertCapacity = 256
	// ActionCapacity is the action channel's bound (spec.md §4.2).
	ActionCapacity = 256
)

// PacketSender is the clone-able producer handle for the packet channel.
// Every producer uses non-blocking TrySend so a full queue never blocks
// unrelated work (spec.md §4.2's "drop-and-count rather than block").
type PacketSender struct {
	ch      chan events.PacketEvent
	dropped *zap.SugaredLogger
	onDrop  func()
}

// TrySend attempts a non-blocking send. If the queue is full, the event is
// dropped and onDrop (a metrics counter bump, typically) is invoked.
func (s PacketSender) TrySend(e events.PacketEvent) {
	select {
	case s.ch <- e:
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
	}
}

// PacketReceiver is the single-owner consumer handle for the packet channel.
type PacketReceiver struct {
	ch <-chan events.PacketEvent
}

func (r PacketReceiver) C() <-chan events.PacketEvent { return r.ch }

// AlertSender is the clone-able producer handle for the alert channel.
type AlertSender struct {
	ch     chan events.AlertEvent
	onDrop func()
}

func (s AlertSender) TrySend(e events.AlertEvent) {
	select {
	case s.ch <- e:
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
	}
}

// AlertReceiver is the single-owner consumer handle for the alert channel.
type AlertReceiver struct {
	ch <-chan events.AlertEvent
}

func (r AlertReceiver) C() <-chan events.AlertEvent { return r.ch }

// ActionSender is the clone-able producer handle for the action channel.
type ActionSender struct {
	ch     chan events.ActionEvent
	onDrop func()
}

func (s ActionSender) TrySend(e events.ActionEvent) {
	select {
	case s.ch <- e:
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
	}
}

// ActionReceiver is the single-owner consumer handle for the action channel.
type ActionReceiver struct {
	ch <-chan events.ActionEvent
}

func (r ActionReceiver) C() <-chan events.ActionEvent { return r.ch }

// Fabric owns the three underlying channels for one daemon run. Close
// drains no state itself — callers close the producer side when a plugin's
// Stop() runs, in producer-first order, per spec.md §4.1.
type Fabric struct {
	packet chan events.PacketEvent
	alert  chan events.AlertEvent
	action chan events.ActionEvent
}

// DropCounters lets callers wire queue-full drops into the metrics facade
// without channelfabric importing it directly (avoids an import cycle: the
// metrics package is itself wired by the orchestrator after the fabric is
// built).
type DropCounters struct {
	OnPacketDrop func()
	OnAlertDrop  func()
	OnActionDrop func()
}

// New builds a fresh Fabric with the fixed capacities from spec.md §4.2.
func New() *Fabric {
	return &Fabric{
		packet: make(chan events.PacketEvent, PacketCapacity),
		alert:  make(chan events.AlertEvent, AlertCapacity),
		action: make(chan events.ActionEvent, ActionCapacity),
	}
}

// PacketSender returns a clone-able producer handle.
func (f *Fabric) PacketSender(counters DropCounters) PacketSender {
	return PacketSender{ch: f.packet, onDrop: counters.OnPacketDrop}
}

// PacketReceiver returns the single-owner consumer handle.
func (f *Fabric) PacketReceiver() PacketReceiver {
	return PacketReceiver{ch: f.packet}
}

// AlertSender returns a clone-able producer handle.
func (f *Fabric) AlertSender(counters DropCounters) AlertSender {
	return AlertSender{ch: f.alert, onDrop: counters.OnAlertDrop}
}

// AlertReceiver returns the single-owner consumer handle.
func (f *Fabric) AlertReceiver() AlertReceiver {
	return AlertReceiver{ch: f.alert}
}

// ActionSender returns a clone-able producer handle.
func (f *Fabric) ActionSender(counters DropCounters) ActionSender {
	return ActionSender{ch: f.action, onDrop: counters.OnActionDrop}
}

// ActionReceiver returns the single-owner consumer handle.
func (f *Fabric) ActionReceiver() ActionReceiver {
	return ActionReceiver{ch: f.action}
}

// CloseProducers closes all three channels from the producer side. Called
// once, by the orchestrator, after every producer plugin has stopped — closing
// twice panics, so this must only run once per Fabric lifetime.
func (f *Fabric) CloseProducers() {
	close(f.packet)
	close(f.alert)
	close(f.action)
}

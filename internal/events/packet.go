package events

import (
	"fmt"
	"net/netip"
	"time"
)

// maxHeaderSnapshot is the hard cap on the captured packet header bytes
// (spec.md §3: "reference to at-most-64-byte header snapshot").
const maxHeaderSnapshot = 64

// Protocol mirrors the IANA protocol-number byte captured by the packet
// source. Only the values Ironpost's rule/alert pipeline cares about are
// named; anything else is preserved numerically.
type Protocol uint8

const (
	ProtoICMP Protocol = 1
	ProtoTCP  Protocol = 6
	ProtoUDP  Protocol = 17
)

func (p Protocol) String() string {
	switch p {
	case ProtoICMP:
		return "icmp"
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	default:
		return fmt.Sprintf("proto(%d)", uint8(p))
	}
}

// PacketEvent is the typed record produced by the eBPF/XDP packet-capture
// plugin: a 5-tuple, packet length, capture timestamp, and a bounded header
// snapshot (spec.md §3).
type PacketEvent struct {
	Meta Metadata

	SrcAddr netip.Addr
	DstAddr netip.Addr
	SrcPort uint16
	DstPort uint16
	Proto   Protocol

	Length      int
	CapturedAt  time.Time
	HeaderBytes []byte // len <= maxHeaderSnapshot
}

// NewPacketEvent constructs a PacketEvent, truncating header to the
// maxHeaderSnapshot bound rather than erroring — oversized captures are a
// producer bug, not a reason to drop the whole record.
func NewPacketEvent(producer string, src, dst netip.Addr, srcPort, dstPort uint16, proto Protocol, length int, header []byte) PacketEvent {
	if len(header) > maxHeaderSnapshot {
		header = header[:maxHeaderSnapshot]
	}
	snap := make([]byte, len(header))
	copy(snap, header)
	return PacketEvent{
		Meta:        NewMetadata(producer),
		SrcAddr:     src,
		DstAddr:     dst,
		SrcPort:     srcPort,
		DstPort:     dstPort,
		Proto:       proto,
		Length:      length,
		CapturedAt:  time.Now(),
		HeaderBytes: snap,
	}
}

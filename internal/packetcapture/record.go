// Package packetcapture is the eBPF/XDP packet-capture plugin: it attaches
// an XDP program to a configured interface and decodes the 5-tuple ring
// buffer records the kernel side emits into PacketEvents (spec.md §3, §4).
//
// record.go — PacketRecord mirrors the struct iron_packet_event the XDP
// program writes into the ring buffer. The Go struct must have identical
// memory layout to the C struct so the ring buffer consumer can decode raw
// bytes directly, the same discipline the teacher's bpf.KernelEvent used
// for its LSM hook events.
//
// C layout (32 bytes, 8-byte aligned):
//
//	[0..3]   src_addr     u32 (network byte order, IPv4 only)
//	[4..7]   dst_addr     u32 (network byte order, IPv4 only)
//	[8..9]   src_port     u16 (host byte order)
//	[10..11] dst_port     u16 (host byte order)
//	[12]     proto        u8
//	[13..15] _pad         u8[3]
//	[16..19] length       u32
//	[20..23] _pad2        u32
//	[24..31] timestamp_ns s64
package packetcapture

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"unsafe"

	"github.com/dongwonkwak/ironpost/internal/events"
)

// PacketRecord is the Go representation of struct iron_packet_event.
type PacketRecord struct {
	SrcAddrV4   uint32
	DstAddrV4   uint32
	SrcPort     uint16
	DstPort     uint16
	Proto       uint8
	_pad        [3]uint8
	Length      uint32
	_pad2       uint32
	TimestampNS int64
}

// expectedRecordSize is the expected size of PacketRecord in bytes. Must
// match sizeof(struct iron_packet_event) in the XDP program's C source.
const expectedRecordSize = 32

func init() {
	if sz := unsafe.Sizeof(PacketRecord{}); sz != expectedRecordSize {
		panic(fmt.Sprintf(
			"PacketRecord size mismatch: Go=%d bytes, expected=%d bytes. "+
				"Check struct padding against the XDP program's iron_packet_event.",
			sz, expectedRecordSize,
		))
	}
}

// ParseRecord deserializes a raw ring buffer entry into a PacketRecord.
// The entry must be at least expectedRecordSize bytes; extra trailing
// bytes (reserved for future fields) are ignored rather than rejected.
func ParseRecord(raw []byte) (PacketRecord, error) {
	if len(raw) < expectedRecordSize {
		return PacketRecord{}, fmt.Errorf(
			"packet record too short: got %d bytes, expected >= %d",
			len(raw), expectedRecordSize,
		)
	}

	var r PacketRecord
	r.SrcAddrV4 = binary.BigEndian.Uint32(raw[0:4])
	r.DstAddrV4 = binary.BigEndian.Uint32(raw[4:8])
	r.SrcPort = binary.LittleEndian.Uint16(raw[8:10])
	r.DstPort = binary.LittleEndian.Uint16(raw[10:12])
	r.Proto = raw[12]
	// raw[13:16] is padding - skip.
	r.Length = binary.LittleEndian.Uint32(raw[16:20])
	// raw[20:24] is padding - skip.
	r.TimestampNS = int64(binary.LittleEndian.Uint64(raw[24:32]))
	return r, nil
}

// ToPacketEvent converts a decoded PacketRecord into the typed event the
// channel fabric and log pipeline consume.
func (r PacketRecord) ToPacketEvent(producer string, header []byte) events.PacketEvent {
	src := netip.AddrFrom4([4]byte{
		byte(r.SrcAddrV4 >> 24), byte(r.SrcAddrV4 >> 16), byte(r.SrcAddrV4 >> 8), byte(r.SrcAddrV4),
	})
	dst := netip.AddrFrom4([4]byte{
		byte(r.DstAddrV4 >> 24), byte(r.DstAddrV4 >> 16), byte(r.DstAddrV4 >> 8), byte(r.DstAddrV4),
	})
	return events.NewPacketEvent(producer, src, dst, r.SrcPort, r.DstPort, events.Protocol(r.Proto), int(r.Length), header)
}

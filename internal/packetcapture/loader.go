// loader.go — the CO-RE XDP loader, generalized from the teacher's LSM
// attacher in bpf/loader.go: same pin-path/validate/attach sequence, but
// attaching one XDP program to a network interface instead of three LSM
// hooks to the whole host.
//
// bpfObjectBytes (the compiled XDP ELF) is produced by bpf2go from the XDP
// C source and embedded in a generated sibling file, the same boundary the
// teacher's own bpf package draws — the C source and its build step are
// external to this module (spec.md §6: "XDP packet parsing ... external
// collaborators").
package packetcapture

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
)

const (
	// PinPath is the BPF filesystem directory where the program's maps are
	// pinned, analogous to the teacher's bpf.BPFPinPath.
	PinPath = "/sys/fs/bpf/ironpost"

	// ProgramName is the XDP program name as declared in the C source.
	ProgramName = "iron_xdp_capture"

	// EventsMapName is the ring buffer map the XDP program writes
	// PacketRecords into.
	EventsMapName = "packet_events"
)

// Objects holds references to the loaded XDP program and its ring buffer
// map. Callers must call Close() when done to release kernel resources.
type Objects struct {
	Program *ebpf.Program
	Events  *ebpf.Map

	link link.Link
}

// Close detaches the XDP program and releases the program/map handles.
// Safe to call multiple times.
func (o *Objects) Close() error {
	var errs []error
	if o.link != nil {
		errs = append(errs, o.link.Close())
	}
	if o.Program != nil {
		errs = append(errs, o.Program.Close())
	}
	if o.Events != nil {
		errs = append(errs, o.Events.Close())
	}
	return errors.Join(errs...)
}

// Load attaches the XDP capture program to iface.
//
//  1. Resolve the interface index.
//  2. Load the ELF collection spec from the embedded bytes.
//  3. Pin maps under PinPath, reusing existing pins on restart.
//  4. Attach the XDP program.
//
// Any failure is fatal; partially allocated resources are released before
// returning.
func Load(iface string, ringBufferSizeBytes int) (*Objects, error) {
	ifc, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("resolve interface %q: %w", iface, err)
	}

	spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(bpfObjectBytes))
	if err != nil {
		return nil, fmt.Errorf("load XDP collection spec: %w", err)
	}

	if err := os.MkdirAll(PinPath, 0o700); err != nil {
		return nil, fmt.Errorf("create BPF pin path %s: %w", PinPath, err)
	}

	if m, ok := spec.Maps[EventsMapName]; ok {
		m.Pinning = ebpf.PinByName
		if ringBufferSizeBytes > 0 {
			m.MaxEntries = uint32(ringBufferSizeBytes)
		}
	}

	coll, err := ebpf.NewCollectionWithOptions(spec, ebpf.CollectionOptions{
		Maps: ebpf.MapOptions{PinPath: PinPath},
	})
	if err != nil {
		return nil, fmt.Errorf("load XDP collection: %w", err)
	}

	objs := &Objects{
		Program: coll.Programs[ProgramName],
		Events:  coll.Maps[EventsMapName],
	}
	if objs.Program == nil {
		_ = objs.Close()
		return nil, fmt.Errorf("XDP collection missing program %q", ProgramName)
	}
	if objs.Events == nil {
		_ = objs.Close()
		return nil, fmt.Errorf("XDP collection missing ring buffer map %q", EventsMapName)
	}

	l, err := link.AttachXDP(link.XDPOptions{
		Program:   objs.Program,
		Interface: ifc.Index,
	})
	if err != nil {
		_ = objs.Close()
		return nil, fmt.Errorf("attach XDP program to %s: %w", iface, err)
	}
	objs.link = l

	return objs, nil
}

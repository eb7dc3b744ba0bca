// capture.go — the packet-capture Plugin: owns the XDP loader and the ring
// buffer reader goroutine, decoding PacketRecords into PacketEvents and
// publishing them on the packet channel (spec.md §4.2's sole producer of
// PacketEvent).
package packetcapture

import (
	"context"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/channelfabric"
	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/metrics"
	"github.com/dongwonkwak/ironpost/internal/plugin"
)

// Config holds the capture plugin's interface and ring buffer parameters.
type Config struct {
	Interface           string
	RingBufferSizeBytes int
}

// Capture is the eBPF/XDP packet-capture plugin.
type Capture struct {
	state *plugin.StateTracker
	log   *zap.Logger
	cfg   Config
	m     *metrics.Metrics

	sender channelfabric.PacketSender

	objs   *Objects
	reader *ringbuf.Reader

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Capture plugin. The XDP program is not attached until
// Start.
func New(log *zap.Logger, cfg Config, m *metrics.Metrics, sender channelfabric.PacketSender) *Capture {
	return &Capture{
		state:  plugin.NewStateTracker("packet_capture"),
		log:    log.Named("packet_capture"),
		cfg:    cfg,
		m:      m,
		sender: sender,
	}
}

func (c *Capture) Name() string          { return "packet_capture" }
func (c *Capture) Version() string       { return "1.0.0" }
func (c *Capture) Description() string   { return "captures network packets via XDP and publishes 5-tuple PacketEvents" }
func (c *Capture) Dependencies() []string { return nil }

func (c *Capture) Start(ctx context.Context) error {
	if err := c.state.BeginInit(); err != nil {
		return err
	}

	objs, err := Load(c.cfg.Interface, c.cfg.RingBufferSizeBytes)
	if err != nil {
		return err
	}
	c.objs = objs

	reader, err := ringbuf.NewReader(objs.Events)
	if err != nil {
		_ = objs.Close()
		return err
	}
	c.reader = reader

	if err := c.state.BeginStart(); err != nil {
		_ = reader.Close()
		_ = objs.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx)
	return nil
}

func (c *Capture) run(ctx context.Context) {
	defer close(c.done)

	go func() {
		<-ctx.Done()
		_ = c.reader.Close() // unblocks the Read() below on shutdown
	}()

	for {
		record, err := c.reader.Read()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.log.Warn("ring buffer read error", zap.Error(err))
			c.state.MarkFailed()
			return
		}

		packet, err := ParseRecord(record.RawSample)
		if err != nil {
			c.log.Warn("malformed packet record", zap.Error(err))
			if c.m != nil {
				c.m.PacketCaptureErrorsTotal.Inc()
			}
			continue
		}

		header := record.RawSample
		if len(header) > 64 {
			header = header[:64]
		}
		evt := packet.ToPacketEvent("packet_capture", header)
		c.sender.TrySend(evt)
		if c.m != nil {
			c.m.PacketsCapturedTotal.WithLabelValues(events.Protocol(packet.Proto).String()).Inc()
		}
	}
}

func (c *Capture) Stop(ctx context.Context) error {
	if err := c.state.BeginStop(); err != nil {
		return err
	}
	if c.cancel != nil {
		c.cancel()
	}
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		c.log.Warn("packet capture did not stop before deadline")
	case <-ctx.Done():
	}
	if c.objs != nil {
		if err := c.objs.Close(); err != nil {
			c.log.Warn("error releasing XDP resources", zap.Error(err))
		}
	}
	return nil
}

func (c *Capture) HealthCheck(ctx context.Context) events.HealthStatus {
	switch c.state.Current() {
	case plugin.StateRunning:
		return events.Healthy
	case plugin.StateFailed:
		return events.Unhealthy("ring buffer reader terminated")
	default:
		return events.Degraded("not running")
	}
}

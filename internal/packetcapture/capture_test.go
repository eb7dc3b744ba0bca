package packetcapture

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/channelfabric"
	"github.com/dongwonkwak/ironpost/internal/events"
)

func TestCapture_HealthCheck_DegradedBeforeStart(t *testing.T) {
	fab := channelfabric.New()
	c := New(zap.NewNop(), Config{Interface: "lo"}, nil, fab.PacketSender(channelfabric.DropCounters{}))

	got := c.HealthCheck(context.Background())
	if got.State != events.HealthDegraded {
		t.Errorf("expected a fresh, unstarted plugin to report degraded, got %+v", got)
	}
}

func TestCapture_HealthCheck_UnhealthyAfterMarkFailed(t *testing.T) {
	fab := channelfabric.New()
	c := New(zap.NewNop(), Config{Interface: "lo"}, nil, fab.PacketSender(channelfabric.DropCounters{}))

	c.state.MarkFailed()
	got := c.HealthCheck(context.Background())
	if got.State != events.HealthUnhealthy {
		t.Errorf("expected MarkFailed to surface as unhealthy, got %+v", got)
	}
}

func TestCapture_HealthCheck_HealthyAfterRunningState(t *testing.T) {
	fab := channelfabric.New()
	c := New(zap.NewNop(), Config{Interface: "lo"}, nil, fab.PacketSender(channelfabric.DropCounters{}))

	if err := c.state.BeginInit(); err != nil {
		t.Fatalf("BeginInit: %v", err)
	}
	if err := c.state.BeginStart(); err != nil {
		t.Fatalf("BeginStart: %v", err)
	}
	got := c.HealthCheck(context.Background())
	if got.State != events.HealthHealthy {
		t.Errorf("expected the running state to report healthy, got %+v", got)
	}
}

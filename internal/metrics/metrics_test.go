package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestNew_RegistersWithoutPanicking(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	m.EventsDroppedTotal.WithLabelValues("packet").Inc()
	m.IsolationActionsTotal.WithLabelValues("pause", "true").Inc()
}

func TestMetrics_ExposedViaHTTPHandler(t *testing.T) {
	m := New()
	m.PacketsCapturedTotal.WithLabelValues("tcp").Inc()

	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !contains(string(body), "ironpost_packetcapture_packets_captured_total") {
		t.Error("expected the registered counter to appear in the exposition output")
	}
}

func TestMetrics_Serve_ShutsDownOnContextCancel(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, "127.0.0.1:0") }()

	// Addr "127.0.0.1:0" picks an ephemeral port, which ListenAndServe
	// accepts, so Serve starts normally. Give it a moment to start, then
	// cancel and expect a clean return.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned error after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

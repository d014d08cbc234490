package telemetry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()

	cfg := DefaultConfig().Metrics
	cfg.Enabled = true
	cfg.ListenAddress = "127.0.0.1:0"

	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m
}

func TestPollRoundOwnsTrackedGauge(t *testing.T) {
	m := newTestMetrics(t)

	// Submissions and completions must not move the gauge; only the poll
	// round snapshot sets it.
	m.RecordSubmission("create", "network:router")
	m.RecordSubmission("create", "network:router")
	if got := testutil.ToFloat64(m.trackedMutations); got != 0 {
		t.Errorf("gauge after submissions = %v, want 0", got)
	}

	m.RecordPollRound(2, 10*time.Millisecond)
	if got := testutil.ToFloat64(m.trackedMutations); got != 2 {
		t.Errorf("gauge after poll round = %v, want 2", got)
	}

	m.RecordCompletion("create", "network:router", "succeeded", time.Second)
	if got := testutil.ToFloat64(m.trackedMutations); got != 2 {
		t.Errorf("gauge after completion = %v, want 2 until the next round", got)
	}

	m.RecordPollRound(0, 10*time.Millisecond)
	if got := testutil.ToFloat64(m.trackedMutations); got != 0 {
		t.Errorf("gauge after drained round = %v, want 0", got)
	}
}

func TestMetricsServerServesAndStops(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordPollRound(1, 10*time.Millisecond)

	if err := m.StartMetricsServer(); err != nil {
		t.Fatalf("failed to start metrics server: %v", err)
	}

	addr := m.ListenAddr()
	if addr == "" {
		t.Fatal("expected a bound listen address")
	}

	// Starting again must be a no-op, not a second listener.
	if err := m.StartMetricsServer(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if m.ListenAddr() != addr {
		t.Errorf("second start rebound the server: %s != %s", m.ListenAddr(), addr)
	}

	resp, err := http.Get("http://" + addr + m.config.Path)
	if err != nil {
		t.Fatalf("failed to scrape metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scrape returned %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "opwatch_poll_rounds_total") {
		t.Error("scrape output missing the poll rounds counter")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.StopMetricsServer(ctx); err != nil {
		t.Fatalf("failed to stop metrics server: %v", err)
	}
	if m.ListenAddr() != "" {
		t.Error("listen address should clear after shutdown")
	}

	if _, err := http.Get("http://" + addr + m.config.Path); err == nil {
		t.Error("scrape should fail after shutdown")
	}

	// Stopping twice is safe.
	if err := m.StopMetricsServer(ctx); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

func TestDisabledMetricsServerIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	if err := m.StartMetricsServer(); err != nil {
		t.Fatalf("disabled start should be a no-op: %v", err)
	}
	if m.ListenAddr() != "" {
		t.Error("disabled metrics must not bind a listener")
	}
}

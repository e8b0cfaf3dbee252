package mesh

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	_, _, res := registerExample(t)
	m.ObserveResult(res, OutcomeRegistered, 20*time.Millisecond)
	m.ObserveResult(res, OutcomeReplayed, time.Millisecond)
	m.ObserveFailure(time.Millisecond)

	if got := testutil.ToFloat64(m.Runs.WithLabelValues(OutcomeRegistered)); got != 1 {
		t.Errorf("registered runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues(OutcomeReplayed)); got != 1 {
		t.Errorf("replayed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues(OutcomeFailed)); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Beacons); got != 79 {
		t.Errorf("beacons = %v, want 79", got)
	}
	if got := testutil.ToFloat64(m.MaxDistance); got != 3621 {
		t.Errorf("max distance = %v, want 3621", got)
	}
	if got := testutil.ToFloat64(m.Scanners); got != 5 {
		t.Errorf("scanners = %v, want 5", got)
	}
	if got := testutil.CollectAndCount(m.Duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestMetrics_ReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	second, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("second NewMetrics: %v", err)
	}
	if first.Beacons != second.Beacons {
		t.Error("re-registration should reuse the existing collectors")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveResult(&Result{}, OutcomeRegistered, time.Second)
	m.ObserveFailure(time.Second)
	if m.Handler() == nil {
		t.Error("nil Metrics should still give a handler")
	}
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	_, _, res := registerExample(t)
	m.ObserveResult(res, OutcomeRegistered, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "beaconmesh_beacons 79") {
		t.Errorf("metrics output missing beacon gauge:\n%s", body)
	}
}

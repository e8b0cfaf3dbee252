package mesh

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registration outcomes used as the "outcome" label.
const (
	OutcomeRegistered = "registered"
	OutcomeReplayed   = "replayed"
	OutcomeFailed     = "failed"
)

// Metrics bundles the Prometheus collectors for registration runs.
type Metrics struct {
	gatherer prometheus.Gatherer

	Runs     *prometheus.CounterVec
	Duration prometheus.Histogram

	Beacons     prometheus.Gauge
	Scanners    prometheus.Gauge
	Passes      prometheus.Gauge
	MaxDistance prometheus.Gauge
}

// NewMetrics registers the collectors against reg, defaulting to the global
// registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beaconmesh_registrations_total",
		Help: "Registration runs, labeled by outcome.",
	}, []string{"outcome"}), "beaconmesh_registrations_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "beaconmesh_registration_duration_seconds",
		Help:    "Time spent placing scanners, cache replays included.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}), "beaconmesh_registration_duration_seconds")
	if err != nil {
		return nil, err
	}

	gauge := func(name, help string) (prometheus.Gauge, error) {
		return register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help}), name)
	}
	beacons, err := gauge("beaconmesh_beacons", "Distinct beacons in the last assembled map.")
	if err != nil {
		return nil, err
	}
	scanners, err := gauge("beaconmesh_scanners", "Scanners placed in the last assembled map.")
	if err != nil {
		return nil, err
	}
	passes, err := gauge("beaconmesh_registration_passes", "Passes needed by the last registration.")
	if err != nil {
		return nil, err
	}
	maxDistance, err := gauge("beaconmesh_max_scanner_distance", "Largest Manhattan distance between two scanners.")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:    gatherer,
		Runs:        runs,
		Duration:    duration,
		Beacons:     beacons,
		Scanners:    scanners,
		Passes:      passes,
		MaxDistance: maxDistance,
	}, nil
}

// ObserveResult records a successful run. A nil receiver is a no-op.
func (m *Metrics) ObserveResult(res *Result, outcome string, elapsed time.Duration) {
	if m == nil || res == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.Duration.Observe(elapsed.Seconds())
	m.Beacons.Set(float64(res.BeaconCount()))
	m.Scanners.Set(float64(len(res.Placements)))
	m.Passes.Set(float64(res.Passes))
	m.MaxDistance.Set(float64(res.MaxScannerDistance()))
}

// ObserveFailure records a run that returned an error.
func (m *Metrics) ObserveFailure(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(OutcomeFailed).Inc()
	m.Duration.Observe(elapsed.Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// register adds c to reg, reusing an identical collector that is already
// registered under the same name.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

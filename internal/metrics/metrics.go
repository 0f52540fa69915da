// Package metrics exposes probe and persistence counters in prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pingmon/internal/storage/models"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	probeLines      *prometheus.CounterVec
	sessionsStarted prometheus.Counter
	launchFailures  prometheus.Counter
	saveFailures    *prometheus.CounterVec
	devices         prometheus.Gauge
	probeActive     prometheus.Gauge
	latency         prometheus.Histogram
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probeLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pingmon_probe_lines_total",
			Help: "Probe output lines processed, by resulting status.",
		}, []string{"status"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pingmon_probe_sessions_started_total",
			Help: "Probe sessions launched.",
		}),
		launchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pingmon_probe_launch_failures_total",
			Help: "Probe processes that could not be started.",
		}),
		saveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pingmon_persist_failures_total",
			Help: "Failed snapshot or history writes.",
		}, []string{"target"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pingmon_registry_devices",
			Help: "Devices currently in the registry.",
		}),
		probeActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pingmon_probe_active",
			Help: "1 while a probe session is running.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pingmon_probe_latency_milliseconds",
			Help:    "Round-trip times parsed from probe output.",
			Buckets: []float64{1, 5, 10, 25, 50, 75, 100, 150, 200, 300, 500, 1000},
		}),
	}

	m.registry.MustRegister(
		m.probeLines,
		m.sessionsStarted,
		m.launchFailures,
		m.saveFailures,
		m.devices,
		m.probeActive,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLine records one parsed probe line.
func (m *Metrics) ObserveLine(latencyMs *float64, status models.Status) {
	if m == nil {
		return
	}
	m.probeLines.WithLabelValues(string(status)).Inc()
	if latencyMs != nil {
		m.latency.Observe(*latencyMs)
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.probeActive.Set(1)
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.probeActive.Set(0)
}

func (m *Metrics) LaunchFailed() {
	if m == nil {
		return
	}
	m.launchFailures.Inc()
}

// PersistFailed counts a failed write; target is "snapshot" or "history".
func (m *Metrics) PersistFailed(target string) {
	if m == nil {
		return
	}
	m.saveFailures.WithLabelValues(target).Inc()
}

func (m *Metrics) SetDevices(n int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(n))
}

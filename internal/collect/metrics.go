package collect

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"routeconv/internal/series"
)

// Tick results reported by routeconv_ticks_total.
const (
	resultOK        = "ok"
	resultTimeout   = "timeout"
	resultTransport = "transport"
	resultDecode    = "decode"
	resultRejected  = "rejected"
)

// Metrics instruments pollers for the /metrics endpoint.
// Params: collectors registered on one registry.
// Returns: live run progress metrics.
type Metrics struct {
	ticks        *prometheus.CounterVec
	fetchSeconds *prometheus.HistogramVec
	samples      *prometheus.GaugeVec
	pollers      *prometheus.GaugeVec
}

// NewMetrics creates poller metrics and registers them on reg.
// Params: reg registry; nil keeps metrics unregistered.
// Returns: metrics set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routeconv_ticks_total",
				Help: "Polling ticks by device and result.",
			},
			[]string{"device", "result"},
		),
		fetchSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "routeconv_fetch_duration_seconds",
				Help:    "Metric source fetch latency.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"device"},
		),
		samples: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "routeconv_samples",
				Help: "Committed samples per device in the current run.",
			},
			[]string{"device"},
		),
		pollers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "routeconv_pollers",
				Help: "Pollers by lifecycle state.",
			},
			[]string{"state"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.ticks, m.fetchSeconds, m.samples, m.pollers)
	}
	return m
}

// observeFetch records one fetch attempt.
// Params: device id; result label; took fetch latency.
// Returns: none.
func (m *Metrics) observeFetch(device, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(device, result).Inc()
	m.fetchSeconds.WithLabelValues(device).Observe(took.Seconds())
}

// observeRejected counts a sample refused by the series set.
// Params: device id.
// Returns: none.
func (m *Metrics) observeRejected(device string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(device, resultRejected).Inc()
}

// setSamples publishes committed sample count.
// Params: device id; count committed samples.
// Returns: none.
func (m *Metrics) setSamples(device string, count int) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(device).Set(float64(count))
}

// transition moves one poller between state gauges.
// Params: from previous state; to next state.
// Returns: none.
func (m *Metrics) transition(from, to series.State) {
	if m == nil || from == to {
		return
	}
	m.pollers.WithLabelValues(from.String()).Dec()
	m.pollers.WithLabelValues(to.String()).Inc()
}

// start counts a poller entering Running.
// Params: none.
// Returns: none.
func (m *Metrics) start() {
	if m == nil {
		return
	}
	m.pollers.WithLabelValues(series.StateRunning.String()).Inc()
}

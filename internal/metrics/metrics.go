// Package metrics описывает Prometheus-метрики конвейера оптимизации.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome задаёт значение лейбла outcome для одной оптимизации.
type Outcome string

const (
	OutcomeReady          Outcome = "ready"
	OutcomeSourceNotFound Outcome = "source_not_found"
	OutcomeDecodeFailure  Outcome = "decode_failure"
	OutcomeStoreWrite     Outcome = "store_write_failure"
	OutcomeRecordUpdate   Outcome = "record_update_failure"
	OutcomeOther          Outcome = "other"
)

// Metrics хранит набор метрик. Методы на nil-значении ничего не делают.
type Metrics struct {
	registry         *prometheus.Registry
	optimizeTotal    *prometheus.CounterVec
	optimizeDuration *prometheus.HistogramVec
	renditionBytes   *prometheus.HistogramVec
	inFlight         prometheus.Gauge
}

// New регистрирует метрики в собственном реестре вместе с go/process коллекторами.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		optimizeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "photos",
			Name:      "optimize_total",
			Help:      "Optimize calls by outcome.",
		}, []string{"outcome"}),
		optimizeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "photos",
			Name:      "optimize_duration_seconds",
			Help:      "Wall time of a single optimize call.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
		renditionBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "photos",
			Name:      "rendition_bytes",
			Help:      "Encoded size of generated renditions.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
		}, []string{"profile"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "photos",
			Name:      "optimize_in_flight",
			Help:      "Optimize calls currently running.",
		}),
	}
}

// ObserveOptimize учитывает завершённую оптимизацию.
func (m *Metrics) ObserveOptimize(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.optimizeTotal.WithLabelValues(string(outcome)).Inc()
	m.optimizeDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

func (m *Metrics) ObserveRendition(profile string, size int) {
	if m == nil {
		return
	}
	m.renditionBytes.WithLabelValues(profile).Observe(float64(size))
}

// TrackInFlight увеличивает gauge и возвращает функцию для уменьшения.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// Handler отдаёт метрики для /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

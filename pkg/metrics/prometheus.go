package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal    *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	sourceResults *prometheus.CounterVec
	inFlight      *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_symbol_updates_total",
				Help: "Symbol updates per scheduler tick by outcome",
			},
			[]string{"outcome"},
		),
		tickDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketpulse_tick_duration_seconds",
				Help:    "Duration of a full scheduler tick",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		sourceResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_source_calls_total",
				Help: "Upstream source calls by outcome",
			},
			[]string{"source", "outcome"},
		),
		inFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_source_calls_in_flight",
				Help: "Upstream source calls currently running",
			},
			[]string{"source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick records the outcome counts and duration of one tick.
func (r *Recorder) RecordTick(success, failed int, seconds float64) {
	r.ticksTotal.WithLabelValues("success").Add(float64(success))
	r.ticksTotal.WithLabelValues("failed").Add(float64(failed))
	r.tickDuration.Observe(seconds)
}

// RecordSourceResult records one upstream call outcome.
func (r *Recorder) RecordSourceResult(source, outcome string) {
	r.sourceResults.WithLabelValues(source, outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) CallStarted(source string) {
	r.inFlight.WithLabelValues(source).Inc()
}

func (r *Recorder) CallFinished(source string) {
	r.inFlight.WithLabelValues(source).Dec()
}

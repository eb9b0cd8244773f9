package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts    *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	nextDay      *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	barsIngested *prometheus.CounterVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_forecasts_total",
				Help: "Forecast runs by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_errors_total",
				Help: "Errors by kind",
			},
			[]string{"kind"},
		),
		nextDay: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fincast_next_day_prediction",
				Help: "Most recent next-day close prediction per symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 180, 600},
			},
			[]string{"operation"},
		),
		barsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_bars_ingested_total",
				Help: "Daily bars written to the bar store",
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) RecordForecast(symbol, outcome string) {
	r.forecasts.WithLabelValues(symbol, outcome).Inc()
}

func (r *Recorder) RecordPrediction(symbol string, nextDay float64) {
	r.nextDay.WithLabelValues(symbol).Set(nextDay)
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordBarsIngested(symbol string, n int) {
	r.barsIngested.WithLabelValues(symbol).Add(float64(n))
}

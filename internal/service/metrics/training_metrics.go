package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EpochLoss = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fincast",
			Subsystem: "training",
			Name:      "epoch_loss",
			Help:      "Mean training loss of the latest epoch",
		},
		[]string{"symbol"},
	)

	TrainingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fincast",
			Subsystem: "training",
			Name:      "duration_seconds",
			Help:      "Wall time of a full pipeline run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"symbol"},
	)

	EvalRMSE = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fincast",
			Subsystem: "training",
			Name:      "eval_rmse",
			Help:      "Held-out RMSE in price units of the latest run",
		},
		[]string{"symbol"},
	)

	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fincast",
			Subsystem: "training",
			Name:      "active_runs",
			Help:      "Pipelines currently training",
		},
	)

	Jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fincast",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Forecast jobs by terminal status",
		},
		[]string{"status"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(EpochLoss, TrainingDuration, EvalRMSE, ActiveRuns, Jobs)
	})
}

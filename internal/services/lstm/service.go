package lstm

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
	trainmetrics "FinCast/internal/service/metrics"
	applogger "FinCast/pkg/logger"
)

// Service adapts Pipeline to the domain forecaster: one fresh model per call.
type Service struct {
	cfg      Config
	log      *applogger.Logger
	pipeOpts []PipelineOption
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithPipelineOptions forwards options to every pipeline the service builds.
func WithPipelineOptions(opts ...PipelineOption) ServiceOption {
	return func(s *Service) { s.pipeOpts = append(s.pipeOpts, opts...) }
}

// NewService fills unset hyperparameters with defaults and validates them.
func NewService(cfg Config, log *applogger.Logger, opts ...ServiceOption) (*Service, error) {
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = applogger.Nop()
	}
	s := &Service{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the hyperparameters used when RunOptions leaves them unset.
func (s *Service) Config() Config { return s.cfg }

// Forecast trains a fresh model on series and predicts the next day and the
// next Horizon days. RunOptions.Seed and Epochs override the configured values
// when set; OnEpoch sees every finished epoch.
func (s *Service) Forecast(ctx context.Context, series models.PriceSeries, opts domsvc.RunOptions) (*models.Forecast, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}

	cfg := s.cfg
	if opts.Seed != 0 {
		cfg.Seed = opts.Seed
	}
	if opts.Epochs > 0 {
		cfg.Epochs = opts.Epochs
	}

	log := s.log.With(applogger.String("symbol", series.Symbol))
	hook := func(st EpochStats) {
		trainmetrics.EpochLoss.WithLabelValues(series.Symbol).Set(st.Loss)
		if opts.OnEpoch != nil {
			opts.OnEpoch(st.Epoch, st.Epochs, st.Loss)
		}
	}
	pipeOpts := append([]PipelineOption{WithTrainerOptions(WithLogger(log), WithEpochHook(hook))}, s.pipeOpts...)

	trainmetrics.ActiveRuns.Inc()
	defer trainmetrics.ActiveRuns.Dec()
	start := time.Now()

	res, err := NewPipeline(cfg, pipeOpts...).Run(ctx, series.Closes())
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", series.Symbol, err)
	}
	elapsed := time.Since(start)
	trainmetrics.TrainingDuration.WithLabelValues(series.Symbol).Observe(elapsed.Seconds())

	last := series.Last()
	f := &models.Forecast{
		Symbol:               series.Symbol,
		NextDayPrediction:    res.NextDay,
		NextMonthPredictions: res.Horizon,
		GeneratedAt:          time.Now().UTC(),
		TrainSize:            res.TrainSize,
		EvalSize:             res.EvalSize,
		LastClose:            last.Close,
		LastDate:             last.Date.Format("2006-01-02"),
	}
	if !math.IsNaN(res.EvalRMSE) {
		rmse := res.EvalRMSE
		f.EvalRMSE = &rmse
		trainmetrics.EvalRMSE.WithLabelValues(series.Symbol).Set(rmse)
	}

	log.Info("forecast complete",
		applogger.Int("points", len(series.Points)),
		applogger.Int("epochs", cfg.Epochs),
		applogger.Float64("next_day", res.NextDay),
		applogger.Duration("duration_ms", elapsed))
	return f, nil
}

var _ domsvc.PriceForecaster = (*Service)(nil)

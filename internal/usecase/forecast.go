package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/lstm"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/tracing"
	"FinCast/pkg/util"
)

// ForecastUseCase fetches a symbol's history, trains a fresh model on it and
// publishes the result.
type ForecastUseCase struct {
	provider    domrepo.PriceProvider
	forecaster  domsvc.PriceForecaster
	publisher   domrepo.ForecastPublisher
	metrics     domrepo.Metrics
	log         *applogger.Logger
	historyDays int
	timeout     time.Duration
	now         func() time.Time
}

type ForecastOption func(*ForecastUseCase)

// WithHistoryDays sets how many calendar days of history feed the model.
func WithHistoryDays(days int) ForecastOption {
	return func(uc *ForecastUseCase) { uc.historyDays = days }
}

// WithRunTimeout bounds one fetch-train-forecast run.
func WithRunTimeout(d time.Duration) ForecastOption {
	return func(uc *ForecastUseCase) { uc.timeout = d }
}

func NewForecastUseCase(provider domrepo.PriceProvider, forecaster domsvc.PriceForecaster, publisher domrepo.ForecastPublisher,
	metrics domrepo.Metrics, log *applogger.Logger, opts ...ForecastOption) *ForecastUseCase {
	uc := &ForecastUseCase{
		provider:    provider,
		forecaster:  forecaster,
		publisher:   publisher,
		metrics:     metrics,
		log:         log,
		historyDays: 5 * 365,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Series loads the validated close series used for training.
func (uc *ForecastUseCase) Series(ctx context.Context, symbol string) (models.PriceSeries, error) {
	ctx, span := tracing.Tracer().Start(ctx, "forecast.fetch", trace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("provider", uc.provider.Name()),
	))
	defer span.End()

	start := time.Now()
	from, to := util.HistoryWindow(uc.now(), uc.historyDays)
	bars, err := uc.provider.DailyBars(ctx, symbol, from, to)
	uc.metrics.RecordLatency("fetch_bars", time.Since(start).Seconds())
	if err != nil {
		tracing.RecordError(span, err)
		return models.PriceSeries{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	series := models.SeriesFromCandles(symbol, bars)
	if err := series.Validate(); err != nil {
		tracing.RecordError(span, err)
		return models.PriceSeries{}, fmt.Errorf("series %s: %w", symbol, err)
	}
	span.SetAttributes(attribute.Int("points", len(series.Points)))
	return series, nil
}

// Forecast runs the whole pipeline for symbol. Nothing is published unless
// both forecasts were produced.
func (uc *ForecastUseCase) Forecast(ctx context.Context, symbol string, opts domsvc.RunOptions) (*models.Forecast, error) {
	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}
	ctx, span := tracing.Tracer().Start(ctx, "forecast.run", trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	f, err := uc.run(ctx, symbol, opts)
	outcome := Outcome(err)
	uc.metrics.RecordForecast(symbol, outcome)
	if err != nil {
		tracing.RecordError(span, err)
		uc.metrics.RecordError("forecast_" + outcome)
		uc.log.Warn("forecast failed", applogger.String("symbol", symbol), applogger.String("outcome", outcome), applogger.Error(err))
		return nil, err
	}
	uc.metrics.RecordPrediction(symbol, f.NextDayPrediction)

	if err := uc.publisher.PublishForecast(ctx, f); err != nil {
		uc.metrics.RecordError("forecast_publish")
		uc.log.Error("publish forecast failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	return f, nil
}

func (uc *ForecastUseCase) run(ctx context.Context, symbol string, opts domsvc.RunOptions) (*models.Forecast, error) {
	series, err := uc.Series(ctx, symbol)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Tracer().Start(ctx, "forecast.train")
	defer span.End()
	start := time.Now()
	f, err := uc.forecaster.Forecast(ctx, series, opts)
	uc.metrics.RecordLatency("train_forecast", time.Since(start).Seconds())
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("train_size", f.TrainSize),
		attribute.Int("eval_size", f.EvalSize),
		attribute.Float64("next_day", f.NextDayPrediction),
	)
	return f, nil
}

// Outcome classifies a run error for metrics and job status.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, models.ErrNoData), errors.Is(err, lstm.ErrNoData):
		return "no_data"
	case errors.Is(err, models.ErrInvalidSeries), errors.Is(err, lstm.ErrInsufficientData), errors.Is(err, lstm.ErrDegenerateSeries):
		return "unusable_series"
	case errors.Is(err, lstm.ErrNonFinite):
		return "unstable"
	default:
		return "error"
	}
}

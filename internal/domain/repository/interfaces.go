package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"FinCast/internal/domain/models"
)

// ErrJobNotFound is returned by JobStore.Get for unknown or expired ids.
var ErrJobNotFound = errors.New("job not found")

// PriceProvider returns chronological daily bars in [from, to].
type PriceProvider interface {
	Name() string
	DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)
}

// BarStore persists daily bars and serves them back as a PriceProvider.
type BarStore interface {
	PriceProvider
	Init(ctx context.Context) error
	StoreBars(ctx context.Context, bars []models.Candle) error
	Health(ctx context.Context) error
	Close() error
}

type ForecastPublisher interface {
	PublishForecast(ctx context.Context, f *models.Forecast) error
}

// JobStore holds forecast jobs shared by every replica. Lock serialises
// read-modify-write cycles on one job; the returned func releases it.
type JobStore interface {
	Save(ctx context.Context, job *models.ForecastJob) error
	Get(ctx context.Context, id string) (*models.ForecastJob, error)
	Lock(ctx context.Context, id string) (func(), error)
}

// ProgressBus fans progress events out to subscribers of one job.
// The returned cancel func releases the subscription.
type ProgressBus interface {
	Publish(ctx context.Context, ev models.ProgressEvent) error
	Subscribe(ctx context.Context, jobID string) (<-chan models.ProgressEvent, func(), error)
	Close() error
}

type Ledger interface {
	Buy(ctx context.Context, symbol string, qty, price decimal.Decimal) (*models.Position, error)
	Sell(ctx context.Context, symbol string, qty, price decimal.Decimal) (*models.Position, error)
	Positions(ctx context.Context) ([]models.Position, error)
	Transactions(ctx context.Context, limit int) ([]models.Transaction, error)
	Close() error
}

type Metrics interface {
	RecordForecast(symbol, outcome string)
	RecordPrediction(symbol string, nextDay float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordBarsIngested(symbol string, n int)
}

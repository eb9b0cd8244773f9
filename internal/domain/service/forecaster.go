package service

import (
	"context"

	"FinCast/internal/domain/models"
)

// RunOptions override the configured run for one forecast.
type RunOptions struct {
	Seed    int64
	Epochs  int
	OnEpoch func(epoch, epochs int, loss float64)
}

// PriceForecaster trains a fresh model on a validated series and forecasts from its tail.
type PriceForecaster interface {
	Forecast(ctx context.Context, series models.PriceSeries, opts RunOptions) (*models.Forecast, error)
}

package usecase

import (
	"context"
	"fmt"
	"time"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/services/features"
)

// MarketUseCase serves raw bars with their moving averages.
type MarketUseCase struct {
	provider domrepo.PriceProvider
	symbols  []string
}

func NewMarketUseCase(provider domrepo.PriceProvider, symbols []string) *MarketUseCase {
	return &MarketUseCase{provider: provider, symbols: symbols}
}

func (uc *MarketUseCase) Symbols() []string {
	return append([]string(nil), uc.symbols...)
}

// StockData returns bars in [from, to] with MA50, MA200, log returns and
// 20-day realized volatility computed over that range.
func (uc *MarketUseCase) StockData(ctx context.Context, symbol string, from, to time.Time) ([]features.Row, error) {
	if !to.IsZero() && from.After(to) {
		return nil, fmt.Errorf("startDate must not be after endDate")
	}
	bars, err := uc.provider.DailyBars(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("stock data %s: %w", symbol, err)
	}
	return features.Enrich(bars), nil
}

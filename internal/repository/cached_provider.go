package repository

import (
	"context"
	"errors"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/cache"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// CachedProvider stores raw bar slices from another provider. Only upstream
// data is cached; anything derived from it is recomputed per request.
type CachedProvider struct {
	next  domrepo.PriceProvider
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedProvider(next domrepo.PriceProvider, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedProvider {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedProvider{next: next, cache: c, ttl: ttl, l: l}
}

func (p *CachedProvider) Name() string { return p.next.Name() }

func (p *CachedProvider) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	key := cache.GenerateKey("bars", p.next.Name(), symbol, from.Format(util.DateLayout), to.Format(util.DateLayout))

	var bars []models.Candle
	err := p.cache.Get(ctx, key, &bars)
	switch {
	case err == nil:
		return bars, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		p.l.Warn("bar cache read failed", applogger.String("key", key), applogger.Error(err))
	}

	bars, err = p.next.DailyBars(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, key, bars, p.ttl); err != nil {
		p.l.Warn("bar cache write failed", applogger.String("key", key), applogger.Error(err))
	}
	return bars, nil
}

var _ domrepo.PriceProvider = (*CachedProvider)(nil)

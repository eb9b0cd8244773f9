package marketdata

import (
	"errors"
	"sort"
	"time"

	"FinCast/internal/domain/models"
)

// ErrRateLimited is returned when the upstream throttles the API key.
var ErrRateLimited = errors.New("market data rate limited")

// inRange keeps bars with from <= date <= to and orders them by date.
// A zero bound is open.
func inRange(bars []models.Candle, from, to time.Time) []models.Candle {
	out := bars[:0]
	for _, b := range bars {
		if !from.IsZero() && b.Date.Before(from) {
			continue
		}
		if !to.IsZero() && b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

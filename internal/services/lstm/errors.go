package lstm

import "errors"

// Terminal errors for one forecast run. None are retried here; callers decide.
var (
	ErrNoData           = errors.New("lstm: no price data")
	ErrInsufficientData = errors.New("lstm: series not longer than lookback")
	ErrDegenerateSeries = errors.New("lstm: series has zero range")
	ErrEmptyBatch       = errors.New("lstm: empty training set")
	ErrNonFinite        = errors.New("lstm: non-finite value during training")
)

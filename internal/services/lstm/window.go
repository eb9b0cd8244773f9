package lstm

import "fmt"

// Window pairs a lookback slice with the value that follows it.
// Input is a view into the normalized series and must not be modified.
type Window struct {
	Input  []float64
	Target float64
}

// Dataset is every window of a series in chronological order.
type Dataset []Window

// BuildWindows emits len(series)-lookback windows; window i covers
// series[i:i+lookback] and targets series[i+lookback].
func BuildWindows(series []float64, lookback int) (Dataset, error) {
	if lookback < 1 {
		return nil, fmt.Errorf("lstm: lookback must be positive, got %d", lookback)
	}
	if len(series) <= lookback {
		return nil, fmt.Errorf("%w: %d points, lookback %d", ErrInsufficientData, len(series), lookback)
	}
	n := len(series) - lookback
	ds := make(Dataset, n)
	for i := 0; i < n; i++ {
		ds[i] = Window{
			Input:  series[i : i+lookback : i+lookback],
			Target: series[i+lookback],
		}
	}
	return ds, nil
}

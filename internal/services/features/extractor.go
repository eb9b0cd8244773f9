package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
)

const (
	// TradingDaysPerYear annualizes daily statistics.
	TradingDaysPerYear = 252
	// VolWindow is the number of trailing returns behind Row.Vol20.
	VolWindow = 20
)

// Row is one daily bar with its trailing indicators. Indicator fields stay
// nil until their window is full.
type Row struct {
	Date      string   `json:"date"`
	Open      float64  `json:"open"`
	High      float64  `json:"high"`
	Low       float64  `json:"low"`
	Close     float64  `json:"close"`
	Volume    float64  `json:"volume"`
	MA50      *float64 `json:"ma50"`
	MA200     *float64 `json:"ma200"`
	LogReturn *float64 `json:"log_return"`
	Vol20     *float64 `json:"vol20"`
}

// ComputeLogReturns computes r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample deviation of the last window returns.
func RealizedVolatility(logReturns []float64, window int) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sd := stat.StdDev(logReturns[len(logReturns)-window:], nil)
	return sd * math.Sqrt(TradingDaysPerYear)
}

// MovingAverage returns the trailing simple average of closes. Entry i is nil
// while fewer than window closes end at i.
func MovingAverage(candles []models.Candle, window int) []*float64 {
	out := make([]*float64, len(candles))
	if window <= 0 {
		return out
	}
	var sum float64
	for i, c := range candles {
		sum += c.Close
		if i >= window {
			sum -= candles[i-window].Close
		}
		if i >= window-1 {
			v := sum / float64(window)
			out[i] = &v
		}
	}
	return out
}

// Enrich attaches MA50, MA200, the log return from the previous bar and the
// annualized volatility of the last VolWindow returns to each bar.
func Enrich(candles []models.Candle) []Row {
	ma50 := MovingAverage(candles, 50)
	ma200 := MovingAverage(candles, 200)
	returns := ComputeLogReturns(candles)
	rows := make([]Row, len(candles))
	for i, c := range candles {
		rows[i] = Row{
			Date:   c.Date.Format("2006-01-02"),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
			MA50:   ma50[i],
			MA200:  ma200[i],
		}
		if i == 0 {
			continue
		}
		// returns[i-1] is the move into bar i
		lr := returns[i-1]
		rows[i].LogReturn = &lr
		if i >= VolWindow {
			vol := RealizedVolatility(returns[:i], VolWindow)
			rows[i].Vol20 = &vol
		}
	}
	return rows
}

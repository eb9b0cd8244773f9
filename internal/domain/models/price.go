package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNoData means the source returned no bars for the symbol and range.
	ErrNoData = errors.New("no price data")
	// ErrInvalidSeries means dates are not strictly increasing or a close is not a positive finite number.
	ErrInvalidSeries = errors.New("invalid price series")
)

// Candle is one daily OHLCV bar. Date is midnight UTC of the trading day.
type Candle struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is a chronological run of daily closes for one symbol.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// SeriesFromCandles keeps only the close of each bar.
func SeriesFromCandles(symbol string, candles []Candle) PriceSeries {
	points := make([]PricePoint, len(candles))
	for i, c := range candles {
		points[i] = PricePoint{Date: c.Date, Close: c.Close}
	}
	return PriceSeries{Symbol: symbol, Points: points}
}

func (s PriceSeries) Validate() error {
	if len(s.Points) == 0 {
		return ErrNoData
	}
	for i, p := range s.Points {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
			return fmt.Errorf("%w: close %v on %s", ErrInvalidSeries, p.Close, p.Date.Format("2006-01-02"))
		}
		if i > 0 && !p.Date.After(s.Points[i-1].Date) {
			return fmt.Errorf("%w: %s does not follow %s", ErrInvalidSeries,
				p.Date.Format("2006-01-02"), s.Points[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

// Last returns the most recent point. The series must not be empty.
func (s PriceSeries) Last() PricePoint {
	return s.Points[len(s.Points)-1]
}

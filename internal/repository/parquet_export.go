package repository

import (
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"FinCast/internal/domain/models"
	"FinCast/pkg/util"
)

// ForecastRow is one forecast day in the parquet export.
type ForecastRow struct {
	Symbol      string  `parquet:"symbol"`
	Step        int32   `parquet:"step"`
	Date        string  `parquet:"date"`
	Prediction  float64 `parquet:"prediction"`
	LastClose   float64 `parquet:"last_close"`
	GeneratedAt int64   `parquet:"generated_at"` // unix milliseconds
}

// ForecastRows expands f into one row per horizon step. Dates advance over
// weekdays from the last observed close.
func ForecastRows(f *models.Forecast) ([]ForecastRow, error) {
	last, err := time.Parse(util.DateLayout, f.LastDate)
	if err != nil {
		return nil, fmt.Errorf("last date %q: %w", f.LastDate, err)
	}
	rows := make([]ForecastRow, len(f.NextMonthPredictions))
	day := last
	for i, p := range f.NextMonthPredictions {
		day = nextWeekday(day)
		rows[i] = ForecastRow{
			Symbol:      f.Symbol,
			Step:        int32(i + 1),
			Date:        day.Format(util.DateLayout),
			Prediction:  p,
			LastClose:   f.LastClose,
			GeneratedAt: f.GeneratedAt.UnixMilli(),
		}
	}
	return rows, nil
}

func nextWeekday(t time.Time) time.Time {
	t = t.AddDate(0, 0, 1)
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// WriteForecastParquet writes f to path.
func WriteForecastParquet(path string, f *models.Forecast) error {
	rows, err := ForecastRows(f)
	if err != nil {
		return err
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}

// EncodeForecastParquet writes f to w.
func EncodeForecastParquet(w io.Writer, f *models.Forecast) error {
	rows, err := ForecastRows(f)
	if err != nil {
		return err
	}
	return parquet.Write(w, rows)
}

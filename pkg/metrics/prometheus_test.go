package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordForecast("AAPL", "success")
	r.RecordForecast("AAPL", "success")
	r.RecordPrediction("AAPL", 191.25)
	r.RecordBarsIngested("AAPL", 3)
	r.RecordError("no_data")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.forecasts.WithLabelValues("AAPL", "success")))
	assert.Equal(t, 191.25, testutil.ToFloat64(r.nextDay.WithLabelValues("AAPL")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.barsIngested.WithLabelValues("AAPL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("no_data")))
}

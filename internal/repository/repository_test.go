package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/cache"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedgerAverageCost(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Buy(ctx, "AAPL", dec("10"), dec("100"))
	require.NoError(t, err)
	pos, err := l.Buy(ctx, "AAPL", dec("30"), dec("120"))
	require.NoError(t, err)

	assert.True(t, pos.Quantity.Equal(dec("40")), pos.Quantity.String())
	assert.True(t, pos.AvgPrice.Equal(dec("115")), pos.AvgPrice.String())

	positions, err := l.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].AvgPrice.Equal(dec("115")))
}

func TestLedgerSell(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Sell(ctx, "MSFT", dec("1"), dec("10"))
	assert.ErrorIs(t, err, models.ErrInsufficientPosition)

	_, err = l.Buy(ctx, "MSFT", dec("5"), dec("300"))
	require.NoError(t, err)
	_, err = l.Sell(ctx, "MSFT", dec("6"), dec("310"))
	assert.ErrorIs(t, err, models.ErrInsufficientPosition)

	pos, err := l.Sell(ctx, "MSFT", dec("2"), dec("310"))
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(dec("3")))
	assert.True(t, pos.AvgPrice.Equal(dec("300")))

	_, err = l.Sell(ctx, "MSFT", dec("3"), dec("320"))
	require.NoError(t, err)
	positions, err := l.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	txs, err := l.Transactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, models.SideSell, txs[0].Side)
	assert.True(t, txs[0].Price.Equal(dec("320")))
	assert.Equal(t, models.SideBuy, txs[2].Side)
}

func TestLedgerRejectsNonPositive(t *testing.T) {
	l := newLedger(t)
	_, err := l.Buy(context.Background(), "X", dec("0"), dec("1"))
	assert.Error(t, err)
	_, err = l.Buy(context.Background(), "X", dec("1"), dec("-1"))
	assert.Error(t, err)
}

func TestCacheJobStore(t *testing.T) {
	ctx := context.Background()
	store := NewCacheJobStore(cache.NewMemoryCache(), time.Hour)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domrepo.ErrJobNotFound)

	job := &models.ForecastJob{ID: "j1", Symbol: "AAPL", Status: models.JobRunning, Epoch: 3}
	require.NoError(t, store.Save(ctx, job))
	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, got.Status)
	assert.Equal(t, 3, got.Epoch)
}

func TestCacheJobStoreLock(t *testing.T) {
	ctx := context.Background()
	store := NewCacheJobStore(cache.NewMemoryCache(), time.Hour)

	unlock, err := store.Lock(ctx, "j1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = store.Lock(waitCtx, "j1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := store.Lock(ctx, "j2")
	require.NoError(t, err)
	other()

	unlock()
	again, err := store.Lock(ctx, "j1")
	require.NoError(t, err)
	again()
}

func TestMemoryProgressBus(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryProgressBus()
	ch, cancel, err := bus.Subscribe(ctx, "j1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, bus.Publish(ctx, models.ProgressEvent{JobID: "other", Epoch: 9}))
	require.NoError(t, bus.Publish(ctx, models.ProgressEvent{JobID: "j1", Status: models.JobRunning, Epoch: 1}))
	ev := <-ch
	assert.Equal(t, 1, ev.Epoch)

	// fill the buffer; the terminal event still gets through
	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, bus.Publish(ctx, models.ProgressEvent{JobID: "j1", Status: models.JobRunning, Epoch: i}))
	}
	require.NoError(t, bus.Publish(ctx, models.ProgressEvent{JobID: "j1", Status: models.JobSucceeded}))
	var last models.ProgressEvent
	for i := 0; i < subscriberBuffer; i++ {
		last = <-ch
	}
	assert.Equal(t, models.JobSucceeded, last.Status)

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

type countingProvider struct {
	calls int
	bars  []models.Candle
}

func (p *countingProvider) Name() string { return "stub" }

func (p *countingProvider) DailyBars(context.Context, string, time.Time, time.Time) ([]models.Candle, error) {
	p.calls++
	if p.bars == nil {
		return nil, models.ErrNoData
	}
	return p.bars, nil
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	next := &countingProvider{bars: []models.Candle{{Symbol: "AAPL", Date: from, Close: 10}}}
	p := NewCachedProvider(next, cache.NewMemoryCache(), time.Minute, nil)

	for i := 0; i < 3; i++ {
		bars, err := p.DailyBars(ctx, "AAPL", from, to)
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.True(t, bars[0].Date.Equal(from))
	}
	assert.Equal(t, 1, next.calls)

	empty := &countingProvider{}
	p = NewCachedProvider(empty, cache.NewMemoryCache(), time.Minute, nil)
	_, err := p.DailyBars(ctx, "ZZZ", from, to)
	assert.ErrorIs(t, err, models.ErrNoData)
	_, _ = p.DailyBars(ctx, "ZZZ", from, to)
	assert.Equal(t, 2, empty.calls, "errors are not cached")
}

type recordedMessage struct {
	topic string
	key   []byte
	value interface{}
}

type fakeProducer struct{ sent []recordedMessage }

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	f.sent = append(f.sent, recordedMessage{topic, key, value})
	return nil
}

func TestKafkaForecastPublisherKeysBySymbol(t *testing.T) {
	fp := &fakeProducer{}
	pub := NewKafkaForecastPublisher(fp, "forecast.results")
	f := &models.Forecast{Symbol: "NVDA", NextDayPrediction: 1}

	require.NoError(t, pub.PublishForecast(context.Background(), f))
	require.Len(t, fp.sent, 1)
	assert.Equal(t, "forecast.results", fp.sent[0].topic)
	assert.Equal(t, []byte("NVDA"), fp.sent[0].key)
	assert.Same(t, f, fp.sent[0].value)
}

func TestForecastParquetRoundTrip(t *testing.T) {
	f := &models.Forecast{
		Symbol:               "AAPL",
		NextMonthPredictions: []float64{101, 102, 103},
		LastClose:            100,
		LastDate:             "2024-05-03", // Friday
		GeneratedAt:          time.Date(2024, 5, 3, 22, 0, 0, 0, time.UTC),
	}
	path := filepath.Join(t.TempDir(), "f.parquet")
	require.NoError(t, WriteForecastParquet(path, f))

	rows, err := parquet.ReadFile[ForecastRow](path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-05-06", rows[0].Date)
	assert.Equal(t, "2024-05-08", rows[2].Date)
	assert.Equal(t, int32(3), rows[2].Step)
	assert.Equal(t, 103.0, rows[2].Prediction)
}

func TestInfluxBarPoint(t *testing.T) {
	p := barPoint("stock_prices", models.Candle{Symbol: "AAPL", Date: time.Unix(0, 0), Close: 5})
	assert.Equal(t, "stock_prices", p.Name())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "ticker", p.TagList()[0].Key)
	assert.Equal(t, "AAPL", p.TagList()[0].Value)
	assert.Len(t, p.FieldList(), 5)
}

const fluxCSV = "#datatype,string,long,dateTime:RFC3339,double,double,double,double,double,string,string\r\n" +
	"#group,false,false,false,false,false,false,false,false,true,true\r\n" +
	"#default,_result,,,,,,,,,\r\n" +
	",result,table,_time,close,high,low,open,volume,_measurement,ticker\r\n" +
	",,0,2024-01-02T00:00:00Z,10.5,11,9.5,10,100,stock_prices,AAPL\r\n" +
	",,0,2024-01-03T00:00:00Z,11.5,12,10.5,11,200,stock_prices,AAPL\r\n" +
	"\r\n"

func TestInfluxDailyBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/query", r.URL.Path)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte(fluxCSV))
	}))
	defer srv.Close()

	store := NewInfluxBarStore(InfluxConfig{URL: srv.URL, Token: "t", Org: "o", Bucket: "b"}, nil)
	defer store.Close()

	bars, err := store.DailyBars(context.Background(), "AAPL", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 10.5, bars[0].Close)
	assert.Equal(t, 200.0, bars[1].Volume)

	_, err = store.DailyBars(context.Background(), `AAPL") |> drop()`, time.Time{}, time.Time{})
	assert.Error(t, err)
}

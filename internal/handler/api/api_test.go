package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/services/features"
	"FinCast/internal/services/lstm"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
)

const jobID = "0b7e5a38-6f0e-4a55-9a43-1f7f64a0c2de"

type stubRunner struct {
	res    *models.Forecast
	err    error
	symbol string
}

func (s *stubRunner) Forecast(_ context.Context, symbol string, _ domsvc.RunOptions) (*models.Forecast, error) {
	s.symbol = symbol
	return s.res, s.err
}

type stubJobs struct {
	job       *models.ForecastJob
	err       error
	cancelErr error
	submitted *models.SubmitForecastRequest
}

func (s *stubJobs) Submit(_ context.Context, symbol string, seed int64, epochs int, _ string) (*models.ForecastJob, error) {
	s.submitted = &models.SubmitForecastRequest{Symbol: symbol, Seed: seed, Epochs: epochs}
	if s.err != nil {
		return nil, s.err
	}
	return &models.ForecastJob{ID: jobID, Symbol: symbol, Status: models.JobQueued}, nil
}

func (s *stubJobs) Get(context.Context, string) (*models.ForecastJob, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.job, nil
}

func (s *stubJobs) Cancel(context.Context, string) (*models.ForecastJob, error) {
	if s.cancelErr != nil {
		return s.job, s.cancelErr
	}
	return s.job, nil
}

type stubMarket struct {
	rows     []features.Row
	err      error
	symbol   string
	from, to time.Time
}

func (s *stubMarket) Symbols() []string { return []string{"AAPL", "MSFT"} }

func (s *stubMarket) StockData(_ context.Context, symbol string, from, to time.Time) ([]features.Row, error) {
	s.symbol, s.from, s.to = symbol, from, to
	return s.rows, s.err
}

type stubPortfolio struct {
	err   error
	limit int
}

func (s *stubPortfolio) Buy(_ context.Context, req models.TradeRequest) (*models.Position, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Position{Symbol: req.Symbol, Quantity: decimal.NewFromFloat(req.Quantity), AvgPrice: decimal.NewFromFloat(req.Price)}, nil
}

func (s *stubPortfolio) Sell(ctx context.Context, req models.TradeRequest) (*models.Position, error) {
	return s.Buy(ctx, req)
}

func (s *stubPortfolio) Positions(context.Context) ([]models.Position, error) { return nil, s.err }

func (s *stubPortfolio) Transactions(_ context.Context, limit int) ([]models.Transaction, error) {
	s.limit = limit
	return []models.Transaction{}, s.err
}

type stubSource struct {
	ch chan models.ProgressEvent
}

func (s *stubSource) Subscribe(context.Context, string) (<-chan models.ProgressEvent, func(), error) {
	return s.ch, func() {}, nil
}

type fixture struct {
	runner    *stubRunner
	jobs      *stubJobs
	market    *stubMarket
	portfolio *stubPortfolio
	source    *stubSource
	limiter   *ratelimit.Limiter
}

func newFixture() *fixture {
	return &fixture{
		runner:    &stubRunner{},
		jobs:      &stubJobs{},
		market:    &stubMarket{},
		portfolio: &stubPortfolio{},
		source:    &stubSource{ch: make(chan models.ProgressEvent, 4)},
	}
}

func (f *fixture) echo() *echo.Echo {
	l := xlogger.Nop()
	market := NewMarketHandler(l, f.market)
	market.now = func() time.Time { return time.Date(2024, 9, 30, 15, 0, 0, 0, time.UTC) }
	router := NewRouter(
		NewForecastHandler(l, f.runner, f.jobs),
		market,
		NewPortfolioHandler(l, f.portfolio),
		NewProgressHandler(l, f.jobs, f.source),
		f.limiter,
	)
	return xhttp.NewServer(router, l, xhttp.WithMetricsPath("")).Echo()
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var req *nethttp.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.echo().ServeHTTP(rec, req)

	var env map[string]json.RawMessage
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func errorMessage(t *testing.T, env map[string]json.RawMessage) string {
	t.Helper()
	var errs []xhttp.AppError
	require.NoError(t, json.Unmarshal(env["data"], &errs))
	require.NotEmpty(t, errs)
	return errs[0].Message
}

func TestPredictEnvelope(t *testing.T) {
	f := newFixture()
	f.runner.res = &models.Forecast{
		Symbol:               "AAPL",
		NextDayPrediction:    101.5,
		NextMonthPredictions: make([]float64, 30),
	}

	rec, env := f.do(t, nethttp.MethodGet, "/api/stock-prediction", "")

	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Len(t, env, 3)
	assert.Contains(t, env, "status")
	assert.Contains(t, env, "message")
	assert.Equal(t, "AAPL", f.runner.symbol)

	var got models.Forecast
	require.NoError(t, json.Unmarshal(env["data"], &got))
	assert.Equal(t, 101.5, got.NextDayPrediction)
	assert.Len(t, got.NextMonthPredictions, 30)
}

func TestPredictErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("fetch: %w", models.ErrNoData), nethttp.StatusNotFound},
		{lstm.ErrNoData, nethttp.StatusNotFound},
		{lstm.ErrInsufficientData, nethttp.StatusUnprocessableEntity},
		{lstm.ErrDegenerateSeries, nethttp.StatusUnprocessableEntity},
		{models.ErrInvalidSeries, nethttp.StatusUnprocessableEntity},
		{lstm.ErrNonFinite, nethttp.StatusInternalServerError},
		{context.Canceled, nethttp.StatusServiceUnavailable},
		{errors.New("boom"), nethttp.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			f := newFixture()
			f.runner.err = tc.err
			rec, env := f.do(t, nethttp.MethodGet, "/api/stock-prediction?symbol=ZZZZ", "")
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, env, "data")
		})
	}
}

func TestPredictNoDataMessage(t *testing.T) {
	f := newFixture()
	f.runner.err = models.ErrNoData
	_, env := f.do(t, nethttp.MethodGet, "/api/stock-prediction?symbol=ZZZZ", "")
	assert.Equal(t, "No data found", errorMessage(t, env))
}

func TestPredictValidation(t *testing.T) {
	f := newFixture()
	rec, _ := f.do(t, nethttp.MethodGet, "/api/stock-prediction?symbol="+strings.Repeat("X", 40), "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestSubmitForecastJob(t *testing.T) {
	f := newFixture()
	rec, env := f.do(t, nethttp.MethodPost, "/api/forecasts", `{"symbol":"msft","seed":7,"epochs":5}`)

	require.Equal(t, nethttp.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/forecasts/"+jobID, rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, &models.SubmitForecastRequest{Symbol: "msft", Seed: 7, Epochs: 5}, f.jobs.submitted)

	var job models.ForecastJob
	require.NoError(t, json.Unmarshal(env["data"], &job))
	assert.Equal(t, models.JobQueued, job.Status)

	rec, _ = f.do(t, nethttp.MethodPost, "/api/forecasts", `{"epochs":5}`)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, nethttp.MethodPost, "/api/forecasts", `{"symbol":"AAPL","epochs":5000}`)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestJobStatusAndCancel(t *testing.T) {
	f := newFixture()
	f.jobs.job = &models.ForecastJob{ID: jobID, Status: models.JobRunning}

	rec, _ := f.do(t, nethttp.MethodGet, "/api/forecasts/"+jobID, "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	rec, _ = f.do(t, nethttp.MethodGet, "/api/forecasts/not-a-uuid", "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, nethttp.MethodDelete, "/api/forecasts/"+jobID, "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	f.jobs.cancelErr = usecase.ErrJobFinished
	rec, _ = f.do(t, nethttp.MethodDelete, "/api/forecasts/"+jobID, "")
	assert.Equal(t, nethttp.StatusConflict, rec.Code)

	f.jobs.err = domrepo.ErrJobNotFound
	rec, _ = f.do(t, nethttp.MethodGet, "/api/forecasts/"+jobID, "")
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Job "+jobID+" not found")
}

func TestSymbols(t *testing.T) {
	f := newFixture()
	rec, env := f.do(t, nethttp.MethodGet, "/api/symbols", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)

	var symbols []string
	require.NoError(t, json.Unmarshal(env["data"], &symbols))
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestStockDataDefaults(t *testing.T) {
	f := newFixture()
	f.market.rows = []features.Row{{Date: "2024-08-01", Close: 10}}

	rec, _ := f.do(t, nethttp.MethodGet, "/api/stock-data", "")

	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", f.market.symbol)
	assert.Equal(t, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), f.market.from)
	assert.Equal(t, time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), f.market.to)
}

func TestStockDataErrors(t *testing.T) {
	f := newFixture()
	rec, _ := f.do(t, nethttp.MethodGet, "/api/stock-data?startDate=2024-08-01&endDate=2024-07-01", "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, nethttp.MethodGet, "/api/stock-data?startDate=08/01/2024", "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	f.market.err = models.ErrNoData
	rec, env := f.do(t, nethttp.MethodGet, "/api/stock-data?symbol=NOPE", "")
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Equal(t, "No data found", errorMessage(t, env))
}

func TestTrades(t *testing.T) {
	f := newFixture()
	rec, _ := f.do(t, nethttp.MethodPost, "/api/buy", `{"symbol":"AAPL","quantity":2,"price":100}`)
	assert.Equal(t, nethttp.StatusCreated, rec.Code)

	rec, _ = f.do(t, nethttp.MethodPost, "/api/buy", `{"symbol":"AAPL","quantity":0,"price":100}`)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	f.portfolio.err = fmt.Errorf("sell: %w", models.ErrInsufficientPosition)
	rec, _ = f.do(t, nethttp.MethodPost, "/api/sell", `{"symbol":"AAPL","quantity":5,"price":100}`)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestTransactionsLimit(t *testing.T) {
	f := newFixture()
	rec, _ := f.do(t, nethttp.MethodGet, "/api/transactions", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, 100, f.portfolio.limit)

	rec, _ = f.do(t, nethttp.MethodGet, "/api/transactions?limit=5000", "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestRateLimitedPrediction(t *testing.T) {
	f := newFixture()
	f.runner.res = &models.Forecast{Symbol: "AAPL"}
	f.limiter = ratelimit.New(0.01, 1, time.Minute)

	rec, _ := f.do(t, nethttp.MethodGet, "/api/stock-prediction", "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	rec, _ = f.do(t, nethttp.MethodGet, "/api/stock-prediction", "")
	assert.Equal(t, nethttp.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// market data is not throttled
	rec, _ = f.do(t, nethttp.MethodGet, "/api/symbols", "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func dialStream(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.echo())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/forecasts/" + jobID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestStreamRelaysUntilTerminal(t *testing.T) {
	f := newFixture()
	f.jobs.job = &models.ForecastJob{ID: jobID, Status: models.JobRunning}
	f.source.ch <- models.ProgressEvent{JobID: jobID, Status: models.JobRunning, Epoch: 1, Epochs: 2, Loss: 0.5}
	f.source.ch <- models.ProgressEvent{JobID: jobID, Status: models.JobSucceeded, Epoch: 2, Epochs: 2}

	conn := dialStream(t, f)

	var ev models.ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, 1, ev.Epoch)
	assert.Equal(t, 0.5, ev.Loss)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.JobSucceeded, ev.Status)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestStreamFinishedJobSendsSnapshot(t *testing.T) {
	f := newFixture()
	f.jobs.job = &models.ForecastJob{ID: jobID, Status: models.JobFailed, Error: "no data", Epochs: 3}

	conn := dialStream(t, f)

	var ev models.ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.JobFailed, ev.Status)
	assert.Equal(t, "no data", ev.Error)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestStreamUnknownJob(t *testing.T) {
	f := newFixture()
	f.jobs.err = domrepo.ErrJobNotFound
	rec, _ := f.do(t, nethttp.MethodGet, "/api/forecasts/"+jobID+"/stream", "")
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Job "+jobID+" not found")
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "FinCast/pkg/logger"
)

type echoRoutes func(e *echo.Echo)

func (f echoRoutes) RegisterRoutes(e *echo.Echo) { f(e) }

type sampleRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	Days   int    `query:"days" default:"30" validate:"gte=1,lte=365"`
}

func newTestServer(routes echoRoutes) *Server {
	return NewServer(routes, applogger.Nop(), WithMetricsPath(""))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestReadAndValidateRequest(t *testing.T) {
	var got sampleRequest
	srv := newTestServer(func(e *echo.Echo) {
		e.GET("/x", func(c echo.Context) error {
			got = sampleRequest{}
			if errs := ReadAndValidateRequest(c, &got); errs != nil {
				return BadRequestResponse(c, errs)
			}
			return SuccessResponse(c, got)
		})
	})

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/x?symbol=AAPL", nil))
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, 30, got.Days)

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/x?days=900", nil))
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, 400, resp.Status)
	errs, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 2)
	first := errs[0].(map[string]interface{})
	assert.Equal(t, "symbol", first["field"])
	assert.Equal(t, "ERR_REQUIRED", first["code"])
}

func TestAppErrorResponse(t *testing.T) {
	srv := newTestServer(func(e *echo.Echo) {
		e.GET("/missing", func(c echo.Context) error {
			return AppErrorResponse(c, NotFoundError("No data found"))
		})
		e.GET("/opaque", func(c echo.Context) error {
			return AppErrorResponse(c, errors.New("boom"))
		})
	})

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/missing", nil))
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No data found")

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/opaque", nil))
	assert.Equal(t, nethttp.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestEchoErrorsUseEnvelope(t *testing.T) {
	srv := newTestServer(func(e *echo.Echo) {
		e.GET("/only-get", func(c echo.Context) error { return SuccessResponse(c, "ok") })
		e.GET("/escaped", func(c echo.Context) error { return BadRequestErrorf("bad %s", "days") })
		e.GET("/opaque", func(c echo.Context) error { return errors.New("boom") })
	})

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/nowhere", nil))
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, nethttp.StatusNotFound, resp.Status)
	assert.Equal(t, "Not Found", resp.Data)

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodPost, "/only-get", nil))
	assert.Equal(t, nethttp.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, nethttp.StatusMethodNotAllowed, decode(t, rec).Status)

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/escaped", nil))
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad days")

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/opaque", nil))
	assert.Equal(t, nethttp.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestWithHost(t *testing.T) {
	srv := NewServer(nil, applogger.Nop(), WithHost("127.0.0.1"), WithPort(9090))
	assert.Equal(t, "127.0.0.1", srv.config.Host)
	assert.Equal(t, 9090, srv.config.Port)
}

func TestRecoverAndHealth(t *testing.T) {
	srv := newTestServer(func(e *echo.Echo) {
		e.GET("/panic", func(c echo.Context) error { panic("bad") })
	})

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/panic", nil))
	assert.Equal(t, nethttp.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(nethttp.StatusBadGateway)
			return
		}
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := NewClient(WithRetries(3, time.Millisecond))
	var out struct {
		OK bool `json:"ok"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{URL: ts.URL, Query: map[string][]string{"symbol": {"AAPL"}}}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		atomic.AddInt32(&calls, 1)
		nethttp.Error(w, strings.Repeat("x", 1000), nethttp.StatusNotFound)
	}))
	defer ts.Close()

	_, err := NewClient(WithRetries(3, time.Millisecond)).Do(context.Background(), &RequestOptions{URL: ts.URL})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.Code)
	assert.LessOrEqual(t, len(se.Body), 512)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FinCast/internal/domain/models"
	drepo "FinCast/internal/domain/repository"
	xhttp "FinCast/pkg/http"
	"FinCast/pkg/util"
)

// Yahoo reads the public chart v8 endpoint with a daily interval.
type Yahoo struct {
	baseURL string
	client  *xhttp.Client
}

func NewYahoo(baseURL string, client *xhttp.Client) *Yahoo {
	if client == nil {
		client = xhttp.NewClient(xhttp.WithRetries(2, 500*time.Millisecond))
	}
	return &Yahoo{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (y *Yahoo) Name() string { return "yahoo" }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	period1 := int64(0)
	if !from.IsZero() {
		period1 = from.Unix()
	}
	body, err := y.client.Do(ctx, &xhttp.RequestOptions{
		URL: y.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol),
		Query: url.Values{
			"interval": {"1d"},
			"period1":  {strconv.FormatInt(period1, 10)},
			// period2 is exclusive
			"period2": {strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10)},
			"events":  {"history"},
		},
	})
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, fmt.Errorf("yahoo %s: %w", symbol, models.ErrNoData)
		}
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}
	bars, err := parseChart(symbol, body)
	if err != nil {
		return nil, err
	}
	bars = inRange(bars, from, to)
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, models.ErrNoData)
	}
	return bars, nil
}

func parseChart(symbol string, body []byte) ([]models.Candle, error) {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if e := resp.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return nil, fmt.Errorf("yahoo %s: %w", symbol, models.ErrNoData)
		}
		return nil, fmt.Errorf("yahoo %s: %s: %s", symbol, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, models.ErrNoData)
	}

	r := resp.Chart.Result[0]
	q := r.Indicators.Quote[0]
	bars := make([]models.Candle, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		// halted or not-yet-settled days come back as nulls
		cl := at(q.Close, i)
		if cl == nil {
			continue
		}
		c := models.Candle{
			Symbol: symbol,
			Date:   util.StartOfDay(time.Unix(ts+r.Meta.GMTOffset, 0).UTC()),
			Close:  *cl,
			Open:   valueOr(at(q.Open, i), *cl),
			High:   valueOr(at(q.High, i), *cl),
			Low:    valueOr(at(q.Low, i), *cl),
			Volume: valueOr(at(q.Volume, i), 0),
		}
		// the live session can repeat the last settled day
		if n := len(bars); n > 0 && bars[n-1].Date.Equal(c.Date) {
			bars[n-1] = c
			continue
		}
		bars = append(bars, c)
	}
	return bars, nil
}

func at(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

var _ drepo.PriceProvider = (*Yahoo)(nil)

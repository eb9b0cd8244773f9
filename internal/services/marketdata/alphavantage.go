package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FinCast/internal/domain/models"
	drepo "FinCast/internal/domain/repository"
	xhttp "FinCast/pkg/http"
	"FinCast/pkg/util"
)

const seriesKey = "Time Series (Daily)"

// AlphaVantage reads TIME_SERIES_DAILY with the full history.
type AlphaVantage struct {
	apiKey  string
	baseURL string
	client  *xhttp.Client
}

func NewAlphaVantage(apiKey, baseURL string, client *xhttp.Client) *AlphaVantage {
	if client == nil {
		client = xhttp.NewClient(xhttp.WithRetries(2, 500*time.Millisecond))
	}
	return &AlphaVantage{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (a *AlphaVantage) Name() string { return "alphavantage" }

type avResponse struct {
	Series      map[string]map[string]string `json:"Time Series (Daily)"`
	ErrorMsg    string                       `json:"Error Message"`
	Note        string                       `json:"Note"`
	Information string                       `json:"Information"`
}

func (a *AlphaVantage) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	body, err := a.client.Do(ctx, &xhttp.RequestOptions{
		URL: a.baseURL + "/query",
		Query: url.Values{
			"function":   {"TIME_SERIES_DAILY"},
			"symbol":     {symbol},
			"outputsize": {"full"},
			"datatype":   {"json"},
			"apikey":     {a.apiKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("alphavantage %s: %w", symbol, err)
	}
	bars, err := parseAlphaVantage(symbol, body)
	if err != nil {
		return nil, err
	}
	bars = inRange(bars, from, to)
	if len(bars) == 0 {
		return nil, fmt.Errorf("alphavantage %s: %w", symbol, models.ErrNoData)
	}
	return bars, nil
}

func parseAlphaVantage(symbol string, body []byte) ([]models.Candle, error) {
	var resp avResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("alphavantage decode: %w", err)
	}
	switch {
	case resp.Note != "" || resp.Information != "":
		return nil, fmt.Errorf("%w: %s%s", ErrRateLimited, resp.Note, resp.Information)
	case resp.ErrorMsg != "" || len(resp.Series) == 0:
		return nil, fmt.Errorf("alphavantage %s: %w", symbol, models.ErrNoData)
	}

	bars := make([]models.Candle, 0, len(resp.Series))
	for day, fields := range resp.Series {
		date, err := time.Parse(util.DateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("alphavantage date %q: %w", day, err)
		}
		c := models.Candle{Symbol: symbol, Date: date}
		for key, dst := range map[string]*float64{
			"1. open":   &c.Open,
			"2. high":   &c.High,
			"3. low":    &c.Low,
			"4. close":  &c.Close,
			"5. volume": &c.Volume,
		} {
			v, err := strconv.ParseFloat(fields[key], 64)
			if err != nil {
				return nil, fmt.Errorf("alphavantage %s %s: %w", day, key, err)
			}
			*dst = v
		}
		bars = append(bars, c)
	}
	return bars, nil
}

var _ drepo.PriceProvider = (*AlphaVantage)(nil)

package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
)

// symbols are interpolated into Flux
var tickerPattern = regexp.MustCompile(`^[A-Za-z0-9.\-^=]{1,16}$`)

type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// InfluxBarStore keeps bars as points tagged by ticker with one field per price column.
type InfluxBarStore struct {
	cfg    InfluxConfig
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
	l      *applogger.Logger
}

func NewInfluxBarStore(cfg InfluxConfig, l *applogger.Logger) *InfluxBarStore {
	if cfg.Measurement == "" {
		cfg.Measurement = "stock_prices"
	}
	if l == nil {
		l = applogger.Nop()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxBarStore{
		cfg:    cfg,
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:  client.QueryAPI(cfg.Org),
		l:      l,
	}
}

func (s *InfluxBarStore) Name() string { return "influxdb" }

// Init checks that the server is reachable. Buckets are provisioned out of band.
func (s *InfluxBarStore) Init(ctx context.Context) error {
	return s.Health(ctx)
}

func (s *InfluxBarStore) StoreBars(ctx context.Context, bars []models.Candle) error {
	points := make([]*write.Point, 0, len(bars))
	for _, b := range bars {
		points = append(points, barPoint(s.cfg.Measurement, b))
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.write.WritePoint(ctx, points...); err != nil {
		s.l.Error("influx store_bars error", applogger.Int("points", len(points)), applogger.Error(err))
		return fmt.Errorf("write bars: %w", err)
	}
	return nil
}

func barPoint(measurement string, b models.Candle) *write.Point {
	return influxdb2.NewPointWithMeasurement(measurement).
		AddTag("ticker", b.Symbol).
		AddField("open", b.Open).
		AddField("high", b.High).
		AddField("low", b.Low).
		AddField("close", b.Close).
		AddField("volume", b.Volume).
		SetTime(b.Date)
}

func (s *InfluxBarStore) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	if !tickerPattern.MatchString(symbol) {
		return nil, fmt.Errorf("invalid ticker %q", symbol)
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: %s, stop: %s)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.ticker == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)`,
		s.cfg.Bucket, from.Format(time.RFC3339), to.AddDate(0, 0, 1).Format(time.RFC3339), s.cfg.Measurement, symbol)

	result, err := s.query.Query(ctx, flux)
	if err != nil {
		s.l.Error("influx daily_bars query error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer result.Close()

	var out []models.Candle
	for result.Next() {
		r := result.Record()
		c := models.Candle{Symbol: symbol, Date: r.Time().UTC()}
		c.Open, _ = r.ValueByKey("open").(float64)
		c.High, _ = r.ValueByKey("high").(float64)
		c.Low, _ = r.ValueByKey("low").(float64)
		c.Volume, _ = r.ValueByKey("volume").(float64)
		cl, ok := r.ValueByKey("close").(float64)
		if !ok {
			continue
		}
		c.Close = cl
		out = append(out, c)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("influxdb %s: %w", symbol, models.ErrNoData)
	}
	return out, nil
}

func (s *InfluxBarStore) Health(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("influx not ready")
	}
	return nil
}

func (s *InfluxBarStore) Close() error {
	s.client.Close()
	return nil
}

var _ domrepo.BarStore = (*InfluxBarStore)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgch "FinCast/pkg/clickhouse"
	applogger "FinCast/pkg/logger"
)

const barsTable = "daily_bars"

// Re-ingesting a day replaces the older row at merge time.
var barSchema = []string{`
	CREATE TABLE IF NOT EXISTS daily_bars (
		symbol      LowCardinality(String),
		day         Date,
		open        Float64,
		high        Float64,
		low         Float64,
		close       Float64,
		volume      Float64,
		ingested_at DateTime64(3) DEFAULT now64(3)
	) ENGINE = ReplacingMergeTree(ingested_at)
	ORDER BY (symbol, day)`,
}

// CHBarStore keeps daily bars in ClickHouse.
type CHBarStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, l *applogger.Logger) *CHBarStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarStore{ch: ch, db: ch.DB(), l: l}
}

func (s *CHBarStore) Name() string { return "clickhouse" }

func (s *CHBarStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, barSchema)
}

func (s *CHBarStore) StoreBars(ctx context.Context, bars []models.Candle) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	rows := make([][]interface{}, 0, len(bars))
	for _, b := range bars {
		if b.Symbol == "" || b.Date.IsZero() {
			continue
		}
		rows = append(rows, []interface{}{b.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume})
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, day, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)", barsTable)
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		s.l.Error("clickhouse store_bars error", applogger.Int("rows", len(rows)), applogger.Error(err))
		return fmt.Errorf("store bars: %w", err)
	}
	s.l.Debug("clickhouse store_bars ok",
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

func (s *CHBarStore) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	start := time.Now()
	if to.IsZero() {
		to = time.Now().UTC()
	}
	q := fmt.Sprintf(`
		SELECT symbol, day, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ? AND day >= ? AND day <= ?
		ORDER BY day ASC`, barsTable)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		s.l.Error("clickhouse daily_bars query error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Symbol, &c.Date, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		c.Date = c.Date.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("clickhouse %s: %w", symbol, models.ErrNoData)
	}
	s.l.Debug("clickhouse daily_bars ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func (s *CHBarStore) Health(ctx context.Context) error { return s.ch.Health(ctx) }

func (s *CHBarStore) Close() error { return s.ch.Close() }

var _ domrepo.BarStore = (*CHBarStore)(nil)

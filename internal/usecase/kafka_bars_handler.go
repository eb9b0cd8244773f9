package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/util"
)

// barMessage is the wire schema of market.daily_bars.
type barMessage struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// KafkaBarsHandler writes daily bars from Kafka into the bar store. A message
// holds one bar object or an array of them.
type KafkaBarsHandler struct {
	topic   string
	store   domrepo.BarStore
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, store domrepo.BarStore, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var msgs []barMessage
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return err
		}
	} else {
		var m barMessage
		if err := json.Unmarshal(trimmed, &m); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return err
		}
		msgs = []barMessage{m}
	}

	bars := make([]models.Candle, 0, len(msgs))
	for _, m := range msgs {
		c, err := m.candle()
		if err != nil {
			h.metrics.RecordError("consumer_invalid")
			return err
		}
		bars = append(bars, c)
	}

	start := time.Now()
	err := h.store.StoreBars(ctx, bars)
	h.metrics.RecordLatency("bar_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	counts := make(map[string]int)
	for _, c := range bars {
		counts[c.Symbol]++
	}
	for symbol, n := range counts {
		h.metrics.RecordBarsIngested(symbol, n)
	}
	return nil
}

func (m barMessage) candle() (models.Candle, error) {
	symbol := util.NormalizeSymbol(m.Symbol)
	if symbol == "" {
		return models.Candle{}, fmt.Errorf("bar without symbol")
	}
	date, ok := util.ParseDate(m.Date)
	if !ok {
		return models.Candle{}, fmt.Errorf("bar %s: bad date %q", symbol, m.Date)
	}
	if m.Close <= 0 {
		return models.Candle{}, fmt.Errorf("bar %s %s: close must be positive", symbol, m.Date)
	}
	return models.Candle{
		Symbol: symbol,
		Date:   util.StartOfDay(date),
		Open:   m.Open,
		High:   m.High,
		Low:    m.Low,
		Close:  m.Close,
		Volume: m.Volume,
	}, nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)

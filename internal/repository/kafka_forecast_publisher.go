package repository

import (
	"context"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
)

// keyedPublisher is satisfied by *kafka.Producer.
type keyedPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaForecastPublisher emits forecasts keyed by symbol so one symbol stays on one partition.
type KafkaForecastPublisher struct {
	producer keyedPublisher
	topic    string
}

func NewKafkaForecastPublisher(p keyedPublisher, topic string) *KafkaForecastPublisher {
	return &KafkaForecastPublisher{producer: p, topic: topic}
}

func (p *KafkaForecastPublisher) PublishForecast(ctx context.Context, f *models.Forecast) error {
	return p.producer.Publish(ctx, p.topic, []byte(f.Symbol), f)
}

// NopForecastPublisher drops forecasts when Kafka is disabled.
type NopForecastPublisher struct{}

func (NopForecastPublisher) PublishForecast(context.Context, *models.Forecast) error { return nil }

var (
	_ domrepo.ForecastPublisher = (*KafkaForecastPublisher)(nil)
	_ domrepo.ForecastPublisher = NopForecastPublisher{}
)

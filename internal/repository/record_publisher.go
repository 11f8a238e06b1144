package repository

import (
	"context"

	"MarketPulse/internal/domain/models"
	pkgkafka "MarketPulse/pkg/kafka"
)

// DefaultUpdatesTopic carries every enriched record keyed by symbol.
const DefaultUpdatesTopic = "market.updates"

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultUpdatesTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, symbol string, rec *models.EnrichedRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(symbol), rec)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

const (
	defaultClientID = "marketpulse"

	HeaderContentType = "content-type"
	HeaderProducer    = "producer"
)

// Producer publishes JSON payloads keyed by symbol.
type Producer struct {
	writer   *kafka.Writer
	clientID string
}

// NewProducer creates a new Kafka producer.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		ClientID:     defaultClientID,
		RequiredAcks: 1,
		Compression:  "snappy",
		MaxAttempts:  5,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancer(cfg.HashByKey),
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
		MaxAttempts:  cfg.MaxAttempts,
		Async:        cfg.Async,

		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	registerProducerMetrics()
	return &Producer{writer: writer, clientID: cfg.ClientID}, nil
}

// Publish sends value to topic. Raw bytes and strings go out as is, anything
// else is JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	if topic == "" {
		return fmt.Errorf("publish: empty topic")
	}
	start := time.Now()
	msg, err := p.message(topic, key, value)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, msg)
	observePublish(topic, len(msg.Value), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) message(topic string, key []byte, value interface{}) (kafka.Message, error) {
	contentType := "application/json"
	var v []byte
	switch val := value.(type) {
	case []byte:
		v, contentType = val, "application/octet-stream"
	case string:
		v, contentType = []byte(val), "text/plain"
	default:
		var err error
		if v, err = json.Marshal(value); err != nil {
			return kafka.Message{}, fmt.Errorf("marshal value: %w", err)
		}
	}
	return kafka.Message{
		Topic: topic,
		Key:   key,
		Value: v,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: HeaderContentType, Value: []byte(contentType)},
			{Key: HeaderProducer, Value: []byte(p.clientID)},
		},
	}, nil
}

// PublishMessage publishes payload without a key. It satisfies the log
// collector's Publisher.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// balancer keeps one symbol on one partition when hashing by key.
func balancer(byKey bool) kafka.Balancer {
	if byKey {
		return &kafka.Hash{}
	}
	return &kafka.LeastBytes{}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Snappy
	}
}

var (
	producerMetricsOnce sync.Once
	producedTotal       *prometheus.CounterVec
	producedBytes       *prometheus.CounterVec
	produceSeconds      *prometheus.HistogramVec
)

func registerProducerMetrics() {
	producerMetricsOnce.Do(func() {
		producedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_kafka_producer_messages_total",
			Help: "Published messages by topic and outcome.",
		}, []string{"topic", "outcome"})
		producedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_kafka_producer_bytes_total",
			Help: "Uncompressed payload bytes handed to the writer.",
		}, []string{"topic"})
		produceSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketpulse_kafka_producer_publish_seconds",
			Help:    "WriteMessages latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"topic"})
	})
}

func observePublish(topic string, size int, took time.Duration, err error) {
	if producedTotal == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	producedTotal.WithLabelValues(topic, outcome).Inc()
	producedBytes.WithLabelValues(topic).Add(float64(size))
	produceSeconds.WithLabelValues(topic).Observe(took.Seconds())
}

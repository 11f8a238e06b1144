package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "MarketPulse/pkg/logger"
)

const (
	fetchTimeout  = 3 * time.Second
	commitTimeout = 2 * time.Second
	commitRetries = 3
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads one reader per registered topic and fans messages out to a
// fixed worker pool. A partition always lands on the same worker, so its
// messages are handled in order.
type Consumer struct {
	cfg      *ConsumerConfig
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	lanes    []chan kafka.Message
	dlq      *kafka.Writer
	l        *applogger.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	fetchWG  sync.WaitGroup
	workWG   sync.WaitGroup
	stopOnce sync.Once
	started  bool
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:         "marketpulse",
		AutoOffsetReset: "earliest",
		WorkerCount:     1,
		BufferSize:      10,
		RetryMax:        3,
		BackoffMin:      50 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		MinBytes:        1,
		MaxBytes:        10 << 20,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	l := cfg.Logger
	if l == nil {
		l = applogger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		l:        l.With("component", "kafka_consumer"),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	registerConsumerMetrics()
	return c, nil
}

// RegisterHandler registers a message handler for its topic. The first
// handler for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, dup := c.handlers[topic]; dup {
		c.l.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens the readers and launches the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	if c.started {
		return errors.New("consumer already started")
	}
	c.started = true

	offset := kafka.FirstOffset
	if c.cfg.AutoOffsetReset == "latest" {
		offset = kafka.LastOffset
	}

	c.lanes = make([]chan kafka.Message, c.cfg.WorkerCount)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.workWG.Add(1)
		go c.work(c.lanes[i])
	}

	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: offset,
		})
		c.readers[topic] = r
		c.fetchWG.Add(1)
		go c.fetch(topic, r)
	}

	c.l.Info("started", applogger.Int("topics", len(c.readers)), applogger.Int("workers", len(c.lanes)))
	return nil
}

// Stop cancels fetching, lets workers drain their lanes and closes readers.
// It returns early with an error when ctx expires first.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()
		done := make(chan struct{})
		go func() {
			c.fetchWG.Wait()
			for _, lane := range c.lanes {
				close(lane)
			}
			c.workWG.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("consumer stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.l.Warn("close reader", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.l.Warn("close dlq writer", applogger.Error(cerr))
			}
		}
		c.l.Info("stopped")
	})
	return err
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchWG.Done()
	for c.ctx.Err() == nil {
		ctx, cancel := context.WithTimeout(c.ctx, fetchTimeout)
		msg, err := r.FetchMessage(ctx)
		cancel()
		if err != nil {
			if c.ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
				c.l.Warn("fetch failed", applogger.String("topic", topic), applogger.Error(err))
			}
			continue
		}

		lane := c.lanes[laneFor(msg.Partition, len(c.lanes))]
		select {
		case lane <- msg:
			consumerLag.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.ctx.Done():
			return
		}
	}
}

func laneFor(partition, lanes int) int {
	if lanes <= 1 || partition < 0 {
		return 0
	}
	return partition % lanes
}

func (c *Consumer) work(lane <-chan kafka.Message) {
	defer c.workWG.Done()
	for msg := range lane {
		c.process(msg)
	}
}

func (c *Consumer) process(msg kafka.Message) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}
	start := time.Now()

	err := c.handle(handler, msg.Value)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		c.l.Error("handler failed",
			applogger.String("topic", msg.Topic),
			applogger.Int("partition", msg.Partition),
			applogger.Int64("offset", msg.Offset),
			applogger.Error(err))
		if c.dlq != nil {
			c.deadLetter(msg, err)
			outcome = "dead_lettered"
		}
	}
	consumerHandled.WithLabelValues(msg.Topic, outcome).Inc()
	consumerHandleSeconds.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())

	// a failed message without a DLQ stays uncommitted and is redelivered
	if err == nil || c.dlq != nil {
		c.commit(msg)
	}
}

// handle runs the handler with retries. Panics are returned as errors.
func (c *Consumer) handle(h MessageHandler, value []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	for attempt := 0; ; attempt++ {
		if err = h.Handle(c.ctx, value); err == nil {
			return nil
		}
		if attempt >= c.cfg.RetryMax {
			return err
		}
		t := time.NewTimer(backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt))
		select {
		case <-t.C:
		case <-c.ctx.Done():
			t.Stop()
			return err
		}
	}
}

func (c *Consumer) deadLetter(msg kafka.Message, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "x-source-topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "x-error", Value: []byte(cause.Error())},
		),
	})
	if err != nil {
		c.l.Error("dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
	}
}

func (c *Consumer) commit(msg kafka.Message) {
	r := c.readers[msg.Topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 0; attempt < commitRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
		err = r.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.l.Warn("commit failed", applogger.String("topic", msg.Topic), applogger.Int64("offset", msg.Offset), applogger.Error(err))
}

// backoff doubles from min per attempt, caps at max and subtracts up to half
// as jitter.
func backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := max
	if attempt < 30 {
		if exp := min << uint(attempt); exp > 0 && exp < max {
			d = exp
		}
	}
	if half := int64(d / 2); half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

var (
	consumerMetricsOnce   sync.Once
	consumerLag           *prometheus.GaugeVec
	consumerHandled       *prometheus.CounterVec
	consumerHandleSeconds *prometheus.HistogramVec
)

func registerConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketpulse_kafka_consumer_lane_depth",
			Help: "Messages buffered for workers, by topic.",
		}, []string{"topic"})
		consumerHandled = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_kafka_consumer_messages_total",
			Help: "Consumed messages by topic and outcome.",
		}, []string{"topic", "outcome"})
		consumerHandleSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketpulse_kafka_consumer_handle_seconds",
			Help:    "Handler latency including retries.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"topic"})
	})
}

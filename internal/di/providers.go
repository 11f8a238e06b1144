package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"MarketPulse/internal/domain/repository"
	"MarketPulse/internal/handler/api"
	mid "MarketPulse/internal/middleware"
	internalrepo "MarketPulse/internal/repository"
	"MarketPulse/internal/service/broadcast"
	icache "MarketPulse/internal/service/cache"
	"MarketPulse/internal/service/health"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/service/source"
	"MarketPulse/internal/services/confluence"
	"MarketPulse/internal/services/validator"
	"MarketPulse/internal/usecase"
	pcache "MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	pkgpg "MarketPulse/pkg/postgres"
	"MarketPulse/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
// Repeated error logs are shipped to the log topic through it.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithClientID("marketpulse-"+cfg.Environment),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Kafka.LogTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the watchlist consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.WatchlistTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisClient connects to Redis when the cache or the rate limiter uses it.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Cache.Backend == "memory" && cfg.RateLimit.Backend == "memory" {
		return nil, nil
	}
	rc := cfg.Cache.Redis
	rdb, err := pcache.NewRedisCache(
		pcache.WithRedisAddr(rc.Host, rc.Port),
		pcache.WithRedisAuth(rc.Password, rc.DB),
		pcache.WithRedisPool(rc.PoolSize, 30*time.Second),
		pcache.WithRedisPrefix(rc.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rdb.Client(), nil
}

// ProvideCacheService selects the cache backend.
func ProvideCacheService(cfg *config.Config, rdb *redis.Client) pcache.Service {
	memory := func() pcache.Service {
		return pcache.NewMemoryCache(
			pcache.WithMemoryMaxSize(cfg.Cache.MemorySize),
			pcache.WithMemoryDefaultTTL(cfg.Cache.TTL),
		)
	}
	if rdb == nil || cfg.Cache.Backend == "memory" {
		return memory()
	}
	remote := pcache.NewRedisCacheFromClient(rdb, cfg.Cache.Redis.Prefix)
	if cfg.Cache.Backend == "redis" {
		return remote
	}
	return pcache.NewLayeredCache(remote,
		pcache.WithLayeredMemorySize(cfg.Cache.MemorySize),
		pcache.WithLayeredMemoryTTL(time.Minute),
	)
}

// ProvideRecordCache keeps the latest record and summary per symbol.
func ProvideRecordCache(cfg *config.Config, svc pcache.Service) *icache.RecordCache {
	return icache.NewRecordCache(icache.NewStore(svc),
		icache.WithTTL(cfg.Cache.TTL),
		icache.WithSummaryTTL(cfg.Cache.SummaryTTL),
	)
}

// ProvideRateLimiter builds the per-source admission manager.
func ProvideRateLimiter(cfg *config.Config, rdb *redis.Client, l *applogger.Logger) *ratelimit.Manager {
	limits := make(map[string]int, len(cfg.Sources))
	for name, s := range cfg.Sources {
		limits[name] = s.RateLimit
	}
	var store ratelimit.CounterStore = ratelimit.NewMemoryStore(nil)
	if rdb != nil && cfg.RateLimit.Backend == "redis" {
		store = ratelimit.NewRedisStore(rdb)
	}
	return ratelimit.NewManager(store, limits, l, ratelimit.WithWindow(cfg.RateLimit.Window))
}

// ProvideRegistry builds every enabled source adapter.
func ProvideRegistry(cfg *config.Config, limiter *ratelimit.Manager) *source.Registry {
	return source.NewRegistry(cfg, limiter)
}

// ProvideValidator creates the point and indicator validator.
func ProvideValidator() *validator.Validator {
	return validator.New()
}

// ProvideAggregator creates the failover aggregator.
func ProvideAggregator(cfg *config.Config, reg *source.Registry, limiter *ratelimit.Manager, v *validator.Validator,
	m *metrics.Recorder, l *applogger.Logger) *usecase.Aggregator {
	tracker := health.NewTracker(health.WithCooldown(cfg.Scheduler.Cooldown))
	return usecase.NewAggregator(reg, tracker, v, l,
		usecase.WithCallObserver(m),
		usecase.WithAggregatorMetrics(m),
		usecase.WithRateWindow(limiter),
	)
}

// ProvidePostgresStore opens the durable record store, or nil when disabled.
func ProvidePostgresStore(cfg *config.Config, l *applogger.Logger) (repository.Persistence, error) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	client, err := pkgpg.NewClient(cfg.Postgres.DSN(),
		pkgpg.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
		pkgpg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	store := internalrepo.NewPGRecordStore(client, l)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return store, nil
}

// ProvidePointArchive opens the ClickHouse point archive, or nil when disabled.
func ProvidePointArchive(cfg *config.Config, l *applogger.Logger) (repository.PointArchive, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	archive := internalrepo.NewCHPointArchive(client, l,
		internalrepo.WithArchiveTable(client.Table("market_points")),
		internalrepo.WithArchiveTTLDays(int(cfg.Scheduler.Retention.Hours()/24)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return archive, nil
}

// ProvideHub creates the WebSocket subscriber hub.
func ProvideHub(l *applogger.Logger) *broadcast.Hub {
	return broadcast.NewHub(l)
}

// ProvidePublishThrottle fans records out to WebSocket subscribers and Kafka.
// Each target is rate bounded per symbol and retried on its own.
func ProvidePublishThrottle(cfg *config.Config, producer *pkgkafka.Producer, hub *broadcast.Hub, m *metrics.Recorder) *mid.PublishThrottle {
	targets := []repository.Publisher{hub}
	if producer != nil {
		targets = append(targets, internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic))
	}
	return mid.NewPublishThrottle(targets,
		mid.WithMinInterval(cfg.Publish.MinInterval),
		mid.WithBufferSize(cfg.Publish.RetryBuffer),
		mid.WithBackoff(cfg.Publish.BackoffMin, cfg.Publish.BackoffMax),
		mid.WithThrottleMetrics(m),
	)
}

// ProvideRecordSink stores every record a tick produces.
func ProvideRecordSink(store repository.Persistence, cache *icache.RecordCache, archive repository.PointArchive,
	pub *mid.PublishThrottle, m *metrics.Recorder, l *applogger.Logger) *usecase.RecordSink {
	return usecase.NewRecordSink(store, cache, pub, l,
		usecase.WithSinkArchive(archive),
		usecase.WithSinkMetrics(m),
	)
}

// ProvidePipeline creates the per-symbol processing pipeline.
func ProvidePipeline(cfg *config.Config, agg *usecase.Aggregator, v *validator.Validator, archive repository.PointArchive, l *applogger.Logger) *usecase.Pipeline {
	_, newsOn := cfg.Sources[config.SourceNewsAPI]
	return usecase.NewPipeline(agg, v, confluence.NewScorer(), l,
		usecase.WithArchive(archive),
		usecase.WithHistoryDays(cfg.Scheduler.HistoryDays),
		usecase.WithSentiment(newsOn && cfg.Sources[config.SourceNewsAPI].IsEnabled()),
	)
}

// ProvideWatchlist seeds the in-memory watchlist from config.
func ProvideWatchlist(cfg *config.Config) *usecase.MemoryWatchlist {
	return usecase.NewMemoryWatchlist(cfg.Watchlist)
}

// ProvideWatchlistHandler applies watchlist changes from Kafka.
func ProvideWatchlistHandler(cfg *config.Config, list *usecase.MemoryWatchlist, m *metrics.Recorder, l *applogger.Logger) *usecase.WatchlistHandler {
	return usecase.NewWatchlistHandler(cfg.Kafka.WatchlistTopic, list, m, l)
}

// ProvideScheduler creates the periodic driver.
func ProvideScheduler(cfg *config.Config, list *usecase.MemoryWatchlist, pipe *usecase.Pipeline, sink *usecase.RecordSink,
	agg *usecase.Aggregator, store repository.Persistence, cache *icache.RecordCache, m *metrics.Recorder, l *applogger.Logger) *usecase.Scheduler {
	sc := cfg.Scheduler
	return usecase.NewScheduler(list, pipe, sink, agg, l,
		usecase.WithConcurrency(sc.Concurrency),
		usecase.WithIntervals(sc.TickInterval, sc.HealthResetInterval, sc.CleanupInterval),
		usecase.WithRetention(sc.Retention),
		usecase.WithCleanupTargets(store, cache),
		usecase.WithSchedulerMetrics(m),
	)
}

// ProvideMarketQuery creates the read side.
func ProvideMarketQuery(agg *usecase.Aggregator, cache *icache.RecordCache, store repository.Persistence,
	archive repository.PointArchive, l *applogger.Logger) *usecase.MarketQuery {
	return usecase.NewMarketQuery(agg, cache, store, l, usecase.WithQueryArchive(archive))
}

// ProvideHTTPHandler registers the market API and the subscription socket.
func ProvideHTTPHandler(q *usecase.MarketQuery, hub *broadcast.Hub, l *applogger.Logger) *api.MarketEchoHandler {
	return api.NewMarketEchoHandler(q, hub, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	scheduler *usecase.Scheduler,
	throttle *mid.PublishThrottle,
	handler *api.MarketEchoHandler,
	consumer *pkgkafka.Consumer,
	watch *usecase.WatchlistHandler,
	producer *pkgkafka.Producer,
	hub *broadcast.Hub,
	cacheSvc pcache.Service,
	store repository.Persistence,
	archive repository.PointArchive,
) *server.App {
	app := server.New(cfg, l, scheduler, throttle, handler)
	if consumer != nil {
		app.WithConsumer(consumer, watch)
	}
	app.OnShutdown(cacheSvc)
	if store != nil {
		app.OnShutdown(store)
	}
	if archive != nil {
		app.OnShutdown(archive)
	}
	if producer != nil {
		app.OnShutdown(producer, collectorCloser{l})
	}
	app.OnShutdown(hub)
	l.Info("marketpulse wired",
		applogger.Strings("watchlist", cfg.Watchlist),
		applogger.String("cache", cfg.Cache.Backend),
		applogger.Bool("kafka", producer != nil),
		applogger.Bool("postgres", store != nil),
		applogger.Bool("clickhouse", archive != nil),
	)
	return app
}

// collectorCloser flushes the log collector before the producer goes away.
type collectorCloser struct{ l *applogger.Logger }

func (c collectorCloser) Close() error {
	c.l.RemoveCollector()
	return nil
}

//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"MarketPulse/pkg/config"
	"MarketPulse/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideCacheService,
		ProvidePostgresStore,
		ProvidePointArchive,

		// Services
		ProvideRecordCache,
		ProvideRateLimiter,
		ProvideRegistry,
		ProvideValidator,
		ProvideAggregator,
		ProvideHub,
		ProvidePublishThrottle,

		// Use cases
		ProvideRecordSink,
		ProvidePipeline,
		ProvideWatchlist,
		ProvideWatchlistHandler,
		ProvideScheduler,
		ProvideMarketQuery,

		// Transport
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

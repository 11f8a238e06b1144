package repository

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
)

type Publisher interface {
	Publish(ctx context.Context, symbol string, rec *models.EnrichedRecord) error
}

type Persistence interface {
	Init(ctx context.Context) error // ensure tables
	UpsertAsset(ctx context.Context, symbol string, class models.AssetClass) (string, error)
	FindAsset(ctx context.Context, symbol string) (string, error)
	AppendMarketRecord(ctx context.Context, assetID string, rec *models.EnrichedRecord) error
	LatestRecord(ctx context.Context, assetID string) (*models.EnrichedRecord, error)
	DeleteRecordsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// Cache is a bytes key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RecordCache keeps the latest enriched record per symbol.
type RecordCache interface {
	Put(ctx context.Context, rec *models.EnrichedRecord) error
	Latest(ctx context.Context, symbol string) (*models.EnrichedRecord, bool, error)
	Summary(ctx context.Context, symbol string) (*models.MarketSummary, bool, error)
	PurgeOlderThan(ctx context.Context, symbols []string, cutoff time.Time) (int, error)
}

type Watchlist interface {
	ActiveSymbols(ctx context.Context) ([]models.WatchItem, error)
}

// PointArchive keeps accepted points for history fallback.
type PointArchive interface {
	Init(ctx context.Context) error
	AppendPoint(ctx context.Context, p models.MarketPoint) error
	RecentPoints(ctx context.Context, symbol string, since time.Time, limit int) ([]models.MarketPoint, error)
	Close() error
}

type Metrics interface {
	RecordTick(success, failed int, seconds float64)
	RecordSourceResult(source, outcome string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	CallStarted(source string)
	CallFinished(source string)
}

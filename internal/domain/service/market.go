package service

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// PointValidator rejects malformed points and implausible indicator values.
type PointValidator interface {
	ValidatePoint(p *models.MarketPoint) error
	ValidateIndicators(set *models.IndicatorSet) error
}

// Scorer turns indicators into a confluence result. series is the window the
// indicators were computed from, oldest first, ending with current.
type Scorer interface {
	Score(symbol string, set models.IndicatorSet, current models.MarketPoint, series []models.MarketPoint) models.ConfluenceResult
}

// HealthTracker keeps per-source up/down state with cooldowns.
type HealthTracker interface {
	Eligible(name string) bool
	MarkHealthy(name string)
	MarkUnhealthy(name string) time.Time
	ResetExpired() []string
	Snapshot(known ...string) map[string]models.SourceStatus
}

// SourceSet resolves the adapters to try for an asset class.
type SourceSet interface {
	For(class models.AssetClass) []domrepo.Source
	Sentiment() []domrepo.SentimentSource
	Names() []string
}

// RateWindow reports when a rate limited source accepts calls again.
type RateWindow interface {
	NextAvailable(ctx context.Context, source string) time.Time
}

// CallObserver is notified around every upstream call.
type CallObserver interface {
	CallStarted(source string)
	CallFinished(source string)
}

// SymbolProcessor produces one enriched record per symbol per cycle.
type SymbolProcessor interface {
	Process(ctx context.Context, item models.WatchItem) (*models.EnrichedRecord, error)
}

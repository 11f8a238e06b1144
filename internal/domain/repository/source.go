package repository

import (
	"context"

	"MarketPulse/internal/domain/models"
)

// Source is one upstream market data provider.
// Implementations return models.ErrRateLimited when locally denied and
// models.ErrSourceUnavailable for any upstream failure.
type Source interface {
	Name() string
	FetchCurrent(ctx context.Context, symbol string, class models.AssetClass) (*models.MarketPoint, error)
	FetchHistorical(ctx context.Context, symbol string, days int) ([]models.MarketPoint, error)
}

// SentimentSource produces a news polarity score for a symbol.
type SentimentSource interface {
	Name() string
	FetchSentiment(ctx context.Context, symbol string) (*models.Sentiment, error)
}

// RateLimiter admits or denies calls to a named source.
type RateLimiter interface {
	Admit(ctx context.Context, source string) bool
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
)

const archiveReadLimit = 5000

// MarketQuery serves the read side: latest record, history and source health.
type MarketQuery struct {
	agg     *Aggregator
	cache   domrepo.RecordCache
	store   domrepo.Persistence
	archive domrepo.PointArchive
	now     func() time.Time
	l       *applogger.Logger
}

type QueryOption func(*MarketQuery)

func WithQueryArchive(a domrepo.PointArchive) QueryOption {
	return func(q *MarketQuery) { q.archive = a }
}

func WithQueryClock(now func() time.Time) QueryOption {
	return func(q *MarketQuery) {
		if now != nil {
			q.now = now
		}
	}
}

func NewMarketQuery(agg *Aggregator, cache domrepo.RecordCache, store domrepo.Persistence, l *applogger.Logger, opts ...QueryOption) *MarketQuery {
	if l == nil {
		l = applogger.Nop()
	}
	q := &MarketQuery{agg: agg, cache: cache, store: store, now: time.Now, l: l}
	for _, o := range opts {
		o(q)
	}
	return q
}

// FetchLatest reads the cache, then the durable store. A store hit is written
// back to the cache.
func (q *MarketQuery) FetchLatest(ctx context.Context, symbol string) (*models.EnrichedRecord, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if q.cache != nil {
		rec, ok, err := q.cache.Latest(ctx, symbol)
		if err != nil {
			q.l.Warn("cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
		if ok {
			return rec, nil
		}
	}
	if q.store == nil {
		return nil, fmt.Errorf("%s: %w", symbol, models.ErrNotAvailable)
	}

	assetID, err := q.store.FindAsset(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: find asset: %w", symbol, err)
	}
	rec, err := q.store.LatestRecord(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("%s: latest record: %w", symbol, err)
	}
	if q.cache != nil {
		if err := q.cache.Put(ctx, rec); err != nil {
			q.l.Debug("cache refill failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return rec, nil
}

// FetchSummary returns the cached summary, falling back to the latest record.
func (q *MarketQuery) FetchSummary(ctx context.Context, symbol string) (*models.MarketSummary, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if q.cache != nil {
		if sum, ok, err := q.cache.Summary(ctx, symbol); err == nil && ok {
			return sum, nil
		}
	}
	rec, err := q.FetchLatest(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sum := models.SummaryOf(rec)
	return &sum, nil
}

// FetchHistoricalSeries returns up to days of history, oldest first. The
// archive is used when no upstream source has a series.
func (q *MarketQuery) FetchHistoricalSeries(ctx context.Context, symbol string, days int) ([]models.MarketPoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	class := models.ClassifySymbol(symbol)

	pts, _, err := q.agg.FetchHistorical(ctx, symbol, class, days)
	if len(pts) > 0 {
		return pts, nil
	}
	if q.archive != nil {
		archived, aerr := q.archive.RecentPoints(ctx, symbol, q.now().AddDate(0, 0, -days), archiveReadLimit)
		if aerr == nil && len(archived) > 0 {
			return archived, nil
		}
		err = errors.Join(err, aerr)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", symbol, models.ErrNotAvailable, err)
	}
	return nil, fmt.Errorf("%s: %w", symbol, models.ErrNotAvailable)
}

// SourceHealthSnapshot reports every configured source.
func (q *MarketQuery) SourceHealthSnapshot(ctx context.Context) map[string]models.SourceStatus {
	return q.agg.HealthSnapshot(ctx)
}

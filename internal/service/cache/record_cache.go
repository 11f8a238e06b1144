package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	pcache "MarketPulse/pkg/cache"
)

const (
	RecordPrefix  = "market_data"
	SummaryPrefix = "market_summary"

	DefaultRecordTTL  = 5 * time.Minute
	DefaultSummaryTTL = 10 * time.Minute
)

// RecordCache keeps the latest EnrichedRecord per symbol.
type RecordCache struct {
	c          domrepo.Cache
	ttl        time.Duration
	summaryTTL time.Duration
}

type Option func(*RecordCache)

func WithTTL(d time.Duration) Option {
	return func(r *RecordCache) {
		if d > 0 {
			r.ttl = d
		}
	}
}

func WithSummaryTTL(d time.Duration) Option {
	return func(r *RecordCache) {
		if d > 0 {
			r.summaryTTL = d
		}
	}
}

func NewRecordCache(c domrepo.Cache, opts ...Option) *RecordCache {
	r := &RecordCache{c: c, ttl: DefaultRecordTTL, summaryTTL: DefaultSummaryTTL}
	for _, o := range opts {
		o(r)
	}
	return r
}

func RecordKey(symbol string) string {
	return pcache.GenerateKey(RecordPrefix, strings.ToUpper(symbol))
}

func SummaryKey(symbol string) string {
	return pcache.GenerateKey(SummaryPrefix, strings.ToUpper(symbol))
}

// Put stores rec and its summary.
func (r *RecordCache) Put(ctx context.Context, rec *models.EnrichedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := r.c.SetWithTTL(ctx, RecordKey(rec.Symbol), data, r.ttl); err != nil {
		return fmt.Errorf("cache record %s: %w", rec.Symbol, err)
	}

	sum, err := json.Marshal(models.SummaryOf(rec))
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := r.c.SetWithTTL(ctx, SummaryKey(rec.Symbol), sum, r.summaryTTL); err != nil {
		return fmt.Errorf("cache summary %s: %w", rec.Symbol, err)
	}
	return nil
}

// Latest returns the cached record for symbol. An undecodable entry is
// dropped and reported as a miss.
func (r *RecordCache) Latest(ctx context.Context, symbol string) (*models.EnrichedRecord, bool, error) {
	key := RecordKey(symbol)
	data, ok, err := r.c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var rec models.EnrichedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = r.c.Delete(ctx, key)
		return nil, false, nil
	}
	return &rec, true, nil
}

// Summary returns the cached summary for symbol.
func (r *RecordCache) Summary(ctx context.Context, symbol string) (*models.MarketSummary, bool, error) {
	data, ok, err := r.c.Get(ctx, SummaryKey(symbol))
	if err != nil || !ok {
		return nil, false, err
	}
	var s models.MarketSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, nil
	}
	return &s, true, nil
}

// PurgeOlderThan deletes the cached records of symbols processed before cutoff
// and returns how many were removed.
func (r *RecordCache) PurgeOlderThan(ctx context.Context, symbols []string, cutoff time.Time) (int, error) {
	removed := 0
	var errs []error
	for _, sym := range symbols {
		rec, ok, err := r.Latest(ctx, sym)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok || !rec.ProcessedAt.Before(cutoff) {
			continue
		}
		if err := errors.Join(r.c.Delete(ctx, RecordKey(sym)), r.c.Delete(ctx, SummaryKey(sym))); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

package usecase

import (
	"context"
	"errors"
	"fmt"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
)

// RecordSink writes an enriched record to the durable store, the cache and
// the publishers, in that order. Every stage runs even if an earlier one fails.
type RecordSink struct {
	store     domrepo.Persistence
	cache     domrepo.RecordCache
	archive   domrepo.PointArchive
	publisher domrepo.Publisher
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

type SinkOption func(*RecordSink)

func WithSinkArchive(a domrepo.PointArchive) SinkOption {
	return func(s *RecordSink) { s.archive = a }
}

func WithSinkMetrics(m domrepo.Metrics) SinkOption {
	return func(s *RecordSink) { s.metrics = m }
}

// NewRecordSink accepts nil for any backend that is not configured.
func NewRecordSink(store domrepo.Persistence, cache domrepo.RecordCache, publisher domrepo.Publisher, l *applogger.Logger, opts ...SinkOption) *RecordSink {
	if l == nil {
		l = applogger.Nop()
	}
	s := &RecordSink{store: store, cache: cache, publisher: publisher, l: l}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store persists rec. The returned error joins every stage failure.
func (s *RecordSink) Store(ctx context.Context, rec *models.EnrichedRecord) error {
	var errs []error

	if s.store != nil {
		if err := s.persist(ctx, rec); err != nil {
			errs = append(errs, s.failed("store", rec.Symbol, err))
		}
	}
	if s.archive != nil {
		if err := s.archive.AppendPoint(ctx, rec.Point); err != nil {
			errs = append(errs, s.failed("archive", rec.Symbol, err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, rec); err != nil {
			errs = append(errs, s.failed("cache", rec.Symbol, err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, rec.Symbol, rec); err != nil {
			errs = append(errs, s.failed("publish", rec.Symbol, err))
		}
	}
	if s.metrics != nil {
		s.metrics.RecordLastPrice(rec.Symbol, rec.Point.Price)
	}
	return errors.Join(errs...)
}

func (s *RecordSink) persist(ctx context.Context, rec *models.EnrichedRecord) error {
	assetID, err := s.store.UpsertAsset(ctx, rec.Symbol, rec.AssetClass)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	if err := s.store.AppendMarketRecord(ctx, assetID, rec); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (s *RecordSink) failed(stage, symbol string, err error) error {
	s.l.Warn("record sink stage failed",
		applogger.String("stage", stage), applogger.String("symbol", symbol), applogger.Error(err))
	if s.metrics != nil {
		s.metrics.RecordError("sink_" + stage)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

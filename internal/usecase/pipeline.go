package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	"MarketPulse/internal/services/indicators"
	applogger "MarketPulse/pkg/logger"
)

// Pipeline runs one symbol through fetch, indicators, validation and scoring.
type Pipeline struct {
	agg         *Aggregator
	validator   domsvc.PointValidator
	scorer      domsvc.Scorer
	archive     domrepo.PointArchive
	historyDays int
	sentiment   bool
	now         func() time.Time
	l           *applogger.Logger
}

type PipelineOption func(*Pipeline)

// WithArchive uses archive as history when every upstream series is empty.
func WithArchive(archive domrepo.PointArchive) PipelineOption {
	return func(p *Pipeline) { p.archive = archive }
}

func WithHistoryDays(days int) PipelineOption {
	return func(p *Pipeline) {
		if days > 0 {
			p.historyDays = days
		}
	}
}

// WithSentiment toggles the news sentiment lookup.
func WithSentiment(enabled bool) PipelineOption {
	return func(p *Pipeline) { p.sentiment = enabled }
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPipeline(agg *Aggregator, validator domsvc.PointValidator, scorer domsvc.Scorer, l *applogger.Logger, opts ...PipelineOption) *Pipeline {
	if l == nil {
		l = applogger.Nop()
	}
	p := &Pipeline{
		agg:         agg,
		validator:   validator,
		scorer:      scorer,
		historyDays: indicators.MaxWindow,
		sentiment:   true,
		now:         time.Now,
		l:           l,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process produces the enriched record for item. Stages run strictly in order.
func (p *Pipeline) Process(ctx context.Context, item models.WatchItem) (*models.EnrichedRecord, error) {
	symbol := item.Symbol
	class := models.NormalizeAssetClass(item.AssetClass, symbol)

	point, err := p.agg.FetchCurrent(ctx, symbol, class)
	if err != nil {
		return nil, err
	}

	history, historySource, herr := p.agg.FetchHistorical(ctx, symbol, class, p.historyDays)
	if len(history) == 0 {
		history = p.archived(ctx, symbol)
		if herr != nil {
			p.l.Debug("no upstream history",
				applogger.String("symbol", symbol), applogger.Int("archived", len(history)), applogger.Error(herr))
		}
	}

	window := indicators.Window(history, *point)
	set := indicators.Compute(window)
	if err := p.validator.ValidateIndicators(&set); err != nil {
		p.agg.ReportFailure(point.Source, symbol, err)
		return nil, fmt.Errorf("%s: indicators: %w", symbol, err)
	}

	var sentiment *models.Sentiment
	if p.sentiment {
		sentiment = p.agg.FetchSentiment(ctx, symbol)
	}

	confluence := p.scorer.Score(symbol, set, *point, window)

	used := []string{point.Source}
	if historySource != "" && historySource != point.Source {
		used = append(used, historySource)
	}
	if sentiment != nil {
		used = append(used, sentiment.Source)
	}

	return &models.EnrichedRecord{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		AssetClass:  class,
		Point:       *point,
		Indicators:  set,
		Confluence:  confluence,
		Sentiment:   sentiment,
		Source:      point.Source,
		ProcessedAt: p.now().UTC(),
		Quality: models.DataQuality{
			SourcesUsed:          used,
			HistoricalPoints:     len(window) - 1,
			IndicatorsCalculated: set.Count(),
			SentimentAvailable:   sentiment != nil,
		},
	}, nil
}

func (p *Pipeline) archived(ctx context.Context, symbol string) []models.MarketPoint {
	if p.archive == nil {
		return nil
	}
	since := p.now().AddDate(0, 0, -p.historyDays)
	pts, err := p.archive.RecentPoints(ctx, symbol, since, indicators.MaxWindow)
	if err != nil {
		p.l.Warn("archive read failed", applogger.String("symbol", symbol), applogger.Error(err))
		return nil
	}
	return pts
}

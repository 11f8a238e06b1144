package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/health"
	"MarketPulse/internal/service/source"
	"MarketPulse/internal/services/confluence"
	"MarketPulse/internal/services/validator"
)

type fakeSentiment struct {
	name  string
	score float64
	err   error
}

func (f fakeSentiment) Name() string { return f.name }

func (f fakeSentiment) FetchSentiment(_ context.Context, _ string) (*models.Sentiment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Sentiment{Score: f.score, SampleCount: 4, Confidence: 0.8, Source: f.name}, nil
}

type fakeArchive struct {
	points []models.MarketPoint
	since  time.Time
}

func (f *fakeArchive) Init(context.Context) error { return nil }

func (f *fakeArchive) AppendPoint(_ context.Context, p models.MarketPoint) error {
	f.points = append(f.points, p)
	return nil
}

func (f *fakeArchive) RecentPoints(_ context.Context, _ string, since time.Time, limit int) ([]models.MarketPoint, error) {
	f.since = since
	if len(f.points) > limit {
		return f.points[len(f.points)-limit:], nil
	}
	return f.points, nil
}

func (f *fakeArchive) Close() error { return nil }

func risingSeries(symbol string, n int) []models.MarketPoint {
	out := make([]models.MarketPoint, n)
	for i := range out {
		out[i] = models.MarketPoint{
			Symbol:    symbol,
			Timestamp: testNow.AddDate(0, 0, i-n),
			Price:     float64(100 + i),
			Volume:    models.Float(1000),
		}
	}
	return out
}

func trending(name string, n int) *fakeSource {
	s := priced(name, float64(100+n))
	s.history = func(symbol string, days int) ([]models.MarketPoint, error) {
		return risingSeries(symbol, n), nil
	}
	return s
}

func newTestPipeline(sentiment []domrepo.SentimentSource, opts []PipelineOption, sources ...domrepo.Source) *Pipeline {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	reg := source.NewStaticRegistry(map[models.AssetClass][]string{models.AssetStock: names}, sentiment, sources...)
	tracker := health.NewTracker(health.WithClock(clock))
	v := validator.New(validator.WithClock(clock))
	agg := NewAggregator(reg, tracker, v, nil)
	opts = append(opts, WithPipelineClock(clock))
	return NewPipeline(agg, v, confluence.NewScorer(), nil, opts...)
}

func TestProcessBuildsEnrichedRecord(t *testing.T) {
	p := newTestPipeline(
		[]domrepo.SentimentSource{fakeSentiment{name: "news", score: 0.4}},
		nil,
		trending("yahoo", 30),
	)

	rec, err := p.Process(context.Background(), models.WatchItem{Symbol: "AAPL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID == "" || rec.Symbol != "AAPL" || rec.AssetClass != models.AssetStock {
		t.Fatalf("unexpected record header %+v", rec)
	}
	if rec.Point.Price != 130 || rec.Source != "yahoo" {
		t.Fatalf("unexpected point %+v", rec.Point)
	}
	if rec.Quality.HistoricalPoints != 30 || !rec.Quality.SentimentAvailable {
		t.Fatalf("unexpected quality %+v", rec.Quality)
	}
	if rec.Quality.IndicatorsCalculated != rec.Indicators.Count() || rec.Indicators.RSI == nil {
		t.Fatalf("indicators missing: %+v", rec.Indicators)
	}
	if len(rec.Quality.SourcesUsed) != 2 || rec.Quality.SourcesUsed[1] != "news" {
		t.Fatalf("unexpected sources used %v", rec.Quality.SourcesUsed)
	}
	if rec.Confluence.Pattern != models.PatternAscending {
		t.Fatalf("expected ascending pattern, got %s", rec.Confluence.Pattern)
	}
	if !rec.ProcessedAt.Equal(testNow) {
		t.Fatalf("unexpected processed time %v", rec.ProcessedAt)
	}
}

func TestProcessWithoutHistoryUsesCurrentOnly(t *testing.T) {
	p := newTestPipeline(nil, []PipelineOption{WithSentiment(false)}, priced("yahoo", 50))

	rec, err := p.Process(context.Background(), models.WatchItem{Symbol: "MSFT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Quality.HistoricalPoints != 0 || rec.Indicators.Count() != 0 {
		t.Fatalf("expected no indicators, got %+v", rec.Indicators)
	}
	if rec.Confluence.Pattern != models.PatternNeutral || rec.Confluence.Magnitude != 0 {
		t.Fatalf("expected neutral empty confluence, got %+v", rec.Confluence)
	}
	if rec.Sentiment != nil || rec.Quality.SentimentAvailable {
		t.Fatalf("sentiment disabled")
	}
}

func TestProcessFallsBackToArchive(t *testing.T) {
	archive := &fakeArchive{points: risingSeries("AAPL", 60)}
	p := newTestPipeline(nil, []PipelineOption{WithArchive(archive), WithHistoryDays(20)}, priced("yahoo", 160))

	rec, err := p.Process(context.Background(), models.WatchItem{Symbol: "AAPL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Quality.HistoricalPoints != 50 {
		t.Fatalf("expected archive window of 50, got %d", rec.Quality.HistoricalPoints)
	}
	if !archive.since.Equal(testNow.AddDate(0, 0, -20)) {
		t.Fatalf("unexpected archive lower bound %v", archive.since)
	}
}

func TestProcessSentimentFailureIsNotFatal(t *testing.T) {
	p := newTestPipeline(
		[]domrepo.SentimentSource{fakeSentiment{name: "news", err: models.Unavailable("news", nil)}},
		nil,
		trending("yahoo", 25),
	)
	rec, err := p.Process(context.Background(), models.WatchItem{Symbol: "AAPL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Sentiment != nil {
		t.Fatalf("expected no sentiment")
	}
}

func TestProcessPropagatesExhaustion(t *testing.T) {
	p := newTestPipeline(nil, nil, down("yahoo"))
	_, err := p.Process(context.Background(), models.WatchItem{Symbol: "AAPL"})
	if !errors.Is(err, models.ErrAllSourcesExhausted) {
		t.Fatalf("expected ErrAllSourcesExhausted, got %v", err)
	}
}

type rejectIndicators struct {
	*validator.Validator
}

func (rejectIndicators) ValidateIndicators(*models.IndicatorSet) error {
	return fmt.Errorf("rsi out of range: %w", models.ErrValidationFailed)
}

func TestProcessRejectedIndicatorsCoolDownSource(t *testing.T) {
	src := trending("yahoo", 30)
	reg := source.NewStaticRegistry(map[models.AssetClass][]string{models.AssetStock: {"yahoo"}}, nil, src)
	tracker := health.NewTracker(health.WithClock(clock))
	v := validator.New(validator.WithClock(clock))
	agg := NewAggregator(reg, tracker, v, nil)
	p := NewPipeline(agg, rejectIndicators{v}, confluence.NewScorer(), nil, WithSentiment(false), WithPipelineClock(clock))

	rec, err := p.Process(context.Background(), models.WatchItem{Symbol: "AAPL"})
	if !errors.Is(err, models.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %+v %v", rec, err)
	}
	if tracker.Eligible("yahoo") {
		t.Fatalf("source of the rejected point should be in cooldown")
	}
	if _, err := p.Process(context.Background(), models.WatchItem{Symbol: "MSFT"}); !errors.Is(err, models.ErrAllSourcesExhausted) {
		t.Fatalf("cooled down source should not be asked again, got %v", err)
	}
}

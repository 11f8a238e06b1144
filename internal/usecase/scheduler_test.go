package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/health"
	"MarketPulse/internal/service/source"
	"MarketPulse/internal/services/confluence"
	"MarketPulse/internal/services/validator"
)

// countingObserver tracks the peak number of concurrent upstream calls.
type countingObserver struct {
	mu      sync.Mutex
	current int
	peak    int
	total   int
}

func (c *countingObserver) CallStarted(string) {
	c.mu.Lock()
	c.current++
	c.total++
	if c.current > c.peak {
		c.peak = c.current
	}
	c.mu.Unlock()
}

func (c *countingObserver) CallFinished(string) {
	c.mu.Lock()
	c.current--
	c.mu.Unlock()
}

type listWatchlist []models.WatchItem

func (l listWatchlist) ActiveSymbols(context.Context) ([]models.WatchItem, error) {
	return l, nil
}

type recordingSink struct {
	mu      sync.Mutex
	symbols []string
}

func (r *recordingSink) Store(_ context.Context, rec *models.EnrichedRecord) error {
	r.mu.Lock()
	r.symbols = append(r.symbols, rec.Symbol)
	r.mu.Unlock()
	return errors.New("downstream offline")
}

func slowSource(name string, delay time.Duration) *fakeSource {
	s := priced(name, 42)
	base := s.current
	s.current = func(symbol string) (*models.MarketPoint, error) {
		time.Sleep(delay)
		return base(symbol)
	}
	s.history = func(symbol string, days int) ([]models.MarketPoint, error) {
		time.Sleep(delay)
		return risingSeries(symbol, 30), nil
	}
	return s
}

func TestTickRespectsConcurrencyCap(t *testing.T) {
	obs := &countingObserver{}
	src := slowSource("yahoo", 20*time.Millisecond)
	reg := source.NewStaticRegistry(map[models.AssetClass][]string{models.AssetStock: {"yahoo"}}, nil, src)
	v := validator.New(validator.WithClock(clock))
	agg := NewAggregator(reg, health.NewTracker(health.WithClock(clock)), v, nil, WithCallObserver(obs))
	pipe := NewPipeline(agg, v, confluence.NewScorer(), nil, WithSentiment(false), WithPipelineClock(clock))

	items := make(listWatchlist, 25)
	for i := range items {
		items[i] = models.WatchItem{Symbol: fmt.Sprintf("SYM%02d", i), AssetClass: models.AssetStock}
	}
	sink := &recordingSink{}
	s := NewScheduler(items, pipe, sink, agg, nil, WithConcurrency(10))

	report := s.Tick(context.Background())
	if report.Symbols != 25 || report.Success != 25 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if obs.peak > 10 {
		t.Fatalf("at most 10 calls may be in flight, saw %d", obs.peak)
	}
	if obs.peak < 2 {
		t.Fatalf("symbols should be processed concurrently, peak was %d", obs.peak)
	}
	if obs.total != 50 {
		t.Fatalf("expected one current and one historical call per symbol, got %d", obs.total)
	}
	if len(sink.symbols) != 25 {
		t.Fatalf("every record should reach the sink, got %d", len(sink.symbols))
	}
}

type scriptedProcessor struct {
	fail map[string]bool
}

func (p scriptedProcessor) Process(_ context.Context, item models.WatchItem) (*models.EnrichedRecord, error) {
	if p.fail[item.Symbol] {
		return nil, models.ErrAllSourcesExhausted
	}
	return &models.EnrichedRecord{Symbol: item.Symbol}, nil
}

func TestTickCountsFailuresIndependently(t *testing.T) {
	items := listWatchlist{{Symbol: "A"}, {Symbol: "B"}, {Symbol: "C"}}
	s := NewScheduler(items, scriptedProcessor{fail: map[string]bool{"B": true}}, nil, nil, nil)

	report := s.Tick(context.Background())
	if report.Success != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

type fakeStore struct {
	cutoff time.Time
}

func (f *fakeStore) Init(context.Context) error { return nil }
func (f *fakeStore) UpsertAsset(context.Context, string, models.AssetClass) (string, error) {
	return "asset", nil
}
func (f *fakeStore) FindAsset(context.Context, string) (string, error) { return "asset", nil }
func (f *fakeStore) AppendMarketRecord(context.Context, string, *models.EnrichedRecord) error {
	return nil
}
func (f *fakeStore) LatestRecord(context.Context, string) (*models.EnrichedRecord, error) {
	return nil, models.ErrNotAvailable
}
func (f *fakeStore) DeleteRecordsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}
func (f *fakeStore) Health(context.Context) error { return nil }
func (f *fakeStore) Close() error                 { return nil }

type purgeCache struct {
	symbols []string
	cutoff  time.Time
}

func (p *purgeCache) Put(context.Context, *models.EnrichedRecord) error { return nil }
func (p *purgeCache) Latest(context.Context, string) (*models.EnrichedRecord, bool, error) {
	return nil, false, nil
}
func (p *purgeCache) Summary(context.Context, string) (*models.MarketSummary, bool, error) {
	return nil, false, nil
}
func (p *purgeCache) PurgeOlderThan(_ context.Context, symbols []string, cutoff time.Time) (int, error) {
	p.symbols, p.cutoff = symbols, cutoff
	return len(symbols), nil
}

func TestCleanupUsesRetention(t *testing.T) {
	store, cache := &fakeStore{}, &purgeCache{}
	items := listWatchlist{{Symbol: "AAPL"}, {Symbol: "BTC"}}
	s := NewScheduler(items, scriptedProcessor{}, nil, nil, nil,
		WithCleanupTargets(store, cache), WithSchedulerClock(clock))

	if err := s.Cleanup(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.cutoff.Equal(testNow.Add(-90 * 24 * time.Hour)) {
		t.Fatalf("unexpected retention cutoff %v", store.cutoff)
	}
	if len(cache.symbols) != 2 || cache.symbols[0] != "AAPL" || cache.symbols[1] != "BTC" || !cache.cutoff.Before(testNow) {
		t.Fatalf("unexpected cache purge %v %v", cache.symbols, cache.cutoff)
	}
}

type brokenWatchlist struct{}

func (brokenWatchlist) ActiveSymbols(context.Context) ([]models.WatchItem, error) {
	return nil, errors.New("watchlist offline")
}

func TestCleanupSkipsCacheWhenWatchlistFails(t *testing.T) {
	store, cache := &fakeStore{}, &purgeCache{}
	s := NewScheduler(brokenWatchlist{}, scriptedProcessor{}, nil, nil, nil,
		WithCleanupTargets(store, cache), WithSchedulerClock(clock))

	if err := s.Cleanup(context.Background()); err == nil {
		t.Fatalf("expected cache purge error")
	}
	if store.cutoff.IsZero() {
		t.Fatalf("durable purge should still run")
	}
	if cache.symbols != nil {
		t.Fatalf("cache purge should not run without symbols, got %v", cache.symbols)
	}
}

func TestResetHealthRestoresExpiredSources(t *testing.T) {
	now := testNow
	tracker := health.NewTracker(health.WithCooldown(time.Minute), health.WithClock(func() time.Time { return now }))
	reg := source.NewStaticRegistry(map[models.AssetClass][]string{models.AssetStock: {"a"}}, nil, down("a"))
	agg := NewAggregator(reg, tracker, validator.New(validator.WithClock(clock)), nil)
	tracker.MarkUnhealthy("a")

	s := NewScheduler(listWatchlist{}, scriptedProcessor{}, nil, agg, nil)
	if got := s.ResetHealth(context.Background()); len(got) != 0 {
		t.Fatalf("cooldown not over yet, restored %v", got)
	}
	now = now.Add(2 * time.Minute)
	if got := s.ResetHealth(context.Background()); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected a restored, got %v", got)
	}
	if !tracker.Get("a").Healthy {
		t.Fatalf("a should be healthy")
	}
}

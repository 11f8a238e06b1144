package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/health"
	"MarketPulse/internal/service/source"
	"MarketPulse/internal/services/validator"
)

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

type fakeSource struct {
	name    string
	current func(symbol string) (*models.MarketPoint, error)
	history func(symbol string, days int) ([]models.MarketPoint, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchCurrent(_ context.Context, symbol string, _ models.AssetClass) (*models.MarketPoint, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.current == nil {
		return nil, models.Unavailable(f.name, nil)
	}
	return f.current(symbol)
}

func (f *fakeSource) FetchHistorical(_ context.Context, symbol string, days int) ([]models.MarketPoint, error) {
	if f.history == nil {
		return nil, models.Unavailable(f.name, nil)
	}
	return f.history(symbol, days)
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func down(name string) *fakeSource {
	return &fakeSource{name: name}
}

func priced(name string, price float64) *fakeSource {
	return &fakeSource{name: name, current: func(symbol string) (*models.MarketPoint, error) {
		return &models.MarketPoint{Symbol: symbol, Timestamp: testNow, Price: price, Source: name}, nil
	}}
}

type fakeNews struct {
	name  string
	score map[string]float64
	calls int
}

func (f *fakeNews) Name() string { return f.name }

func (f *fakeNews) FetchSentiment(_ context.Context, symbol string) (*models.Sentiment, error) {
	f.calls++
	v, ok := f.score[symbol]
	if !ok {
		return nil, nil
	}
	return &models.Sentiment{Score: v, SampleCount: 1, Confidence: 0.1, Source: f.name}, nil
}

func newTestAggregator(t *testing.T, sources ...domrepo.Source) (*Aggregator, *health.Tracker) {
	t.Helper()
	return newSentimentAggregator(t, nil, sources...)
}

func newSentimentAggregator(t *testing.T, news []domrepo.SentimentSource, sources ...domrepo.Source) (*Aggregator, *health.Tracker) {
	t.Helper()
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	reg := source.NewStaticRegistry(map[models.AssetClass][]string{
		models.AssetStock:  names,
		models.AssetCrypto: names,
	}, news, sources...)
	tracker := health.NewTracker(health.WithCooldown(5*time.Minute), health.WithClock(clock))
	return NewAggregator(reg, tracker, validator.New(validator.WithClock(clock)), nil), tracker
}

func TestFetchCurrentFailsOverInPriorityOrder(t *testing.T) {
	a, b, c := down("a"), down("b"), priced("c", 101.5)
	agg, tracker := newTestAggregator(t, a, b, c)

	p, err := agg.FetchCurrent(context.Background(), "AAPL", models.AssetStock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Price != 101.5 || p.Source != "c" {
		t.Fatalf("expected point from c, got %+v", p)
	}
	if tracker.Get("a").Healthy || tracker.Get("b").Healthy {
		t.Fatalf("failed sources should be unhealthy")
	}
	if !tracker.Get("c").Healthy {
		t.Fatalf("answering source should stay healthy")
	}
}

func TestUnhealthySourceSkippedDuringCooldown(t *testing.T) {
	a, b := down("a"), priced("b", 10)
	agg, _ := newTestAggregator(t, a, b)

	for i := 0; i < 3; i++ {
		if _, err := agg.FetchCurrent(context.Background(), "AAPL", models.AssetStock); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if a.Calls() != 1 {
		t.Fatalf("source in cooldown must not be called again, got %d calls", a.Calls())
	}
}

func TestRateLimitedSourceIsSkippedNotPenalized(t *testing.T) {
	limited := &fakeSource{name: "a", current: func(string) (*models.MarketPoint, error) {
		return nil, models.ErrRateLimited
	}}
	agg, tracker := newTestAggregator(t, limited, priced("b", 10))

	p, err := agg.FetchCurrent(context.Background(), "AAPL", models.AssetStock)
	if err != nil || p.Source != "b" {
		t.Fatalf("expected b, got %+v %v", p, err)
	}
	if !tracker.Eligible("a") {
		t.Fatalf("rate limited source must stay eligible")
	}
}

func TestInvalidPointFailsOver(t *testing.T) {
	stale := &fakeSource{name: "a", current: func(symbol string) (*models.MarketPoint, error) {
		return &models.MarketPoint{Symbol: symbol, Timestamp: testNow.AddDate(0, 0, -10), Price: 5}, nil
	}}
	agg, tracker := newTestAggregator(t, stale, priced("b", 10))

	p, err := agg.FetchCurrent(context.Background(), "AAPL", models.AssetStock)
	if err != nil || p.Source != "b" {
		t.Fatalf("expected b, got %+v %v", p, err)
	}
	if tracker.Eligible("a") {
		t.Fatalf("source with invalid data should be in cooldown")
	}
}

func TestAllSourcesExhausted(t *testing.T) {
	agg, _ := newTestAggregator(t, down("a"), down("b"))
	_, err := agg.FetchCurrent(context.Background(), "AAPL", models.AssetStock)
	if !errors.Is(err, models.ErrAllSourcesExhausted) {
		t.Fatalf("expected ErrAllSourcesExhausted, got %v", err)
	}
	if !errors.Is(err, models.ErrSourceUnavailable) {
		t.Fatalf("last cause should be kept, got %v", err)
	}

	_, err = agg.FetchCurrent(context.Background(), "AAPL", models.AssetStock)
	if !errors.Is(err, models.ErrAllSourcesExhausted) {
		t.Fatalf("expected ErrAllSourcesExhausted with everything in cooldown, got %v", err)
	}
}

func TestFetchHistoricalFirstNonEmpty(t *testing.T) {
	empty := &fakeSource{name: "a", history: func(string, int) ([]models.MarketPoint, error) {
		return nil, nil
	}}
	full := &fakeSource{name: "b", history: func(symbol string, days int) ([]models.MarketPoint, error) {
		out := make([]models.MarketPoint, 0, days+1)
		for i := 0; i < days; i++ {
			out = append(out, models.MarketPoint{Symbol: symbol, Price: float64(100 + i)})
		}
		return append(out, models.MarketPoint{Symbol: symbol, Price: 0}), nil
	}}
	agg, tracker := newTestAggregator(t, down("x"), empty, full)

	pts, src, err := agg.FetchHistorical(context.Background(), "AAPL", models.AssetStock, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src != "b" || len(pts) != 5 {
		t.Fatalf("expected 5 points from b, got %d from %q", len(pts), src)
	}
	if !tracker.Eligible("x") {
		t.Fatalf("historical failures must not change health")
	}
}

func TestHealthSnapshotListsEverySource(t *testing.T) {
	agg, _ := newTestAggregator(t, down("a"), priced("b", 1))
	_, _ = agg.FetchCurrent(context.Background(), "AAPL", models.AssetStock)

	snap := agg.HealthSnapshot(context.Background())
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %v", snap)
	}
	if snap["a"].Healthy || !snap["b"].Healthy {
		t.Fatalf("unexpected snapshot %v", snap)
	}
	if !snap["a"].CooldownUntil.Equal(testNow.Add(5 * time.Minute)) {
		t.Fatalf("unexpected cooldown %v", snap["a"].CooldownUntil)
	}
}

func TestSentimentWithoutCoverageKeepsSourceHealthy(t *testing.T) {
	news := &fakeNews{name: "newsapi", score: map[string]float64{"AAPL": 0.4}}
	agg, tracker := newSentimentAggregator(t, []domrepo.SentimentSource{news}, priced("a", 1))

	if s := agg.FetchSentiment(context.Background(), "^GSPC"); s != nil {
		t.Fatalf("expected no sentiment for an uncovered index, got %+v", s)
	}
	if !tracker.Eligible("newsapi") {
		t.Fatalf("a source with no articles must not enter cooldown")
	}
	s := agg.FetchSentiment(context.Background(), "AAPL")
	if s == nil || s.Score != 0.4 {
		t.Fatalf("expected sentiment for the next symbol, got %+v", s)
	}
	if news.calls != 2 {
		t.Fatalf("expected both symbols to reach the source, got %d calls", news.calls)
	}
}

type fixedWindows map[string]time.Time

func (f fixedWindows) NextAvailable(_ context.Context, source string) time.Time {
	if t, ok := f[source]; ok {
		return t
	}
	return testNow
}

func TestHealthSnapshotReportsRateLimitWindow(t *testing.T) {
	reopen := testNow.Add(40 * time.Second)
	reg := source.NewStaticRegistry(map[models.AssetClass][]string{models.AssetStock: {"alpha", "yahoo"}},
		nil, priced("alpha", 1), priced("yahoo", 1))
	tracker := health.NewTracker(health.WithClock(clock))
	agg := NewAggregator(reg, tracker, validator.New(validator.WithClock(clock)), nil,
		WithRateWindow(fixedWindows{"alpha": reopen}),
		WithAggregatorClock(clock))

	snap := agg.HealthSnapshot(context.Background())
	if !snap["alpha"].Healthy || !snap["alpha"].NextAvailable.Equal(reopen) {
		t.Fatalf("expected alpha to reopen at %v, got %+v", reopen, snap["alpha"])
	}
	if !snap["yahoo"].NextAvailable.IsZero() {
		t.Fatalf("source with calls left should have no window, got %+v", snap["yahoo"])
	}
}

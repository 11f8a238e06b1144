package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	applogger "MarketPulse/pkg/logger"
)

// Source call outcomes used in metrics labels.
const (
	outcomeOK          = "ok"
	outcomeRateLimited = "rate_limited"
	outcomeUnavailable = "unavailable"
	outcomeInvalid     = "invalid"
	outcomeEmpty       = "empty"
)

// Aggregator tries the sources of an asset class in priority order and
// fails over on unavailable or invalid data.
type Aggregator struct {
	sources     domsvc.SourceSet
	health      domsvc.HealthTracker
	validator   domsvc.PointValidator
	observer    domsvc.CallObserver
	metrics     domrepo.Metrics
	rates       domsvc.RateWindow
	callTimeout time.Duration
	now         func() time.Time
	l           *applogger.Logger
}

type AggregatorOption func(*Aggregator)

// WithCallObserver installs a hook around every upstream call.
func WithCallObserver(o domsvc.CallObserver) AggregatorOption {
	return func(a *Aggregator) { a.observer = o }
}

// WithCallTimeout bounds every upstream call. Adapters also apply their own.
func WithCallTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

func WithAggregatorMetrics(m domrepo.Metrics) AggregatorOption {
	return func(a *Aggregator) { a.metrics = m }
}

// WithRateWindow lets HealthSnapshot report when throttled sources reopen.
func WithRateWindow(r domsvc.RateWindow) AggregatorOption {
	return func(a *Aggregator) { a.rates = r }
}

func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAggregator(sources domsvc.SourceSet, health domsvc.HealthTracker, validator domsvc.PointValidator, l *applogger.Logger, opts ...AggregatorOption) *Aggregator {
	if l == nil {
		l = applogger.Nop()
	}
	a := &Aggregator{
		sources:     sources,
		health:      health,
		validator:   validator,
		callTimeout: 15 * time.Second,
		now:         time.Now,
		l:           l,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// FetchCurrent returns the first valid point for symbol. Sources that fail or
// return invalid data are put in cooldown; rate limited sources are skipped.
func (a *Aggregator) FetchCurrent(ctx context.Context, symbol string, class models.AssetClass) (*models.MarketPoint, error) {
	var lastErr error
	for _, s := range a.sources.For(class) {
		name := s.Name()
		if !a.health.Eligible(name) {
			continue
		}

		var p *models.MarketPoint
		err := a.call(ctx, name, func(ctx context.Context) error {
			var err error
			p, err = s.FetchCurrent(ctx, symbol, class)
			return err
		})
		if errors.Is(err, models.ErrRateLimited) {
			a.record(name, outcomeRateLimited)
			continue
		}
		if err == nil && p == nil {
			err = models.Unavailable(name, nil)
		}
		if err != nil {
			lastErr = err
			a.fail(name, symbol, outcomeUnavailable, err)
			continue
		}

		if p.Symbol == "" {
			p.Symbol = symbol
		}
		if p.Source == "" {
			p.Source = name
		}
		if verr := a.validator.ValidatePoint(p); verr != nil {
			lastErr = verr
			a.fail(name, symbol, outcomeInvalid, verr)
			continue
		}

		a.health.MarkHealthy(name)
		a.record(name, outcomeOK)
		return p, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%s: %w: %w", symbol, models.ErrAllSourcesExhausted, lastErr)
	}
	return nil, fmt.Errorf("%s: %w", symbol, models.ErrAllSourcesExhausted)
}

// FetchHistorical returns the first non-empty series from an eligible source.
// Historical failures are logged only; they never change source health.
func (a *Aggregator) FetchHistorical(ctx context.Context, symbol string, class models.AssetClass, days int) ([]models.MarketPoint, string, error) {
	var lastErr error
	for _, s := range a.sources.For(class) {
		name := s.Name()
		if !a.health.Eligible(name) {
			continue
		}
		var pts []models.MarketPoint
		err := a.call(ctx, name, func(ctx context.Context) error {
			var err error
			pts, err = s.FetchHistorical(ctx, symbol, days)
			return err
		})
		if err != nil {
			if !errors.Is(err, models.ErrRateLimited) {
				lastErr = err
				a.l.Debug("historical fetch failed",
					applogger.String("symbol", symbol), applogger.String("source", name), applogger.Error(err))
			}
			continue
		}
		pts = positivePrices(pts)
		if len(pts) > 0 {
			return pts, name, nil
		}
	}
	return nil, "", lastErr
}

// FetchSentiment asks each eligible sentiment source until one answers.
// A missing sentiment is not an error for the caller, and a source with no
// coverage for symbol stays healthy.
func (a *Aggregator) FetchSentiment(ctx context.Context, symbol string) *models.Sentiment {
	for _, s := range a.sources.Sentiment() {
		name := s.Name()
		if !a.health.Eligible(name) {
			continue
		}
		var out *models.Sentiment
		err := a.call(ctx, name, func(ctx context.Context) error {
			var err error
			out, err = s.FetchSentiment(ctx, symbol)
			return err
		})
		switch {
		case errors.Is(err, models.ErrRateLimited):
			a.record(name, outcomeRateLimited)
		case err != nil:
			a.fail(name, symbol, outcomeUnavailable, err)
		case out != nil:
			a.health.MarkHealthy(name)
			a.record(name, outcomeOK)
			return out
		default:
			a.record(name, outcomeEmpty)
		}
	}
	return nil
}

// ReportFailure puts source in cooldown after a later stage rejected its data.
func (a *Aggregator) ReportFailure(source, symbol string, err error) {
	a.fail(source, symbol, outcomeInvalid, err)
}

// ResetExpiredHealth restores sources whose cooldown has elapsed.
func (a *Aggregator) ResetExpiredHealth() []string {
	restored := a.health.ResetExpired()
	if len(restored) > 0 {
		a.l.Info("sources restored after cooldown", applogger.Strings("sources", restored))
	}
	return restored
}

// HealthSnapshot returns the state of every configured source, with the end
// of the current rate limit window for sources that are out of calls.
func (a *Aggregator) HealthSnapshot(ctx context.Context) map[string]models.SourceStatus {
	snap := a.health.Snapshot(a.sources.Names()...)
	if a.rates == nil {
		return snap
	}
	now := a.now()
	for name, st := range snap {
		if next := a.rates.NextAvailable(ctx, name); next.After(now) {
			st.NextAvailable = next
			snap[name] = st
		}
	}
	return snap
}

func (a *Aggregator) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if a.observer != nil {
		a.observer.CallStarted(name)
		defer a.observer.CallFinished(name)
	}
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	if a.metrics != nil {
		a.metrics.RecordLatency("source_"+name, time.Since(start).Seconds())
	}
	return err
}

func (a *Aggregator) fail(name, symbol, outcome string, err error) {
	until := a.health.MarkUnhealthy(name)
	a.record(name, outcome)
	a.l.Warn("source marked unhealthy",
		applogger.String("source", name),
		applogger.String("symbol", symbol),
		applogger.String("outcome", outcome),
		applogger.Time("cooldown_until", until),
		applogger.Error(err))
}

func (a *Aggregator) record(name, outcome string) {
	if a.metrics != nil {
		a.metrics.RecordSourceResult(name, outcome)
	}
}

func positivePrices(pts []models.MarketPoint) []models.MarketPoint {
	out := pts[:0:0]
	for _, p := range pts {
		if p.Price > 0 {
			out = append(out, p)
		}
	}
	return out
}

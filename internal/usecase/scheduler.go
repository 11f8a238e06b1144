package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	"MarketPulse/pkg/cron"
	applogger "MarketPulse/pkg/logger"
)

const (
	DefaultTickInterval    = 30 * time.Second
	DefaultHealthInterval  = 5 * time.Minute
	DefaultCleanupInterval = time.Hour
	DefaultConcurrency     = 10
	DefaultRetention       = 90 * 24 * time.Hour
	defaultStaleAfter      = 10 * time.Minute
)

// RecordStorer receives every record a tick produces.
type RecordStorer interface {
	Store(ctx context.Context, rec *models.EnrichedRecord) error
}

// TickReport summarizes one scheduler tick.
type TickReport struct {
	Symbols  int
	Success  int
	Failed   int
	Duration time.Duration
}

// Scheduler drives the periodic jobs: refresh every watched symbol, restore
// sources after cooldown and purge old records.
type Scheduler struct {
	watchlist domrepo.Watchlist
	processor domsvc.SymbolProcessor
	sink      RecordStorer
	agg       *Aggregator
	store     domrepo.Persistence
	cache     domrepo.RecordCache
	metrics   domrepo.Metrics

	concurrency     int
	tickInterval    time.Duration
	healthInterval  time.Duration
	cleanupInterval time.Duration
	retention       time.Duration
	staleAfter      time.Duration
	now             func() time.Time

	runner *cron.Runner
	l      *applogger.Logger
}

type SchedulerOption func(*Scheduler)

func WithConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithIntervals(tick, health, cleanup time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if tick > 0 {
			s.tickInterval = tick
		}
		if health > 0 {
			s.healthInterval = health
		}
		if cleanup > 0 {
			s.cleanupInterval = cleanup
		}
	}
}

// WithRetention sets how long durable records are kept.
func WithRetention(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithCleanupTargets sets the stores the cleanup job purges.
func WithCleanupTargets(store domrepo.Persistence, cache domrepo.RecordCache) SchedulerOption {
	return func(s *Scheduler) {
		s.store = store
		s.cache = cache
	}
}

func WithSchedulerMetrics(m domrepo.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScheduler(watchlist domrepo.Watchlist, processor domsvc.SymbolProcessor, sink RecordStorer, agg *Aggregator, l *applogger.Logger, opts ...SchedulerOption) *Scheduler {
	if l == nil {
		l = applogger.Nop()
	}
	s := &Scheduler{
		watchlist:       watchlist,
		processor:       processor,
		sink:            sink,
		agg:             agg,
		concurrency:     DefaultConcurrency,
		tickInterval:    DefaultTickInterval,
		healthInterval:  DefaultHealthInterval,
		cleanupInterval: DefaultCleanupInterval,
		retention:       DefaultRetention,
		staleAfter:      defaultStaleAfter,
		now:             time.Now,
		l:               l,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Tick refreshes every active symbol with at most concurrency symbols in
// flight. A failing symbol never stops the others.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	start := s.now()
	items, err := s.watchlist.ActiveSymbols(ctx)
	if err != nil {
		s.l.Error("watchlist unavailable", applogger.Error(err))
		return TickReport{}
	}

	var success, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, item := range items {
		g.Go(func() error {
			if err := s.refresh(ctx, item); err != nil {
				failed.Add(1)
				s.l.Warn("symbol update failed", applogger.String("symbol", item.Symbol), applogger.Error(err))
				return nil
			}
			success.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := TickReport{
		Symbols:  len(items),
		Success:  int(success.Load()),
		Failed:   int(failed.Load()),
		Duration: s.now().Sub(start),
	}
	if s.metrics != nil {
		s.metrics.RecordTick(report.Success, report.Failed, report.Duration.Seconds())
	}
	s.l.Info("tick completed",
		applogger.Int("symbols", report.Symbols),
		applogger.Int("success", report.Success),
		applogger.Int("failed", report.Failed),
		applogger.Duration("duration", report.Duration))
	return report
}

func (s *Scheduler) refresh(ctx context.Context, item models.WatchItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := s.processor.Process(ctx, item)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("process")
		}
		return err
	}
	if s.sink != nil {
		// sink failures are logged by the sink and do not fail the symbol
		_ = s.sink.Store(ctx, rec)
	}
	return nil
}

// ResetHealth restores sources whose cooldown elapsed.
func (s *Scheduler) ResetHealth(context.Context) []string {
	if s.agg == nil {
		return nil
	}
	return s.agg.ResetExpiredHealth()
}

// Cleanup deletes durable records past retention and stale cache entries.
func (s *Scheduler) Cleanup(ctx context.Context) error {
	now := s.now()
	var firstErr error
	if s.store != nil {
		n, err := s.store.DeleteRecordsOlderThan(ctx, now.Add(-s.retention))
		if err != nil {
			firstErr = fmt.Errorf("retention purge: %w", err)
			s.l.Error("retention purge failed", applogger.Error(err))
		} else {
			s.l.Info("retention purge", applogger.Int64("deleted", n))
		}
	}
	if s.cache != nil {
		symbols, err := WatchedSymbols(ctx, s.watchlist)
		if err == nil {
			var n int
			n, err = s.cache.PurgeOlderThan(ctx, symbols, now.Add(-s.staleAfter))
			if n > 0 {
				s.l.Debug("stale cache entries purged", applogger.Int("count", n))
			}
		}
		if err != nil {
			s.l.Warn("cache purge failed", applogger.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("cache purge: %w", err)
			}
		}
	}
	return firstErr
}

// Start runs one tick immediately and then registers the periodic jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runner = cron.New(s.l, ctx)
	jobs := []struct {
		every time.Duration
		run   func(context.Context)
	}{
		{s.tickInterval, func(ctx context.Context) { s.Tick(ctx) }},
		{s.healthInterval, func(ctx context.Context) { s.ResetHealth(ctx) }},
		{s.cleanupInterval, func(ctx context.Context) { _ = s.Cleanup(ctx) }},
	}
	for _, j := range jobs {
		if _, err := s.runner.Every(j.every, j.run); err != nil {
			return fmt.Errorf("schedule job: %w", err)
		}
	}

	go s.Tick(ctx)
	s.runner.Start()
	s.l.Info("scheduler started",
		applogger.Duration("tick", s.tickInterval),
		applogger.Int("concurrency", s.concurrency))
	return nil
}

// Stop waits for running jobs.
func (s *Scheduler) Stop() {
	if s.runner != nil {
		s.runner.Stop()
	}
}

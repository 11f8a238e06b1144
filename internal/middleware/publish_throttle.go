package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// PublishThrottle fans records out to its targets at most once per symbol per
// minimum interval. Each target has its own lane: an update that arrives too
// early, or that the target rejected, waits in a per-symbol slot and is
// replaced by any newer update for that symbol. A background loop delivers
// due slots, retrying failures with per-symbol backoff.
type PublishThrottle struct {
	lanes       []*lane
	metrics     domrepo.Metrics
	minInterval time.Duration
	maxPending  int
	backoffMin  time.Duration
	backoffMax  time.Duration
	tick        time.Duration
	now         func() time.Time

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}
}

// lane is the delivery state of one target.
type lane struct {
	target domrepo.Publisher
	mu     sync.Mutex
	slots  map[string]*slot
}

type slot struct {
	lastSent time.Time
	pending  *models.EnrichedRecord
	dueAt    time.Time
	backoff  time.Duration
	inflight bool
}

type ThrottleOption func(*PublishThrottle)

// WithMinInterval sets the minimum gap between two deliveries of one symbol.
func WithMinInterval(d time.Duration) ThrottleOption {
	return func(p *PublishThrottle) {
		if d >= 0 {
			p.minInterval = d
		}
	}
}

// WithBufferSize caps the symbols waiting per target.
func WithBufferSize(n int) ThrottleOption {
	return func(p *PublishThrottle) {
		if n > 0 {
			p.maxPending = n
		}
	}
}

func WithBackoff(min, max time.Duration) ThrottleOption {
	return func(p *PublishThrottle) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

func WithThrottleMetrics(m domrepo.Metrics) ThrottleOption {
	return func(p *PublishThrottle) { p.metrics = m }
}

func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(p *PublishThrottle) {
		if now != nil {
			p.now = now
		}
	}
}

// WithFlushTick sets how often the background loop looks for due slots.
func WithFlushTick(d time.Duration) ThrottleOption {
	return func(p *PublishThrottle) {
		if d > 0 {
			p.tick = d
		}
	}
}

func NewPublishThrottle(targets []domrepo.Publisher, opts ...ThrottleOption) *PublishThrottle {
	p := &PublishThrottle{
		minInterval: time.Second,
		maxPending:  1000,
		backoffMin:  50 * time.Millisecond,
		backoffMax:  2 * time.Second,
		tick:        50 * time.Millisecond,
		now:         time.Now,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, t := range targets {
		if t != nil {
			p.lanes = append(p.lanes, &lane{target: t, slots: make(map[string]*slot)})
		}
	}
	return p
}

// Publish offers rec to every target. Targets that are free for symbol get it
// now; the rest keep it as the symbol's pending update. Errors of immediate
// deliveries are returned joined; those records stay pending for retry.
func (p *PublishThrottle) Publish(ctx context.Context, symbol string, rec *models.EnrichedRecord) error {
	var errs []error
	for i, ln := range p.lanes {
		if err := p.offer(ctx, ln, symbol, rec); err != nil {
			errs = append(errs, fmt.Errorf("target %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (p *PublishThrottle) offer(ctx context.Context, ln *lane, symbol string, rec *models.EnrichedRecord) error {
	now := p.now()
	ln.mu.Lock()
	s, ok := ln.slots[symbol]
	if !ok {
		s = &slot{}
		ln.slots[symbol] = s
	}
	early := !s.lastSent.IsZero() && now.Sub(s.lastSent) < p.minInterval
	if s.inflight || s.pending != nil || early {
		if s.pending == nil && !s.inflight && !p.roomLocked(ln) {
			ln.mu.Unlock()
			p.recordError("publish_buffer_full")
			return nil
		}
		if s.pending == nil {
			s.dueAt = s.lastSent.Add(p.minInterval)
		}
		s.pending = rec
		ln.mu.Unlock()
		p.recordError("publish_throttled")
		return nil
	}
	s.inflight = true
	ln.mu.Unlock()

	return p.deliver(ctx, ln, symbol, s, rec)
}

// deliver sends rec to the lane's target. The slot must be marked inflight.
func (p *PublishThrottle) deliver(ctx context.Context, ln *lane, symbol string, s *slot, rec *models.EnrichedRecord) error {
	start := p.now()
	err := ln.target.Publish(ctx, symbol, rec)
	now := p.now()

	ln.mu.Lock()
	defer ln.mu.Unlock()
	s.inflight = false
	if err == nil {
		s.lastSent = now
		s.backoff = 0
		if s.pending != nil {
			// a newer update arrived meanwhile, it waits a full interval
			s.dueAt = now.Add(p.minInterval)
		}
		if p.metrics != nil {
			p.metrics.RecordLatency("publish", now.Sub(start).Seconds())
		}
		return nil
	}

	p.recordError("publish_retry")
	if s.backoff == 0 {
		s.backoff = p.backoffMin
	} else if s.backoff *= 2; s.backoff > p.backoffMax {
		s.backoff = p.backoffMax
	}
	if s.pending == nil {
		if !p.roomLocked(ln) {
			p.recordError("publish_buffer_full")
			return err
		}
		s.pending = rec
	}
	if due := now.Add(s.backoff); due.After(s.dueAt) {
		s.dueAt = due
	}
	return err
}

func (p *PublishThrottle) roomLocked(ln *lane) bool {
	n := 0
	for _, s := range ln.slots {
		if s.pending != nil {
			n++
		}
	}
	return n < p.maxPending
}

// flushDue delivers every pending update whose slot is due.
func (p *PublishThrottle) flushDue(ctx context.Context) {
	for _, ln := range p.lanes {
		now := p.now()
		type job struct {
			symbol string
			s      *slot
			rec    *models.EnrichedRecord
		}
		var jobs []job
		ln.mu.Lock()
		for sym, s := range ln.slots {
			if s.pending == nil || s.inflight || now.Before(s.dueAt) {
				continue
			}
			jobs = append(jobs, job{sym, s, s.pending})
			s.pending = nil
			s.inflight = true
		}
		ln.mu.Unlock()

		for _, j := range jobs {
			_ = p.deliver(ctx, ln, j.symbol, j.s, j.rec)
		}
	}
}

// Start launches the background delivery loop.
func (p *PublishThrottle) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		t := time.NewTicker(p.tick)
		defer t.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				p.flushDue(ctx)
			}
		}
	}()
}

// Stop ends the delivery loop. Pending updates are dropped.
func (p *PublishThrottle) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
}

// Buffered counts pending updates across all targets.
func (p *PublishThrottle) Buffered() int {
	n := 0
	for _, ln := range p.lanes {
		ln.mu.Lock()
		for _, s := range ln.slots {
			if s.pending != nil {
				n++
			}
		}
		ln.mu.Unlock()
	}
	return n
}

func (p *PublishThrottle) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

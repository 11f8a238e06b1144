package health

import (
	"sort"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
)

// DefaultCooldown is how long a failed source is skipped.
const DefaultCooldown = 5 * time.Minute

// Tracker holds the up/down state of every source. Unknown sources are healthy.
type Tracker struct {
	mu       sync.RWMutex
	m        map[string]models.SourceHealth
	cooldown time.Duration
	now      func() time.Time
}

type Option func(*Tracker)

func WithCooldown(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.cooldown = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{m: make(map[string]models.SourceHealth), cooldown: DefaultCooldown, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Eligible reports whether name may be tried now: healthy, or its cooldown elapsed.
func (t *Tracker) Eligible(name string) bool {
	t.mu.RLock()
	h, ok := t.m[name]
	t.mu.RUnlock()
	if !ok || h.Healthy {
		return true
	}
	return t.now().After(h.CooldownUntil)
}

func (t *Tracker) MarkHealthy(name string) {
	t.mu.Lock()
	t.m[name] = models.SourceHealth{Healthy: true}
	t.mu.Unlock()
}

// MarkUnhealthy starts a cooldown for name and returns when it ends.
func (t *Tracker) MarkUnhealthy(name string) time.Time {
	now := t.now()
	until := now.Add(t.cooldown)
	t.mu.Lock()
	t.m[name] = models.SourceHealth{Healthy: false, FailedAt: now, CooldownUntil: until}
	t.mu.Unlock()
	return until
}

// ResetExpired flips every source whose cooldown has elapsed back to healthy
// and returns their names.
func (t *Tracker) ResetExpired() []string {
	now := t.now()
	var restored []string
	t.mu.Lock()
	for name, h := range t.m {
		if !h.Healthy && !now.Before(h.CooldownUntil) {
			t.m[name] = models.SourceHealth{Healthy: true}
			restored = append(restored, name)
		}
	}
	t.mu.Unlock()
	sort.Strings(restored)
	return restored
}

// Get returns the state of name.
func (t *Tracker) Get(name string) models.SourceHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.m[name]
	if !ok {
		return models.SourceHealth{Healthy: true}
	}
	return h
}

// Snapshot returns the state of every source, including the names in known
// that have never been marked.
func (t *Tracker) Snapshot(known ...string) map[string]models.SourceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]models.SourceStatus, len(t.m)+len(known))
	for _, n := range known {
		out[n] = models.SourceStatus{Healthy: true}
	}
	for n, h := range t.m {
		out[n] = models.SourceStatus{Healthy: h.Healthy, CooldownUntil: h.CooldownUntil}
	}
	return out
}

package ratelimit

import (
    "context"
    "sync"
    "time"

    applogger "MarketPulse/pkg/logger"
)

// DefaultWindow is the counting window for every source.
const DefaultWindow = time.Minute

// CounterStore counts admissions per key inside a fixed window.
// Admit must not increment when the limit is already reached.
type CounterStore interface {
    Admit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
    // Usage returns the calls counted in the current window for key and how
    // long that window still lasts. Both are 0 when there is no window.
    Usage(ctx context.Context, key string) (int, time.Duration, error)
}

// Manager applies per-source limits over a CounterStore.
type Manager struct {
    store  CounterStore
    limits map[string]int
    window time.Duration
    now    func() time.Time
    l      *applogger.Logger
}

type Option func(*Manager)

func WithWindow(d time.Duration) Option {
    return func(m *Manager) {
        if d > 0 {
            m.window = d
        }
    }
}

func WithClock(now func() time.Time) Option {
    return func(m *Manager) {
        if now != nil {
            m.now = now
        }
    }
}

// NewManager builds a Manager. limits maps source name to calls per window;
// sources without an entry (or with limit <= 0) are not limited.
func NewManager(store CounterStore, limits map[string]int, l *applogger.Logger, opts ...Option) *Manager {
    if l == nil {
        l = applogger.Nop()
    }
    m := &Manager{store: store, limits: limits, window: DefaultWindow, now: time.Now, l: l}
    for _, o := range opts {
        o(m)
    }
    return m
}

func key(source string) string { return "ratelimit:" + source }

// Admit returns true and consumes one call when source is under its limit.
// A store failure admits the call.
func (m *Manager) Admit(ctx context.Context, source string) bool {
    limit, ok := m.limits[source]
    if !ok || limit <= 0 {
        return true
    }
    allowed, err := m.store.Admit(ctx, key(source), limit, m.window)
    if err != nil {
        m.l.Warn("rate limit store unavailable, admitting call",
            applogger.String("source", source), applogger.Error(err))
        return true
    }
    return allowed
}

// NextAvailable reports when source accepts calls again. It returns now
// unless source used up its current window.
func (m *Manager) NextAvailable(ctx context.Context, source string) time.Time {
    now := m.now()
    limit, ok := m.limits[source]
    if !ok || limit <= 0 {
        return now
    }
    used, rem, err := m.store.Usage(ctx, key(source))
    if err != nil || used < limit || rem <= 0 {
        return now
    }
    return now.Add(rem)
}

// MemoryStore is an in-process fixed window counter.
type MemoryStore struct {
    mu  sync.Mutex
    m   map[string]*window
    now func() time.Time
}

type window struct {
    count   int
    resetAt time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
    if now == nil {
        now = time.Now
    }
    return &MemoryStore{m: make(map[string]*window), now: now}
}

func (s *MemoryStore) Admit(_ context.Context, key string, limit int, d time.Duration) (bool, error) {
    now := s.now()
    s.mu.Lock()
    defer s.mu.Unlock()
    w, ok := s.m[key]
    if !ok || !now.Before(w.resetAt) {
        w = &window{resetAt: now.Add(d)}
        s.m[key] = w
    }
    if w.count >= limit {
        return false, nil
    }
    w.count++
    return true, nil
}

func (s *MemoryStore) Usage(_ context.Context, key string) (int, time.Duration, error) {
    now := s.now()
    s.mu.Lock()
    defer s.mu.Unlock()
    w, ok := s.m[key]
    if !ok || !now.Before(w.resetAt) {
        return 0, 0, nil
    }
    return w.count, w.resetAt.Sub(now), nil
}

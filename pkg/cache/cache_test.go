package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *manualClock {
	return &manualClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func TestMemoryCacheExpiry(t *testing.T) {
	clk := newClock()
	mc := NewMemoryCache(WithMemoryClock(clk.Now))
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "market_data:AAPL", []byte(`{"p":1}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := mc.Get(ctx, "market_data:AAPL")
	if err != nil || string(got) != `{"p":1}` {
		t.Fatalf("unexpected get %q %v", got, err)
	}

	clk.Advance(61 * time.Second)
	if _, err := mc.Get(ctx, "market_data:AAPL"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
	if mc.Len() != 0 {
		t.Fatalf("expired entry should be dropped on read")
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	clk := newClock()
	mc := NewMemoryCache(WithMemoryClock(clk.Now), WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", []byte("1"), 0)
	clk.Advance(time.Second)
	_ = mc.Set(ctx, "b", []byte("2"), 0)
	clk.Advance(time.Second)
	_, _ = mc.Get(ctx, "a")
	clk.Advance(time.Second)
	_ = mc.Set(ctx, "c", []byte("3"), 0)

	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatalf("b was least recently used and should be evicted")
	}
	if ok, _ := mc.Exists(ctx, "a", "c"); !ok {
		t.Fatalf("a and c should remain")
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "market_data:AAPL", []byte("1"), 0)
	_ = mc.Set(ctx, "market_data:BTC", []byte("2"), 0)
	_ = mc.Set(ctx, "market_summary:AAPL", []byte("3"), 0)

	if err := mc.DeleteByPattern(ctx, BuildPattern("market_data:")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mc.Len() != 1 {
		t.Fatalf("expected only the summary to remain, got %d", mc.Len())
	}
}

func TestJSONHelpers(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type quote struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	if err := SetJSON(ctx, mc, "q", quote{"ETH", 3100.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	q, err := GetJSON[quote](ctx, mc, "q")
	if err != nil || q.Symbol != "ETH" || q.Price != 3100.5 {
		t.Fatalf("unexpected %+v %v", q, err)
	}
	if _, err := GetJSON[quote](ctx, mc, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestLayeredCacheReadsThroughToRemote(t *testing.T) {
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()
	ctx := context.Background()

	_ = remote.Set(ctx, "k", []byte("v"), time.Hour)
	got, err := lc.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("unexpected %q %v", got, err)
	}
	if ttl := lc.memCache.ttl("k"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("L1 copy should be capped at a minute, got %v", ttl)
	}

	if err := lc.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := lc.Exists(ctx, "k"); ok {
		t.Fatalf("key should be gone from both layers")
	}
}

func TestKeyID(t *testing.T) {
	id, ok := KeyID("market_data", GenerateKey("market_data", "BTC"))
	if !ok || id != "BTC" {
		t.Fatalf("unexpected %q %v", id, ok)
	}
}

func TestRedisOptions(t *testing.T) {
	cfg := &RedisConfig{Addr: "localhost:6379"}
	WithRedisAddr("redis", 0)(cfg)
	if cfg.Addr != "redis:6379" {
		t.Fatalf("host override kept the default port, got %q", cfg.Addr)
	}
	WithRedisAddr("", 6380)(cfg)
	WithRedisPool(8, 0)(cfg)
	if cfg.Addr != "redis:6380" || cfg.PoolSize != 8 || cfg.MinIdleConns != 4 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	rc := NewRedisCacheFromClient(nil, "mp")
	if got := rc.keys([]string{"a", "b"}); got[0] != "mp:a" || got[1] != "mp:b" {
		t.Fatalf("unexpected keys %v", got)
	}
	if NewRedisCacheFromClient(nil, "").key("a") != "a" {
		t.Fatalf("empty prefix must leave keys alone")
	}
}

func TestMemoryCacheOverwriteKeepsSize(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()
	_ = mc.Set(ctx, "a", []byte("1"), time.Minute)
	_ = mc.Set(ctx, "a", []byte("2"), time.Minute)
	_ = mc.Set(ctx, "b", []byte("3"), time.Minute)
	if mc.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", mc.Len())
	}
	if v, _ := mc.Get(ctx, "a"); string(v) != "2" {
		t.Fatalf("overwrite lost, got %q", v)
	}
}

package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if c.Scheduler.TickInterval != 30*time.Second || c.Scheduler.Concurrency != 10 {
		t.Fatalf("unexpected scheduler defaults: %+v", c.Scheduler)
	}
	if c.Scheduler.Retention != 90*24*time.Hour {
		t.Fatalf("expected 90 day retention, got %v", c.Scheduler.Retention)
	}
	if len(c.Watchlist) != len(DefaultWatchlist) {
		t.Fatalf("expected default watchlist")
	}
	av := c.Sources[SourceAlphaVantage]
	if av.RateLimit != 5 || av.Timeout != 15*time.Second || av.Priority != 2 {
		t.Fatalf("unexpected alpha_vantage defaults: %+v", av)
	}
	if got := c.Priorities["crypto"]; len(got) != 2 || got[0] != SourceCoinGecko {
		t.Fatalf("unexpected crypto priorities: %v", got)
	}
}

func TestParseOverridesAndKeepsBuiltins(t *testing.T) {
	raw := []byte(`
environment: test
scheduler:
  tick_interval: 10s
  concurrency: 4
sources:
  coingecko:
    rate_limit: 30
watchlist: [AAPL, BTC]
`)
	c, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Scheduler.TickInterval != 10*time.Second || c.Scheduler.Concurrency != 4 {
		t.Fatalf("overrides not applied: %+v", c.Scheduler)
	}
	if c.Scheduler.HealthResetInterval != 5*time.Minute {
		t.Fatalf("untouched fields should keep defaults")
	}
	cg := c.Sources[SourceCoinGecko]
	if cg.RateLimit != 30 || cg.BaseURL == "" || cg.Timeout != 10*time.Second {
		t.Fatalf("partial source override should merge with builtin: %+v", cg)
	}
	if _, ok := c.Sources[SourceYahoo]; !ok {
		t.Fatalf("builtin sources should remain")
	}
	if len(c.Watchlist) != 2 {
		t.Fatalf("expected watchlist from file, got %v", c.Watchlist)
	}
}

func TestValidateRejectsUnknownPrioritySource(t *testing.T) {
	raw := []byte(`
priorities:
  stock: [yahoo_finance, bloomberg]
`)
	_, err := Parse(raw)
	if err == nil || !strings.Contains(err.Error(), "bloomberg") {
		t.Fatalf("expected unknown source error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	env := map[string]string{
		"ALPHA_VANTAGE_API_KEY": "av-key",
		"REDIS_PORT":            "6380",
		"WATCHLIST":             "AAPL, ETH ,",
		"KAFKA_BROKERS":         "k1:9092,k2:9092",
	}
	c.ApplyEnv(func(k string) string { return env[k] })
	if c.Sources[SourceAlphaVantage].APIKey != "av-key" {
		t.Fatalf("api key not applied")
	}
	if c.Cache.Redis.Port != 6380 {
		t.Fatalf("redis port not applied")
	}
	if len(c.Watchlist) != 2 || c.Watchlist[1] != "ETH" {
		t.Fatalf("unexpected watchlist %v", c.Watchlist)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("unexpected brokers %v", c.Kafka.Brokers)
	}
}

func TestShippedConfigLoads(t *testing.T) {
	c, err := Load("../../config/config.yaml")
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	if c.Kafka.Enabled || c.ClickHouse.Enabled {
		t.Fatalf("optional backends should be off by default")
	}
	if len(c.Server.CORSOrigins) != 1 || c.Server.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", c.Server.CORSOrigins)
	}
	if got := c.EnabledSources(); len(got) != 5 || got[0] != SourceAlphaVantage {
		t.Fatalf("unexpected enabled sources %v", got)
	}
}

func TestEnabledSourcesSkipsDisabled(t *testing.T) {
	raw := []byte(`
sources:
  finnhub:
    enabled: false
`)
	c, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, name := range c.EnabledSources() {
		if name == SourceFinnhub {
			t.Fatalf("finnhub is disabled")
		}
	}
}

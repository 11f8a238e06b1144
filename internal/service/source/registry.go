package source

import (
    "sort"

    "MarketPulse/internal/domain/models"
    "MarketPulse/internal/domain/repository"
    "MarketPulse/pkg/config"
)

// Registry is the closed set of configured adapters and the per asset class
// order in which they are tried.
type Registry struct {
    sources    map[string]repository.Source
    sentiment  []repository.SentimentSource
    priorities map[models.AssetClass][]string
}

// NewRegistry builds every enabled adapter from cfg.
func NewRegistry(cfg *config.Config, limiter repository.RateLimiter) *Registry {
    r := &Registry{
        sources:    make(map[string]repository.Source),
        priorities: make(map[models.AssetClass][]string),
    }
    enabled := func(name string) (config.SourceConfig, bool) {
        sc, ok := cfg.Sources[name]
        return sc, ok && sc.IsEnabled()
    }
    if sc, ok := enabled(config.SourceYahoo); ok {
        r.sources[config.SourceYahoo] = NewYahoo(sc, limiter)
    }
    if sc, ok := enabled(config.SourceCoinGecko); ok {
        r.sources[config.SourceCoinGecko] = NewCoinGecko(sc, limiter)
    }
    if sc, ok := enabled(config.SourceAlphaVantage); ok {
        r.sources[config.SourceAlphaVantage] = NewAlphaVantage(sc, limiter)
    }
    if sc, ok := enabled(config.SourceFinnhub); ok {
        r.sources[config.SourceFinnhub] = NewFinnhub(sc, limiter)
    }
    if sc, ok := enabled(config.SourceNewsAPI); ok {
        r.sentiment = append(r.sentiment, NewNewsAPI(sc, limiter))
    }

    for class, names := range cfg.Priorities {
        r.priorities[models.AssetClass(class)] = orderByPriority(names, cfg.Sources)
    }
    return r
}

// NewStaticRegistry wires pre-built adapters, mostly for tests.
func NewStaticRegistry(priorities map[models.AssetClass][]string, sentiment []repository.SentimentSource, sources ...repository.Source) *Registry {
    r := &Registry{
        sources:    make(map[string]repository.Source, len(sources)),
        sentiment:  sentiment,
        priorities: priorities,
    }
    for _, s := range sources {
        r.sources[s.Name()] = s
    }
    return r
}

// orderByPriority sorts names by their numeric priority, keeping list order on ties.
func orderByPriority(names []string, cfg map[string]config.SourceConfig) []string {
    out := append([]string(nil), names...)
    sort.SliceStable(out, func(i, j int) bool {
        return cfg[out[i]].Priority < cfg[out[j]].Priority
    })
    return out
}

// For returns the adapters to try for class, in order. Unconfigured names are skipped.
func (r *Registry) For(class models.AssetClass) []repository.Source {
    names := r.priorities[class]
    out := make([]repository.Source, 0, len(names))
    for _, n := range names {
        if s, ok := r.sources[n]; ok {
            out = append(out, s)
        }
    }
    return out
}

func (r *Registry) Sentiment() []repository.SentimentSource { return r.sentiment }

// Names lists every adapter name, sorted.
func (r *Registry) Names() []string {
    out := make([]string, 0, len(r.sources)+len(r.sentiment))
    for n := range r.sources {
        out = append(out, n)
    }
    for _, s := range r.sentiment {
        out = append(out, s.Name())
    }
    sort.Strings(out)
    return out
}

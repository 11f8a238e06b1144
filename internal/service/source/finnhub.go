package source

import (
    "context"
    "strconv"
    "time"

    "MarketPulse/internal/domain/models"
    "MarketPulse/internal/domain/repository"
    "MarketPulse/pkg/config"
)

// Finnhub serves quotes and daily candles over REST.
type Finnhub struct {
    httpSource
}

func NewFinnhub(cfg config.SourceConfig, limiter repository.RateLimiter) *Finnhub {
    return &Finnhub{httpSource: newHTTPSource(config.SourceFinnhub, cfg, limiter)}
}

type finnhubQuote struct {
    C  float64 `json:"c"`  // current
    D  float64 `json:"d"`  // change
    DP float64 `json:"dp"` // change percent
    H  float64 `json:"h"`
    L  float64 `json:"l"`
    O  float64 `json:"o"`
    PC float64 `json:"pc"` // previous close
    T  int64   `json:"t"`
}

type finnhubCandles struct {
    C []float64 `json:"c"`
    H []float64 `json:"h"`
    L []float64 `json:"l"`
    O []float64 `json:"o"`
    V []float64 `json:"v"`
    T []int64   `json:"t"`
    S string    `json:"s"`
}

func (f *Finnhub) FetchCurrent(ctx context.Context, symbol string, _ models.AssetClass) (*models.MarketPoint, error) {
    if err := f.requireKey(); err != nil {
        return nil, err
    }
    var q finnhubQuote
    if err := f.getJSON(ctx, "/quote", map[string][]string{"symbol": {symbol}, "token": {f.apiKey}}, &q); err != nil {
        return nil, err
    }
    // unknown symbols come back as all zeros
    if q.C <= 0 {
        return nil, models.Unavailable(f.name, errEmpty)
    }
    ts := f.now().UTC()
    if q.T > 0 {
        ts = time.Unix(q.T, 0).UTC()
    }
    p := &models.MarketPoint{
        Symbol:        symbol,
        Timestamp:     ts,
        Price:         q.C,
        Close:         models.Float(q.C),
        Change:        models.Float(q.D),
        ChangePercent: models.Float(q.DP),
        Source:        f.name,
    }
    if q.H > 0 && q.L > 0 && q.O > 0 {
        p.High, p.Low, p.Open = models.Float(q.H), models.Float(q.L), models.Float(q.O)
    }
    return p, nil
}

func (f *Finnhub) FetchHistorical(ctx context.Context, symbol string, days int) ([]models.MarketPoint, error) {
    if err := f.requireKey(); err != nil {
        return nil, err
    }
    to := f.now().UTC()
    from := to.AddDate(0, 0, -days)
    var c finnhubCandles
    q := map[string][]string{
        "symbol":     {symbol},
        "resolution": {"D"},
        "from":       {strconv.FormatInt(from.Unix(), 10)},
        "to":         {strconv.FormatInt(to.Unix(), 10)},
        "token":      {f.apiKey},
    }
    if err := f.getJSON(ctx, "/stock/candle", q, &c); err != nil {
        return nil, err
    }
    if c.S == "no_data" {
        return nil, nil
    }
    if c.S != "ok" {
        return nil, models.Unavailable(f.name, errEmpty)
    }
    out := make([]models.MarketPoint, 0, len(c.T))
    for i, ts := range c.T {
        if i >= len(c.C) || c.C[i] <= 0 {
            continue
        }
        pt := models.MarketPoint{
            Symbol:    symbol,
            Timestamp: time.Unix(ts, 0).UTC(),
            Price:     c.C[i],
            Close:     models.Float(c.C[i]),
            Source:    f.name,
        }
        if i < len(c.H) && i < len(c.L) && i < len(c.O) {
            pt.High, pt.Low, pt.Open = models.Float(c.H[i]), models.Float(c.L[i]), models.Float(c.O[i])
        }
        if i < len(c.V) {
            pt.Volume = models.Float(c.V[i])
        }
        out = append(out, pt)
    }
    return out, nil
}

package source

import (
    "context"
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/shopspring/decimal"

    "MarketPulse/internal/domain/models"
    "MarketPulse/internal/domain/repository"
    "MarketPulse/pkg/config"
)

// AlphaVantage serves quotes and daily series. Numbers arrive as strings.
type AlphaVantage struct {
    httpSource
}

func NewAlphaVantage(cfg config.SourceConfig, limiter repository.RateLimiter) *AlphaVantage {
    return &AlphaVantage{httpSource: newHTTPSource(config.SourceAlphaVantage, cfg, limiter)}
}

type alphaQuote struct {
    Quote map[string]string `json:"Global Quote"`
    Note  string            `json:"Note"`
    Info  string            `json:"Information"`
}

type alphaDaily struct {
    Series map[string]map[string]string `json:"Time Series (Daily)"`
    Note   string                       `json:"Note"`
    Info   string                       `json:"Information"`
}

// avSymbol converts engine symbols to the provider's notation.
func avSymbol(symbol string) string {
    return strings.TrimSuffix(strings.ToUpper(symbol), "=X")
}

func (a *AlphaVantage) FetchCurrent(ctx context.Context, symbol string, _ models.AssetClass) (*models.MarketPoint, error) {
    if err := a.requireKey(); err != nil {
        return nil, err
    }
    var out alphaQuote
    q := map[string][]string{"function": {"GLOBAL_QUOTE"}, "symbol": {avSymbol(symbol)}, "apikey": {a.apiKey}}
    if err := a.getJSON(ctx, "/query", q, &out); err != nil {
        return nil, err
    }
    if len(out.Quote) == 0 {
        return nil, models.Unavailable(a.name, upstreamNote(out.Note, out.Info))
    }
    price, ok := decimalField(out.Quote, "05. price")
    if !ok || price <= 0 {
        return nil, models.Unavailable(a.name, errEmpty)
    }
    p := &models.MarketPoint{
        Symbol:    symbol,
        Timestamp: a.now().UTC(),
        Price:     price,
        Close:     models.Float(price),
        Source:    a.name,
    }
    p.Open = optional(out.Quote, "02. open")
    p.High = optional(out.Quote, "03. high")
    p.Low = optional(out.Quote, "04. low")
    p.Volume = optional(out.Quote, "06. volume")
    p.Change = optional(out.Quote, "09. change")
    if pct, ok := decimalField(out.Quote, "10. change percent"); ok {
        p.ChangePercent = models.Float(pct)
    }
    return p, nil
}

func (a *AlphaVantage) FetchHistorical(ctx context.Context, symbol string, days int) ([]models.MarketPoint, error) {
    if err := a.requireKey(); err != nil {
        return nil, err
    }
    var out alphaDaily
    q := map[string][]string{"function": {"TIME_SERIES_DAILY"}, "symbol": {avSymbol(symbol)}, "apikey": {a.apiKey}}
    if err := a.getJSON(ctx, "/query", q, &out); err != nil {
        return nil, err
    }
    if out.Series == nil {
        return nil, models.Unavailable(a.name, upstreamNote(out.Note, out.Info))
    }
    dates := make([]string, 0, len(out.Series))
    for d := range out.Series {
        dates = append(dates, d)
    }
    sort.Strings(dates)
    if len(dates) > days {
        dates = dates[len(dates)-days:]
    }
    res := make([]models.MarketPoint, 0, len(dates))
    for _, d := range dates {
        ts, err := time.Parse("2006-01-02", d)
        if err != nil {
            continue
        }
        row := out.Series[d]
        cl, ok := decimalField(row, "4. close")
        if !ok || cl <= 0 {
            continue
        }
        res = append(res, models.MarketPoint{
            Symbol:    symbol,
            Timestamp: ts.UTC(),
            Price:     cl,
            Open:      optional(row, "1. open"),
            High:      optional(row, "2. high"),
            Low:       optional(row, "3. low"),
            Close:     models.Float(cl),
            Volume:    optional(row, "5. volume"),
            Source:    a.name,
        })
    }
    return res, nil
}

// decimalField parses a numeric string such as "182.3100" or "-0.41%".
func decimalField(m map[string]string, key string) (float64, bool) {
    raw, ok := m[key]
    if !ok {
        return 0, false
    }
    raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
    d, err := decimal.NewFromString(raw)
    if err != nil {
        return 0, false
    }
    f, _ := d.Float64()
    return f, true
}

func optional(m map[string]string, key string) *float64 {
    if f, ok := decimalField(m, key); ok {
        return models.Float(f)
    }
    return nil
}

func upstreamNote(note, info string) error {
    switch {
    case note != "":
        return fmt.Errorf("upstream note: %s", note)
    case info != "":
        return fmt.Errorf("upstream info: %s", info)
    default:
        return errEmpty
    }
}

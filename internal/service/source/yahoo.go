package source

import (
    "context"
    "fmt"
    "net/url"
    "time"

    "MarketPulse/internal/domain/models"
    "MarketPulse/internal/domain/repository"
    "MarketPulse/pkg/config"
)

// Yahoo reads the public chart endpoint.
type Yahoo struct {
    httpSource
}

func NewYahoo(cfg config.SourceConfig, limiter repository.RateLimiter) *Yahoo {
    return &Yahoo{httpSource: newHTTPSource(config.SourceYahoo, cfg, limiter)}
}

type yahooChart struct {
    Chart struct {
        Result []struct {
            Meta struct {
                RegularMarketPrice   *float64 `json:"regularMarketPrice"`
                RegularMarketDayHigh *float64 `json:"regularMarketDayHigh"`
                RegularMarketDayLow  *float64 `json:"regularMarketDayLow"`
                RegularMarketOpen    *float64 `json:"regularMarketOpen"`
                PreviousClose        *float64 `json:"previousClose"`
            } `json:"meta"`
            Timestamp  []int64 `json:"timestamp"`
            Indicators struct {
                Quote []struct {
                    Open   []*float64 `json:"open"`
                    High   []*float64 `json:"high"`
                    Low    []*float64 `json:"low"`
                    Close  []*float64 `json:"close"`
                    Volume []*float64 `json:"volume"`
                } `json:"quote"`
            } `json:"indicators"`
        } `json:"result"`
        Error *struct {
            Code        string `json:"code"`
            Description string `json:"description"`
        } `json:"error"`
    } `json:"chart"`
}

func (y *Yahoo) chart(ctx context.Context, symbol, interval, rng string) (*yahooChart, error) {
    var out yahooChart
    path := "/v8/finance/chart/" + url.PathEscape(symbol)
    q := map[string][]string{"interval": {interval}, "range": {rng}}
    if err := y.getJSON(ctx, path, q, &out); err != nil {
        return nil, err
    }
    if out.Chart.Error != nil {
        return nil, models.Unavailable(y.name, fmt.Errorf("%s: %s", out.Chart.Error.Code, out.Chart.Error.Description))
    }
    if len(out.Chart.Result) == 0 || len(out.Chart.Result[0].Timestamp) == 0 || len(out.Chart.Result[0].Indicators.Quote) == 0 {
        return nil, models.Unavailable(y.name, errEmpty)
    }
    return &out, nil
}

func (y *Yahoo) FetchCurrent(ctx context.Context, symbol string, _ models.AssetClass) (*models.MarketPoint, error) {
    c, err := y.chart(ctx, symbol, "1m", "1d")
    if err != nil {
        return nil, err
    }
    res := c.Chart.Result[0]
    q := res.Indicators.Quote[0]
    n := len(res.Timestamp)

    price := res.Meta.RegularMarketPrice
    if price == nil || *price <= 0 {
        price = at(q.Close, n-1)
    }
    if price == nil || *price <= 0 {
        return nil, models.Unavailable(y.name, errEmpty)
    }

    p := &models.MarketPoint{
        Symbol:    symbol,
        Timestamp: time.Unix(res.Timestamp[n-1], 0).UTC(),
        Price:     *price,
        Volume:    at(q.Volume, n-1),
        High:      orPrice(res.Meta.RegularMarketDayHigh, *price),
        Low:       orPrice(res.Meta.RegularMarketDayLow, *price),
        Open:      orPrice(res.Meta.RegularMarketOpen, *price),
        Close:     models.Float(*price),
        Source:    y.name,
    }
    prev := res.Meta.PreviousClose
    if prev == nil && n >= 2 {
        prev = at(q.Close, n-2)
    }
    if prev != nil && *prev > 0 {
        ch := *price - *prev
        p.Change = models.Float(ch)
        p.ChangePercent = models.Float(ch / *prev * 100)
    }
    return p, nil
}

func (y *Yahoo) FetchHistorical(ctx context.Context, symbol string, days int) ([]models.MarketPoint, error) {
    c, err := y.chart(ctx, symbol, "1d", fmt.Sprintf("%dd", days))
    if err != nil {
        return nil, err
    }
    res := c.Chart.Result[0]
    q := res.Indicators.Quote[0]
    out := make([]models.MarketPoint, 0, len(res.Timestamp))
    for i, ts := range res.Timestamp {
        cl := at(q.Close, i)
        if cl == nil || *cl <= 0 {
            continue
        }
        out = append(out, models.MarketPoint{
            Symbol:    symbol,
            Timestamp: time.Unix(ts, 0).UTC(),
            Price:     *cl,
            Volume:    at(q.Volume, i),
            High:      at(q.High, i),
            Low:       at(q.Low, i),
            Open:      at(q.Open, i),
            Close:     cl,
            Source:    y.name,
        })
    }
    return out, nil
}

func at(xs []*float64, i int) *float64 {
    if i < 0 || i >= len(xs) || xs[i] == nil {
        return nil
    }
    return models.Float(*xs[i])
}

func orPrice(v *float64, price float64) *float64 {
    if v == nil || *v <= 0 {
        return models.Float(price)
    }
    return models.Float(*v)
}

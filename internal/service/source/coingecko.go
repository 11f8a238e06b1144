package source

import (
    "context"
    "fmt"
    "net/url"
    "strconv"
    "strings"
    "time"

    "MarketPulse/internal/domain/models"
    "MarketPulse/internal/domain/repository"
    "MarketPulse/pkg/config"
)

var coinGeckoIDs = map[string]string{
    "BTC":   "bitcoin",
    "ETH":   "ethereum",
    "ADA":   "cardano",
    "SOL":   "solana",
    "DOT":   "polkadot",
    "MATIC": "polygon",
    "AVAX":  "avalanche-2",
    "ATOM":  "cosmos",
    "LINK":  "chainlink",
    "UNI":   "uniswap",
}

// CoinGeckoID maps a ticker to the CoinGecko coin id.
func CoinGeckoID(symbol string) string {
    base := models.BaseSymbol(symbol)
    if id, ok := coinGeckoIDs[base]; ok {
        return id
    }
    return strings.ToLower(base)
}

// CoinGecko serves crypto prices only.
type CoinGecko struct {
    httpSource
}

func NewCoinGecko(cfg config.SourceConfig, limiter repository.RateLimiter) *CoinGecko {
    return &CoinGecko{httpSource: newHTTPSource(config.SourceCoinGecko, cfg, limiter)}
}

type coinGeckoQuote struct {
    USD           *float64 `json:"usd"`
    USD24hVol     *float64 `json:"usd_24h_vol"`
    USD24hChange  *float64 `json:"usd_24h_change"`
    USDMarketCap  *float64 `json:"usd_market_cap"`
    LastUpdatedAt int64    `json:"last_updated_at"`
}

func (g *CoinGecko) FetchCurrent(ctx context.Context, symbol string, class models.AssetClass) (*models.MarketPoint, error) {
    if class != models.AssetCrypto {
        return nil, models.Unavailable(g.name, fmt.Errorf("asset class %s not served", class))
    }
    id := CoinGeckoID(symbol)
    var out map[string]coinGeckoQuote
    q := map[string][]string{
        "ids":                     {id},
        "vs_currencies":           {"usd"},
        "include_24hr_vol":        {"true"},
        "include_24hr_change":     {"true"},
        "include_market_cap":      {"true"},
        "include_last_updated_at": {"true"},
    }
    if err := g.getJSON(ctx, "/simple/price", q, &out); err != nil {
        return nil, err
    }
    quote, ok := out[id]
    if !ok || quote.USD == nil || *quote.USD <= 0 {
        return nil, models.Unavailable(g.name, errEmpty)
    }
    ts := g.now().UTC()
    if quote.LastUpdatedAt > 0 {
        ts = time.Unix(quote.LastUpdatedAt, 0).UTC()
    }
    return &models.MarketPoint{
        Symbol:        symbol,
        Timestamp:     ts,
        Price:         *quote.USD,
        Volume:        quote.USD24hVol,
        ChangePercent: quote.USD24hChange,
        MarketCap:     quote.USDMarketCap,
        Source:        g.name,
    }, nil
}

type coinGeckoChart struct {
    Prices       [][2]float64 `json:"prices"`
    TotalVolumes [][2]float64 `json:"total_volumes"`
}

func (g *CoinGecko) FetchHistorical(ctx context.Context, symbol string, days int) ([]models.MarketPoint, error) {
    id := CoinGeckoID(symbol)
    var out coinGeckoChart
    q := map[string][]string{
        "vs_currency": {"usd"},
        "days":        {strconv.Itoa(days)},
        "interval":    {"daily"},
    }
    if err := g.getJSON(ctx, "/coins/"+url.PathEscape(id)+"/market_chart", q, &out); err != nil {
        return nil, err
    }
    vols := make(map[int64]float64, len(out.TotalVolumes))
    for _, v := range out.TotalVolumes {
        vols[int64(v[0])] = v[1]
    }
    res := make([]models.MarketPoint, 0, len(out.Prices))
    for _, p := range out.Prices {
        ms := int64(p[0])
        pt := models.MarketPoint{
            Symbol:    symbol,
            Timestamp: time.UnixMilli(ms).UTC(),
            Price:     p[1],
            Source:    g.name,
        }
        if v, ok := vols[ms]; ok {
            pt.Volume = models.Float(v)
        }
        res = append(res, pt)
    }
    return res, nil
}

package source

import (
    "context"
    "math"
    "strings"

    "MarketPulse/internal/domain/models"
    "MarketPulse/internal/domain/repository"
    "MarketPulse/pkg/config"
)

const sentimentLookbackDays = 7

var companyNames = map[string]string{
    "AAPL":  "Apple",
    "MSFT":  "Microsoft",
    "GOOGL": "Google",
    "TSLA":  "Tesla",
    "AMZN":  "Amazon",
    "NVDA":  "Nvidia",
    "META":  "Meta",
    "BTC":   "Bitcoin",
    "ETH":   "Ethereum",
}

// NewsAPI scores recent headlines for a symbol.
type NewsAPI struct {
    httpSource
}

func NewNewsAPI(cfg config.SourceConfig, limiter repository.RateLimiter) *NewsAPI {
    return &NewsAPI{httpSource: newHTTPSource(config.SourceNewsAPI, cfg, limiter)}
}

type newsResponse struct {
    Status   string `json:"status"`
    Message  string `json:"message"`
    Articles []struct {
        Title       string `json:"title"`
        Description string `json:"description"`
    } `json:"articles"`
}

func newsQuery(symbol string) string {
    base := models.BaseSymbol(symbol)
    terms := []string{base}
    if name, ok := companyNames[base]; ok {
        terms = append(terms, name)
    }
    return strings.Join(terms, " OR ")
}

func (n *NewsAPI) FetchSentiment(ctx context.Context, symbol string) (*models.Sentiment, error) {
    if err := n.requireKey(); err != nil {
        return nil, err
    }
    from := n.now().UTC().AddDate(0, 0, -sentimentLookbackDays).Format("2006-01-02")
    q := map[string][]string{
        "q":        {newsQuery(symbol)},
        "from":     {from},
        "sortBy":   {"publishedAt"},
        "language": {"en"},
        "pageSize": {"50"},
        "apiKey":   {n.apiKey},
    }
    var out newsResponse
    if err := n.getJSON(ctx, "/everything", q, &out); err != nil {
        return nil, err
    }
    if out.Status == "error" {
        return nil, models.Unavailable(n.name, upstreamNote(out.Message, ""))
    }

    scores := make([]float64, 0, len(out.Articles))
    for _, a := range out.Articles {
        text := strings.TrimSpace(a.Title + " " + a.Description)
        if text == "" {
            continue
        }
        scores = append(scores, Polarity(text))
    }
    // no coverage is an answer, not a failure
    if len(scores) == 0 {
        return nil, nil
    }
    mean, std := meanStd(scores)
    return &models.Sentiment{
        Score:       mean,
        SampleCount: len(out.Articles),
        Confidence:  math.Max(0, math.Min(1, 1-std)),
        Source:      n.name,
    }, nil
}

func meanStd(xs []float64) (float64, float64) {
    m := 0.0
    for _, x := range xs {
        m += x
    }
    m /= float64(len(xs))
    if len(xs) < 2 {
        return m, 0
    }
    v := 0.0
    for _, x := range xs {
        v += (x - m) * (x - m)
    }
    return m, math.Sqrt(v / float64(len(xs)))
}

package source

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "sync/atomic"
    "testing"
    "time"

    "MarketPulse/internal/domain/models"
    "MarketPulse/pkg/config"
)

type denyAll struct{}

func (denyAll) Admit(context.Context, string) bool { return false }

func serve(t *testing.T, body string, status int, hits *int32) *httptest.Server {
    t.Helper()
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if hits != nil {
            atomic.AddInt32(hits, 1)
        }
        w.Header().Set("Content-Type", "application/json")
        w.WriteHeader(status)
        _, _ = w.Write([]byte(body))
    }))
    t.Cleanup(srv.Close)
    return srv
}

func srcConfig(url, key string) config.SourceConfig {
    return config.SourceConfig{BaseURL: url, APIKey: key, Timeout: 2 * time.Second}
}

const yahooBody = `{"chart":{"result":[{"meta":{"regularMarketPrice":182.5,"regularMarketDayHigh":184,"regularMarketDayLow":180,"regularMarketOpen":181,"previousClose":180.5},
"timestamp":[1700000000,1700000060],
"indicators":{"quote":[{"open":[181,182],"high":[183,184],"low":[180,181],"close":[182,182.5],"volume":[1000,1500]}]}}],"error":null}}`

func TestYahooFetchCurrent(t *testing.T) {
    srv := serve(t, yahooBody, http.StatusOK, nil)
    y := NewYahoo(srcConfig(srv.URL, ""), nil)
    p, err := y.FetchCurrent(context.Background(), "AAPL", models.AssetStock)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if p.Price != 182.5 || *p.High != 184 || *p.Volume != 1500 || p.Source != config.SourceYahoo {
        t.Fatalf("unexpected point %+v", p)
    }
    if p.Change == nil || *p.Change != 2 {
        t.Fatalf("expected change 2 vs previous close, got %v", p.Change)
    }
    if !p.Timestamp.Equal(time.Unix(1700000060, 0)) {
        t.Fatalf("unexpected timestamp %v", p.Timestamp)
    }
}

func TestYahooFetchHistoricalOrdered(t *testing.T) {
    srv := serve(t, yahooBody, http.StatusOK, nil)
    y := NewYahoo(srcConfig(srv.URL, ""), nil)
    pts, err := y.FetchHistorical(context.Background(), "AAPL", 30)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(pts) != 2 || pts[0].Price != 182 || pts[1].Price != 182.5 {
        t.Fatalf("unexpected series %+v", pts)
    }
}

func TestUpstreamFailuresBecomeUnavailable(t *testing.T) {
    cases := map[string]struct {
        body   string
        status int
    }{
        "server error": {`{}`, http.StatusInternalServerError},
        "bad json":     {`{not json`, http.StatusOK},
        "empty result": {`{"chart":{"result":[]}}`, http.StatusOK},
    }
    for name, tc := range cases {
        t.Run(name, func(t *testing.T) {
            srv := serve(t, tc.body, tc.status, nil)
            y := NewYahoo(srcConfig(srv.URL, ""), nil)
            _, err := y.FetchCurrent(context.Background(), "AAPL", models.AssetStock)
            if !errors.Is(err, models.ErrSourceUnavailable) {
                t.Fatalf("expected ErrSourceUnavailable, got %v", err)
            }
        })
    }
}

func TestUpstreamThrottleIsRateLimited(t *testing.T) {
    srv := serve(t, `{"error":"slow down"}`, http.StatusTooManyRequests, nil)
    y := NewYahoo(srcConfig(srv.URL, ""), nil)
    _, err := y.FetchCurrent(context.Background(), "AAPL", models.AssetStock)
    if !errors.Is(err, models.ErrRateLimited) || errors.Is(err, models.ErrSourceUnavailable) {
        t.Fatalf("expected ErrRateLimited only, got %v", err)
    }
}

func TestUnreachableHostIsUnavailable(t *testing.T) {
    srv := httptest.NewServer(http.NotFoundHandler())
    url := srv.URL
    srv.Close()
    y := NewYahoo(srcConfig(url, ""), nil)
    _, err := y.FetchCurrent(context.Background(), "AAPL", models.AssetStock)
    if !errors.Is(err, models.ErrSourceUnavailable) {
        t.Fatalf("expected ErrSourceUnavailable, got %v", err)
    }
}

func TestRateDeniedSkipsNetwork(t *testing.T) {
    var hits int32
    srv := serve(t, yahooBody, http.StatusOK, &hits)
    y := NewYahoo(srcConfig(srv.URL, ""), denyAll{})
    _, err := y.FetchCurrent(context.Background(), "AAPL", models.AssetStock)
    if !errors.Is(err, models.ErrRateLimited) {
        t.Fatalf("expected ErrRateLimited, got %v", err)
    }
    if atomic.LoadInt32(&hits) != 0 {
        t.Fatalf("denied call must not reach the network")
    }
}

func TestCoinGecko(t *testing.T) {
    srv := serve(t, `{"bitcoin":{"usd":64000.5,"usd_24h_vol":1.2e10,"usd_24h_change":2.5,"usd_market_cap":1.2e12,"last_updated_at":1700000000}}`, http.StatusOK, nil)
    g := NewCoinGecko(srcConfig(srv.URL, ""), nil)
    p, err := g.FetchCurrent(context.Background(), "BTC-USD", models.AssetCrypto)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if p.Price != 64000.5 || *p.MarketCap != 1.2e12 || *p.ChangePercent != 2.5 {
        t.Fatalf("unexpected point %+v", p)
    }
    if _, err := g.FetchCurrent(context.Background(), "AAPL", models.AssetStock); !errors.Is(err, models.ErrSourceUnavailable) {
        t.Fatalf("stocks are not served, got %v", err)
    }
    if CoinGeckoID("AVAX") != "avalanche-2" || CoinGeckoID("doge") != "doge" {
        t.Fatalf("unexpected id mapping")
    }
}

func TestCoinGeckoHistorical(t *testing.T) {
    srv := serve(t, `{"prices":[[1700000000000,100],[1700086400000,101]],"total_volumes":[[1700000000000,5],[1700086400000,6]]}`, http.StatusOK, nil)
    g := NewCoinGecko(srcConfig(srv.URL, ""), nil)
    pts, err := g.FetchHistorical(context.Background(), "ETH", 2)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(pts) != 2 || pts[1].Price != 101 || *pts[1].Volume != 6 {
        t.Fatalf("unexpected series %+v", pts)
    }
}

func TestAlphaVantage(t *testing.T) {
    body := `{"Global Quote":{"01. symbol":"IBM","02. open":"180.0000","03. high":"184.1000","04. low":"179.5000","05. price":"182.3100","06. volume":"3300000","09. change":"1.2100","10. change percent":"0.6681%"}}`
    srv := serve(t, body, http.StatusOK, nil)
    a := NewAlphaVantage(srcConfig(srv.URL, "key"), nil)
    p, err := a.FetchCurrent(context.Background(), "IBM", models.AssetStock)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if p.Price != 182.31 || *p.High != 184.1 || *p.ChangePercent != 0.6681 {
        t.Fatalf("unexpected point %+v", p)
    }
}

func TestAlphaVantageNoteIsUnavailable(t *testing.T) {
    srv := serve(t, `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, http.StatusOK, nil)
    a := NewAlphaVantage(srcConfig(srv.URL, "key"), nil)
    if _, err := a.FetchCurrent(context.Background(), "IBM", models.AssetStock); !errors.Is(err, models.ErrSourceUnavailable) {
        t.Fatalf("expected ErrSourceUnavailable, got %v", err)
    }
}

func TestMissingKeyIsUnavailableWithoutNetwork(t *testing.T) {
    var hits int32
    srv := serve(t, `{}`, http.StatusOK, &hits)
    for _, s := range []interface {
        FetchCurrent(context.Context, string, models.AssetClass) (*models.MarketPoint, error)
    }{NewAlphaVantage(srcConfig(srv.URL, ""), nil), NewFinnhub(srcConfig(srv.URL, ""), nil)} {
        if _, err := s.FetchCurrent(context.Background(), "IBM", models.AssetStock); !errors.Is(err, models.ErrSourceUnavailable) {
            t.Fatalf("expected ErrSourceUnavailable, got %v", err)
        }
    }
    if _, err := NewNewsAPI(srcConfig(srv.URL, ""), nil).FetchSentiment(context.Background(), "AAPL"); !errors.Is(err, models.ErrSourceUnavailable) {
        t.Fatalf("expected ErrSourceUnavailable, got %v", err)
    }
    if atomic.LoadInt32(&hits) != 0 {
        t.Fatalf("no request expected without api key")
    }
}

func TestFinnhubQuoteAndUnknownSymbol(t *testing.T) {
    srv := serve(t, `{"c":150.2,"d":1.1,"dp":0.74,"h":151,"l":149,"o":149.5,"pc":149.1,"t":1700000000}`, http.StatusOK, nil)
    f := NewFinnhub(srcConfig(srv.URL, "tok"), nil)
    p, err := f.FetchCurrent(context.Background(), "MSFT", models.AssetStock)
    if err != nil || p.Price != 150.2 || *p.Low != 149 {
        t.Fatalf("unexpected result %+v %v", p, err)
    }

    zero := serve(t, `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`, http.StatusOK, nil)
    f = NewFinnhub(srcConfig(zero.URL, "tok"), nil)
    if _, err := f.FetchCurrent(context.Background(), "NOPE", models.AssetStock); !errors.Is(err, models.ErrSourceUnavailable) {
        t.Fatalf("expected ErrSourceUnavailable, got %v", err)
    }
}

func TestNewsAPISentiment(t *testing.T) {
    body := `{"status":"ok","articles":[
        {"title":"Apple shares surge after record profit","description":"strong growth"},
        {"title":"Apple stock rally continues","description":""},
        {"title":"","description":""}]}`
    srv := serve(t, body, http.StatusOK, nil)
    n := NewNewsAPI(srcConfig(srv.URL, "key"), nil)
    s, err := n.FetchSentiment(context.Background(), "AAPL")
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if s.Score <= 0 || s.Score > 1 {
        t.Fatalf("expected positive score, got %v", s.Score)
    }
    if s.SampleCount != 3 || s.Confidence < 0 || s.Confidence > 1 {
        t.Fatalf("unexpected sentiment %+v", s)
    }
}

func TestNewsAPINoArticlesIsNotAFailure(t *testing.T) {
    srv := serve(t, `{"status":"ok","totalResults":0,"articles":[]}`, http.StatusOK, nil)
    n := NewNewsAPI(srcConfig(srv.URL, "key"), nil)
    s, err := n.FetchSentiment(context.Background(), "^GSPC")
    if err != nil || s != nil {
        t.Fatalf("expected no sentiment and no error, got %+v %v", s, err)
    }

    bad := serve(t, `<html>`, http.StatusOK, nil)
    n = NewNewsAPI(srcConfig(bad.URL, "key"), nil)
    if _, err := n.FetchSentiment(context.Background(), "AAPL"); !errors.Is(err, models.ErrSourceUnavailable) {
        t.Fatalf("malformed payload should be unavailable, got %v", err)
    }
}

func TestPolarity(t *testing.T) {
    if Polarity("stocks plunge on fraud fears") >= 0 {
        t.Fatalf("expected negative polarity")
    }
    if Polarity("not bad") <= 0 {
        t.Fatalf("negated negative should be positive")
    }
    if Polarity("the meeting is on tuesday") != 0 {
        t.Fatalf("neutral text should be 0")
    }
}

func TestRegistryOrdering(t *testing.T) {
    cfg, err := config.Default()
    if err != nil {
        t.Fatalf("config: %v", err)
    }
    cfg.Priorities["stock"] = []string{config.SourceFinnhub, config.SourceAlphaVantage, config.SourceYahoo}
    r := NewRegistry(cfg, nil)
    got := r.For(models.AssetStock)
    if len(got) != 3 || got[0].Name() != config.SourceYahoo || got[1].Name() != config.SourceFinnhub {
        names := make([]string, len(got))
        for i, s := range got {
            names[i] = s.Name()
        }
        t.Fatalf("expected priority order with stable ties, got %v", names)
    }
    if len(r.Sentiment()) != 1 || len(r.Names()) != 5 {
        t.Fatalf("unexpected registry contents %v", r.Names())
    }
}

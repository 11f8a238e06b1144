package source

import (
    "context"
    "errors"
    "fmt"
    "time"

    "MarketPulse/internal/domain/models"
    "MarketPulse/internal/domain/repository"
    "MarketPulse/pkg/config"
    xhttp "MarketPulse/pkg/http"
)

const defaultTimeout = 10 * time.Second

var (
    errMissingKey = errors.New("api key not configured")
    errEmpty      = errors.New("empty upstream payload")
)

// httpSource is the shared base of every REST adapter: rate admission,
// per-call timeout, JSON GET and error normalization.
type httpSource struct {
    name    string
    baseURL string
    apiKey  string
    timeout time.Duration
    client  *xhttp.Client
    limiter repository.RateLimiter
    now     func() time.Time
}

func newHTTPSource(name string, cfg config.SourceConfig, limiter repository.RateLimiter) httpSource {
    timeout := cfg.Timeout
    if timeout <= 0 {
        timeout = defaultTimeout
    }
    return httpSource{
        name:    name,
        baseURL: cfg.BaseURL,
        apiKey:  cfg.APIKey,
        timeout: timeout,
        client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
        limiter: limiter,
        now:     time.Now,
    }
}

func (b *httpSource) Name() string { return b.name }

// admit asks the rate limiter before any network call.
func (b *httpSource) admit(ctx context.Context) error {
    if b.limiter != nil && !b.limiter.Admit(ctx, b.name) {
        return models.ErrRateLimited
    }
    return nil
}

func (b *httpSource) requireKey() error {
    if b.apiKey == "" {
        return models.Unavailable(b.name, errMissingKey)
    }
    return nil
}

// getJSON performs GET baseURL+path and decodes the body into dest.
// An upstream 429 is reported as models.ErrRateLimited, any other failure as
// models.ErrSourceUnavailable.
func (b *httpSource) getJSON(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
    if err := b.admit(ctx); err != nil {
        return err
    }
    ctx, cancel := context.WithTimeout(ctx, b.timeout)
    defer cancel()

    err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
        Method:      xhttp.MethodGet,
        URL:         b.baseURL + path,
        Headers:     map[string]string{"Accept": "application/json"},
        QueryParams: query,
    }, dest)
    if err != nil {
        var se *xhttp.StatusError
        if errors.As(err, &se) && se.Throttled() {
            return fmt.Errorf("%s: %w", b.name, models.ErrRateLimited)
        }
        return models.Unavailable(b.name, err)
    }
    return nil
}

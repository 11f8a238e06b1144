package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
)

type fakeReader struct {
	records map[string]*models.EnrichedRecord
	days    int
	err     error
}

func (f *fakeReader) FetchLatest(_ context.Context, symbol string) (*models.EnrichedRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, models.ErrNotAvailable)
	}
	return rec, nil
}

func (f *fakeReader) FetchSummary(ctx context.Context, symbol string) (*models.MarketSummary, error) {
	rec, err := f.FetchLatest(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sum := models.SummaryOf(rec)
	return &sum, nil
}

func (f *fakeReader) FetchHistoricalSeries(_ context.Context, symbol string, days int) ([]models.MarketPoint, error) {
	f.days = days
	out := make([]models.MarketPoint, days)
	for i := range out {
		out[i] = models.MarketPoint{Symbol: symbol, Price: float64(i + 1)}
	}
	return out, nil
}

func (f *fakeReader) SourceHealthSnapshot(context.Context) map[string]models.SourceStatus {
	return map[string]models.SourceStatus{
		"yahoo":   {Healthy: true},
		"finnhub": {Healthy: false, CooldownUntil: time.Date(2026, 3, 2, 15, 5, 0, 0, time.UTC)},
	}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(reader MarketReader, opts ...HandlerOption) *echo.Echo {
	e := echo.New()
	NewMarketEchoHandler(reader, nil, nil, opts...).RegisterRoutes(e)
	return e
}

func get(t *testing.T, e *echo.Echo, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v (%s)", target, err, rec.Body.String())
	}
	return rec, env
}

func TestLatestReturnsRecord(t *testing.T) {
	reader := &fakeReader{records: map[string]*models.EnrichedRecord{
		"AAPL": {ID: "r1", Symbol: "AAPL", Point: models.MarketPoint{Price: 187.2}},
	}}
	rec, env := get(t, newTestServer(reader), "/api/market/AAPL/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got models.EnrichedRecord
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.ID != "r1" || got.Point.Price != 187.2 {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestLatestUnknownSymbolIsNotFound(t *testing.T) {
	rec, env := get(t, newTestServer(&fakeReader{}), "/api/market/ZZZZ/latest")
	if rec.Code != http.StatusNotFound || env.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d/%d", rec.Code, env.Status)
	}
}

func TestLatestRejectsMalformedSymbol(t *testing.T) {
	rec, env := get(t, newTestServer(&fakeReader{}), "/api/market/AA%24PL/latest")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var errs []xhttp.ValidationError
	if err := json.Unmarshal(env.Data, &errs); err != nil || len(errs) != 1 {
		t.Fatalf("unexpected error body %s", rec.Body.String())
	}
	if errs[0].Field != "symbol" || errs[0].Code != "ERR_SYMBOL" {
		t.Fatalf("unexpected validation error %+v", errs[0])
	}
}

func TestSummary(t *testing.T) {
	reader := &fakeReader{records: map[string]*models.EnrichedRecord{
		"BTC": {Symbol: "BTC", Point: models.MarketPoint{Price: 64000}},
	}}
	e := newTestServer(reader)
	rec, env := get(t, e, "/api/market/BTC/summary")
	var sum models.MarketSummary
	if rec.Code != http.StatusOK || json.Unmarshal(env.Data, &sum) != nil || sum.Price != 64000 {
		t.Fatalf("unexpected summary response %d %s", rec.Code, rec.Body.String())
	}
	if rec, _ := get(t, e, "/api/market/ETH/summary"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLatestInternalError(t *testing.T) {
	rec, _ := get(t, newTestServer(&fakeReader{err: fmt.Errorf("redis down")}), "/api/market/AAPL/latest")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHistoryDefaultsAndBounds(t *testing.T) {
	reader := &fakeReader{}
	e := newTestServer(reader)

	rec, _ := get(t, e, "/api/market/AAPL/history")
	if rec.Code != http.StatusOK || reader.days != 30 {
		t.Fatalf("expected default of 30 days, got %d (status %d)", reader.days, rec.Code)
	}

	rec, _ = get(t, e, "/api/market/AAPL/history?days=7")
	if rec.Code != http.StatusOK || reader.days != 7 {
		t.Fatalf("expected 7 days, got %d", reader.days)
	}

	rec, _ = get(t, e, "/api/market/AAPL/history?days=500")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for days above range, got %d", rec.Code)
	}
}

func TestSourcesHealth(t *testing.T) {
	_, env := get(t, newTestServer(&fakeReader{}), "/api/sources/health")
	var snap map[string]models.SourceStatus
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !snap["yahoo"].Healthy || snap["finnhub"].Healthy || snap["finnhub"].CooldownUntil.IsZero() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestClientThrottle(t *testing.T) {
	e := newTestServer(&fakeReader{}, WithClientLimit(2, 0.0001))
	for i := 0; i < 2; i++ {
		if rec, _ := get(t, e, "/api/sources/health"); rec.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i, rec.Code)
		}
	}
	if rec, _ := get(t, e, "/api/sources/health"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

package usecase

import (
	"context"
	"testing"

	"MarketPulse/internal/domain/models"
)

func TestMemoryWatchlistSeedAndClassify(t *testing.T) {
	w := NewMemoryWatchlist([]string{"aapl", "BTC", "EURUSD=X", " ", "AAPL"})
	items, err := w.ActiveSymbols(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 unique symbols, got %v", items)
	}
	want := map[string]models.AssetClass{
		"AAPL":     models.AssetStock,
		"BTC":      models.AssetCrypto,
		"EURUSD=X": models.AssetForex,
	}
	for _, it := range items {
		if want[it.Symbol] != it.AssetClass {
			t.Fatalf("unexpected class for %s: %s", it.Symbol, it.AssetClass)
		}
	}
	if items[0].Symbol != "AAPL" {
		t.Fatalf("items should be sorted, got %v", items)
	}
}

func TestWatchlistHandler(t *testing.T) {
	w := NewMemoryWatchlist(nil)
	h := NewWatchlistHandler("market.watchlist", w, nil, nil)
	ctx := context.Background()

	if h.Topic() != "market.watchlist" {
		t.Fatalf("unexpected topic %s", h.Topic())
	}
	if err := h.Handle(ctx, []byte(`{"symbol":"sol","asset_class":"crypto"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Handle(ctx, []byte(`{"symbol":"TSLA","asset_class":"bogus"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := WatchedSymbols(ctx, w); len(got) != 2 || got[0] != "SOL" || got[1] != "TSLA" {
		t.Fatalf("unexpected symbols %v", got)
	}

	if err := h.Handle(ctx, []byte(`{"symbol":"SOL","active":false}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := WatchedSymbols(ctx, w); len(got) != 1 || got[0] != "TSLA" {
		t.Fatalf("SOL should be removed, got %v", got)
	}

	if err := h.Handle(ctx, []byte(`{not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := h.Handle(ctx, []byte(`{"symbol":""}`)); err == nil {
		t.Fatalf("expected empty symbol error")
	}
}

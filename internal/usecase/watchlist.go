package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// MemoryWatchlist is the set of symbols the scheduler refreshes. It is seeded
// from config and updated from the watchlist topic.
type MemoryWatchlist struct {
	mu    sync.RWMutex
	items map[string]models.WatchItem
}

// NewMemoryWatchlist seeds the list; asset classes are inferred from symbols.
func NewMemoryWatchlist(symbols []string) *MemoryWatchlist {
	w := &MemoryWatchlist{items: make(map[string]models.WatchItem, len(symbols))}
	for _, s := range symbols {
		w.Set(s, "")
	}
	return w
}

// ActiveSymbols returns the watched items sorted by symbol.
func (w *MemoryWatchlist) ActiveSymbols(context.Context) ([]models.WatchItem, error) {
	w.mu.RLock()
	out := make([]models.WatchItem, 0, len(w.items))
	for _, it := range w.items {
		out = append(out, it)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Set adds or updates symbol. An invalid class is replaced by the inferred one.
func (w *MemoryWatchlist) Set(symbol string, class models.AssetClass) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return false
	}
	w.mu.Lock()
	w.items[symbol] = models.WatchItem{Symbol: symbol, AssetClass: models.NormalizeAssetClass(class, symbol)}
	w.mu.Unlock()
	return true
}

func (w *MemoryWatchlist) Remove(symbol string) {
	w.mu.Lock()
	delete(w.items, strings.ToUpper(strings.TrimSpace(symbol)))
	w.mu.Unlock()
}

// WatchedSymbols lists the symbols of every active item in list.
func WatchedSymbols(ctx context.Context, list domrepo.Watchlist) ([]string, error) {
	items, err := list.ActiveSymbols(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Symbol
	}
	return out, nil
}

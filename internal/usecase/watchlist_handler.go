package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
)

var errEmptySymbol = errors.New("empty symbol")

// WatchlistHandler consumes watchlist changes from Kafka.
type WatchlistHandler struct {
	topic   string
	list    *MemoryWatchlist
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewWatchlistHandler(topic string, list *MemoryWatchlist, metrics domrepo.Metrics, l *applogger.Logger) *WatchlistHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &WatchlistHandler{topic: topic, list: list, metrics: metrics, l: l}
}

func (h *WatchlistHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, asset_class, active}; active defaults to true
func (h *WatchlistHandler) Handle(_ context.Context, b []byte) error {
	var m struct {
		Symbol     string `json:"symbol"`
		AssetClass string `json:"asset_class"`
		Active     *bool  `json:"active"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.recordError("watchlist_unmarshal")
		return fmt.Errorf("decode watchlist update: %w", err)
	}
	if m.Active != nil && !*m.Active {
		h.list.Remove(m.Symbol)
		h.l.Info("symbol unwatched", applogger.String("symbol", m.Symbol))
		return nil
	}
	if !h.list.Set(m.Symbol, models.AssetClass(m.AssetClass)) {
		h.recordError("watchlist_invalid")
		return errEmptySymbol
	}
	h.l.Info("symbol watched", applogger.String("symbol", m.Symbol), applogger.String("asset_class", m.AssetClass))
	return nil
}

func (h *WatchlistHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

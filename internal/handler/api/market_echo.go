package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/broadcast"
	"MarketPulse/internal/service/metrics"
	"MarketPulse/internal/service/ratelimit"
	xhttp "MarketPulse/pkg/http"
	applogger "MarketPulse/pkg/logger"
)

// MarketReader is the read side the handler serves.
type MarketReader interface {
	FetchLatest(ctx context.Context, symbol string) (*models.EnrichedRecord, error)
	FetchSummary(ctx context.Context, symbol string) (*models.MarketSummary, error)
	FetchHistoricalSeries(ctx context.Context, symbol string, days int) ([]models.MarketPoint, error)
	SourceHealthSnapshot(ctx context.Context) map[string]models.SourceStatus
}

// Subscriber upgrades a request into a market update stream.
type Subscriber interface {
	ServeWS(w http.ResponseWriter, r *http.Request, symbols []string) error
}

const (
	defaultClientBurst  = 20
	defaultClientRefill = 10
)

// MarketEchoHandler serves the market query API and the subscription socket.
type MarketEchoHandler struct {
	query  MarketReader
	hub    Subscriber
	rl     *ratelimit.ClientLimiter
	burst  float64
	refill float64
	l      *applogger.Logger
}

type HandlerOption func(*MarketEchoHandler)

// WithClientLimit sets the per-client token bucket. A zero burst disables it.
func WithClientLimit(burst, refillPerSec float64) HandlerOption {
	return func(h *MarketEchoHandler) {
		h.burst, h.refill = burst, refillPerSec
	}
}

func WithClientLimiter(rl *ratelimit.ClientLimiter) HandlerOption {
	return func(h *MarketEchoHandler) {
		if rl != nil {
			h.rl = rl
		}
	}
}

func NewMarketEchoHandler(query MarketReader, hub Subscriber, l *applogger.Logger, opts ...HandlerOption) *MarketEchoHandler {
	metrics.Register()
	if l == nil {
		l = applogger.Nop()
	}
	h := &MarketEchoHandler{
		query:  query,
		hub:    hub,
		rl:     ratelimit.NewClientLimiter(nil),
		burst:  defaultClientBurst,
		refill: defaultClientRefill,
		l:      l,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", h.throttle)
	g.GET("/market/:symbol/latest", h.Latest)
	g.GET("/market/:symbol/summary", h.Summary)
	g.GET("/market/:symbol/history", h.History)
	g.GET("/sources/health", h.SourcesHealth)
	if h.hub != nil {
		e.GET("/ws", h.Subscribe)
	}
}

func (h *MarketEchoHandler) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.burst > 0 && !h.rl.Allow(c.RealIP(), h.burst, h.refill) {
			metrics.APIThrottled.Inc()
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests"))
		}
		return next(c)
	}
}

func (h *MarketEchoHandler) Latest(c echo.Context) error {
	start := time.Now()
	defer observe("latest", start)

	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, "latest", verr)
	}
	rec, err := h.query.FetchLatest(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "latest", req.Symbol, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, rec)
}

func (h *MarketEchoHandler) Summary(c echo.Context) error {
	start := time.Now()
	defer observe("summary", start)

	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, "summary", verr)
	}
	sum, err := h.query.FetchSummary(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "summary", req.Symbol, err)
	}
	return xhttp.SuccessResponse(c, sum)
}

func (h *MarketEchoHandler) History(c echo.Context) error {
	start := time.Now()
	defer observe("history", start)

	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, "history", verr)
	}
	points, err := h.query.FetchHistoricalSeries(c.Request().Context(), req.Symbol, req.Days)
	if err != nil {
		return h.fail(c, "history", req.Symbol, err)
	}
	return xhttp.ListResponse(c, points, int64(len(points)))
}

func (h *MarketEchoHandler) SourcesHealth(c echo.Context) error {
	start := time.Now()
	defer observe("sources_health", start)
	return xhttp.SuccessResponse(c, h.query.SourceHealthSnapshot(c.Request().Context()))
}

// Subscribe upgrades to a WebSocket; symbols come from ?symbols=AAPL,BTC and
// can be changed later through subscribe/unsubscribe messages.
func (h *MarketEchoHandler) Subscribe(c echo.Context) error {
	req := &models.SubscribeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, "ws", verr)
	}
	if err := h.hub.ServeWS(c.Response(), c.Request(), broadcast.ParseSymbols(req.Symbols)); err != nil {
		h.l.Warn("websocket upgrade failed", applogger.Error(err))
		metrics.APIErrors.WithLabelValues("ws", "upgrade").Inc()
	}
	return nil
}

func (h *MarketEchoHandler) badRequest(c echo.Context, endpoint string, verr []xhttp.ValidationError) error {
	metrics.APIErrors.WithLabelValues(endpoint, strconv.Itoa(http.StatusBadRequest)).Inc()
	return xhttp.BadRequestResponse(c, verr)
}

func (h *MarketEchoHandler) fail(c echo.Context, endpoint, symbol string, err error) error {
	appErr := toAppError(symbol, err)
	metrics.APIErrors.WithLabelValues(endpoint, strconv.Itoa(appErr.Status)).Inc()
	if appErr.Status >= http.StatusInternalServerError {
		h.l.Error("market query failed",
			applogger.String("endpoint", endpoint),
			applogger.String("symbol", symbol),
			applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(symbol string, err error) *xhttp.AppError {
	switch {
	case errors.Is(err, models.ErrNotAvailable):
		return xhttp.NotFoundErrorf("no data for %s", symbol).WithField("symbol").WithParam("symbol", symbol).WithError(err)
	case errors.Is(err, models.ErrValidationFailed):
		return xhttp.BadRequestError(err.Error()).WithField("symbol").WithParam("symbol", symbol).WithError(err)
	default:
		return xhttp.InternalError("market query failed").WithError(err)
	}
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

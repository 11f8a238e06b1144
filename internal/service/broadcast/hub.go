package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/metrics"
	applogger "MarketPulse/pkg/logger"
)

var ErrHubClosed = errors.New("hub closed")

// ClientMessage is what subscribers may send to change their symbol set.
type ClientMessage struct {
	Action  string   `json:"action"` // subscribe | unsubscribe
	Symbols []string `json:"symbols"`
}

// Hub fans market updates out to WebSocket subscribers. A client with no
// symbols receives every update.
type Hub struct {
	upgrader     websocket.Upgrader
	sendBuffer   int
	writeWait    time.Duration
	pingInterval time.Duration
	now          func() time.Time
	l            *applogger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type Option func(*Hub)

// WithSendBuffer sets how many pending messages a client may have before it
// is disconnected as too slow.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHub(l *applogger.Logger, opts ...Option) *Hub {
	if l == nil {
		l = applogger.Nop()
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer:   64,
		writeWait:    10 * time.Second,
		pingInterval: 30 * time.Second,
		now:          time.Now,
		l:            l,
		clients:      make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.RWMutex
	symbols map[string]struct{}
	once    sync.Once
}

// ServeWS upgrades the request and registers the connection with the
// initial symbol set. It returns once the pumps are running.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, symbols []string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.sendBuffer),
		symbols: make(map[string]struct{}),
	}
	c.subscribe(symbols)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WSClients.Inc()

	h.l.Debug("subscriber connected",
		applogger.String("remote", r.RemoteAddr), applogger.Strings("symbols", symbols))
	go c.writePump()
	go c.readPump()
	return nil
}

// Publish sends the update envelope to every client subscribed to symbol.
// Clients whose buffer is full are disconnected.
func (h *Hub) Publish(_ context.Context, symbol string, rec *models.EnrichedRecord) error {
	symbol = strings.ToUpper(symbol)
	b, err := json.Marshal(models.MarketUpdate{
		Type:      models.MarketUpdateType,
		Symbol:    symbol,
		Data:      rec,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(symbol) {
			continue
		}
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.l.Warn("dropping slow subscriber", applogger.String("remote", c.conn.RemoteAddr().String()))
		h.remove(c)
	}
	return nil
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
	return nil
}

func (h *Hub) remove(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		metrics.WSClients.Dec()
	})
}

func (c *client) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}
	_, ok := c.symbols[symbol]
	return ok
}

func (c *client) subscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			c.symbols[s] = struct{}{}
		}
	}
	c.mu.Unlock()
}

func (c *client) unsubscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		delete(c.symbols, strings.ToUpper(strings.TrimSpace(s)))
	}
	c.mu.Unlock()
}

func (c *client) readPump() {
	defer c.hub.remove(c)
	pongWait := c.hub.pingInterval * 2
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				continue
			}
			return
		}
		switch msg.Action {
		case "subscribe":
			c.subscribe(msg.Symbols)
		case "unsubscribe":
			c.unsubscribe(msg.Symbols)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

// ParseSymbols splits a comma separated query value.
func ParseSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

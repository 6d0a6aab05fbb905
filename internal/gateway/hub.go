// Package gateway serves the web UI: REST endpoints for quotes, portfolio
// valuation and trading, plus a WebSocket hub fanning out the Redis quote
// stream.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"papertrade-backend/internal/markethours"
	"papertrade-backend/internal/metrics"
	"papertrade-backend/internal/model"
	"papertrade-backend/internal/ringbuf"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// quotePattern matches every per-symbol quote channel published by the poller.
const quotePattern = "pub:quote:*"

// Hub manages WebSocket clients and the Redis PubSub quote fan-out. It also
// keeps the in-memory latest map and the per-symbol quote history, which
// makes it the live-price source for portfolio valuation.
type Hub struct {
	rdb     *goredis.Client
	m       *metrics.Metrics // may be nil
	history *ringbuf.History

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]model.Quote
}

// NewHub creates a hub keeping historyCap quotes per symbol.
func NewHub(rdb *goredis.Client, m *metrics.Metrics, historyCap int) *Hub {
	return &Hub{
		rdb:     rdb,
		m:       m,
		history: ringbuf.NewHistory(historyCap),
		clients: make(map[*Client]bool),
		latest:  make(map[string]model.Quote),
	}
}

// Run subscribes to the quote channels and routes messages until ctx is
// cancelled. Reconnects are handled by go-redis internally; a closed channel
// means the context ended.
func (h *Hub) Run(ctx context.Context) {
	sub := h.rdb.PSubscribe(ctx, quotePattern)
	defer sub.Close()

	log.Printf("[gateway] subscribed to %s", quotePattern)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.ingest([]byte(msg.Payload))
		}
	}
}

// ingest decodes a published quote, updates the latest map and history,
// and fans the payload out to clients.
func (h *Hub) ingest(payload []byte) {
	var q model.Quote
	if err := json.Unmarshal(payload, &q); err != nil || q.Symbol == "" {
		log.Printf("[gateway] dropping unparseable quote payload: %v", err)
		return
	}

	h.mu.Lock()
	h.latest[q.Symbol] = q
	h.mu.Unlock()
	h.history.Record(q)

	envelope, _ := json.Marshal(map[string]interface{}{
		"type":  "quote",
		"quote": q,
	})
	h.broadcast(envelope)
}

// Latest returns the most recent live price for a symbol. Implements
// portfolio.LivePrices.
func (h *Hub) Latest(symbol string) (float64, bool) {
	h.mu.RLock()
	q, ok := h.latest[symbol]
	h.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return q.Price, true
}

// LatestAll returns a snapshot of the latest quote per symbol.
func (h *Hub) LatestAll() map[string]model.Quote {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]model.Quote, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v
	}
	return cp
}

// History returns up to limit recent quotes for a symbol, oldest first.
func (h *Hub) History(symbol string, limit int) []model.Quote {
	return h.history.Snapshot(symbol, limit)
}

// HandleConn registers an upgraded WebSocket connection.
func (h *Hub) HandleConn(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.m != nil {
		h.m.WSClients.Set(float64(count))
	}
	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)

	if h.m != nil {
		h.m.WSClients.Set(float64(count))
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Slow client: drop the message rather than block the hub
		}
	}
}

// StartStatusBroadcast pushes a market-status envelope to all clients on an
// interval, so the UI flips open/closed without polling.
func (h *Hub) StartStatusBroadcast(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := markethours.Status(time.Now())
			if h.m != nil {
				if status.IsOpen {
					h.m.MarketState.Set(1)
				} else {
					h.m.MarketState.Set(0)
				}
			}
			envelope, _ := json.Marshal(map[string]interface{}{
				"type":   "market_status",
				"status": status,
			})
			h.broadcast(envelope)
		}
	}
}

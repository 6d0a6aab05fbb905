package gateway

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"papertrade-backend/internal/auth"
	"papertrade-backend/internal/logger"
	"papertrade-backend/internal/markethours"
	"papertrade-backend/internal/model"
	"papertrade-backend/internal/pnl"
	"papertrade-backend/internal/portfolio"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// PortfolioStore is the read surface the portfolio endpoints need.
type PortfolioStore interface {
	Holdings(ctx context.Context, userID string) ([]model.Holding, error)
	OptionPositions(ctx context.Context, userID string) ([]model.OptionPosition, error)
	Balance(ctx context.Context, userID string, startingFunds float64) (float64, error)
	LastPrices(ctx context.Context, userID string) (map[string]float64, error)
}

// Trader executes simulated fills. Implemented by execution.Broker.
type Trader interface {
	ExecuteEquity(ctx context.Context, userID string, req model.TradeRequest) (model.Fill, error)
	ExecuteOption(ctx context.Context, userID string, req model.TradeRequest) (model.Fill, error)
}

// TradeLog reads back journaled fills.
type TradeLog interface {
	Trades(ctx context.Context, userID string, limit int) ([]model.Fill, error)
}

// PriceCache is the last-trading-price cache surface.
type PriceCache interface {
	Store(ctx context.Context, userID, symbol string, price float64)
	Get(ctx context.Context, userID, symbol string) (float64, bool)
	Clear(ctx context.Context, userID string)
}

// MirrorLoader reads the Redis price mirror for bulk load.
type MirrorLoader interface {
	LoadPrices(ctx context.Context, userID string) (map[string]float64, error)
}

// Deps bundles everything the REST handlers touch.
type Deps struct {
	Hub           *Hub
	Auth          *auth.Manager
	Store         PortfolioStore
	Cache         PriceCache
	Broker        Trader
	Journal       TradeLog
	Mirror        MirrorLoader // may be nil
	StartingFunds float64
	Start         time.Time
	Now           func() time.Time // nil means time.Now
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	// WebSocket quote stream
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		d.Hub.HandleConn(conn)
	})

	mux.HandleFunc("/api/market-status", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, markethours.Status(d.now()))
	})

	mux.HandleFunc("/api/quotes/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, d.Hub.LatestAll())
	})

	mux.HandleFunc("/api/quotes/history", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			writeError(w, http.StatusBadRequest, "symbol is required")
			return
		}
		limit := 200
		if s := r.URL.Query().Get("limit"); s != "" {
			if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 1000 {
				limit = l
			}
		}
		quotes := d.Hub.History(symbol, limit)
		if quotes == nil {
			quotes = []model.Quote{}
		}
		writeJSON(w, quotes)
	})

	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST only")
			return
		}
		var req struct {
			Email string `json:"email"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		token, err := d.Auth.Login(req.Email, req.Code)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid email or code")
			return
		}
		writeJSON(w, map[string]string{"token": token, "email": req.Email})
	})

	mux.HandleFunc("/api/portfolio", d.Auth.Middleware(d.handlePortfolio))
	mux.HandleFunc("/api/trade", d.Auth.Middleware(d.handleTrade))
	mux.HandleFunc("/api/trades", d.Auth.Middleware(d.handleTrades))

	mux.HandleFunc("/api/prices/sync", d.handlePriceSync)
	mux.HandleFunc("/api/prices/load", d.handlePriceLoad)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		redisOK := true
		if d.Hub.rdb != nil {
			if err := d.Hub.rdb.Ping(r.Context()).Err(); err != nil {
				redisOK = false
			}
		}
		writeJSON(w, map[string]interface{}{
			"status":     "ok",
			"redis":      redisOK,
			"ws_clients": d.Hub.ClientCount(),
			"uptime_sec": int64(time.Since(d.Start).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func (d Deps) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	userID, _ := auth.UserFrom(ctx)

	holdings, err := d.Store.Holdings(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load holdings failed")
		return
	}
	positions, err := d.Store.OptionPositions(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load positions failed")
		return
	}
	funds, err := d.Store.Balance(ctx, userID, d.StartingFunds)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load balance failed")
		return
	}

	open := markethours.IsOpen(d.now())
	valuedHoldings := portfolio.ValueHoldings(ctx, holdings, d.Hub, d.Cache, open)
	valuedOptions := portfolio.ValueOptionPositions(ctx, positions, d.Hub, d.Cache, open)
	totals := portfolio.Aggregate(valuedHoldings)

	writeJSON(w, map[string]interface{}{
		"holdings":   valuedHoldings,
		"options":    valuedOptions,
		"totals":     totals,
		"funds":      pnl.Round2(funds),
		"marketOpen": open,
	})
}

type tradeRequest struct {
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Qty        int64   `json:"qty"`
	LotSize    int64   `json:"lotSize,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Instrument string  `json:"instrument,omitempty"` // "equity" (default) or "option"
}

func (d Deps) handleTrade(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	ctx := logger.WithRequestID(r.Context(), logger.NewRequestID(r.RemoteAddr, d.now()))
	userID, _ := auth.UserFrom(ctx)

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	isOption := req.Instrument == "option" || req.LotSize > 0
	open := markethours.IsOpen(d.now())

	price := d.resolveFillPrice(ctx, userID, req, isOption, open)
	if price <= 0 {
		writeError(w, http.StatusBadRequest, "no price available for "+req.Symbol)
		return
	}

	treq := model.TradeRequest{
		Symbol:  req.Symbol,
		Action:  model.Action(req.Action),
		Qty:     req.Qty,
		LotSize: req.LotSize,
		Price:   price,
	}

	var fill model.Fill
	var err error
	if isOption {
		fill, err = d.Broker.ExecuteOption(ctx, userID, treq)
	} else {
		fill, err = d.Broker.ExecuteEquity(ctx, userID, treq)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("trade filled", append([]any{
		slog.String("order_id", fill.OrderID),
		slog.String("user", userID),
		slog.String("symbol", fill.Symbol),
		slog.String("action", string(fill.Action)),
		slog.Float64("price", fill.Price),
	}, logger.LogWithRequest(ctx)...)...)

	// Remember the fill price so closed-market valuations reconcile to it
	d.Cache.Store(ctx, userID, req.Symbol, price)

	writeJSON(w, map[string]interface{}{"fill": fill})
}

// resolveFillPrice picks the execution price: an explicit request price wins,
// then the effective-price policy over live and cached quotes.
func (d Deps) resolveFillPrice(ctx context.Context, userID string, req tradeRequest, isOption, marketOpen bool) float64 {
	if !math.IsNaN(req.Price) && !math.IsInf(req.Price, 0) && req.Price > 0 {
		return req.Price
	}

	live := math.NaN()
	if p, ok := d.Hub.Latest(req.Symbol); ok {
		live = p
	}
	cached := math.NaN()
	if p, ok := d.Cache.Get(ctx, userID, req.Symbol); ok {
		cached = p
	}

	if isOption {
		return pnl.EffectivePriceAt(marketOpen, live, cached, math.NaN())
	}
	return pnl.EffectivePrice(live, cached, math.NaN())
}

func (d Deps) handleTrades(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	userID, _ := auth.UserFrom(ctx)

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	fills, err := d.Journal.Trades(ctx, userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load trades failed")
		return
	}
	if fills == nil {
		fills = []model.Fill{}
	}
	writeJSON(w, map[string]interface{}{"trades": fills})
}

func (d Deps) handlePriceSync(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req struct {
		Email  string  `json:"email"`
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "email and symbol are required")
		return
	}

	// Invalid prices are silently dropped by the cache, matching the
	// client-side fire-and-forget contract
	d.Cache.Store(r.Context(), req.Email, req.Symbol, req.Price)
	writeJSON(w, map[string]string{"status": "ok"})
}

func (d Deps) handlePriceLoad(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	ctx := r.Context()
	prices, err := d.Store.LastPrices(ctx, req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load prices failed")
		return
	}

	// Overlay the Redis mirror; it may hold prices synced from other devices
	if d.Mirror != nil {
		if mirrored, err := d.Mirror.LoadPrices(ctx, req.Email); err == nil {
			for sym, p := range mirrored {
				if _, ok := prices[sym]; !ok {
					prices[sym] = p
				}
			}
		} else {
			log.Printf("[gateway] mirror load failed for %s: %v", req.Email, err)
		}
	}

	writeJSON(w, map[string]interface{}{"prices": prices})
}

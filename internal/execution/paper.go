// Package execution simulates order execution against the virtual account.
// Fills are instantaneous at the caller-resolved price; there is no real
// broker behind this.
package execution

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"papertrade-backend/internal/metrics"
	"papertrade-backend/internal/model"
	"papertrade-backend/internal/portfolio"
)

// Store is the persistence surface the broker needs.
type Store interface {
	Holdings(ctx context.Context, userID string) ([]model.Holding, error)
	UpsertHolding(ctx context.Context, h model.Holding) error
	OptionPositions(ctx context.Context, userID string) ([]model.OptionPosition, error)
	UpsertOptionPosition(ctx context.Context, p model.OptionPosition) error
	Balance(ctx context.Context, userID string, startingFunds float64) (float64, error)
	SetBalance(ctx context.Context, userID string, funds float64) error
}

// Broker applies simulated fills to holdings and the virtual balance.
type Broker struct {
	mu            sync.Mutex
	store         Store
	journal       *Journal         // may be nil
	m             *metrics.Metrics // may be nil in tests
	startingFunds float64
	orderSeq      int64
	now           func() time.Time
}

// NewBroker creates a paper broker. journal and m may be nil.
func NewBroker(store Store, journal *Journal, m *metrics.Metrics, startingFunds float64) *Broker {
	return &Broker{
		store:         store,
		journal:       journal,
		m:             m,
		startingFunds: startingFunds,
		now:           time.Now,
	}
}

func validFillPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

func (b *Broker) nextOrderID() string {
	b.orderSeq++
	return fmt.Sprintf("PAPER-%d", b.orderSeq)
}

// ExecuteEquity fills an equity BUY/SELL for the user.
// BUY debits price*qty from the virtual balance; SELL credits it.
func (b *Broker) ExecuteEquity(ctx context.Context, userID string, req model.TradeRequest) (model.Fill, error) {
	if userID == "" || req.Symbol == "" {
		return model.Fill{}, fmt.Errorf("user and symbol are required")
	}
	if !req.Action.Valid() {
		return model.Fill{}, fmt.Errorf("invalid action %q", req.Action)
	}
	if req.Qty <= 0 {
		return model.Fill{}, fmt.Errorf("qty must be positive, got %d", req.Qty)
	}
	if !validFillPrice(req.Price) {
		return model.Fill{}, fmt.Errorf("invalid fill price %v", req.Price)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	holding := model.Holding{UserID: userID, Symbol: req.Symbol}
	holdings, err := b.store.Holdings(ctx, userID)
	if err != nil {
		return model.Fill{}, fmt.Errorf("load holdings: %w", err)
	}
	for _, h := range holdings {
		if h.Symbol == req.Symbol {
			holding = h
			break
		}
	}

	funds, err := b.store.Balance(ctx, userID, b.startingFunds)
	if err != nil {
		return model.Fill{}, fmt.Errorf("load balance: %w", err)
	}

	notional := req.Price * float64(req.Qty)

	switch req.Action {
	case model.ActionBuy:
		if notional > funds {
			return model.Fill{}, fmt.Errorf("insufficient funds: need %.2f, have %.2f", notional, funds)
		}
		holding, err = portfolio.ApplyBuy(holding, req.Qty, req.Price)
		if err != nil {
			return model.Fill{}, err
		}
		funds -= notional

	case model.ActionSell:
		holding, err = portfolio.ApplySell(holding, req.Qty)
		if err != nil {
			return model.Fill{}, err
		}
		funds += notional
	}

	if err := b.store.UpsertHolding(ctx, holding); err != nil {
		return model.Fill{}, fmt.Errorf("save holding: %w", err)
	}
	if err := b.store.SetBalance(ctx, userID, funds); err != nil {
		return model.Fill{}, fmt.Errorf("save balance: %w", err)
	}

	fill := model.Fill{
		OrderID:  b.nextOrderID(),
		UserID:   userID,
		Symbol:   req.Symbol,
		Action:   req.Action,
		Qty:      req.Qty,
		Price:    req.Price,
		FilledAt: b.now(),
	}
	b.record(fill)
	return fill, nil
}

// ExecuteOption fills an options trade. A request in the direction of an
// existing position adds lots; the opposite direction closes lots. A fresh
// symbol opens a position with the request's action as its opening leg.
func (b *Broker) ExecuteOption(ctx context.Context, userID string, req model.TradeRequest) (model.Fill, error) {
	if userID == "" || req.Symbol == "" {
		return model.Fill{}, fmt.Errorf("user and symbol are required")
	}
	if !req.Action.Valid() {
		return model.Fill{}, fmt.Errorf("invalid action %q", req.Action)
	}
	if req.Qty <= 0 || req.LotSize <= 0 {
		return model.Fill{}, fmt.Errorf("lots and lot size must be positive, got %d/%d", req.Qty, req.LotSize)
	}
	if !validFillPrice(req.Price) {
		return model.Fill{}, fmt.Errorf("invalid fill price %v", req.Price)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var pos *model.OptionPosition
	positions, err := b.store.OptionPositions(ctx, userID)
	if err != nil {
		return model.Fill{}, fmt.Errorf("load positions: %w", err)
	}
	for i := range positions {
		if positions[i].Symbol == req.Symbol {
			pos = &positions[i]
			break
		}
	}

	funds, err := b.store.Balance(ctx, userID, b.startingFunds)
	if err != nil {
		return model.Fill{}, fmt.Errorf("load balance: %w", err)
	}

	premium := req.Price * float64(req.Qty) * float64(req.LotSize)

	var updated model.OptionPosition
	switch {
	case pos == nil:
		// Opening a fresh position in the request's direction
		updated = model.OptionPosition{
			UserID: userID, Symbol: req.Symbol,
			LotSize: req.LotSize, Action: req.Action,
		}
		updated, err = portfolio.ApplyOptionOpen(updated, req.Qty, req.Price)
		if err != nil {
			return model.Fill{}, err
		}
		if req.Action == model.ActionBuy {
			if premium > funds {
				return model.Fill{}, fmt.Errorf("insufficient funds: need %.2f, have %.2f", premium, funds)
			}
			funds -= premium
		} else {
			// Short premium collector: credit up front
			funds += premium
		}

	case pos.Action == req.Action:
		// Adding lots in the same direction
		updated, err = portfolio.ApplyOptionOpen(*pos, req.Qty, req.Price)
		if err != nil {
			return model.Fill{}, err
		}
		if req.Action == model.ActionBuy {
			if premium > funds {
				return model.Fill{}, fmt.Errorf("insufficient funds: need %.2f, have %.2f", premium, funds)
			}
			funds -= premium
		} else {
			funds += premium
		}

	default:
		// Opposite direction: close lots at the fill price
		updated, err = portfolio.ApplyOptionClose(*pos, req.Qty)
		if err != nil {
			return model.Fill{}, err
		}
		if pos.Action == model.ActionBuy {
			funds += premium
		} else {
			funds -= premium
		}
	}

	if err := b.store.UpsertOptionPosition(ctx, updated); err != nil {
		return model.Fill{}, fmt.Errorf("save position: %w", err)
	}
	if err := b.store.SetBalance(ctx, userID, funds); err != nil {
		return model.Fill{}, fmt.Errorf("save balance: %w", err)
	}

	fill := model.Fill{
		OrderID:  b.nextOrderID(),
		UserID:   userID,
		Symbol:   req.Symbol,
		Action:   req.Action,
		Qty:      req.Qty,
		LotSize:  req.LotSize,
		Price:    req.Price,
		FilledAt: b.now(),
	}
	b.record(fill)
	return fill, nil
}

func (b *Broker) record(fill model.Fill) {
	log.Printf("[paper] %s %s %s qty=%d price=%.2f order=%s",
		fill.UserID, fill.Action, fill.Symbol, fill.Qty, fill.Price, fill.OrderID)
	if b.m != nil {
		b.m.TradesTotal.WithLabelValues(string(fill.Action)).Inc()
	}
	if b.journal == nil {
		return
	}
	if err := b.journal.RecordFill(fill); err != nil {
		log.Printf("[paper] journal write failed for %s: %v", fill.OrderID, err)
	}
}

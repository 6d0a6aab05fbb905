// Package portfolio holds the position math for the paper-trading account:
// applying simulated fills to holdings, valuing them through the
// price-reconciliation engine, and aggregating portfolio totals.
package portfolio

import (
	"errors"
	"fmt"

	"papertrade-backend/internal/model"
	"papertrade-backend/internal/pnl"
)

// ErrInsufficientQty is returned when a SELL exceeds the held quantity.
// Closing more than held is rejected, never clamped: quantity must not go
// negative.
var ErrInsufficientQty = errors.New("insufficient quantity")

// ApplyBuy blends a BUY fill into a holding, creating it when empty.
func ApplyBuy(h model.Holding, qty int64, price float64) (model.Holding, error) {
	if qty <= 0 {
		return h, fmt.Errorf("buy qty must be positive, got %d", qty)
	}
	h.AvgPrice = pnl.AveragePrice(h.Qty, h.AvgPrice, qty, price)
	h.Qty += qty
	return h, nil
}

// ApplySell reduces a holding. The average price is untouched — it is the
// cost basis of what remains.
func ApplySell(h model.Holding, qty int64) (model.Holding, error) {
	if qty <= 0 {
		return h, fmt.Errorf("sell qty must be positive, got %d", qty)
	}
	if qty > h.Qty {
		return h, fmt.Errorf("%w: have %d, want to sell %d", ErrInsufficientQty, h.Qty, qty)
	}
	h.Qty -= qty
	if h.Qty == 0 {
		h.AvgPrice = 0
	}
	return h, nil
}

// ApplyOptionOpen adds lots to a position in the direction of its opening
// action, blending the entry premium.
func ApplyOptionOpen(p model.OptionPosition, lots int64, premium float64) (model.OptionPosition, error) {
	if lots <= 0 {
		return p, fmt.Errorf("lots must be positive, got %d", lots)
	}
	p.EntryPrice = pnl.AveragePrice(p.Lots, p.EntryPrice, lots, premium)
	p.Lots += lots
	return p, nil
}

// ApplyOptionClose reduces an open option position by the given lots.
func ApplyOptionClose(p model.OptionPosition, lots int64) (model.OptionPosition, error) {
	if lots <= 0 {
		return p, fmt.Errorf("lots must be positive, got %d", lots)
	}
	if lots > p.Lots {
		return p, fmt.Errorf("%w: have %d lots, want to close %d", ErrInsufficientQty, p.Lots, lots)
	}
	p.Lots -= lots
	if p.Lots == 0 {
		p.EntryPrice = 0
	}
	return p, nil
}

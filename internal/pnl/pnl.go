// Package pnl is the price-reconciliation and P&L engine.
//
// Every exported function is pure, synchronous, and total: for any input,
// the result is a finite float64. Invalid numeric input (NaN, Inf, zero or
// negative where a positive price/quantity is required) short-circuits to 0
// so a bad quote can never surface as NaN in user-visible totals.
//
// Absent prices are conveyed as NaN or any non-positive value; validity is
// decided by a single predicate so every call site applies the same rule.
package pnl

import "math"

// Round2 rounds to 2 decimal places, the display precision for rupees.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

// validPrice reports whether p is a usable price: finite and positive.
// Zero is not a price — quote APIs return 0 for unknown symbols.
func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

// EffectivePrice resolves the price to value an equity holding at.
// A valid live price always wins, regardless of market status: when a quote
// call actually returned a number the UI prefers it over staleness. Else
// the cached last trading price, else the fallback (typically the entry
// price) clamped to non-negative.
func EffectivePrice(live, cached, fallback float64) float64 {
	if validPrice(live) {
		return live
	}
	if validPrice(cached) {
		return cached
	}
	if validPrice(fallback) {
		return fallback
	}
	return 0
}

// EffectivePriceAt resolves the price for an options position. Unlike the
// equity policy, the live price is consulted only while the market is open;
// when closed the chain goes straight to cached, then fallback. The
// divergence from EffectivePrice is intentional behavioral parity with the
// production app — do not unify without product sign-off.
func EffectivePriceAt(marketOpen bool, live, cached, fallback float64) float64 {
	if marketOpen && validPrice(live) {
		return live
	}
	if validPrice(cached) {
		return cached
	}
	if validPrice(fallback) {
		return fallback
	}
	return 0
}

// Calculate computes equity P&L: (current - avg) * qty, rounded to 2
// decimals. Any NaN/Inf input, non-positive price, or negative quantity
// yields 0 — a negative price is a corrupt quote, not a short position.
func Calculate(avgPrice, currentPrice float64, qty int64) float64 {
	if !validPrice(avgPrice) || !validPrice(currentPrice) || qty < 0 {
		return 0
	}
	return Round2((currentPrice - avgPrice) * float64(qty))
}

// CalculatePercent computes equity P&L percent: (current - avg) / avg * 100.
// Returns 0 unless both prices are valid, so a fresh or corrupt holding
// never divides by zero.
func CalculatePercent(avgPrice, currentPrice float64) float64 {
	if !validPrice(avgPrice) || !validPrice(currentPrice) {
		return 0
	}
	return Round2((currentPrice - avgPrice) / avgPrice * 100)
}

// CalculateOptions computes options P&L, direction-sensitive on the opening
// action:
//
//	BUY:  (current - entry) * lots * lotSize  — profit when premium rises
//	SELL: (entry - current) * lots * lotSize  — profit when premium falls
//
// Any NaN or non-positive price, or non-positive lots/lotSize, yields 0:
// never show a misleading P&L for a half-formed position.
func CalculateOptions(entryPrice, currentPrice float64, lots, lotSize int64, action string) float64 {
	if !validPrice(entryPrice) || !validPrice(currentPrice) || lots <= 0 || lotSize <= 0 {
		return 0
	}
	diff := currentPrice - entryPrice
	if action == "SELL" {
		diff = entryPrice - currentPrice
	}
	return Round2(diff * float64(lots) * float64(lotSize))
}

// CalculateOptionsPercent mirrors the sign convention of CalculateOptions
// relative to the entry premium.
func CalculateOptionsPercent(entryPrice, currentPrice float64, action string) float64 {
	if !validPrice(entryPrice) || !validPrice(currentPrice) {
		return 0
	}
	diff := currentPrice - entryPrice
	if action == "SELL" {
		diff = entryPrice - currentPrice
	}
	return Round2(diff / entryPrice * 100)
}

// AveragePrice blends an additional BUY fill into an existing position's
// quantity-weighted average. Blending into an empty position yields the
// incoming price unchanged.
func AveragePrice(existingQty int64, existingAvg float64, addQty int64, addPrice float64) float64 {
	if math.IsNaN(existingAvg) || math.IsInf(existingAvg, 0) {
		existingAvg = 0
	}
	if math.IsNaN(addPrice) || math.IsInf(addPrice, 0) {
		addPrice = 0
	}
	// An empty position takes the incoming price bit-exact; routing it
	// through the weighted sum loses ulps.
	if existingQty <= 0 {
		return addPrice
	}
	total := existingQty + addQty
	if total <= 0 {
		return addPrice
	}
	return (float64(existingQty)*existingAvg + float64(addQty)*addPrice) / float64(total)
}

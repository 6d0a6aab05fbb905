package portfolio

import (
	"context"
	"math"

	"papertrade-backend/internal/model"
	"papertrade-backend/internal/pnl"
)

// LivePrices supplies the latest polled quote per symbol, when one exists.
// The gateway hub implements this from its PubSub-fed latest map.
type LivePrices interface {
	Latest(symbol string) (float64, bool)
}

// PriceMemo is the last-trading-price cache surface the valuer needs.
type PriceMemo interface {
	Store(ctx context.Context, userID, symbol string, price float64)
	Get(ctx context.Context, userID, symbol string) (float64, bool)
}

// ValueHoldings resolves an effective price per equity holding and derives
// P&L. Equity policy: a valid live price always wins, regardless of market
// status. While the market is open, used live prices are written through to
// the memo so closed-market sessions can reuse them.
func ValueHoldings(ctx context.Context, holdings []model.Holding, live LivePrices, memo PriceMemo, marketOpen bool) []model.ValuedHolding {
	valued := make([]model.ValuedHolding, 0, len(holdings))
	for _, h := range holdings {
		livePrice := math.NaN()
		if p, ok := live.Latest(h.Symbol); ok {
			livePrice = p
		}
		cached := math.NaN()
		if p, ok := memo.Get(ctx, h.UserID, h.Symbol); ok {
			cached = p
		}

		eff := pnl.EffectivePrice(livePrice, cached, h.AvgPrice)

		if marketOpen {
			memo.Store(ctx, h.UserID, h.Symbol, livePrice)
		}

		valued = append(valued, model.ValuedHolding{
			Holding:      h,
			CurrentPrice: eff,
			CurrentValue: pnl.Round2(eff * float64(h.Qty)),
			PnL:          pnl.Calculate(h.AvgPrice, eff, h.Qty),
			PnLPercent:   pnl.CalculatePercent(h.AvgPrice, eff),
		})
	}
	return valued
}

// ValueOptionPositions resolves an effective premium per option position and
// derives direction-sensitive P&L. Options policy: the live premium is
// consulted only while the market is open.
func ValueOptionPositions(ctx context.Context, positions []model.OptionPosition, live LivePrices, memo PriceMemo, marketOpen bool) []model.ValuedOptionPosition {
	valued := make([]model.ValuedOptionPosition, 0, len(positions))
	for _, p := range positions {
		livePrice := math.NaN()
		if q, ok := live.Latest(p.Symbol); ok {
			livePrice = q
		}
		cached := math.NaN()
		if q, ok := memo.Get(ctx, p.UserID, p.Symbol); ok {
			cached = q
		}

		eff := pnl.EffectivePriceAt(marketOpen, livePrice, cached, p.EntryPrice)

		if marketOpen {
			memo.Store(ctx, p.UserID, p.Symbol, livePrice)
		}

		valued = append(valued, model.ValuedOptionPosition{
			OptionPosition: p,
			CurrentPrice:   eff,
			PnL:            pnl.CalculateOptions(p.EntryPrice, eff, p.Lots, p.LotSize, string(p.Action)),
			PnLPercent:     pnl.CalculateOptionsPercent(p.EntryPrice, eff, string(p.Action)),
		})
	}
	return valued
}

// Aggregate sums valued holdings into portfolio totals. Every term is
// NaN-guarded independently so one corrupt holding cannot poison the totals.
func Aggregate(holdings []model.ValuedHolding) model.PortfolioTotals {
	var invested, current float64
	for _, h := range holdings {
		if v := h.AvgPrice * float64(h.Qty); !math.IsNaN(v) && !math.IsInf(v, 0) {
			invested += v
		}
		if !math.IsNaN(h.CurrentValue) && !math.IsInf(h.CurrentValue, 0) {
			current += h.CurrentValue
		}
	}

	totals := model.PortfolioTotals{
		TotalInvested:     pnl.Round2(invested),
		TotalCurrentValue: pnl.Round2(current),
		TotalPnL:          pnl.Round2(current - invested),
	}
	if invested != 0 {
		totals.TotalPnLPercent = pnl.Round2((current - invested) / invested * 100)
	}
	return totals
}

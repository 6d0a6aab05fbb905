package portfolio

import (
	"context"
	"errors"
	"math"
	"testing"

	"papertrade-backend/internal/model"
)

func TestApplyBuy_BlendsAverage(t *testing.T) {
	h := model.Holding{UserID: "u1", Symbol: "TCS.NS"}

	h, err := ApplyBuy(h, 10, 100)
	if err != nil {
		t.Fatal(err)
	}
	if h.Qty != 10 || h.AvgPrice != 100 {
		t.Errorf("first buy: got qty=%d avg=%v", h.Qty, h.AvgPrice)
	}

	h, err = ApplyBuy(h, 10, 120)
	if err != nil {
		t.Fatal(err)
	}
	if h.Qty != 20 || h.AvgPrice != 110 {
		t.Errorf("second buy: got qty=%d avg=%v, want 20/110", h.Qty, h.AvgPrice)
	}
}

func TestApplySell(t *testing.T) {
	h := model.Holding{UserID: "u1", Symbol: "TCS.NS", Qty: 20, AvgPrice: 110}

	h, err := ApplySell(h, 5)
	if err != nil {
		t.Fatal(err)
	}
	if h.Qty != 15 || h.AvgPrice != 110 {
		t.Errorf("partial sell must keep avg: got qty=%d avg=%v", h.Qty, h.AvgPrice)
	}

	// Selling everything resets the cost basis
	h, err = ApplySell(h, 15)
	if err != nil {
		t.Fatal(err)
	}
	if h.Qty != 0 || h.AvgPrice != 0 {
		t.Errorf("full sell: got qty=%d avg=%v", h.Qty, h.AvgPrice)
	}

	// Overselling is rejected, not clamped
	if _, err := ApplySell(model.Holding{Qty: 3}, 5); !errors.Is(err, ErrInsufficientQty) {
		t.Errorf("expected ErrInsufficientQty, got %v", err)
	}
}

func TestApplyOptionOpenClose(t *testing.T) {
	p := model.OptionPosition{UserID: "u1", Symbol: "NIFTY-24000-CE", LotSize: 50, Action: model.ActionBuy}

	p, err := ApplyOptionOpen(p, 2, 70)
	if err != nil {
		t.Fatal(err)
	}
	p, err = ApplyOptionOpen(p, 2, 90)
	if err != nil {
		t.Fatal(err)
	}
	if p.Lots != 4 || p.EntryPrice != 80 {
		t.Errorf("got lots=%d entry=%v, want 4/80", p.Lots, p.EntryPrice)
	}

	p, err = ApplyOptionClose(p, 4)
	if err != nil {
		t.Fatal(err)
	}
	if p.Lots != 0 || p.EntryPrice != 0 {
		t.Errorf("closed position should be empty, got lots=%d entry=%v", p.Lots, p.EntryPrice)
	}

	if _, err := ApplyOptionClose(model.OptionPosition{Lots: 1}, 2); !errors.Is(err, ErrInsufficientQty) {
		t.Errorf("expected ErrInsufficientQty, got %v", err)
	}
}

// ---- valuation fakes ----

type fakeLive map[string]float64

func (f fakeLive) Latest(symbol string) (float64, bool) {
	p, ok := f[symbol]
	return p, ok
}

type fakeMemo struct {
	prices map[string]float64
	writes int
}

func newFakeMemo() *fakeMemo { return &fakeMemo{prices: make(map[string]float64)} }

func (m *fakeMemo) Store(_ context.Context, userID, symbol string, price float64) {
	if math.IsNaN(price) || price <= 0 {
		return
	}
	m.prices[userID+"|"+symbol] = price
	m.writes++
}

func (m *fakeMemo) Get(_ context.Context, userID, symbol string) (float64, bool) {
	p, ok := m.prices[userID+"|"+symbol]
	return p, ok
}

func TestValueHoldings_LiveWinsEvenWhenClosed(t *testing.T) {
	ctx := context.Background()
	holdings := []model.Holding{{UserID: "u1", Symbol: "TCS.NS", Qty: 10, AvgPrice: 100}}
	live := fakeLive{"TCS.NS": 120}
	memo := newFakeMemo()
	memo.Store(ctx, "u1", "TCS.NS", 90)
	memo.writes = 0

	// Market closed, but live quote present: equity policy uses it anyway
	valued := ValueHoldings(ctx, holdings, live, memo, false)
	if valued[0].CurrentPrice != 120 {
		t.Errorf("live price should win: got %v", valued[0].CurrentPrice)
	}
	if valued[0].PnL != 200 || valued[0].PnLPercent != 20 {
		t.Errorf("got pnl=%v pct=%v, want 200/20", valued[0].PnL, valued[0].PnLPercent)
	}
	if memo.writes != 0 {
		t.Error("closed market must not write through to the memo")
	}
}

func TestValueHoldings_FallsBackToCacheThenEntry(t *testing.T) {
	ctx := context.Background()
	holdings := []model.Holding{
		{UserID: "u1", Symbol: "TCS.NS", Qty: 10, AvgPrice: 100},
		{UserID: "u1", Symbol: "INFY.NS", Qty: 5, AvgPrice: 50},
	}
	memo := newFakeMemo()
	memo.Store(ctx, "u1", "TCS.NS", 95)

	valued := ValueHoldings(ctx, holdings, fakeLive{}, memo, false)
	if valued[0].CurrentPrice != 95 {
		t.Errorf("expected cached 95, got %v", valued[0].CurrentPrice)
	}
	if valued[1].CurrentPrice != 50 {
		t.Errorf("expected entry-price fallback 50, got %v", valued[1].CurrentPrice)
	}
}

func TestValueHoldings_WritesThroughWhileOpen(t *testing.T) {
	ctx := context.Background()
	holdings := []model.Holding{{UserID: "u1", Symbol: "TCS.NS", Qty: 10, AvgPrice: 100}}
	memo := newFakeMemo()

	ValueHoldings(ctx, holdings, fakeLive{"TCS.NS": 118}, memo, true)

	if p, ok := memo.Get(ctx, "u1", "TCS.NS"); !ok || p != 118 {
		t.Errorf("open-market valuation should memoize the live price, got %v (ok=%v)", p, ok)
	}
}

func TestValueOptionPositions_GatesLiveOnMarketStatus(t *testing.T) {
	ctx := context.Background()
	positions := []model.OptionPosition{
		{UserID: "u1", Symbol: "NIFTY-24000-CE", Lots: 1, LotSize: 50, EntryPrice: 70, Action: model.ActionBuy},
	}
	live := fakeLive{"NIFTY-24000-CE": 80}
	memo := newFakeMemo()
	memo.Store(ctx, "u1", "NIFTY-24000-CE", 75)

	// Open: live premium used, BUY pnl = (80-70)*1*50
	open := ValueOptionPositions(ctx, positions, live, memo, true)
	if open[0].CurrentPrice != 80 || open[0].PnL != 500 {
		t.Errorf("open: got price=%v pnl=%v, want 80/500", open[0].CurrentPrice, open[0].PnL)
	}

	// The open valuation wrote the live 80 through to memo; use a fresh
	// memo so the gate itself is what's under test
	closedMemo := newFakeMemo()
	closedMemo.Store(ctx, "u1", "NIFTY-24000-CE", 75)

	// Closed: live premium skipped even though present
	closed := ValueOptionPositions(ctx, positions, live, closedMemo, false)
	if closed[0].CurrentPrice != 75 {
		t.Errorf("closed: expected cached 75, got %v", closed[0].CurrentPrice)
	}
	if closed[0].PnL != 250 {
		t.Errorf("closed: expected pnl 250, got %v", closed[0].PnL)
	}
}

func TestValueOptionPositions_SellDirection(t *testing.T) {
	ctx := context.Background()
	positions := []model.OptionPosition{
		{UserID: "u1", Symbol: "NIFTY-24000-PE", Lots: 1, LotSize: 50, EntryPrice: 70, Action: model.ActionSell},
	}

	valued := ValueOptionPositions(ctx, positions, fakeLive{"NIFTY-24000-PE": 80}, newFakeMemo(), true)
	if valued[0].PnL != -500 {
		t.Errorf("SELL position should lose when premium rises: got %v", valued[0].PnL)
	}
}

func TestAggregate(t *testing.T) {
	holdings := []model.ValuedHolding{
		{Holding: model.Holding{AvgPrice: 100, Qty: 10}, CurrentValue: 1200, PnL: 200},
		{Holding: model.Holding{AvgPrice: 50, Qty: 5}, CurrentValue: 200, PnL: -50},
	}

	totals := Aggregate(holdings)
	if totals.TotalInvested != 1250 {
		t.Errorf("invested: got %v, want 1250", totals.TotalInvested)
	}
	if totals.TotalCurrentValue != 1400 {
		t.Errorf("current: got %v, want 1400", totals.TotalCurrentValue)
	}
	if totals.TotalPnL != 150 {
		t.Errorf("pnl: got %v, want 150", totals.TotalPnL)
	}
	if totals.TotalPnLPercent != 12 {
		t.Errorf("pct: got %v, want 12", totals.TotalPnLPercent)
	}
}

func TestAggregate_CorruptHoldingIsIsolated(t *testing.T) {
	holdings := []model.ValuedHolding{
		{Holding: model.Holding{AvgPrice: 100, Qty: 10}, CurrentValue: 1200, PnL: 200},
		{Holding: model.Holding{AvgPrice: math.NaN(), Qty: 5}, CurrentValue: math.NaN(), PnL: math.NaN()},
	}

	totals := Aggregate(holdings)
	if totals.TotalInvested != 1000 || totals.TotalCurrentValue != 1200 {
		t.Errorf("corrupt holding leaked into totals: %+v", totals)
	}
	if math.IsNaN(totals.TotalPnL) || math.IsNaN(totals.TotalPnLPercent) {
		t.Error("totals must never be NaN")
	}
}

func TestAggregate_EmptyPortfolio(t *testing.T) {
	totals := Aggregate(nil)
	if totals.TotalPnLPercent != 0 || totals.TotalPnL != 0 {
		t.Errorf("empty portfolio must be all zeros, got %+v", totals)
	}
}

package pnl

import (
	"math"
	"testing"
)

func TestEffectivePrice_FallbackChain(t *testing.T) {
	// Both live and cached absent — fallback wins
	if got := EffectivePrice(math.NaN(), math.NaN(), 50); got != 50 {
		t.Errorf("expected fallback 50, got %v", got)
	}

	// Zero is not a live price — falls through to cache
	if got := EffectivePrice(0, 45, 50); got != 45 {
		t.Errorf("expected cached 45, got %v", got)
	}

	// Valid live price wins even over a cached one
	if got := EffectivePrice(101.5, 45, 50); got != 101.5 {
		t.Errorf("expected live 101.5, got %v", got)
	}

	// Negative and infinite prices are invalid at every level
	if got := EffectivePrice(-3, math.Inf(1), -1); got != 0 {
		t.Errorf("expected 0 when nothing is valid, got %v", got)
	}
}

func TestEffectivePriceAt_MarketGating(t *testing.T) {
	// Market open: live wins
	if got := EffectivePriceAt(true, 80, 45, 50); got != 80 {
		t.Errorf("open market should use live price, got %v", got)
	}

	// Market closed: live is skipped even when valid
	if got := EffectivePriceAt(false, 80, 45, 50); got != 45 {
		t.Errorf("closed market should use cached price, got %v", got)
	}

	// Closed, no cache — fallback
	if got := EffectivePriceAt(false, 80, math.NaN(), 50); got != 50 {
		t.Errorf("closed market without cache should fall back, got %v", got)
	}

	// Zero live price is invalid even when open
	if got := EffectivePriceAt(true, 0, 45, 50); got != 45 {
		t.Errorf("zero live price should fall through, got %v", got)
	}
}

func TestCalculate_Equity(t *testing.T) {
	if got := Calculate(100, 120, 10); got != 200 {
		t.Errorf("expected pnl 200, got %v", got)
	}
	if got := CalculatePercent(100, 120); got != 20 {
		t.Errorf("expected 20%%, got %v", got)
	}

	// NaN input short-circuits to 0
	if got := Calculate(math.NaN(), 120, 10); got != 0 {
		t.Errorf("NaN avg should give 0, got %v", got)
	}
	if got := Calculate(100, math.NaN(), 10); got != 0 {
		t.Errorf("NaN current should give 0, got %v", got)
	}

	// Zero avg price must not divide by zero
	if got := CalculatePercent(0, 120); got != 0 {
		t.Errorf("zero avg should give 0%%, got %v", got)
	}

	// Negative quantity is rejected upstream; engine returns 0
	if got := Calculate(100, 120, -5); got != 0 {
		t.Errorf("negative qty should give 0, got %v", got)
	}

	// Negative prices are corrupt data, not short positions
	if got := Calculate(-100, 120, 10); got != 0 {
		t.Errorf("negative avg should give 0, got %v", got)
	}
	if got := Calculate(100, -120, 10); got != 0 {
		t.Errorf("negative current should give 0, got %v", got)
	}
	if got := CalculatePercent(-100, 120); got != 0 {
		t.Errorf("negative avg should give 0%%, got %v", got)
	}
	if got := CalculatePercent(100, -120); got != 0 {
		t.Errorf("negative current should give 0%%, got %v", got)
	}
}

func TestCalculateOptions_SignConvention(t *testing.T) {
	// BUY profits when premium rises
	if got := CalculateOptions(70, 80, 1, 50, "BUY"); got != 500 {
		t.Errorf("BUY: expected 500, got %v", got)
	}
	// SELL profits when premium falls — same move, mirrored sign
	if got := CalculateOptions(70, 80, 1, 50, "SELL"); got != -500 {
		t.Errorf("SELL: expected -500, got %v", got)
	}

	if got := CalculateOptionsPercent(70, 80, "BUY"); got != Round2(10.0/70*100) {
		t.Errorf("BUY percent mismatch: got %v", got)
	}
	if got := CalculateOptionsPercent(70, 80, "SELL"); got != Round2(-10.0/70*100) {
		t.Errorf("SELL percent mismatch: got %v", got)
	}
}

func TestCalculateOptions_Validation(t *testing.T) {
	cases := []struct {
		name           string
		entry, current float64
		lots, lotSize  int64
	}{
		{"nan entry", math.NaN(), 80, 1, 50},
		{"zero entry", 0, 80, 1, 50},
		{"negative entry", -70, 80, 1, 50},
		{"zero lots", 70, 80, 0, 50},
		{"zero lot size", 70, 80, 1, 0},
		{"nan current", 70, math.NaN(), 1, 50},
		{"zero current", 70, 0, 1, 50},
		{"negative current", 70, -80, 1, 50},
	}
	for _, c := range cases {
		if got := CalculateOptions(c.entry, c.current, c.lots, c.lotSize, "BUY"); got != 0 {
			t.Errorf("%s: expected 0, got %v", c.name, got)
		}
		if got := CalculateOptionsPercent(c.entry, c.current, "BUY"); got != 0 {
			t.Errorf("%s: expected 0%%, got %v", c.name, got)
		}
	}
}

func TestAveragePrice(t *testing.T) {
	// Blending into an empty position yields the incoming price
	if got := AveragePrice(0, 0, 10, 72.5); got != 72.5 {
		t.Errorf("empty blend: expected 72.5, got %v", got)
	}

	// Bit-exact even for prices that don't survive a 0*avg+qty*price round
	// trip through the weighted sum
	penny := 0.012237389371580124
	if got := AveragePrice(0, 0, 655, penny); got != penny {
		t.Errorf("empty blend must be exact: expected %v, got %v", penny, got)
	}

	// 10 @ 100 + 10 @ 120 = 20 @ 110
	if got := AveragePrice(10, 100, 10, 120); got != 110 {
		t.Errorf("expected 110, got %v", got)
	}

	// Zero total quantity returns the incoming price unchanged
	if got := AveragePrice(0, 100, 0, 55); got != 55 {
		t.Errorf("zero total: expected 55, got %v", got)
	}

	// NaN in an existing avg is treated as zero cost, not propagated
	got := AveragePrice(10, math.NaN(), 10, 120)
	if math.IsNaN(got) {
		t.Error("NaN must not propagate through blending")
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(12.345); got != 12.35 {
		t.Errorf("expected 12.35, got %v", got)
	}
	if got := Round2(math.NaN()); got != 0 {
		t.Errorf("NaN should round to 0, got %v", got)
	}
	if got := Round2(math.Inf(-1)); got != 0 {
		t.Errorf("Inf should round to 0, got %v", got)
	}
}

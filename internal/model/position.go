package model

// Action is the direction of a trade or of an option position's opening leg.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Valid reports whether the action is one of BUY/SELL.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Holding represents an equity holding for a user.
// Symbols are exchange-suffixed, e.g. "RELIANCE.NS".
type Holding struct {
	UserID   string  `json:"user_id"`
	Symbol   string  `json:"symbol"`
	Qty      int64   `json:"qty"`       // shares, never negative
	AvgPrice float64 `json:"avg_price"` // rupees, quantity-weighted across buys
}

// OptionPosition represents an open options position for a user.
// Symbols are composite "index-strike-type", e.g. "NIFTY-24000-CE".
type OptionPosition struct {
	UserID     string  `json:"user_id"`
	Symbol     string  `json:"symbol"`
	Lots       int64   `json:"lots"`
	LotSize    int64   `json:"lot_size"`
	EntryPrice float64 `json:"entry_price"` // premium per unit, rupees
	Action     Action  `json:"action"`      // direction of the opening trade
}

// ValuedHolding is a holding decorated with its effective price and P&L,
// as returned by portfolio valuation.
type ValuedHolding struct {
	Holding
	CurrentPrice float64 `json:"current_price"`
	CurrentValue float64 `json:"current_value"`
	PnL          float64 `json:"pnl"`
	PnLPercent   float64 `json:"pnl_percent"`
}

// ValuedOptionPosition is an option position decorated with P&L.
type ValuedOptionPosition struct {
	OptionPosition
	CurrentPrice float64 `json:"current_price"`
	PnL          float64 `json:"pnl"`
	PnLPercent   float64 `json:"pnl_percent"`
}

// PortfolioTotals aggregates a set of valued holdings.
type PortfolioTotals struct {
	TotalInvested     float64 `json:"total_invested"`
	TotalCurrentValue float64 `json:"total_current_value"`
	TotalPnL          float64 `json:"total_pnl"`
	TotalPnLPercent   float64 `json:"total_pnl_percent"`
}

package model

import "time"

// TradeRequest is what the UI sends to simulate a trade.
// For equities Qty is shares and LotSize is 0; for options Qty is lots
// and LotSize must be positive.
type TradeRequest struct {
	Symbol  string  `json:"symbol"`
	Action  Action  `json:"action"`
	Qty     int64   `json:"qty"`
	LotSize int64   `json:"lot_size,omitempty"`
	Price   float64 `json:"price"` // fill price resolved by the caller
}

// Fill represents a simulated order fill.
type Fill struct {
	OrderID  string    `json:"order_id"`
	UserID   string    `json:"user_id"`
	Symbol   string    `json:"symbol"`
	Action   Action    `json:"action"`
	Qty      int64     `json:"qty"`
	LotSize  int64     `json:"lot_size,omitempty"`
	Price    float64   `json:"price"` // rupees
	FilledAt time.Time `json:"filled_at"`
}

// MarketStatus is the market-hours oracle result. NextOpen is set only
// while the market is closed.
type MarketStatus struct {
	IsOpen   bool       `json:"is_open"`
	Message  string     `json:"message"`
	NextOpen *time.Time `json:"next_open,omitempty"`
}

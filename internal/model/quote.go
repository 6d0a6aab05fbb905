package model

import (
	"encoding/json"
	"time"
)

// Quote represents a single polled quote from the external quote API.
// Price is in rupees; the quote API returns decimal prices as-is.
type Quote struct {
	Symbol  string    `json:"symbol"`
	Price   float64   `json:"price"`
	Premium bool      `json:"premium,omitempty"` // prediction-gated symbol
	TS      time.Time `json:"ts"`                // UTC fetch time
}

// JSON serializes the quote for Redis and WebSocket payloads.
func (q Quote) JSON() []byte {
	b, _ := json.Marshal(q)
	return b
}

// PubSubChannel returns the Redis PubSub channel for this quote's symbol.
func (q Quote) PubSubChannel() string {
	return "pub:quote:" + q.Symbol
}

// LatestKey returns the Redis key holding the latest quote for the symbol.
func (q Quote) LatestKey() string {
	return "quote:latest:" + q.Symbol
}

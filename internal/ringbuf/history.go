package ringbuf

import (
	"sync"

	"papertrade-backend/internal/model"
)

// History is a fixed-size circular buffer of recent quotes per symbol,
// backing the quote-history endpoint. Overwrites oldest entries when full.
//
// Thread-safe for concurrent writes and reads.
type History struct {
	mu     sync.RWMutex
	perSym map[string]*symbolRing
	perCap int
}

type symbolRing struct {
	buf  []model.Quote
	pos  int // next write position
	full bool
}

// NewHistory creates a quote history keeping up to perSymbolCap quotes
// per symbol.
func NewHistory(perSymbolCap int) *History {
	if perSymbolCap <= 0 {
		perSymbolCap = 500
	}
	return &History{
		perSym: make(map[string]*symbolRing),
		perCap: perSymbolCap,
	}
}

// Record appends a quote to its symbol's ring.
func (h *History) Record(q model.Quote) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ring, ok := h.perSym[q.Symbol]
	if !ok {
		ring = &symbolRing{buf: make([]model.Quote, h.perCap)}
		h.perSym[q.Symbol] = ring
	}
	ring.buf[ring.pos] = q
	ring.pos = (ring.pos + 1) % len(ring.buf)
	if ring.pos == 0 && !ring.full {
		ring.full = true
	}
}

// Snapshot returns up to limit most recent quotes for the symbol,
// oldest first. limit <= 0 means all retained quotes.
func (h *History) Snapshot(symbol string, limit int) []model.Quote {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ring, ok := h.perSym[symbol]
	if !ok {
		return nil
	}

	count := ring.pos
	if ring.full {
		count = len(ring.buf)
	}
	if limit > 0 && limit < count {
		count = limit
	}

	out := make([]model.Quote, 0, count)
	total := ring.pos
	if ring.full {
		total = len(ring.buf)
	}
	start := total - count
	for i := start; i < total; i++ {
		idx := i
		if ring.full {
			idx = (ring.pos + i) % len(ring.buf)
		}
		out = append(out, ring.buf[idx])
	}
	return out
}

// Symbols returns the symbols with recorded history.
func (h *History) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.perSym))
	for sym := range h.perSym {
		out = append(out, sym)
	}
	return out
}

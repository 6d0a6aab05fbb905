package quotes

import (
	"context"
	"log"
	"time"

	"papertrade-backend/internal/markethours"
	"papertrade-backend/internal/metrics"
	"papertrade-backend/internal/model"
	"papertrade-backend/internal/ringbuf"
)

// Fetcher retrieves a single quote. Implemented by Client.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (model.Quote, error)
}

// Publisher fans a quote out. Implemented by the Redis store client.
type Publisher interface {
	PublishQuote(ctx context.Context, q model.Quote)
}

// Poller fetches all watched symbols on a fixed interval while the market is
// open and hands them to the publisher through an SPSC ring, so a slow Redis
// never stalls the fetch loop.
type Poller struct {
	fetcher  Fetcher
	pub      Publisher
	symbols  []string
	interval time.Duration
	ring     *ringbuf.Ring
	m        *metrics.Metrics // may be nil in tests
	health   *metrics.HealthStatus
	now      func() time.Time
}

// NewPoller creates a poller. m and health may be nil.
func NewPoller(fetcher Fetcher, pub Publisher, symbols []string, interval time.Duration, m *metrics.Metrics, health *metrics.HealthStatus) *Poller {
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	if interval > 60*time.Second {
		interval = 60 * time.Second
	}
	return &Poller{
		fetcher:  fetcher,
		pub:      pub,
		symbols:  symbols,
		interval: interval,
		ring:     ringbuf.New(4 * len(symbols)),
		m:        m,
		health:   health,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled. It polls only during market hours;
// outside them the loop idles on the ticker.
func (p *Poller) Run(ctx context.Context) {
	go p.drain(ctx)

	log.Printf("[poller] watching %d symbols every %s", len(p.symbols), p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	wasOpen := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			open := markethours.IsOpen(p.now())
			if open != wasOpen {
				log.Printf("[poller] market %s", map[bool]string{true: "open, polling", false: "closed, idle"}[open])
				wasOpen = open
			}
			if p.m != nil {
				if open {
					p.m.MarketState.Set(1)
				} else {
					p.m.MarketState.Set(0)
				}
			}
			if !open {
				continue
			}
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches every watched symbol once and enqueues the results.
func (p *Poller) PollOnce(ctx context.Context) {
	start := time.Now()
	for _, symbol := range p.symbols {
		q, err := p.fetcher.Fetch(ctx, symbol)
		if err != nil {
			log.Printf("[poller] %v", err)
			if p.m != nil {
				p.m.QuoteErrors.WithLabelValues(symbol).Inc()
			}
			continue
		}
		if p.m != nil {
			p.m.QuotesFetched.Inc()
		}
		if p.health != nil {
			p.health.SetLastQuoteTime(q.TS)
		}
		if !p.ring.Push(q) {
			log.Printf("[poller] ring full, dropping quote for %s", symbol)
			if p.m != nil {
				p.m.QuotesDropped.Inc()
			}
		}
	}
	if p.m != nil {
		p.m.QuotePollDur.Observe(time.Since(start).Seconds())
	}
}

// drain is the consumer side of the ring: publish everything queued, then
// nap briefly when empty.
func (p *Poller) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		q, ok := p.ring.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		p.pub.PublishQuote(ctx, q)
	}
}

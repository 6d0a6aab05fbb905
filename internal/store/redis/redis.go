// Package redis wraps the Redis client for quote distribution and the
// best-effort price-cache mirror. Mirror writes are cache warming, not
// transactions: failures are logged and dropped.
package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"papertrade-backend/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	latestQuoteTTL = 30 * time.Minute
	mirrorTTL      = 7 * 24 * time.Hour
)

// Config configures the Redis client.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Client wraps go-redis for quotes and the per-user price mirror.
type Client struct {
	rdb *goredis.Client
}

// Redis returns the underlying client for PubSub subscriptions and health checks.
func (c *Client) Redis() *goredis.Client { return c.rdb }

// New creates a Client and pings the server.
func New(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Client{rdb: rdb}, nil
}

// PublishQuote stores the latest quote and fans it out over PubSub in a
// single pipeline.
func (c *Client) PublishQuote(ctx context.Context, q model.Quote) {
	data := string(q.JSON())

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, q.LatestKey(), data, latestQuoteTTL)
	pipe.Publish(ctx, q.PubSubChannel(), data)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] quote pipeline error for %s: %v", q.Symbol, err)
	}
}

// mirrorKey is the per-user hash holding symbol -> price.
func mirrorKey(userID string) string {
	return "ltp:" + userID
}

// MirrorPrice upserts one price into the user's mirror hash.
// Best-effort: the error is returned for logging but callers never
// propagate it.
func (c *Client) MirrorPrice(ctx context.Context, userID, symbol string, price float64) error {
	key := mirrorKey(userID)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, symbol, price)
	pipe.Expire(ctx, key, mirrorTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// LoadPrices returns the user's full mirror map (symbol -> price).
// Unparseable fields are skipped.
func (c *Client) LoadPrices(ctx context.Context, userID string) (map[string]float64, error) {
	fields, err := c.rdb.HGetAll(ctx, mirrorKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %s: %w", mirrorKey(userID), err)
	}

	prices := make(map[string]float64, len(fields))
	for symbol, raw := range fields {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || p <= 0 {
			continue
		}
		prices[symbol] = p
	}
	return prices, nil
}

// ClearPrices drops the user's mirror hash.
func (c *Client) ClearPrices(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, mirrorKey(userID)).Err()
}

// Close closes the Redis client.
func (c *Client) Close() error {
	return c.rdb.Close()
}

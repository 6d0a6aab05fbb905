package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Quote source
	QuoteAPIBaseURL string
	QuoteAPIKey     string
	PollInterval    time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	GatewayAddr   string

	// Auth & accounts
	TOTPSecret    string
	SessionTTL    time.Duration
	StartingFunds float64

	// Symbol universe (comma-separated)
	WatchedSymbols string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		QuoteAPIBaseURL: getEnv("QUOTE_API_BASE_URL", "https://quote-api.example.com"),
		QuoteAPIKey:     getEnv("QUOTE_API_KEY", ""),
		PollInterval:    getDuration("POLL_INTERVAL", 15*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/papertrade.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9100"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),

		TOTPSecret:    mustEnv("TOTP_SECRET"),
		SessionTTL:    getDuration("SESSION_TTL", 12*time.Hour),
		StartingFunds: getFloat("STARTING_FUNDS", 1000000),

		// Default universe: indices, a few large caps, metals
		WatchedSymbols: getEnv("WATCHED_SYMBOLS", "NIFTY,BANKNIFTY,RELIANCE.NS,TCS.NS,HDFCBANK.NS,GOLD,SILVER"),
	}
}

// ParseSymbols splits the WatchedSymbols list into a clean slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.WatchedSymbols, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		symbols = append(symbols, p)
	}
	return symbols
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] ignoring invalid duration %s=%q", key, v)
		return fallback
	}
	return d
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		log.Printf("[config] ignoring invalid number %s=%q", key, v)
		return fallback
	}
	return f
}

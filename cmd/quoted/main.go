// quoted polls the upstream quote API during NSE market hours and fans the
// quotes out through Redis for the API gateway and valuation code.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"papertrade-backend/config"
	"papertrade-backend/internal/logger"
	"papertrade-backend/internal/markethours"
	"papertrade-backend/internal/metrics"
	"papertrade-backend/internal/quotes"
	redisstore "papertrade-backend/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[quoted] starting...")

	cfg := config.Load()
	logger.Init("quoted", slog.LevelInfo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rds, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[quoted] redis: %v", err)
	}
	defer rds.Close()

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.StartLivenessChecker(ctx, rds.Redis(), nil, 15*time.Second)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	symbols := cfg.ParseSymbols()
	client := quotes.NewClient(cfg.QuoteAPIBaseURL, cfg.QuoteAPIKey, 5*time.Second)
	poller := quotes.NewPoller(client, rds, symbols, cfg.PollInterval, m, health)

	// Session transitions on the NSE clock. The per-tick gate lives in the
	// poller; cron gives crisp open/close logs and an immediate first poll
	// at the bell instead of waiting out the interval.
	sched := cron.New(cron.WithLocation(markethours.IST))
	sched.AddFunc("15 9 * * 1-5", func() {
		now := time.Now()
		if markethours.IsHoliday(now) {
			log.Println("[quoted] market holiday, staying idle")
			return
		}
		log.Println("[quoted] session open")
		m.MarketState.Set(1)
		poller.PollOnce(ctx)
	})
	sched.AddFunc("30 15 * * 1-5", func() {
		log.Println("[quoted] session close")
		m.MarketState.Set(0)
	})
	sched.Start()
	defer sched.Stop()

	go poller.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[quoted] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
}

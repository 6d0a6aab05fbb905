// server is the API gateway: REST + WebSocket for the paper-trading web UI.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papertrade-backend/config"
	"papertrade-backend/internal/auth"
	"papertrade-backend/internal/execution"
	"papertrade-backend/internal/gateway"
	"papertrade-backend/internal/logger"
	"papertrade-backend/internal/metrics"
	"papertrade-backend/internal/pricecache"
	redisstore "papertrade-backend/internal/store/redis"
	sqlitestore "papertrade-backend/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[server] starting...")

	cfg := config.Load()
	logger.Init("server", slog.LevelInfo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[server] sqlite: %v", err)
	}
	defer store.Close()

	rds, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[server] redis: %v", err)
	}
	defer rds.Close()

	journal, err := execution.NewJournal(store.DB())
	if err != nil {
		log.Fatalf("[server] journal: %v", err)
	}

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.StartLivenessChecker(ctx, rds.Redis(), store.DB(), 15*time.Second)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	cache := pricecache.New(store, rds, m)
	broker := execution.NewBroker(store, journal, m, cfg.StartingFunds)
	authMgr := auth.NewManager(cfg.TOTPSecret, cfg.SessionTTL)

	hub := gateway.NewHub(rds.Redis(), m, 500)
	go hub.Run(ctx)
	go hub.StartStatusBroadcast(ctx, 30*time.Second)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, gateway.Deps{
		Hub:           hub,
		Auth:          authMgr,
		Store:         store,
		Cache:         cache,
		Broker:        broker,
		Journal:       journal,
		Mirror:        rds,
		StartingFunds: cfg.StartingFunds,
		Start:         time.Now(),
	})

	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[server] serving at http://localhost%s", cfg.GatewayAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[server] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[server] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/coinfolio/tax-engine/internal/accounting"
	"github.com/coinfolio/tax-engine/internal/config"
	"github.com/coinfolio/tax-engine/internal/metrics"
	"github.com/coinfolio/tax-engine/internal/pricing"
	"github.com/coinfolio/tax-engine/internal/service"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// --- Initialize price source ---
	var source pricing.Source
	var prices service.ObservationStore
	var cleanup []func()

	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := pricing.NewPostgresSource(pool)
		source = pg
		prices = pg
		slog.Info("connected to PostgreSQL")

	case cfg.PriceAPIURL != "":
		source = pricing.NewRemoteSource(cfg.PriceAPIURL)
		slog.Info("using remote price API", "url", cfg.PriceAPIURL)

	default:
		slog.Warn("no DATABASE_URL or PRICE_API_URL set, using in-memory prices (data will not persist)")
		mem := pricing.NewMemorySource()
		source = mem
		prices = mem
	}

	// Wrap with Redis read-through cache if configured.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		source = pricing.NewCachedSource(source, rdb, 24*time.Hour)
		slog.Info("Redis cache enabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	resolver := pricing.NewResolver(source, cfg.ProfitCurrency)

	// --- Accountant ---
	acct, err := accounting.New(resolver, accounting.Config{
		ProfitCurrency:            cfg.ProfitCurrency,
		IgnoredAssets:             cfg.IgnoredAssets,
		CountProfitForSettlements: cfg.CountProfitForSettlements,
	})
	if err != nil {
		slog.Error("accountant init failed", "err", err)
		os.Exit(1)
	}

	// --- WebSocket hub ---
	hub := service.NewRunHub()
	go hub.Run()

	// --- Report service ---
	svc := service.NewService(acct, prices, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"tax-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for run lifecycle events.
		r.Get("/ws", hub.HandleWS)

		// Report runs.
		r.Post("/reports", svc.RunReport)

		// Price observation ingest.
		r.Post("/prices", svc.AddPrice)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("tax-engine listening", "port", cfg.Port, "profit_currency", cfg.ProfitCurrency)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down tax-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("tax-engine stopped")
}

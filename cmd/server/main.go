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

	"github.com/tradesim/engine/internal/ledger"
	"github.com/tradesim/engine/internal/metrics"
	"github.com/tradesim/engine/internal/quote"
	"github.com/tradesim/engine/internal/store"
	"github.com/tradesim/engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Quote gateway ---
	var quotes quote.Gateway
	if quoteURL := os.Getenv("QUOTE_URL"); quoteURL != "" {
		quotes = quote.NewHTTPGateway(nil, quoteURL)
		slog.Info("quote gateway configured", "url", quoteURL)

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })

			ttl := 15 * time.Second
			if raw := os.Getenv("QUOTE_CACHE_TTL"); raw != "" {
				parsed, err := time.ParseDuration(raw)
				if err != nil {
					slog.Error("invalid QUOTE_CACHE_TTL", "err", err)
					os.Exit(1)
				}
				ttl = parsed
			}
			quotes = quote.NewCachedGateway(quotes, rdb, ttl)
			slog.Info("quote cache enabled", "ttl", ttl)
		}
	} else {
		slog.Warn("QUOTE_URL not set, using empty static quotes (all symbols untraded)")
		quotes = quote.NewStaticGateway()
	}

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Trading engine + HTTP service ---
	eng := ledger.New(st, quotes, logger)
	tradeSvc := trade.NewService(st, eng, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
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
		w.Write([]byte(`{"status":"ok","service":"tradesim-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade updates.
		r.Get("/ws", wsHub.HandleWS)

		// Game lifecycle.
		r.Get("/games", tradeSvc.ListGames)
		r.Post("/games", tradeSvc.CreateGame)
		r.Get("/games/{gameID}", tradeSvc.GetGame)
		r.Get("/games/{gameID}/leaderboard", tradeSvc.GetLeaderboard)
		r.Post("/games/{gameID}/conclude", tradeSvc.ConcludeGame)
		r.Post("/games/{gameID}/portfolios", tradeSvc.CreatePortfolio)

		// Portfolio queries and trading.
		r.Get("/portfolios/{portfolioID}", tradeSvc.GetPortfolio)
		r.Delete("/portfolios/{portfolioID}", tradeSvc.DeletePortfolio)
		r.Get("/portfolios/{portfolioID}/transactions", tradeSvc.ListTransactions)
		r.Post("/portfolios/{portfolioID}/holdings/buy", tradeSvc.BuyHolding)
		r.Post("/portfolios/{portfolioID}/holdings/sell", tradeSvc.SellHolding)
		r.Post("/portfolios/{portfolioID}/options/buy", tradeSvc.BuyOption)
		r.Post("/portfolios/{portfolioID}/options/sell", tradeSvc.SellOption)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("tradesim-engine listening", "port", port)
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

	slog.Info("shutting down tradesim-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("tradesim-engine stopped")
}

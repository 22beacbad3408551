// Package metrics provides Prometheus instrumentation for the trading engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by trade type
	// (BUY, SELL, BUY CALL, SELL PUT, ...).
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesim_trades_total",
		Help: "Total number of trades executed",
	}, []string{"type"})

	// TradeRejections counts failed trade operations by failure kind.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesim_trade_rejections_total",
		Help: "Trade operations rejected, by reason",
	}, []string{"reason"})

	// QuoteLatency tracks pricing gateway lookup latency by side.
	QuoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradesim_quote_latency_seconds",
		Help:    "Pricing gateway lookup latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// LeaderboardRecomputes counts full game ranking passes.
	LeaderboardRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradesim_leaderboard_recomputes_total",
		Help: "Number of full leaderboard ranking passes",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradesim_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradesim_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

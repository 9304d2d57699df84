// Package metrics provides Prometheus instrumentation for the trading core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GuardChecks counts guard evaluations by outcome ("pass" or "block").
	GuardChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxtrader_guard_checks_total",
		Help: "Guard evaluations by outcome",
	}, []string{"outcome"})

	// RiskViolations counts risk violations by code.
	RiskViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxtrader_risk_violations_total",
		Help: "Risk limit violations by code",
	}, []string{"code"})

	// TradesTotal counts ledger trades by strategy and mode ("paper" or "live").
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxtrader_trades_total",
		Help: "Trades recorded in the ledger",
	}, []string{"strategy", "mode"})

	// ExecutionFailures counts executions that failed pre-flight or placement.
	ExecutionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxtrader_execution_failures_total",
		Help: "Failed executions by reason",
	}, []string{"reason"})

	// SettledTrades counts trades settled, by result ("win" or "loss").
	SettledTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxtrader_settled_trades_total",
		Help: "Trades settled by result",
	}, []string{"result"})

	// ObservationFetches counts observation lookups by outcome.
	ObservationFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxtrader_observation_fetches_total",
		Help: "Observation lookups by outcome",
	}, []string{"outcome"})

	// JournalErrors counts history records that could not be written.
	JournalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wxtrader_journal_errors_total",
		Help: "History journal write failures",
	})

	// Balance tracks the last observed ledger balance in dollars.
	Balance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wxtrader_balance_dollars",
		Help: "Ledger balance",
	})

	// OpenPositions tracks the last observed count of unsettled trades.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wxtrader_open_positions",
		Help: "Unsettled trades",
	})

	// PendingRecommendations tracks proposals awaiting approval.
	PendingRecommendations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wxtrader_pending_recommendations",
		Help: "Recommendations awaiting approval",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxtrader_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wxtrader_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics. The chi route pattern is used as the
// path label when available to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Package server exposes a read-only HTTP view of the ledger, pending
// recommendations, risk status and history, plus Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/wxtrader/journal"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/logs"
	"github.com/rustyeddy/wxtrader/market"
	"github.com/rustyeddy/wxtrader/metrics"
	"github.com/rustyeddy/wxtrader/pending"
	"github.com/rustyeddy/wxtrader/risk"
)

// Deps are the stores the server reads. Journal may be nil.
type Deps struct {
	Ledger   *ledger.Store
	Pending  *pending.Store
	Risk     *risk.Manager
	Stations *market.Registry
	Journal  journal.Journal
}

type Server struct {
	Deps
	router chi.Router
}

func New(d Deps) *Server {
	if d.Journal == nil {
		d.Journal = journal.Nop{}
	}
	s := &Server{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ledger", s.getLedger)
		r.Get("/positions", s.getPositions)
		r.Get("/trades/{tradeID}", s.getTrade)
		r.Get("/pending", s.listPending)
		r.Get("/pending/{recID}", s.getPending)
		r.Get("/risk", s.getRisk)
		r.Get("/stations", s.listStations)
		r.Get("/stations/{stationID}", s.getStation)
		r.Get("/history", s.getHistory)
		r.Get("/history/trades", s.getHistoryTrades)
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logs.Infof("status server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logs.Info("shutting down status server")
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logs.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start),
			"req_id":   middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.WithError(err).Warn("encode response")
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

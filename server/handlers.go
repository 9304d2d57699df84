package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rustyeddy/wxtrader/journal"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/market"
	"github.com/rustyeddy/wxtrader/pending"
)

type ledgerView struct {
	Balance       float64                `json:"balance"`
	PeakBalance   float64                `json:"peakBalance"`
	TotalPnL      float64                `json:"totalPnl"`
	OpenPositions int                    `json:"openPositions"`
	Exposure      float64                `json:"exposure"`
	Trades        []ledger.Trade         `json:"trades"`
	Settlements   []ledger.SettlementRun `json:"settlements"`
}

// getLedger handles GET /api/v1/ledger
func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	l, err := s.Ledger.Load()
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	v := ledgerView{
		Balance:       l.Balance,
		PeakBalance:   l.PeakBalance,
		TotalPnL:      l.TotalPnL(),
		OpenPositions: len(l.Open()),
		Exposure:      l.TotalExposure(),
		Trades:        l.Trades,
		Settlements:   l.Settlements,
	}
	if v.Trades == nil {
		v.Trades = []ledger.Trade{}
	}
	if v.Settlements == nil {
		v.Settlements = []ledger.SettlementRun{}
	}
	writeJSON(w, http.StatusOK, v)
}

// getPositions handles GET /api/v1/positions
func (s *Server) getPositions(w http.ResponseWriter, r *http.Request) {
	open, err := s.Ledger.OpenPositions()
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if open == nil {
		open = []ledger.Trade{}
	}
	writeJSON(w, http.StatusOK, open)
}

// getTrade handles GET /api/v1/trades/{tradeID}
func (s *Server) getTrade(w http.ResponseWriter, r *http.Request) {
	t, err := s.Ledger.Trade(chi.URLParam(r, "tradeID"))
	if errors.Is(err, ledger.ErrTradeNotFound) {
		writeError(w, "trade not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// listPending handles GET /api/v1/pending. ?all=1 includes settled
// recommendations.
func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	var (
		recs []pending.Recommendation
		err  error
	)
	if r.URL.Query().Get("all") != "" {
		recs, err = s.Pending.All()
	} else {
		recs, err = s.Pending.Active()
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []pending.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// getPending handles GET /api/v1/pending/{recID}
func (s *Server) getPending(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Pending.Find(chi.URLParam(r, "recID"))
	if errors.Is(err, pending.ErrNotFound) {
		writeError(w, "recommendation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// getRisk handles GET /api/v1/risk
func (s *Server) getRisk(w http.ResponseWriter, r *http.Request) {
	st, err := s.Risk.Status()
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type stationView struct {
	market.Station
	Tradeable      bool    `json:"tradeable"`
	EffectiveSigma float64 `json:"effective_sigma"`
}

func (s *Server) stationView(st market.Station) stationView {
	month := int(time.Now().UTC().Month())
	return stationView{
		Station:        st,
		Tradeable:      st.Tradeable(),
		EffectiveSigma: s.Stations.EffectiveSigma(st.ID, month, 0),
	}
}

// listStations handles GET /api/v1/stations
func (s *Server) listStations(w http.ResponseWriter, r *http.Request) {
	ids := s.Stations.IDs()
	out := make([]stationView, 0, len(ids))
	for _, id := range ids {
		st, _ := s.Stations.Get(id)
		out = append(out, s.stationView(st))
	}
	writeJSON(w, http.StatusOK, out)
}

// getStation handles GET /api/v1/stations/{stationID}. City codes resolve
// to their station.
func (s *Server) getStation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.Stations.Resolve(chi.URLParam(r, "stationID"))
	if !ok {
		writeError(w, "station not found", http.StatusNotFound)
		return
	}
	st, _ := s.Stations.Get(id)
	writeJSON(w, http.StatusOK, s.stationView(st))
}

// getHistory handles GET /api/v1/history
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Journal.Summary()
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// getHistoryTrades handles GET /api/v1/history/trades?from=&to=
func (s *Server) getHistoryTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			writeError(w, "dates must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	recs, err := s.Journal.Trades(from, to)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []journal.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

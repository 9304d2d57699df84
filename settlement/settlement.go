// Package settlement resolves open trades against observed outcomes.
package settlement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/iter"

	"github.com/rustyeddy/wxtrader/journal"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/logs"
	"github.com/rustyeddy/wxtrader/metrics"
)

// NoObservations is the Report.Error when no station returned data.
const NoObservations = "no observations available"

// Observer returns the realized outcome for a station on a date. A nil
// observation with a nil error means no data yet.
type Observer interface {
	Observe(ctx context.Context, station, date string) (*ledger.Observation, error)
}

// Report is the outcome of a settlement pass or preview.
type Report struct {
	Date         string                        `json:"date"`
	Preview      bool                          `json:"preview,omitempty"`
	Stations     []string                      `json:"stations"`
	Observations map[string]ledger.Observation `json:"observations"`
	Unavailable  map[string]string             `json:"unavailable,omitempty"`
	Results      []ledger.Result               `json:"results"`
	Anomalies    []ledger.Anomaly              `json:"anomalies,omitempty"`
	Balance      float64                       `json:"balance"`
	Error        string                        `json:"error,omitempty"`
}

// Wins counts winning results.
func (r Report) Wins() int {
	return ledger.SettleReport{Results: r.Results}.Wins()
}

// PnL sums realized P&L over the results.
func (r Report) PnL() float64 {
	return ledger.SettleReport{Results: r.Results}.PnL()
}

// Engine fetches observations for stations with open trades and settles
// the ledger against them.
type Engine struct {
	ledger      *ledger.Store
	observer    Observer
	journal     *journal.Recorder
	concurrency int
}

// New returns an engine. j may be nil.
func New(l *ledger.Store, o Observer, j *journal.Recorder) *Engine {
	return &Engine{ledger: l, observer: o, journal: j, concurrency: 4}
}

// WithConcurrency bounds the number of parallel observation fetches.
func (e *Engine) WithConcurrency(n int) *Engine {
	if n > 0 {
		e.concurrency = n
	}
	return e
}

// Settle settles date. When no observation is available the ledger is not
// written and Report.Error explains why.
func (e *Engine) Settle(ctx context.Context, date string) (Report, error) {
	rep, l, err := e.prepare(ctx, date)
	if err != nil || rep.Error != "" {
		return rep, err
	}

	sr, err := e.ledger.SettleDate(date, rep.Observations)
	if err != nil {
		return rep, err
	}
	rep.Results = nonNil(sr.Results)
	rep.Anomalies = sr.Anomalies
	rep.Balance = sr.Balance

	for _, r := range sr.Results {
		outcome := "loss"
		if r.Won {
			outcome = "win"
		}
		metrics.SettledTrades.WithLabelValues(outcome).Inc()
		e.recordObservation(date, l, r)
	}
	for _, a := range sr.Anomalies {
		logs.WithFields(logrus.Fields{"trade": a.TradeID, "contract": a.Contract}).Warn(a.Reason)
	}
	logs.WithFields(logrus.Fields{
		"date":    date,
		"settled": len(sr.Results),
		"wins":    sr.Wins(),
		"pnl":     sr.PnL(),
		"balance": sr.Balance,
	}).Info("settlement complete")
	return rep, nil
}

// Verify previews how date would settle without writing the ledger.
func (e *Engine) Verify(ctx context.Context, date string) (Report, error) {
	rep, l, err := e.prepare(ctx, date)
	rep.Preview = true
	if err != nil || rep.Error != "" {
		return rep, err
	}
	results, anomalies := ledger.Resolve(l, date, rep.Observations)
	rep.Results = nonNil(results)
	rep.Anomalies = anomalies
	rep.Balance = l.Balance
	return rep, nil
}

// prepare loads the ledger and fetches observations for every station with
// an open trade.
func (e *Engine) prepare(ctx context.Context, date string) (Report, *ledger.Ledger, error) {
	rep := Report{
		Date:         date,
		Observations: map[string]ledger.Observation{},
		Results:      []ledger.Result{},
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return rep, nil, fmt.Errorf("settle: bad date %q: %w", date, err)
	}

	l, err := e.ledger.Load()
	if err != nil {
		return rep, nil, err
	}
	rep.Balance = l.Balance
	rep.Stations = openStations(l)

	type fetched struct {
		obs *ledger.Observation
		err error
	}
	mapper := iter.Mapper[string, fetched]{MaxGoroutines: e.concurrency}
	out := mapper.Map(rep.Stations, func(st *string) fetched {
		obs, err := e.observer.Observe(ctx, *st, date)
		return fetched{obs, err}
	})

	for i, st := range rep.Stations {
		f := out[i]
		switch {
		case f.err != nil:
			logs.WithFields(logrus.Fields{"station": st, "date": date}).WithError(f.err).Warn("observation unavailable")
			rep.unavailable(st, f.err.Error())
		case f.obs == nil:
			rep.unavailable(st, "no data")
		default:
			obs := *f.obs
			obs.Station = st
			if obs.Date == "" {
				obs.Date = date
			}
			rep.Observations[st] = obs
		}
	}
	if len(rep.Observations) == 0 {
		rep.Error = NoObservations
	}
	return rep, l, nil
}

func (r *Report) unavailable(station, reason string) {
	if r.Unavailable == nil {
		r.Unavailable = map[string]string{}
	}
	r.Unavailable[station] = reason
}

func (e *Engine) recordObservation(date string, l *ledger.Ledger, r ledger.Result) {
	rec := journal.ObservationRecord{
		Date:     date,
		Station:  r.Station,
		Contract: r.Contract,
		Actual:   r.Actual,
	}
	if t, ok := l.Find(r.TradeID); ok {
		if f, ok := t.Metadata["forecast"]; ok {
			fe := ledger.Cents(r.Actual - f)
			rec.ForecastError = &fe
		}
	}
	e.journal.Observation(rec)
}

// openStations lists the distinct stations of unsettled trades, sorted.
func openStations(l *ledger.Ledger) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range l.Open() {
		if t.Station == "" || seen[t.Station] {
			continue
		}
		seen[t.Station] = true
		out = append(out, t.Station)
	}
	sort.Strings(out)
	return out
}

func nonNil(r []ledger.Result) []ledger.Result {
	if r == nil {
		return []ledger.Result{}
	}
	return r
}

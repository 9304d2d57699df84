// Package guard runs the hard pre-trade admission rules. A trade that fails
// any rule must not be placed.
package guard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rustyeddy/wxtrader/config"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/market"
	"github.com/rustyeddy/wxtrader/metrics"
)

// Candidate is a proposed trade as seen by the guard.
type Candidate struct {
	Station        string   `json:"station"`
	Qty            int      `json:"qty"`
	ForecastSpread *float64 `json:"forecastSpread,omitempty"` // disagreement between forecast models
	MarketSigma    *float64 `json:"marketSigma,omitempty"`    // market-implied uncertainty
	OurSigma       *float64 `json:"ourSigma,omitempty"`       // overrides the station's effective sigma
	Forecast       *float64 `json:"forecast,omitempty"`       // model point estimate
	Date           string   `json:"date,omitempty"`           // YYYY-MM-DD; empty means today (UTC)
	BidAskSpread   *float64 `json:"bidAskSpread,omitempty"`
}

// Result is the outcome of an admission check. Pass is true iff Reasons is
// empty; Warnings never block.
type Result struct {
	Pass     bool     `json:"pass"`
	Reasons  []string `json:"reasons"`
	Warnings []string `json:"warnings"`
}

func (r *Result) block(format string, args ...any) {
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// LedgerReader supplies ledger snapshots.
type LedgerReader interface {
	Load() (*ledger.Ledger, error)
}

// Engine evaluates candidates against the guard thresholds and station data.
type Engine struct {
	cfg      config.GuardConfig
	stations *market.Registry
	ledger   LedgerReader
	now      func() time.Time
}

// New returns an engine. l may be nil when only Evaluate is used.
func New(cfg config.GuardConfig, stations *market.Registry, l LedgerReader) *Engine {
	return &Engine{cfg: cfg, stations: stations, ledger: l, now: time.Now}
}

// WithClock overrides the time source used to default the candidate date.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Check loads a fresh ledger snapshot and evaluates c against it.
func (e *Engine) Check(c Candidate) (Result, error) {
	if e.ledger == nil {
		return Result{}, fmt.Errorf("guard: no ledger configured")
	}
	l, err := e.ledger.Load()
	if err != nil {
		return Result{}, err
	}
	r := e.Evaluate(l, c)
	if r.Pass {
		metrics.GuardChecks.WithLabelValues("pass").Inc()
	} else {
		metrics.GuardChecks.WithLabelValues("block").Inc()
	}
	return r, nil
}

// Evaluate runs every rule against the snapshot and collects all failures.
// It does not modify l and depends only on its arguments, the engine's
// configuration, and (for an empty candidate date) the clock.
func (e *Engine) Evaluate(l *ledger.Ledger, c Candidate) Result {
	r := Result{Reasons: []string{}, Warnings: []string{}}
	if l == nil {
		l = &ledger.Ledger{}
	}
	station := strings.ToUpper(c.Station)
	date := c.Date
	if date == "" {
		date = e.now().UTC().Format(time.DateOnly)
	}
	month := monthOf(date)
	_, known := e.stations.Get(station)

	// 1. whitelist
	if !e.stations.Tradeable(station) {
		r.block("station %s not in tradeable whitelist [%s]", station, strings.Join(e.stations.TradeableIDs(), ", "))
	}

	// 2. forecast model agreement
	if c.ForecastSpread != nil && *c.ForecastSpread > e.cfg.MaxModelSpread {
		r.block("model spread %.1f°F exceeds %.1f°F limit", *c.ForecastSpread, e.cfg.MaxModelSpread)
	}

	// 3. market sigma gap
	if c.MarketSigma == nil {
		r.block("no market sigma data for %s", station)
	} else if known || c.OurSigma != nil {
		ours := e.stations.EffectiveSigma(station, month, 0)
		if c.OurSigma != nil {
			ours = *c.OurSigma
		}
		if gap := *c.MarketSigma - ours; gap < e.cfg.MinSigmaGap {
			r.block("market σ %.1f°F - our σ %.1f°F = gap %.1f°F < required %.1f°F",
				*c.MarketSigma, ours, gap, e.cfg.MinSigmaGap)
		}
	}

	// 4. trades per station per day
	sameDay := 0
	for _, t := range l.OpenForStation(station) {
		if t.Date() == date {
			sameDay++
		}
	}
	if sameDay >= e.cfg.MaxTradesPerDayPerStation {
		r.block("already %d open trade(s) for %s on %s (max %d)", sameDay, station, date, e.cfg.MaxTradesPerDayPerStation)
	}

	// 5. hard size cap
	if c.Qty > e.cfg.HardMaxContracts {
		r.block("quantity %d exceeds hard max %d contracts", c.Qty, e.cfg.HardMaxContracts)
	}

	// 6. climatological outlier
	if c.Forecast != nil {
		if normal, ok := e.stations.ClimNormal(station, month); ok {
			if dev := math.Abs(*c.Forecast - normal); dev > e.cfg.ClimOutlierRange {
				r.block("forecast %.0f°F is %.0f°F from normal %.0f°F (limit %.0f°F)",
					*c.Forecast, dev, normal, e.cfg.ClimOutlierRange)
			}
		}
	}

	// 7. correlated stations
	for _, t := range l.Open() {
		if t.Station == station || t.Date() != date {
			continue
		}
		if e.stations.Correlated(station, t.Station) {
			r.block("cannot trade %s same day as %s, correlated weather systems (existing trade %s)",
				station, t.Station, t.ID)
		}
	}

	// 8. cumulative station exposure
	exposure := l.Exposure(station)
	if maxExp := l.Balance * e.cfg.MaxStationExposurePct; exposure > maxExp {
		r.block("cumulative exposure on %s $%.2f exceeds %.0f%% of bankroll ($%.2f)",
			station, exposure, 100*e.cfg.MaxStationExposurePct, maxExp)
	}

	// 9. liquidity
	if c.BidAskSpread != nil && *c.BidAskSpread > e.cfg.MaxBidAskSpread {
		r.block("bid-ask spread $%.2f exceeds $%.2f limit, illiquid contract", *c.BidAskSpread, e.cfg.MaxBidAskSpread)
	}

	if known && month > 0 && !e.stations.InCalibrationWindow(station, month) {
		r.warn("%s: trading %s outside the calibration window; sigma may be understated", station, time.Month(month))
	}

	r.Pass = len(r.Reasons) == 0
	return r
}

func monthOf(date string) int {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return 0
	}
	return int(t.Month())
}

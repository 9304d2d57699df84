package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"

	"github.com/rustyeddy/wxtrader/guard"
	"github.com/rustyeddy/wxtrader/journal"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/logs"
	"github.com/rustyeddy/wxtrader/market"
	"github.com/rustyeddy/wxtrader/metrics"
)

// Candidate is a sized trade idea handed to a batch session.
type Candidate struct {
	Strategy       string   `json:"strategy" yaml:"strategy"`
	Station        string   `json:"station" yaml:"station"`
	Ticker         string   `json:"ticker" yaml:"ticker"`
	Side           string   `json:"side" yaml:"side"`
	Price          float64  `json:"price" yaml:"price"`
	Edge           float64  `json:"edge" yaml:"edge"`
	PEst           float64  `json:"pEst" yaml:"p_est"`
	Contracts      int      `json:"contracts" yaml:"contracts"`
	DollarRisk     float64  `json:"dollarRisk" yaml:"dollar_risk"`
	MarketSigma    *float64 `json:"marketSigma,omitempty" yaml:"market_sigma"`
	Sigma          *float64 `json:"sigma,omitempty" yaml:"sigma"`
	ForecastSpread *float64 `json:"forecastSpread,omitempty" yaml:"forecast_spread"`
	Forecast       *float64 `json:"forecastHigh,omitempty" yaml:"forecast_high"`
	BidAskSpread   *float64 `json:"bidAskSpread,omitempty" yaml:"bid_ask_spread"`
	Date           string   `json:"date,omitempty" yaml:"date"`
}

// contractDate is the candidate's date, or the date encoded in its ticker
// when none was given. Guard rules and ledger trades key on the contract
// date, not the day the session runs.
func (c Candidate) contractDate() string {
	if c.Date != "" {
		return c.Date
	}
	if pc, err := market.ParseContract(c.Ticker); err == nil {
		return pc.Date
	}
	return ""
}

func (c Candidate) strategy() string {
	if c.Strategy == "" {
		return ledger.StrategyWeather
	}
	return c.Strategy
}

// Summary reports what a batch session did.
type Summary struct {
	Session   string         `json:"session"`
	Halted    bool           `json:"halted"`
	Placed    int            `json:"placed"`
	Blocked   int            `json:"blocked"`
	Failed    int            `json:"failed"`
	TotalRisk float64        `json:"totalRisk"`
	Trades    []ledger.Trade `json:"trades"`
	Messages  []string       `json:"messages"`
}

func (s *Summary) note(format string, args ...any) {
	s.Messages = append(s.Messages, fmt.Sprintf(format, args...))
}

type outcome int

const (
	placed outcome = iota
	blocked
	failed
)

// RunSession paper-trades the best candidates. blockedUpstream counts
// candidates the caller already rejected and is carried into the summary.
// Errors or panics on one trade are counted as failures and the batch
// continues.
func (e *Executor) RunSession(ctx context.Context, sessionID string, candidates []Candidate, blockedUpstream int) (Summary, error) {
	sum := Summary{Session: sessionID, Blocked: blockedUpstream, Trades: []ledger.Trade{}, Messages: []string{}}
	if e.opts.Live {
		return sum, ErrLiveAutoExecution
	}
	log := logs.WithFields(logrus.Fields{"session": sessionID})

	d, err := e.Risk.CheckLimits("", 0)
	if err != nil {
		return sum, err
	}
	if !d.Allowed {
		sum.Halted = true
		for _, m := range d.Messages() {
			sum.note("blocked by risk limits: %s", m)
		}
		log.WithField("violations", d.Messages()).Warn("session halted by risk limits")
		return sum, nil
	}

	var executable []Candidate
	for _, c := range candidates {
		if c.Edge-e.opts.TransactionCost > 0 && c.Contracts > 0 {
			executable = append(executable, c)
		}
		if len(executable) == e.opts.MaxTradesPerSession {
			break
		}
	}
	if len(executable) == 0 {
		sum.note("no trades with positive net edge after transaction costs")
		return sum, nil
	}

	for _, c := range executable {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		var (
			pc  panics.Catcher
			res outcome
			t   ledger.Trade
		)
		pc.Try(func() { res, t = e.runOne(sessionID, c, &sum) })
		if r := pc.Recovered(); r != nil {
			res = failed
			sum.note("%s: execution failed: %v", c.Ticker, r.AsError())
			log.WithField("ticker", c.Ticker).WithError(r.AsError()).Error("trade panicked")
		}
		switch res {
		case placed:
			sum.Placed++
			sum.TotalRisk = ledger.Cents(sum.TotalRisk + t.Cost)
			sum.Trades = append(sum.Trades, t)
		case blocked:
			sum.Blocked++
		case failed:
			sum.Failed++
		}
	}

	log.WithFields(logrus.Fields{
		"placed":  sum.Placed,
		"blocked": sum.Blocked,
		"failed":  sum.Failed,
		"risk":    sum.TotalRisk,
	}).Info("session complete")
	return sum, nil
}

func (e *Executor) runOne(sessionID string, c Candidate, sum *Summary) (outcome, ledger.Trade) {
	c.Date = c.contractDate()
	station := e.stationFor(c.Station, c.Ticker)
	netEdge := c.Edge - e.opts.TransactionCost
	decide := func(action string, guards []string) {
		e.Journal.Decision(journal.DecisionRecord{
			Date:     c.Date,
			Session:  sessionID,
			Station:  station,
			Contract: c.Ticker,
			Action:   action,
			Guards:   guards,
			NetEdge:  netEdge,
		})
	}

	dollarRisk := c.DollarRisk
	if dollarRisk <= 0 {
		dollarRisk = ledger.Cost(c.Contracts, c.Price)
	}
	d, err := e.Risk.CheckLimits(station, dollarRisk)
	if err != nil {
		sum.note("%s: risk check failed: %v", c.Ticker, err)
		return failed, ledger.Trade{}
	}
	if !d.Allowed {
		msgs := d.Messages()
		sum.note("%s: blocked by risk limits: %s", c.Ticker, msgs[0])
		decide(journal.ActionBlocked, msgs)
		return blocked, ledger.Trade{}
	}

	if c.strategy() == ledger.StrategyWeather {
		if c.MarketSigma == nil {
			sum.note("%s: blocked: no market sigma data", c.Ticker)
			decide(journal.ActionBlocked, []string{"no market sigma data"})
			return blocked, ledger.Trade{}
		}
		g, err := e.Guard.Check(guard.Candidate{
			Station:        station,
			Qty:            c.Contracts,
			ForecastSpread: c.ForecastSpread,
			MarketSigma:    c.MarketSigma,
			OurSigma:       c.Sigma,
			Forecast:       c.Forecast,
			Date:           c.Date,
			BidAskSpread:   c.BidAskSpread,
		})
		if err != nil {
			sum.note("%s: guard check failed: %v", c.Ticker, err)
			return failed, ledger.Trade{}
		}
		if !g.Pass {
			sum.note("%s: blocked: %s", c.Ticker, g.Reasons[0])
			decide(journal.ActionBlocked, g.Reasons)
			return blocked, ledger.Trade{}
		}
	}

	qty := min(c.Contracts, e.opts.AutoMaxContracts)
	if qty < c.Contracts {
		sum.note("%s: capped %d -> %d contracts", c.Ticker, c.Contracts, qty)
	}

	meta := map[string]float64{"expectedEdge": c.Edge}
	if c.PEst > 0 {
		meta["pEst"] = c.PEst
	}
	if c.MarketSigma != nil {
		meta["marketSigma"] = *c.MarketSigma
	}
	if c.Sigma != nil {
		meta["ourSigma"] = *c.Sigma
	}
	if c.Forecast != nil {
		meta["forecast"] = *c.Forecast
	}
	t, err := e.Ledger.ExecuteTrade(ledger.TradeRequest{
		Strategy: c.strategy(),
		Station:  station,
		Contract: c.Ticker,
		Side:     strings.ToLower(c.Side),
		Qty:      qty,
		Price:    c.Price,
		Mode:     ledger.ModePaper,
		Metadata: meta,
	})
	if err != nil {
		sum.note("%s: execution failed: %v", c.Ticker, err)
		metrics.ExecutionFailures.WithLabelValues(journal.ResultError).Inc()
		return failed, ledger.Trade{}
	}

	decide(journal.ActionTrade, []string{})
	rec := journal.TradeRecord{
		Date:         c.Date,
		Session:      sessionID,
		Strategy:     t.Strategy,
		Mode:         t.Mode,
		Station:      station,
		Contract:     t.Contract,
		Side:         t.Side,
		Qty:          t.Qty,
		Price:        t.Price,
		ExpectedEdge: c.Edge,
		Timestamp:    t.Timestamp,
	}
	if c.MarketSigma != nil {
		rec.MarketSigma = *c.MarketSigma
	}
	if c.Sigma != nil {
		rec.OurSigma = *c.Sigma
	}
	e.Journal.Trade(rec)
	metrics.TradesTotal.WithLabelValues(t.Strategy, t.Mode).Inc()
	sum.note("%s: paper trade placed, %s %dx @ $%.2f, expected value $%.2f", c.Ticker, t.Side, t.Qty, t.Price, netEdge*float64(t.Qty))
	return placed, t
}

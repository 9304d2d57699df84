// Package executor turns approved recommendations into ledger trades and,
// in live mode, exchange orders. Dry run is the default.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/wxtrader/broker"
	"github.com/rustyeddy/wxtrader/config"
	"github.com/rustyeddy/wxtrader/guard"
	"github.com/rustyeddy/wxtrader/journal"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/logs"
	"github.com/rustyeddy/wxtrader/market"
	"github.com/rustyeddy/wxtrader/metrics"
	"github.com/rustyeddy/wxtrader/pending"
	"github.com/rustyeddy/wxtrader/risk"
)

var (
	ErrMarketClosed      = errors.New("market is not open")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLiveAutoExecution = errors.New("auto-execution only runs in paper mode")
	ErrRiskLimit         = errors.New("blocked by risk limits")
	ErrNoBroker          = errors.New("live mode requires a broker")
)

// Options select the execution mode and batch limits.
type Options struct {
	Live                bool
	AutoMaxContracts    int
	TransactionCost     float64
	MaxTradesPerSession int
}

// OptionsFromConfig builds Options from the execution section. live comes
// from the environment, never from the config file.
func OptionsFromConfig(cfg config.ExecutionConfig, live bool) Options {
	return Options{
		Live:                live,
		AutoMaxContracts:    cfg.AutoMaxContracts,
		TransactionCost:     cfg.TransactionCost,
		MaxTradesPerSession: cfg.MaxTradesPerSession,
	}
}

func (o Options) mode() string {
	if o.Live {
		return ledger.ModeLive
	}
	return ledger.ModePaper
}

// Deps are the collaborators an Executor drives. Broker may be nil in dry
// run; Journal may be nil.
type Deps struct {
	Pending  *pending.Store
	Ledger   *ledger.Store
	Risk     *risk.Manager
	Guard    *guard.Engine
	Stations *market.Registry
	Broker   broker.Broker
	Journal  *journal.Recorder
}

type Executor struct {
	opts Options
	Deps
	now func() time.Time
}

func New(opts Options, d Deps) *Executor {
	if opts.AutoMaxContracts <= 0 {
		opts.AutoMaxContracts = 5
	}
	if opts.MaxTradesPerSession <= 0 {
		opts.MaxTradesPerSession = 1
	}
	return &Executor{opts: opts, Deps: d, now: time.Now}
}

// WithClock overrides the time source used for expiry checks.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Live reports whether orders go to the exchange.
func (e *Executor) Live() bool { return e.opts.Live }

// Execution is the outcome of executing one recommendation.
type Execution struct {
	Recommendation pending.Recommendation `json:"recommendation"`
	DryRun         bool                   `json:"dryRun"`
	Order          broker.OrderRequest    `json:"order"`
	Trade          *ledger.Trade          `json:"trade,omitempty"`
	Response       *broker.OrderFill      `json:"response,omitempty"`
}

// Approve approves a pending recommendation and executes it.
func (e *Executor) Approve(ctx context.Context, recID string) (Execution, error) {
	if _, err := e.Pending.UpdateStatus(recID, pending.StatusApproved); err != nil {
		return Execution{}, err
	}
	logs.WithFields(logrus.Fields{"id": recID}).Info("recommendation approved")
	return e.Execute(ctx, recID)
}

// Reject rejects a pending recommendation.
func (e *Executor) Reject(recID string) (pending.Recommendation, error) {
	rec, err := e.Pending.UpdateStatus(recID, pending.StatusRejected)
	if err != nil {
		return rec, err
	}
	logs.WithFields(logrus.Fields{"id": recID}).Info("recommendation rejected")
	return rec, nil
}

// Execute places an approved recommendation. Any pre-flight failure is
// journaled and logged, and the record stays approved so it can be retried.
func (e *Executor) Execute(ctx context.Context, recID string) (Execution, error) {
	rec, err := e.Pending.Find(recID)
	if err != nil {
		return Execution{}, err
	}
	if rec.Status != pending.StatusApproved {
		if rec.Status == pending.StatusExpired {
			return Execution{}, fmt.Errorf("%w: %s", pending.ErrExpired, recID)
		}
		return Execution{}, fmt.Errorf("%w: %s is %s", pending.ErrNotApproved, recID, rec.Status)
	}
	if !e.now().Before(rec.ExpiresAt) {
		return Execution{}, fmt.Errorf("%w: %s expired at %s", pending.ErrExpired, recID, rec.ExpiresAt.Format(time.RFC3339))
	}

	order := broker.LimitBuy(rec.Contract, rec.Side, rec.Qty, rec.Price)
	order.ClientOrderID = rec.ID
	out := Execution{Recommendation: rec, DryRun: !e.opts.Live, Order: order}
	station := e.stationFor(rec.Station, rec.Contract)
	cost := ledger.Cost(rec.Qty, rec.Price)

	log := logs.WithFields(logrus.Fields{
		"id":       rec.ID,
		"contract": rec.Contract,
		"side":     rec.Side,
		"qty":      rec.Qty,
		"price":    rec.Price,
		"mode":     e.opts.mode(),
	})

	d, err := e.Risk.CheckLimits(station, cost)
	if err != nil {
		return out, err
	}
	if !d.Allowed {
		err := fmt.Errorf("%w: %s", ErrRiskLimit, strings.Join(d.Messages(), "; "))
		e.fail(log, order, out.DryRun, journal.ResultRiskBlocked, err)
		return out, err
	}

	if !e.opts.Live {
		t, err := e.Ledger.ExecuteTrade(e.tradeRequest(rec, station))
		if err != nil {
			result := journal.ResultError
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				result = journal.ResultInsufficientFunds
				err = fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
			}
			e.fail(log, order, true, result, err)
			return out, err
		}
		out.Trade = &t
		log.WithField("trade", t.ID).Infof("DRY RUN: %s %dx %s @ %d¢", strings.ToUpper(order.Side), order.Count, order.Ticker, order.PriceCents())
		e.Journal.Execution(journal.ExecutionRecord{TradeID: rec.ID, Order: order, DryRun: true, Result: journal.ResultDryRun})
		e.journalTrade(rec, station, t, "")
		metrics.TradesTotal.WithLabelValues(t.Strategy, t.Mode).Inc()

		updated, err := e.Pending.MarkExecuted(rec.ID, pending.Fill{DryRun: true, TradeID: t.ID, Order: order})
		if err != nil {
			return out, err
		}
		out.Recommendation = updated
		return out, nil
	}

	if e.Broker == nil {
		e.fail(log, order, false, journal.ResultError, ErrNoBroker)
		return out, ErrNoBroker
	}

	bal, err := e.Broker.Balance(ctx)
	if err != nil {
		e.fail(log, order, false, journal.ResultError, err)
		return out, fmt.Errorf("fetch balance: %w", err)
	}
	if bal.Dollars() < cost {
		err := fmt.Errorf("%w: need $%.2f, have $%.2f", ErrInsufficientFunds, cost, bal.Dollars())
		e.fail(log, order, false, journal.ResultInsufficientFunds, err)
		return out, err
	}

	m, err := e.Broker.Market(ctx, rec.Contract)
	switch {
	case err != nil:
		// The exchange rejects orders on bad tickers; a failed lookup alone
		// does not block.
		log.WithError(err).Warn("market lookup failed, placing order anyway")
	case !m.IsOpen():
		err := fmt.Errorf("%w: %s is %s", ErrMarketClosed, rec.Contract, m.Status)
		e.fail(log, order, false, journal.ResultMarketClosed, err)
		return out, err
	}

	log.Warnf("LIVE ORDER: %s %dx %s @ %d¢", strings.ToUpper(order.Side), order.Count, order.Ticker, order.PriceCents())
	fill, err := e.Broker.PlaceOrder(ctx, order)
	if err != nil {
		e.fail(log, order, false, journal.ResultError, err)
		return out, fmt.Errorf("place order: %w", err)
	}
	out.Response = &fill
	e.Journal.Execution(journal.ExecutionRecord{TradeID: rec.ID, Order: order, Result: journal.ResultPlaced, Response: &fill})
	log.WithField("order", fill.OrderID).Info("order placed")

	tradeID := ""
	if t, err := e.Ledger.ExecuteTrade(e.tradeRequest(rec, station)); err != nil {
		log.WithError(err).Error("order placed but ledger write failed")
	} else {
		out.Trade = &t
		tradeID = t.ID
		e.journalTrade(rec, station, t, "")
		metrics.TradesTotal.WithLabelValues(t.Strategy, t.Mode).Inc()
	}

	updated, err := e.Pending.MarkExecuted(rec.ID, pending.Fill{TradeID: tradeID, Order: order, Response: &fill})
	if err != nil {
		return out, err
	}
	out.Recommendation = updated
	return out, nil
}

func (e *Executor) fail(log *logrus.Entry, order broker.OrderRequest, dryRun bool, result string, err error) {
	metrics.ExecutionFailures.WithLabelValues(result).Inc()
	log.WithError(err).WithField("result", result).Warn("execution refused")
	e.Journal.Execution(journal.ExecutionRecord{
		TradeID: order.ClientOrderID,
		Order:   order,
		DryRun:  dryRun,
		Result:  result,
		Error:   err.Error(),
	})
}

func (e *Executor) tradeRequest(rec pending.Recommendation, station string) ledger.TradeRequest {
	meta := map[string]float64{}
	if rec.Edge != 0 {
		meta["expectedEdge"] = rec.Edge
	}
	return ledger.TradeRequest{
		Strategy: rec.Strategy,
		Station:  station,
		Contract: rec.Contract,
		Side:     rec.Side,
		Qty:      rec.Qty,
		Price:    rec.Price,
		Mode:     e.opts.mode(),
		Metadata: meta,
	}
}

func (e *Executor) journalTrade(rec pending.Recommendation, station string, t ledger.Trade, session string) {
	e.Journal.Trade(journal.TradeRecord{
		Date:         t.Date(),
		Session:      session,
		Strategy:     t.Strategy,
		Mode:         t.Mode,
		Station:      station,
		Contract:     t.Contract,
		Side:         t.Side,
		Qty:          t.Qty,
		Price:        t.Price,
		ExpectedEdge: rec.Edge,
		Timestamp:    t.Timestamp,
	})
}

// stationFor returns station, or the station the contract settles against
// when station is empty.
func (e *Executor) stationFor(station, contract string) string {
	if station != "" || e.Stations == nil {
		return strings.ToUpper(station)
	}
	c, err := market.ParseContract(contract)
	if err != nil {
		return ""
	}
	id, _ := e.Stations.StationForContract(c)
	return id
}

// Package ledger is the durable record of balance, trades and settlement
// runs. Balance changes only when a trade is executed or settled.
package ledger

import (
	"errors"
	"time"

	"github.com/rustyeddy/wxtrader/market"
)

var (
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrInvalidTrade      = errors.New("invalid trade")
	ErrTradeNotFound     = errors.New("trade not found")
)

// Strategy tags.
const (
	StrategyWeather       = "weather"
	StrategyCrypto        = "crypto"
	StrategyGas           = "gas"
	StrategyFlights       = "flights"
	StrategyPrecipitation = "precipitation"
)

// Sides.
const (
	SideYes = "yes"
	SideNo  = "no"
)

// Execution modes.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Trade is one position from execution through settlement.
type Trade struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Strategy  string             `json:"strategy"`
	Station   string             `json:"station"`
	Contract  string             `json:"contract"`
	Side      string             `json:"side"`
	Qty       int                `json:"qty"`
	Price     float64            `json:"price"`
	Cost      float64            `json:"cost"`
	Mode      string             `json:"mode,omitempty"`
	Settled   bool               `json:"settled"`
	PnL       *float64           `json:"pnl"`
	SettledAt *time.Time         `json:"settledAt,omitempty"`
	Actual    *float64           `json:"actualOutcome,omitempty"`
	Payout    *float64           `json:"payout,omitempty"`
	Metadata  map[string]float64 `json:"metadata,omitempty"`
}

// Date is the calendar date the trade is about: the contract date when the
// ticker encodes one, otherwise the UTC placement date.
func (t Trade) Date() string {
	if c, err := market.ParseContract(t.Contract); err == nil && c.Date != "" {
		return c.Date
	}
	return t.PlacedOn()
}

// PlacedOn is the UTC calendar date the trade was executed.
func (t Trade) PlacedOn() string {
	return t.Timestamp.UTC().Format(time.DateOnly)
}

// SettlementRun records one invocation of SettleDate.
type SettlementRun struct {
	Date      string    `json:"date"`
	SettledAt time.Time `json:"settledAt"`
	Count     int       `json:"count"`
}

// Ledger is the persisted document.
type Ledger struct {
	Balance     float64         `json:"balance"`
	PeakBalance float64         `json:"peakBalance"`
	Trades      []Trade         `json:"trades"`
	Settlements []SettlementRun `json:"settlements"`
}

func newLedger(initial float64) *Ledger {
	return &Ledger{
		Balance:     initial,
		PeakBalance: initial,
		Trades:      []Trade{},
		Settlements: []SettlementRun{},
	}
}

// Open returns the unsettled trades in ledger order.
func (l *Ledger) Open() []Trade {
	var out []Trade
	for _, t := range l.Trades {
		if !t.Settled {
			out = append(out, t)
		}
	}
	return out
}

// OpenForStation returns the unsettled trades on station.
func (l *Ledger) OpenForStation(station string) []Trade {
	var out []Trade
	for _, t := range l.Trades {
		if !t.Settled && t.Station == station {
			out = append(out, t)
		}
	}
	return out
}

// Exposure is the summed cost of unsettled trades on station.
func (l *Ledger) Exposure(station string) float64 {
	var costs []float64
	for _, t := range l.OpenForStation(station) {
		if t.Cost > 0 {
			costs = append(costs, t.Cost)
		}
	}
	return sum(costs...)
}

// TotalExposure is the summed cost of all unsettled trades.
func (l *Ledger) TotalExposure() float64 {
	var costs []float64
	for _, t := range l.Open() {
		costs = append(costs, t.Cost)
	}
	return sum(costs...)
}

// TotalPnL sums realized P&L over settled trades.
func (l *Ledger) TotalPnL() float64 {
	var pnls []float64
	for _, t := range l.Trades {
		if t.Settled && t.PnL != nil {
			pnls = append(pnls, *t.PnL)
		}
	}
	return sum(pnls...)
}

// Find returns the trade with id.
func (l *Ledger) Find(id string) (Trade, bool) {
	for _, t := range l.Trades {
		if t.ID == id {
			return t, true
		}
	}
	return Trade{}, false
}

// Stations returns the distinct stations that have unsettled trades, in
// first-seen order.
func (l *Ledger) Stations() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range l.Open() {
		if t.Station != "" && !seen[t.Station] {
			seen[t.Station] = true
			out = append(out, t.Station)
		}
	}
	return out
}

func (l *Ledger) notePeak() {
	if l.Balance > l.PeakBalance {
		l.PeakBalance = l.Balance
	}
}

// Clone returns a deep copy so callers can hold a snapshot safely.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{Balance: l.Balance, PeakBalance: l.PeakBalance}
	if l.Trades != nil {
		c.Trades = make([]Trade, len(l.Trades))
		for i, t := range l.Trades {
			c.Trades[i] = t.clone()
		}
	}
	if l.Settlements != nil {
		c.Settlements = append([]SettlementRun{}, l.Settlements...)
	}
	return c
}

func (t Trade) clone() Trade {
	if t.Metadata != nil {
		m := make(map[string]float64, len(t.Metadata))
		for k, v := range t.Metadata {
			m[k] = v
		}
		t.Metadata = m
	}
	t.PnL = clonePtr(t.PnL)
	t.Actual = clonePtr(t.Actual)
	t.Payout = clonePtr(t.Payout)
	if t.SettledAt != nil {
		at := *t.SettledAt
		t.SettledAt = &at
	}
	return t
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

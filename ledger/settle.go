package ledger

import (
	"errors"
	"time"

	"github.com/rustyeddy/wxtrader/market"
)

// Observation is the realized outcome for a station on a date.
type Observation struct {
	Station      string  `json:"station"`
	Date         string  `json:"date"`
	HighF        float64 `json:"high_f"`
	LowF         float64 `json:"low_f"`
	Observations int     `json:"observations"`
}

// Value returns the observed value a contract settles on.
func (o Observation) Value(c market.Contract) float64 {
	if c.Low {
		return o.LowF
	}
	return o.HighF
}

// Result is the resolution of one trade.
type Result struct {
	TradeID  string              `json:"tradeId"`
	Contract string              `json:"contract"`
	Station  string              `json:"station"`
	Side     string              `json:"side"`
	Qty      int                 `json:"qty"`
	Price    float64             `json:"price"`
	Cost     float64             `json:"cost"`
	Kind     market.ContractKind `json:"kind"`
	Strike   float64             `json:"strike"`
	Actual   float64             `json:"actual"`
	Won      bool                `json:"won"`
	Payout   float64             `json:"payout"`
	PnL      float64             `json:"pnl"`
}

// Anomaly is an unsettled trade whose contract cannot be resolved.
type Anomaly struct {
	TradeID  string `json:"tradeId"`
	Contract string `json:"contract"`
	Reason   string `json:"reason"`
}

// SettleReport summarizes a settlement pass.
type SettleReport struct {
	Date      string    `json:"date"`
	SettledAt time.Time `json:"settledAt"`
	Results   []Result  `json:"results"`
	Anomalies []Anomaly `json:"anomalies,omitempty"`
	Balance   float64   `json:"balance"`
}

// Wins counts winning results.
func (r SettleReport) Wins() int {
	n := 0
	for _, res := range r.Results {
		if res.Won {
			n++
		}
	}
	return n
}

// PnL sums realized P&L over the results.
func (r SettleReport) PnL() float64 {
	vals := make([]float64, 0, len(r.Results))
	for _, res := range r.Results {
		vals = append(vals, res.PnL)
	}
	return sum(vals...)
}

// Resolve computes how every unsettled trade for date would settle against
// actuals without touching l. Trades without an observation for their
// station, or whose contract is dated for another day, are left out.
func Resolve(l *Ledger, date string, actuals map[string]Observation) ([]Result, []Anomaly) {
	var (
		results   []Result
		anomalies []Anomaly
	)
	for _, t := range l.Trades {
		if t.Settled {
			continue
		}
		c, err := market.ParseContract(t.Contract)
		if err != nil {
			reason := err.Error()
			if errors.Is(err, market.ErrUnrecognizedContract) {
				reason = "contract encodes neither threshold (-T) nor bracket (-B)"
			}
			anomalies = append(anomalies, Anomaly{TradeID: t.ID, Contract: t.Contract, Reason: reason})
			continue
		}
		if c.Date != "" && c.Date != date {
			continue
		}
		obs, ok := actuals[t.Station]
		if !ok {
			continue
		}

		actual := obs.Value(c)
		won := c.Wins(t.Side, actual)
		payout := 0.0
		if won {
			payout = Cents(float64(t.Qty) * FaceValue)
		}
		results = append(results, Result{
			TradeID:  t.ID,
			Contract: t.Contract,
			Station:  t.Station,
			Side:     t.Side,
			Qty:      t.Qty,
			Price:    t.Price,
			Cost:     t.Cost,
			Kind:     c.Kind,
			Strike:   c.Strike,
			Actual:   actual,
			Won:      won,
			Payout:   payout,
			PnL:      sub(payout, t.Cost),
		})
	}
	return results, anomalies
}

// SettleDate settles every resolvable unsettled trade for date, credits the
// payouts, and appends one settlement run. Settled trades are never touched
// again, so repeating the call is a no-op apart from the run log.
func (s *Store) SettleDate(date string, actuals map[string]Observation) (SettleReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.load()
	if err != nil {
		return SettleReport{}, err
	}

	now := s.now().UTC()
	results, anomalies := Resolve(l, date, actuals)
	index := make(map[string]int, len(l.Trades))
	for i, t := range l.Trades {
		index[t.ID] = i
	}
	for _, r := range results {
		t := &l.Trades[index[r.TradeID]]
		pnl, payout, actual, at := r.PnL, r.Payout, r.Actual, now
		t.Settled = true
		t.PnL = &pnl
		t.Payout = &payout
		t.Actual = &actual
		t.SettledAt = &at
		l.Balance = add(l.Balance, payout)
	}
	l.notePeak()
	l.Settlements = append(l.Settlements, SettlementRun{Date: date, SettledAt: now, Count: len(results)})

	if err := s.save(l); err != nil {
		return SettleReport{}, err
	}
	return SettleReport{
		Date:      date,
		SettledAt: now,
		Results:   results,
		Anomalies: anomalies,
		Balance:   l.Balance,
	}, nil
}

package risk

import (
	"fmt"
	"time"

	"github.com/rustyeddy/wxtrader/ledger"
)

// Violation codes.
const (
	DailyLossLimit         = "DAILY_LOSS_LIMIT"
	TooManyOpenTrades      = "TOO_MANY_OPEN_TRADES"
	PositionTooLarge       = "POSITION_TOO_LARGE"
	DrawdownCircuitBreaker = "DRAWDOWN_CIRCUIT_BREAKER"
	StationPositionLimit   = "STATION_POSITION_LIMIT"
	StationExposureLimit   = "STATION_EXPOSURE_LIMIT"
)

type Violation struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type Decision struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations,omitempty"`

	DailyPnL      float64 `json:"dailyPnl"`
	DailyLossCap  float64 `json:"dailyLossCap"`
	OpenPositions int     `json:"openPositions"`
	PeakBalance   float64 `json:"peakBalance"`
	DrawdownFloor float64 `json:"drawdownFloor"`
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Has reports whether the decision carries a violation with code.
func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Messages returns the violation messages in order.
func (d Decision) Messages() []string {
	out := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		out = append(out, v.Msg)
	}
	return out
}

// Evaluate checks the ledger snapshot against p for a proposed trade. An
// empty station skips the per-station limits and a zero cost skips the
// position size limit. Every violated limit is reported.
func Evaluate(p Policy, l *ledger.Ledger, station string, cost float64, now time.Time) Decision {
	d := Decision{Allowed: true}
	balance := l.Balance
	open := l.Open()

	d.DailyPnL = DailyPnL(l, today(now))
	d.DailyLossCap = -ledger.Cents(balance * p.MaxDailyLossPct)
	d.OpenPositions = len(open)
	d.PeakBalance = PeakBalance(p, l)
	d.DrawdownFloor = DrawdownFloor(p, l)

	// Circuit breakers
	if d.DailyPnL <= d.DailyLossCap {
		d.add(DailyLossLimit,
			fmt.Sprintf("daily P&L $%.2f at or below max loss $%.2f", d.DailyPnL, d.DailyLossCap))
	}
	if balance <= d.DrawdownFloor {
		d.add(DrawdownCircuitBreaker,
			fmt.Sprintf("bankroll $%.2f at or below drawdown floor $%.2f (peak $%.2f)",
				balance, d.DrawdownFloor, d.PeakBalance))
	}

	// Exposure constraints
	if len(open) >= p.MaxOpenPositions {
		d.add(TooManyOpenTrades,
			fmt.Sprintf("open positions %d >= max %d", len(open), p.MaxOpenPositions))
	}
	if maxCost := balance * p.MaxPositionPct; cost > 0 && cost > maxCost {
		d.add(PositionTooLarge,
			fmt.Sprintf("trade cost $%.2f exceeds %.0f%% of bankroll ($%.2f)",
				cost, 100*p.MaxPositionPct, maxCost))
	}

	if station != "" {
		if n := len(l.OpenForStation(station)); n >= p.MaxPerStation {
			d.add(StationPositionLimit,
				fmt.Sprintf("%d positions on %s (max %d)", n, station, p.MaxPerStation))
		}
		exposure := l.Exposure(station)
		if maxExp := balance * p.MaxStationExposurePct; exposure > maxExp {
			d.add(StationExposureLimit,
				fmt.Sprintf("%s exposure $%.2f exceeds %.0f%% of bankroll ($%.2f)",
					station, exposure, 100*p.MaxStationExposurePct, maxExp))
		}
	}

	return d
}

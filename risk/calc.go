package risk

import (
	"time"

	"github.com/rustyeddy/wxtrader/ledger"
)

// DailyPnL sums realized P&L of settled trades placed on date (YYYY-MM-DD).
// Trades placed yesterday and settled overnight do not count against today.
func DailyPnL(l *ledger.Ledger, date string) float64 {
	var total float64
	for _, t := range l.Trades {
		if t.Settled && t.PnL != nil && t.PlacedOn() == date {
			total += *t.PnL
		}
	}
	return ledger.Cents(total)
}

// PeakBalance is the highest balance the account has held.
func PeakBalance(p Policy, l *ledger.Ledger) float64 {
	return max(p.InitialBankroll, l.PeakBalance, l.Balance)
}

// DrawdownFloor is the balance at or below which the circuit breaker trips.
func DrawdownFloor(p Policy, l *ledger.Ledger) float64 {
	return ledger.Cents(PeakBalance(p, l) * (1 - p.DrawdownPct))
}

// DrawdownPct is the current drawdown from peak as a fraction.
func DrawdownPct(p Policy, l *ledger.Ledger) float64 {
	peak := PeakBalance(p, l)
	if peak <= 0 {
		return 0
	}
	return (peak - l.Balance) / peak
}

// PositionsPerStation counts unsettled trades by station.
func PositionsPerStation(l *ledger.Ledger) map[string]int {
	counts := make(map[string]int)
	for _, t := range l.Open() {
		counts[t.Station]++
	}
	return counts
}

func today(now time.Time) string {
	return now.UTC().Format(time.DateOnly)
}

package risk

import (
	"sort"
	"time"

	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/metrics"
)

// LedgerReader supplies ledger snapshots.
type LedgerReader interface {
	Load() (*ledger.Ledger, error)
}

// Manager evaluates a Policy against fresh ledger snapshots.
type Manager struct {
	policy Policy
	ledger LedgerReader
	now    func() time.Time
}

// NewManager returns a manager reading from l.
func NewManager(p Policy, l LedgerReader) *Manager {
	return &Manager{policy: p, ledger: l, now: time.Now}
}

// WithClock overrides the time source used to decide what "today" is.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Policy returns the configured limits.
func (m *Manager) Policy() Policy { return m.policy }

// CheckLimits loads the ledger and evaluates the policy for a trade of cost
// on station. Station may be empty for a portfolio-level check.
func (m *Manager) CheckLimits(station string, cost float64) (Decision, error) {
	l, err := m.ledger.Load()
	if err != nil {
		return Decision{}, err
	}
	d := Evaluate(m.policy, l, station, cost, m.now())
	for _, v := range d.Violations {
		metrics.RiskViolations.WithLabelValues(v.Code).Inc()
	}
	return d, nil
}

// StatusReport is the bankroll health summary shown by the risk command.
type StatusReport struct {
	Balance             float64        `json:"balance"`
	TotalPnL            float64        `json:"totalPnl"`
	DailyPnL            float64        `json:"dailyPnl"`
	OpenPositions       int            `json:"openPositions"`
	MaxOpenPositions    int            `json:"maxOpenPositions"`
	PositionsPerStation map[string]int `json:"positionsPerStation"`
	Stations            []string       `json:"stations"`
	Exposure            float64        `json:"exposure"`
	PeakBalance         float64        `json:"peakBalance"`
	DrawdownPct         float64        `json:"drawdownPct"`
	DrawdownFloor       float64        `json:"drawdownFloor"`
	MaxDailyLoss        float64        `json:"maxDailyLoss"`
	MaxPositionPct      float64        `json:"maxPositionPct"`
	TradingAllowed      bool           `json:"tradingAllowed"`
	Violations          []Violation    `json:"violations,omitempty"`
}

// Status builds a StatusReport from a snapshot.
func Status(p Policy, l *ledger.Ledger, now time.Time) StatusReport {
	d := Evaluate(p, l, "", 0, now)
	per := PositionsPerStation(l)
	stations := make([]string, 0, len(per))
	for s := range per {
		stations = append(stations, s)
	}
	sort.Strings(stations)

	return StatusReport{
		Balance:             l.Balance,
		TotalPnL:            l.TotalPnL(),
		DailyPnL:            d.DailyPnL,
		OpenPositions:       d.OpenPositions,
		MaxOpenPositions:    p.MaxOpenPositions,
		PositionsPerStation: per,
		Stations:            stations,
		Exposure:            l.TotalExposure(),
		PeakBalance:         d.PeakBalance,
		DrawdownPct:         DrawdownPct(p, l),
		DrawdownFloor:       d.DrawdownFloor,
		MaxDailyLoss:        d.DailyLossCap,
		MaxPositionPct:      p.MaxPositionPct,
		TradingAllowed:      d.Allowed,
		Violations:          d.Violations,
	}
}

// Status loads the ledger and reports bankroll health.
func (m *Manager) Status() (StatusReport, error) {
	l, err := m.ledger.Load()
	if err != nil {
		return StatusReport{}, err
	}
	metrics.Balance.Set(l.Balance)
	metrics.OpenPositions.Set(float64(len(l.Open())))
	return Status(m.policy, l, m.now()), nil
}

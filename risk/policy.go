package risk

import "github.com/rustyeddy/wxtrader/config"

// Policy is the bankroll-relative limit set checked before every trade.
type Policy struct {
	MaxDailyLossPct       float64 // 0.05
	MaxOpenPositions      int     // 5
	MaxPositionPct        float64 // 0.05
	MaxStationExposurePct float64 // 0.10
	DrawdownPct           float64 // 0.20
	MaxPerStation         int     // 3
	InitialBankroll       float64 // 1000
}

// PolicyFromConfig maps the risk section of the config file.
func PolicyFromConfig(c config.RiskConfig) Policy {
	return Policy{
		MaxDailyLossPct:       c.MaxDailyLossPct,
		MaxOpenPositions:      c.MaxOpenPositions,
		MaxPositionPct:        c.MaxPositionPct,
		MaxStationExposurePct: c.MaxStationExposure,
		DrawdownPct:           c.DrawdownPct,
		MaxPerStation:         c.MaxPerStation,
		InitialBankroll:       c.InitialBankroll,
	}
}

// DefaultPolicy returns the policy built from config defaults.
func DefaultPolicy() Policy {
	return PolicyFromConfig(config.Default().Risk)
}

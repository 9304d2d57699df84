package risk

import "math"

// HardMaxContracts is the absolute per-trade contract cap.
const HardMaxContracts = 20

// DefaultMaxFraction caps a single position at 5% of bankroll.
const DefaultMaxFraction = 0.05

// DefaultKellyMultiplier sizes at one quarter of full Kelly.
const DefaultKellyMultiplier = 0.25

// Inputs to the position sizer.
type Inputs struct {
	Bankroll        float64
	PTrue           float64  // our probability of the side winning
	PMarket         float64  // market price of the side, also the cost per contract
	MaxFraction     float64  // cap on fraction of bankroll; zero means default
	KellyMultiplier float64  // fraction of full Kelly, 0.25; zero means default
	Volume          *float64 // daily volume when known
	HardMax         int      // zero means HardMaxContracts
}

type Result struct {
	Contracts       int     `json:"contracts"`
	Fraction        float64 `json:"fraction"`
	Edge            float64 `json:"edge"`
	KellyFull       float64 `json:"kellyFull"`
	DollarRisk      float64 `json:"dollarRisk"`
	LiquidityCapped bool    `json:"liquidityCapped"`
}

// KellyFraction is the full Kelly fraction for a binary contract bought at
// pMarket with true probability pTrue. It is zero without an edge.
func KellyFraction(pTrue, pMarket float64) float64 {
	if pTrue <= pMarket || pMarket >= 1 {
		return 0
	}
	return (pTrue - pMarket) / (1 - pMarket)
}

// Calculate sizes a position with fractional Kelly, a bankroll cap, and a
// liquidity ceiling of min(hard max, 10% of daily volume).
func Calculate(in Inputs) Result {
	mult := in.KellyMultiplier
	if mult <= 0 {
		mult = DefaultKellyMultiplier
	}
	maxFraction := in.MaxFraction
	if maxFraction <= 0 {
		maxFraction = DefaultMaxFraction
	}
	hardMax := in.HardMax
	if hardMax <= 0 {
		hardMax = HardMaxContracts
	}

	full := KellyFraction(in.PTrue, in.PMarket)
	f := full * mult
	if f <= 0 || in.PMarket <= 0 || in.Bankroll <= 0 {
		return Result{}
	}

	fraction := math.Min(f, maxFraction)
	dollars := in.Bankroll * fraction
	// epsilon keeps 0.6/0.2 from flooring to 2
	kellyContracts := max(1, int(math.Floor(dollars/in.PMarket+1e-9)))

	ceiling := hardMax
	if in.Volume != nil {
		ceiling = min(hardMax, max(1, int(math.Floor(*in.Volume*0.10))))
	}
	contracts := min(kellyContracts, ceiling)

	return Result{
		Contracts:       contracts,
		Fraction:        fraction,
		Edge:            in.PTrue - in.PMarket,
		KellyFull:       full,
		DollarRisk:      math.Round(float64(contracts)*in.PMarket*100) / 100,
		LiquidityCapped: contracts < kellyContracts,
	}
}

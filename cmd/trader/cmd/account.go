package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/wxtrader/guard"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/risk"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions",
	Args:  cobra.NoArgs,
	RunE:  runPositions,
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show balance, realized P&L and recent trades",
	Args:  cobra.NoArgs,
	RunE:  runLedger,
}

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Show risk status, or check a prospective trade",
	Long: `Without flags, print bankroll health and circuit breaker state.
With --cost, check whether a trade of that dollar cost at --station is allowed.

Examples:
  trader risk
  trader risk --station KNYC --cost 12.50`,
	Args: cobra.NoArgs,
	RunE: runRisk,
}

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Size a position with fractional Kelly",
	Long: `Compute the contract count for a binary contract bought at --p-market
when our probability of winning is --p-true.

Example:
  trader size --p-true 0.70 --p-market 0.50 --volume 400`,
	Args: cobra.NoArgs,
	RunE: runSize,
}

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Run the admission guard against a candidate trade",
	Long: `Evaluate every guard rule and print all blocking reasons and warnings.

Example:
  trader guard --station KNYC --qty 4 --market-sigma 4.0 --forecast 51 --date 2026-02-10`,
	Args: cobra.NoArgs,
	RunE: runGuard,
}

var (
	ledgerLimit int

	riskStation string
	riskCost    float64

	sizeFlags struct {
		bankroll float64
		pTrue    float64
		pMarket  float64
		volume   float64
	}

	guardFlags struct {
		station        string
		qty            int
		date           string
		forecastSpread float64
		marketSigma    float64
		ourSigma       float64
		forecast       float64
		bidAsk         float64
	}
)

func init() {
	rootCmd.AddCommand(positionsCmd, ledgerCmd, riskCmd, sizeCmd, guardCmd)

	ledgerCmd.Flags().IntVarP(&ledgerLimit, "limit", "n", 10, "number of recent trades to show")

	riskCmd.Flags().StringVar(&riskStation, "station", "", "station for a trade check")
	riskCmd.Flags().Float64Var(&riskCost, "cost", 0, "dollar cost for a trade check")

	sizeCmd.Flags().Float64Var(&sizeFlags.bankroll, "bankroll", 0, "bankroll in dollars (default: ledger balance)")
	sizeCmd.Flags().Float64Var(&sizeFlags.pTrue, "p-true", 0, "our probability of the side winning (required)")
	sizeCmd.Flags().Float64Var(&sizeFlags.pMarket, "p-market", 0, "market price of the side (required)")
	sizeCmd.Flags().Float64Var(&sizeFlags.volume, "volume", 0, "daily volume when known")
	sizeCmd.MarkFlagRequired("p-true")
	sizeCmd.MarkFlagRequired("p-market")

	f := guardCmd.Flags()
	f.StringVar(&guardFlags.station, "station", "", "station id or city code (required)")
	f.IntVar(&guardFlags.qty, "qty", 0, "contracts (required)")
	f.StringVar(&guardFlags.date, "date", "", "contract date YYYY-MM-DD (default: today UTC)")
	f.Float64Var(&guardFlags.forecastSpread, "forecast-spread", 0, "disagreement between forecast models")
	f.Float64Var(&guardFlags.marketSigma, "market-sigma", 0, "market-implied sigma")
	f.Float64Var(&guardFlags.ourSigma, "our-sigma", 0, "override the station's effective sigma")
	f.Float64Var(&guardFlags.forecast, "forecast", 0, "model point forecast")
	f.Float64Var(&guardFlags.bidAsk, "bid-ask", 0, "bid/ask spread in dollars")
	guardCmd.MarkFlagRequired("station")
	guardCmd.MarkFlagRequired("qty")
}

func runPositions(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	open, err := a.ledger.OpenPositions()
	if err != nil {
		return err
	}
	if jsonOutput {
		if open == nil {
			open = []ledger.Trade{}
		}
		return printJSON(cmd, open)
	}
	out := cmd.OutOrStdout()
	if len(open) == 0 {
		fmt.Fprintln(out, "No open positions.")
		return nil
	}
	total := 0.0
	for _, t := range open {
		fmt.Fprintf(out, "%-26s %-6s %-28s %-3s x%-3d @ $%.2f  cost $%.2f\n",
			t.ID, t.Station, t.Contract, strings.ToUpper(t.Side), t.Qty, t.Price, t.Cost)
		total += t.Cost
	}
	fmt.Fprintf(out, "\n%d open, $%.2f at risk\n", len(open), ledger.Cents(total))
	return nil
}

func runLedger(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := a.ledger.Load()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, l)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Balance:      $%.2f\n", l.Balance)
	fmt.Fprintf(out, "Peak:         $%.2f\n", l.PeakBalance)
	fmt.Fprintf(out, "Realized P&L: $%+.2f\n", l.TotalPnL())
	fmt.Fprintf(out, "Open:         %d ($%.2f)\n", len(l.Open()), l.TotalExposure())
	fmt.Fprintf(out, "Trades:       %d\n", len(l.Trades))

	recent := l.Trades
	if ledgerLimit > 0 && len(recent) > ledgerLimit {
		recent = recent[len(recent)-ledgerLimit:]
	}
	if len(recent) > 0 {
		fmt.Fprintln(out)
	}
	for _, t := range recent {
		status := "open"
		if t.Settled && t.PnL != nil {
			status = fmt.Sprintf("%+.2f", *t.PnL)
		}
		fmt.Fprintf(out, "%s  %-28s %-3s x%-3d @ $%.2f  %s\n",
			t.Date(), t.Contract, strings.ToUpper(t.Side), t.Qty, t.Price, status)
	}
	return nil
}

func runRisk(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	out := cmd.OutOrStdout()

	if riskCost > 0 {
		station := stationFor(a.stations, riskStation, "")
		d, err := a.risk.CheckLimits(station, riskCost)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, d)
		}
		if d.Allowed {
			fmt.Fprintf(out, "✓ $%.2f at %s is within limits\n", riskCost, station)
			return nil
		}
		fmt.Fprintf(out, "✗ $%.2f at %s is blocked:\n", riskCost, station)
		for _, m := range d.Messages() {
			fmt.Fprintf(out, "  - %s\n", m)
		}
		return nil
	}

	st, err := a.risk.Status()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, st)
	}
	fmt.Fprintf(out, "Balance:        $%.2f (peak $%.2f)\n", st.Balance, st.PeakBalance)
	fmt.Fprintf(out, "Daily P&L:      $%+.2f (limit -$%.2f)\n", st.DailyPnL, st.MaxDailyLoss)
	fmt.Fprintf(out, "Drawdown:       %.1f%% (floor $%.2f)\n", st.DrawdownPct*100, st.DrawdownFloor)
	fmt.Fprintf(out, "Open positions: %d / %d\n", st.OpenPositions, st.MaxOpenPositions)
	fmt.Fprintf(out, "Exposure:       $%.2f\n", st.Exposure)
	for _, s := range st.Stations {
		fmt.Fprintf(out, "  %-6s %d\n", s, st.PositionsPerStation[s])
	}
	if st.TradingAllowed {
		fmt.Fprintln(out, "Trading:        allowed")
		return nil
	}
	fmt.Fprintln(out, "Trading:        HALTED")
	for _, v := range st.Violations {
		fmt.Fprintf(out, "  - %s\n", v.Msg)
	}
	return nil
}

func runSize(cmd *cobra.Command, args []string) error {
	bankroll := sizeFlags.bankroll
	if bankroll <= 0 {
		a, err := newApp()
		if err != nil {
			return err
		}
		l, err := a.ledger.Load()
		a.Close()
		if err != nil {
			return err
		}
		bankroll = l.Balance
	}

	in := risk.Inputs{
		Bankroll:        bankroll,
		PTrue:           sizeFlags.pTrue,
		PMarket:         sizeFlags.pMarket,
		MaxFraction:     cfg.Execution.MaxFraction,
		KellyMultiplier: cfg.Execution.KellyFraction,
		HardMax:         cfg.Guard.HardMaxContracts,
	}
	if sizeFlags.volume > 0 {
		in.Volume = &sizeFlags.volume
	}
	res := risk.Calculate(in)
	if jsonOutput {
		return printJSON(cmd, res)
	}
	out := cmd.OutOrStdout()
	if res.Contracts == 0 {
		fmt.Fprintf(out, "No edge: p_true %.2f <= p_market %.2f\n", in.PTrue, in.PMarket)
		return nil
	}
	fmt.Fprintf(out, "Contracts:  %d\n", res.Contracts)
	fmt.Fprintf(out, "Edge:       %.3f\n", res.Edge)
	fmt.Fprintf(out, "Kelly:      %.3f full, %.3f applied\n", res.KellyFull, res.Fraction)
	fmt.Fprintf(out, "Risk:       $%.2f of $%.2f\n", res.DollarRisk, bankroll)
	if res.LiquidityCapped {
		fmt.Fprintln(out, "Capped by liquidity or the hard contract limit.")
	}
	return nil
}

func runGuard(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	c := guard.Candidate{
		Station: stationFor(a.stations, guardFlags.station, ""),
		Qty:     guardFlags.qty,
		Date:    guardFlags.date,
	}
	if c.Date != "" {
		if _, err := time.Parse(time.DateOnly, c.Date); err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
	}
	c.ForecastSpread = floatFlag(cmd, "forecast-spread", guardFlags.forecastSpread)
	c.MarketSigma = floatFlag(cmd, "market-sigma", guardFlags.marketSigma)
	c.OurSigma = floatFlag(cmd, "our-sigma", guardFlags.ourSigma)
	c.Forecast = floatFlag(cmd, "forecast", guardFlags.forecast)
	c.BidAskSpread = floatFlag(cmd, "bid-ask", guardFlags.bidAsk)

	res, err := a.guard.Check(c)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, res)
	}
	out := cmd.OutOrStdout()
	if res.Pass {
		fmt.Fprintf(out, "✓ PASS %s x%d\n", c.Station, c.Qty)
	} else {
		fmt.Fprintf(out, "✗ BLOCKED %s x%d\n", c.Station, c.Qty)
	}
	for _, r := range res.Reasons {
		fmt.Fprintf(out, "  - %s\n", r)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  ! %s\n", w)
	}
	return nil
}

// floatFlag returns &v when the flag was set on the command line, nil otherwise.
func floatFlag(cmd *cobra.Command, name string, v float64) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

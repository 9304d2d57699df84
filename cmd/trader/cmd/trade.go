package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/wxtrader/executor"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/market"
	"github.com/rustyeddy/wxtrader/pending"
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Record a paper trade in the ledger",
	Long: `Debit the ledger for a trade and append it as an open position.

The station is inferred from the contract ticker when not given.

Example:
  trader trade --contract KXHIGHNY-26FEB10-T52 --side no --qty 10 --price 0.30`,
	Args: cobra.NoArgs,
	RunE: runTrade,
}

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a trade for approval",
	Long: `Store a recommendation that expires after execution.pending_ttl unless
approved or rejected.

Example:
  trader propose --contract KXHIGHNY-26FEB10-T52 --side no --qty 5 --price 0.30 --edge 0.12 --reason "wide market sigma"`,
	Args: cobra.NoArgs,
	RunE: runPropose,
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending recommendation and execute it",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var executeCmd = &cobra.Command{
	Use:   "execute <id>",
	Short: "Execute an already approved recommendation",
	Long: `Retry execution of a recommendation that was approved but whose
execution failed a pre-flight check (risk, balance, market status).`,
	Args: cobra.ExactArgs(1),
	RunE: runExecute,
}

var rejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending recommendation",
	Args:  cobra.ExactArgs(1),
	RunE:  runReject,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending recommendations",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

var tradeFlags struct {
	strategy string
	station  string
	contract string
	side     string
	qty      int
	price    float64
	edge     float64
	reason   string
}

var pendingAll bool

func init() {
	rootCmd.AddCommand(tradeCmd, proposeCmd, approveCmd, executeCmd, rejectCmd, pendingCmd)

	for _, c := range []*cobra.Command{tradeCmd, proposeCmd} {
		c.Flags().StringVar(&tradeFlags.strategy, "strategy", ledger.StrategyWeather, "strategy label")
		c.Flags().StringVar(&tradeFlags.station, "station", "", "settlement station (default: from the ticker)")
		c.Flags().StringVar(&tradeFlags.contract, "contract", "", "contract ticker (required)")
		c.Flags().StringVar(&tradeFlags.side, "side", "", "yes or no (required)")
		c.Flags().IntVar(&tradeFlags.qty, "qty", 0, "number of contracts (required)")
		c.Flags().Float64Var(&tradeFlags.price, "price", 0, "price per contract in dollars (required)")
		c.MarkFlagRequired("contract")
		c.MarkFlagRequired("side")
		c.MarkFlagRequired("qty")
		c.MarkFlagRequired("price")
	}
	proposeCmd.Flags().Float64Var(&tradeFlags.edge, "edge", 0, "estimated edge")
	proposeCmd.Flags().StringVar(&tradeFlags.reason, "reason", "", "why the trade is proposed")
	pendingCmd.Flags().BoolVar(&pendingAll, "all", false, "include settled recommendations")
}

// stationFor resolves the station flag, falling back to the ticker's city.
func stationFor(reg *market.Registry, station, contract string) string {
	if station != "" {
		if id, ok := reg.Resolve(station); ok {
			return id
		}
		return strings.ToUpper(station)
	}
	c, err := market.ParseContract(contract)
	if err != nil {
		return ""
	}
	id, _ := reg.StationForContract(c)
	return id
}

func runTrade(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.ledger.ExecuteTrade(ledger.TradeRequest{
		Strategy: tradeFlags.strategy,
		Station:  stationFor(a.stations, tradeFlags.station, tradeFlags.contract),
		Contract: tradeFlags.contract,
		Side:     strings.ToLower(tradeFlags.side),
		Qty:      tradeFlags.qty,
		Price:    tradeFlags.price,
		Mode:     ledger.ModePaper,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, t)
	}
	l, err := a.ledger.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Recorded trade %s\n", t.ID)
	fmt.Fprintf(out, "  %s %s x%d @ $%.2f (cost $%.2f)\n", t.Contract, strings.ToUpper(t.Side), t.Qty, t.Price, t.Cost)
	fmt.Fprintf(out, "  Balance: $%.2f\n", l.Balance)
	return nil
}

func runPropose(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.pending.Add(pending.Proposal{
		Strategy:  tradeFlags.strategy,
		Station:   stationFor(a.stations, tradeFlags.station, tradeFlags.contract),
		Contract:  tradeFlags.contract,
		Side:      strings.ToLower(tradeFlags.side),
		Qty:       tradeFlags.qty,
		Price:     tradeFlags.price,
		Edge:      tradeFlags.edge,
		Reasoning: tradeFlags.reason,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, rec)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Proposed %s (expires %s)\n", rec.ID, rec.ExpiresAt.Local().Format("15:04:05"))
	fmt.Fprintf(out, "  Approve with: trader approve %s\n", rec.ID)
	return nil
}

func runApprove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.exec.Approve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printExecution(cmd, res)
}

func runExecute(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.exec.Execute(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printExecution(cmd, res)
}

func printExecution(cmd *cobra.Command, res executor.Execution) error {
	if jsonOutput {
		return printJSON(cmd, res)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Executed %s [%s]\n", res.Recommendation.ID, mode())
	fmt.Fprintf(out, "  %s %s x%d @ $%.2f\n", res.Order.Ticker, strings.ToUpper(res.Order.Side), res.Order.Count, res.Recommendation.Price)
	if res.Trade != nil {
		fmt.Fprintf(out, "  Ledger trade: %s\n", res.Trade.ID)
	}
	if res.Response != nil {
		fmt.Fprintf(out, "  Exchange order: %s (%s)\n", res.Response.OrderID, res.Response.Status)
	}
	return nil
}

func runReject(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.exec.Reject(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Rejected %s\n", rec.ID)
	return nil
}

func runPending(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var recs []pending.Recommendation
	if pendingAll {
		recs, err = a.pending.All()
	} else {
		recs, err = a.pending.Active()
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, recs)
	}
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No pending recommendations.")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintf(out, "%-10s %-9s %-28s %-3s x%-3d @ $%.2f  edge %.2f  expires %s\n",
			r.ID, r.Status, r.Contract, strings.ToUpper(r.Side), r.Qty, r.Price, r.Edge,
			r.ExpiresAt.Local().Format("15:04:05"))
	}
	return nil
}

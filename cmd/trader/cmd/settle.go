package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/wxtrader/observe"
	"github.com/rustyeddy/wxtrader/settlement"
)

var settleCmd = &cobra.Command{
	Use:   "settle [YYYY-MM-DD]",
	Short: "Settle open trades against observed temperatures",
	Long: `Fetch the observed daily high and low for every station with open trades
and settle the trades for the date (default: yesterday, UTC).

Settling a date twice never pays a trade twice. With --verify the results
are computed and printed without touching the ledger.

Examples:
  trader settle 2026-02-10
  trader settle --verify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSettle,
}

var (
	settleVerify      bool
	settleConcurrency int
)

func init() {
	rootCmd.AddCommand(settleCmd)
	settleCmd.Flags().BoolVar(&settleVerify, "verify", false, "preview results without writing the ledger")
	settleCmd.Flags().IntVar(&settleConcurrency, "concurrency", 4, "stations fetched in parallel")
}

func runSettle(cmd *cobra.Command, args []string) error {
	date := time.Now().UTC().AddDate(0, 0, -1).Format(time.DateOnly)
	if len(args) == 1 {
		date = args[0]
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := observe.NewClient(cfg.Observe, a.stations)
	if err != nil {
		return err
	}
	eng := settlement.New(a.ledger, client, a.recorder).WithConcurrency(settleConcurrency)

	var rep settlement.Report
	if settleVerify {
		rep, err = eng.Verify(cmd.Context(), date)
	} else {
		rep, err = eng.Settle(cmd.Context(), date)
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, rep)
	}
	printReport(cmd, rep)
	return nil
}

func printReport(cmd *cobra.Command, rep settlement.Report) {
	out := cmd.OutOrStdout()
	title := "Settlement"
	if rep.Preview {
		title = "Settlement preview"
	}
	fmt.Fprintf(out, "%s for %s\n", title, rep.Date)
	if len(rep.Stations) == 0 {
		fmt.Fprintln(out, "  no open trades")
		return
	}

	stations := make([]string, 0, len(rep.Observations))
	for s := range rep.Observations {
		stations = append(stations, s)
	}
	sort.Strings(stations)
	for _, s := range stations {
		o := rep.Observations[s]
		fmt.Fprintf(out, "  %-6s high %.1f°F  low %.1f°F  (%d readings)\n", s, o.HighF, o.LowF, o.Observations)
	}
	for _, s := range rep.Stations {
		if reason, ok := rep.Unavailable[s]; ok {
			fmt.Fprintf(out, "  %-6s unavailable: %s\n", s, reason)
		}
	}
	if rep.Error != "" {
		fmt.Fprintf(out, "✗ %s; ledger unchanged\n", rep.Error)
		return
	}

	fmt.Fprintln(out)
	for _, r := range rep.Results {
		verdict := "LOST"
		if r.Won {
			verdict = "WON "
		}
		fmt.Fprintf(out, "  %s %-28s %-3s x%-3d actual %.1f  pnl %+.2f\n",
			verdict, r.Contract, strings.ToUpper(r.Side), r.Qty, r.Actual, r.PnL)
	}
	for _, an := range rep.Anomalies {
		fmt.Fprintf(out, "  ? %s %s: %s\n", an.TradeID, an.Contract, an.Reason)
	}
	fmt.Fprintf(out, "\n%d settled, %d won, P&L %+.2f, balance $%.2f\n",
		len(rep.Results), rep.Wins(), rep.PnL(), rep.Balance)
}

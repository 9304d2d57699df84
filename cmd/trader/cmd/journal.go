package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/wxtrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade history journal",
	Long: `Query the history journal (JSONL directory or SQLite database, per
journal.type in the config).

Subcommands:
  summary - Record counts and date span per stream
  trades  - Trade records in a date range, optionally as CSV

Examples:
  trader journal summary
  trader journal trades --from 2026-02-01 --to 2026-02-10 --csv trades.csv`,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize each history stream",
	Args:  cobra.NoArgs,
	RunE:  runJournalSummary,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List trade records between two dates",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var (
	journalFrom string
	journalTo   string
	journalCSV  string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalSummaryCmd, journalTradesCmd)

	journalTradesCmd.Flags().StringVar(&journalFrom, "from", "", "first date YYYY-MM-DD (inclusive)")
	journalTradesCmd.Flags().StringVar(&journalTo, "to", "", "last date YYYY-MM-DD (inclusive)")
	journalTradesCmd.Flags().StringVar(&journalCSV, "csv", "", "write CSV to this file (- for stdout)")
}

func openJournal() (journal.Journal, error) {
	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	sum, err := j.Summary()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, sum)
	}
	out := cmd.OutOrStdout()
	for _, s := range sum {
		if s.Records == 0 {
			fmt.Fprintf(out, "%-13s empty\n", s.Kind)
			continue
		}
		fmt.Fprintf(out, "%-13s %6d records  %s .. %s", s.Kind, s.Records, s.First, s.Last)
		if len(s.Stations) > 0 {
			fmt.Fprintf(out, "  [%s]", strings.Join(s.Stations, " "))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.Trades(journalFrom, journalTo)
	if err != nil {
		return err
	}

	switch {
	case journalCSV == "-":
		return journal.WriteTradesCSV(cmd.OutOrStdout(), recs)
	case journalCSV != "":
		return writeCSVFile(journalCSV, recs)
	case jsonOutput:
		return printJSON(cmd, recs)
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No trades in range.")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintf(out, "%s  %-6s %-28s %-3s x%-3d @ $%.2f  edge %.3f  %s\n",
			r.Date, r.Station, r.Contract, strings.ToUpper(r.Side), r.Qty, r.Price, r.ExpectedEdge, r.Mode)
	}
	return nil
}

func writeCSVFile(path string, recs []journal.TradeRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return journal.WriteTradesCSV(f, recs)
}

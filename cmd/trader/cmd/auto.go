package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/wxtrader/executor"
	"github.com/rustyeddy/wxtrader/pkg/id"
)

var autoCmd = &cobra.Command{
	Use:   "auto <candidates-file>",
	Short: "Run a paper auto-execution session over scanned candidates",
	Long: `Read sized candidates from a YAML or JSON file and run one batch session:
portfolio risk check, net-edge filter, guard re-run, contract cap, then
paper trades in the ledger. Live mode is refused.

The file holds either a list of candidates or a document with "candidates"
and an optional "blocked" count of candidates the scanner already rejected.

Example:
  trader auto scan.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runAuto,
}

var autoSession string

func init() {
	rootCmd.AddCommand(autoCmd)
	autoCmd.Flags().StringVar(&autoSession, "session", "", "session id (default: generated)")
}

type candidateFile struct {
	Candidates []executor.Candidate `json:"candidates" yaml:"candidates"`
	Blocked    int                  `json:"blocked" yaml:"blocked"`
}

// loadCandidates accepts a bare list or a candidateFile, in YAML or JSON.
func loadCandidates(path string) (candidateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return candidateFile{}, fmt.Errorf("read candidates: %w", err)
	}

	var f candidateFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
			err = json.Unmarshal(data, &f.Candidates)
		} else {
			err = json.Unmarshal(data, &f)
		}
	default:
		var node yaml.Node
		if err = yaml.Unmarshal(data, &node); err == nil && len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			err = node.Decode(&f.Candidates)
		} else if err == nil {
			err = node.Decode(&f)
		}
	}
	if err != nil {
		return candidateFile{}, fmt.Errorf("parse candidates %s: %w", path, err)
	}
	return f, nil
}

func runAuto(cmd *cobra.Command, args []string) error {
	f, err := loadCandidates(args[0])
	if err != nil {
		return err
	}
	session := autoSession
	if session == "" {
		session = id.Short()
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.exec.RunSession(cmd.Context(), session, f.Candidates, f.Blocked)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, sum)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s: %d candidates\n", sum.Session, len(f.Candidates))
	for _, m := range sum.Messages {
		fmt.Fprintf(out, "  - %s\n", m)
	}
	if sum.Halted {
		fmt.Fprintln(out, "✗ Halted by portfolio risk limits")
		return nil
	}
	for _, t := range sum.Trades {
		fmt.Fprintf(out, "  ✓ %s %-28s %-3s x%-3d @ $%.2f\n", t.Station, t.Contract, strings.ToUpper(t.Side), t.Qty, t.Price)
	}
	fmt.Fprintf(out, "Placed %d, blocked %d, failed %d, risk $%.2f\n", sum.Placed, sum.Blocked, sum.Failed, sum.TotalRisk)
	return nil
}

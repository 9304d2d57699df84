package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

type versionInfo struct {
	Version string `json:"version"`
	Go      string `json:"go"`
	Mode    string `json:"mode"`
	Ledger  string `json:"ledger"`
	Journal string `json:"journal"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the active trading setup",
	Long: `Print the wxtrader version together with the setup later commands will use:
the trading mode (DRY RUN unless LIVE_TRADING=1), the ledger file and the
journal backend resolved from --config.

Use it to confirm which ledger a trade, approve or settle run will write to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{
			Version: version,
			Go:      runtime.Version(),
			Mode:    mode(),
			Ledger:  cfg.Ledger.Path,
			Journal: cfg.Journal.Type,
		}
		if jsonOutput {
			return printJSON(cmd, info)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "trader version %s (wxtrader, %s)\n", info.Version, info.Go)
		fmt.Fprintf(out, "mode:    %s\n", info.Mode)
		fmt.Fprintf(out, "ledger:  %s\n", info.Ledger)
		fmt.Fprintf(out, "journal: %s\n", info.Journal)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

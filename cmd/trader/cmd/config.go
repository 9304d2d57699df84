package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/wxtrader/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate, validate, show or edit configuration",
	Long: `Manage the trading configuration file.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file
  show     - Print the effective configuration
  set      - Change one field and save the file

Examples:
  trader config init -o config.yaml
  trader config validate -f config.yaml
  trader config set risk.max_open_positions 8`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <section.key> <value>",
	Short: "Set one configuration field",
	Long: `Set one field of the config file named by --config and save it. The file
is created from defaults when it does not exist.

Example:
  trader config set guard.min_sigma_gap 2.0`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd, configShowCmd, configSetCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "config.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (default: --config)")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.Default().SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  trader --config %s risk\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configValidatePath
	if path == "" {
		path = configPath
	}
	c, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", path)
	fmt.Fprintf(out, "  Bankroll: $%.2f (daily loss %.0f%%, drawdown %.0f%%)\n",
		c.Risk.InitialBankroll, c.Risk.MaxDailyLossPct*100, c.Risk.DrawdownPct*100)
	fmt.Fprintf(out, "  Guard: max %d contracts, sigma gap %.1f\n", c.Guard.HardMaxContracts, c.Guard.MinSigmaGap)
	fmt.Fprintf(out, "  Journal: %s\n", c.Journal.Type)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if jsonOutput {
		return printJSON(cmd, cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := cfg.SaveToFile(configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s = %s (%s)\n", args[0], args[1], configPath)
	return nil
}

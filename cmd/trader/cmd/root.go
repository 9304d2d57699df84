package cmd

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/wxtrader/broker"
	"github.com/rustyeddy/wxtrader/broker/kalshi"
	"github.com/rustyeddy/wxtrader/config"
	"github.com/rustyeddy/wxtrader/executor"
	"github.com/rustyeddy/wxtrader/guard"
	"github.com/rustyeddy/wxtrader/journal"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/logs"
	"github.com/rustyeddy/wxtrader/market"
	"github.com/rustyeddy/wxtrader/pending"
	"github.com/rustyeddy/wxtrader/risk"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Decision and settlement core for daily-temperature prediction markets",
	Long: `Trader admits, sizes, records and settles trades on daily high and low
temperature contracts.

It provides tools for:
  - Guard and risk checks before every trade
  - Kelly position sizing
  - A propose / approve / execute workflow with expiring recommendations
  - A durable paper ledger with idempotent settlement against observed weather
  - Batch auto-execution sessions in paper mode

Trading is dry-run unless LIVE_TRADING=1 is set in the environment or .env.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { logs.Close() },
}

var (
	configPath string
	envPath    string
	jsonOutput bool

	cfg *config.Config
	env *config.EnvConfig
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file (YAML or JSON); missing means defaults")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "dotenv file with LIVE_TRADING and exchange keys")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	env, _ = config.LoadEnv(envPath)
	return logs.Init(cfg.Logs)
}

// app is the wired set of stores and engines a command works against.
type app struct {
	stations *market.Registry
	ledger   *ledger.Store
	pending  *pending.Store
	risk     *risk.Manager
	guard    *guard.Engine
	history  journal.Journal
	recorder *journal.Recorder
	exec     *executor.Executor
}

func newApp() (*app, error) {
	stations, err := market.LoadRegistry(cfg.Stations.File)
	if err != nil {
		return nil, err
	}
	ttl, err := cfg.Execution.ParseTTL()
	if err != nil {
		return nil, fmt.Errorf("execution.pending_ttl: %w", err)
	}
	history, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, err
	}

	a := &app{
		stations: stations,
		ledger:   ledger.NewStore(cfg.Ledger.Path, cfg.Risk.InitialBankroll),
		pending:  pending.NewStore(cfg.Ledger.PendingPath, ttl),
		history:  history,
		recorder: journal.NewRecorder(history),
	}
	a.risk = risk.NewManager(risk.PolicyFromConfig(cfg.Risk), a.ledger)
	a.guard = guard.New(cfg.Guard, stations, a.ledger)

	var b broker.Broker
	if env.LiveTrading {
		kc, err := kalshi.New(cfg.Broker, env)
		if err != nil {
			history.Close()
			return nil, fmt.Errorf("live trading: %w", err)
		}
		b = kc
	}

	a.exec = executor.New(executor.OptionsFromConfig(cfg.Execution, env.LiveTrading), executor.Deps{
		Pending:  a.pending,
		Ledger:   a.ledger,
		Risk:     a.risk,
		Guard:    a.guard,
		Stations: stations,
		Broker:   b,
		Journal:  a.recorder,
	})
	return a, nil
}

func (a *app) Close() {
	if err := a.history.Close(); err != nil {
		logs.WithError(err).Warn("close journal")
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func mode() string {
	if env != nil && env.LiveTrading {
		return "LIVE"
	}
	return "DRY RUN"
}

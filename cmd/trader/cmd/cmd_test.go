package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/wxtrader/executor"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/pending"
	"github.com/rustyeddy/wxtrader/risk"
)

// workspace writes a config that keeps every file under a temp dir and
// points the root command at it.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	doc := fmt.Sprintf(`ledger:
  path: %[1]s/ledger.json
  pending_path: %[1]s/pending.json
journal:
  type: jsonl
  dir: %[1]s/history
logs:
  level: error
  file: ""
`, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	t.Setenv("LIVE_TRADING", "")
	return path
}

func run(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	jsonOutput, pendingAll, settleVerify = false, false, false
	autoSession = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath, "--env", filepath.Join(t.TempDir(), "none.env")}, args...))
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestTradeAndPositions(t *testing.T) {
	cfgPath := workspace(t)

	out := run(t, cfgPath, "trade", "--contract", "KXHIGHNY-26FEB10-T52", "--side", "NO", "--qty", "10", "--price", "0.30")
	assert.Contains(t, out, "Recorded trade")
	assert.Contains(t, out, "Balance: $997.00")

	var open []ledger.Trade
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "--json", "positions")), &open))
	require.Len(t, open, 1)
	assert.Equal(t, "KNYC", open[0].Station, "station from the ticker city")
	assert.Equal(t, "no", open[0].Side)
	assert.Equal(t, ledger.ModePaper, open[0].Mode)

	out = run(t, cfgPath, "ledger")
	assert.Contains(t, out, "Balance:      $997.00")
	assert.Contains(t, out, "Open:         1 ($3.00)")
}

func TestProposeApproveDryRun(t *testing.T) {
	cfgPath := workspace(t)

	var rec pending.Recommendation
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "--json", "propose",
		"--contract", "KXHIGHNY-26FEB10-T52", "--side", "yes", "--qty", "4", "--price", "0.25",
		"--edge", "0.1", "--reason", "test")), &rec))
	assert.Equal(t, pending.StatusPending, rec.Status)
	assert.Equal(t, "KNYC", rec.Station)

	assert.Contains(t, run(t, cfgPath, "pending"), rec.ID)

	var res executor.Execution
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "--json", "approve", rec.ID)), &res))
	assert.True(t, res.DryRun)
	require.NotNil(t, res.Trade)
	assert.Equal(t, 1.0, res.Trade.Cost)

	assert.Contains(t, run(t, cfgPath, "pending"), "No pending recommendations.")

	var all []pending.Recommendation
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "--json", "pending", "--all")), &all))
	require.Len(t, all, 1)
	assert.Equal(t, pending.StatusExecuted, all[0].Status)
}

func TestReject(t *testing.T) {
	cfgPath := workspace(t)

	var rec pending.Recommendation
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "--json", "propose",
		"--contract", "KXHIGHCHI-26FEB10-T30", "--side", "no", "--qty", "1", "--price", "0.5")), &rec))

	assert.Contains(t, run(t, cfgPath, "reject", rec.ID), "Rejected "+rec.ID)
}

func TestSize(t *testing.T) {
	cfgPath := workspace(t)

	var res risk.Result
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "--json", "size",
		"--bankroll", "1000", "--p-true", "0.70", "--p-market", "0.50")), &res))
	assert.Equal(t, 20, res.Contracts)
	assert.True(t, res.LiquidityCapped)
	assert.InDelta(t, 0.05, res.Fraction, 1e-9)

	assert.Contains(t, run(t, cfgPath, "size", "--bankroll", "1000", "--p-true", "0.4", "--p-market", "0.5"), "No edge")
}

func TestRiskStatus(t *testing.T) {
	cfgPath := workspace(t)

	var st risk.StatusReport
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "--json", "risk")), &st))
	assert.True(t, st.TradingAllowed)
	assert.Equal(t, 1000.0, st.Balance)

	assert.Contains(t, run(t, cfgPath, "risk", "--station", "KNYC", "--cost", "5"), "within limits")
}

func TestAutoSession(t *testing.T) {
	cfgPath := workspace(t)
	scan := filepath.Join(filepath.Dir(cfgPath), "scan.yaml")
	require.NoError(t, os.WriteFile(scan, []byte(`blocked: 3
candidates:
  - station: KNYC
    ticker: KXHIGHNY-26FEB10-T52
    side: yes
    price: 0.30
    edge: 0.20
    p_est: 0.50
    contracts: 8
    market_sigma: 5.0
    date: "2026-02-10"
`), 0o644))

	var sum executor.Summary
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "--json", "auto", "--session", "s1", scan)), &sum))
	assert.Equal(t, "s1", sum.Session)
	assert.Equal(t, 1, sum.Placed)
	assert.Equal(t, 3, sum.Blocked)
	require.Len(t, sum.Trades, 1)
	assert.Equal(t, 5, sum.Trades[0].Qty)

	out := run(t, cfgPath, "journal", "trades", "--csv", "-")
	assert.Contains(t, out, "KXHIGHNY-26FEB10-T52")
}

func TestLoadCandidates(t *testing.T) {
	dir := t.TempDir()

	list := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(list, []byte(`[{"station":"KNYC","ticker":"KXHIGHNY-26FEB10-T52","side":"yes","price":0.3,"edge":0.2,"contracts":2,"marketSigma":5}]`), 0o644))
	f, err := loadCandidates(list)
	require.NoError(t, err)
	require.Len(t, f.Candidates, 1)
	require.NotNil(t, f.Candidates[0].MarketSigma)
	assert.Equal(t, 5.0, *f.Candidates[0].MarketSigma)

	seq := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(seq, []byte("- station: KMIA\n  ticker: KXHIGHMIA-26FEB10-B72.5\n  side: no\n"), 0o644))
	f, err = loadCandidates(seq)
	require.NoError(t, err)
	require.Len(t, f.Candidates, 1)
	assert.Equal(t, "KMIA", f.Candidates[0].Station)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = loadCandidates(bad)
	assert.Error(t, err)
}

func TestConfigSetAndShow(t *testing.T) {
	cfgPath := workspace(t)

	assert.Contains(t, run(t, cfgPath, "config", "set", "risk.max_open_positions", "8"), "risk.max_open_positions = 8")
	assert.Contains(t, run(t, cfgPath, "config", "validate"), "Configuration valid")
	assert.Contains(t, run(t, cfgPath, "config", "show"), "max_open_positions: 8")
}

func TestVersion(t *testing.T) {
	cfgPath := workspace(t)
	out := run(t, cfgPath, "version")
	assert.Contains(t, out, "trader version "+version)
	assert.Contains(t, out, "mode:    DRY RUN")
	assert.Contains(t, out, filepath.Join(filepath.Dir(cfgPath), "ledger.json"))
	assert.Contains(t, out, "journal: jsonl")

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "--json", "version")), &info))
	assert.Equal(t, version, info.Version)
	assert.Equal(t, "DRY RUN", info.Mode)
}

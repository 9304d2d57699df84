package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/wxtrader/journal"
	"github.com/rustyeddy/wxtrader/ledger"
)

func ptr(v float64) *float64 { return &v }

func batchOptions(max int) Options {
	return Options{AutoMaxContracts: 5, TransactionCost: 0.04, MaxTradesPerSession: max}
}

func nycCandidate() Candidate {
	return Candidate{
		Station:     "KNYC",
		Ticker:      "KXHIGHNY-26FEB10-T52",
		Side:        "YES",
		Price:       0.30,
		Edge:        0.20,
		PEst:        0.50,
		Contracts:   8,
		MarketSigma: ptr(5.0),
		Date:        "2026-02-10",
	}
}

func TestRunSessionRefusesLive(t *testing.T) {
	f := newFixture(t, Options{Live: true}, 100)

	_, err := f.exec.RunSession(context.Background(), "s1", []Candidate{nycCandidate()}, 0)
	assert.ErrorIs(t, err, ErrLiveAutoExecution)

	l, err := f.led.Load()
	require.NoError(t, err)
	assert.Empty(t, l.Trades)
}

func TestRunSessionPlacesBestCandidate(t *testing.T) {
	f := newFixture(t, batchOptions(1), 0)
	thin := nycCandidate()
	thin.Edge = 0.03

	sum, err := f.exec.RunSession(context.Background(), "s1", []Candidate{thin, nycCandidate()}, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Placed)
	assert.Equal(t, 2, sum.Blocked)
	assert.Zero(t, sum.Failed)
	require.Len(t, sum.Trades, 1)

	tr := sum.Trades[0]
	assert.Equal(t, 5, tr.Qty, "capped at auto max")
	assert.Equal(t, "yes", tr.Side)
	assert.Equal(t, ledger.ModePaper, tr.Mode)
	assert.Equal(t, 0.20, tr.Metadata["expectedEdge"])
	assert.Equal(t, 5.0, tr.Metadata["marketSigma"])
	assert.Equal(t, 1.50, sum.TotalRisk)
	assert.Contains(t, sum.Messages, "KXHIGHNY-26FEB10-T52: capped 8 -> 5 contracts")

	l, err := f.led.Load()
	require.NoError(t, err)
	assert.Equal(t, 998.50, l.Balance)

	trades, err := f.history.Trades("", "")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "s1", trades[0].Session)
	assert.Equal(t, 5.0, trades[0].MarketSigma)
}

func TestRunSessionNothingExecutable(t *testing.T) {
	f := newFixture(t, batchOptions(1), 0)
	zero := nycCandidate()
	zero.Contracts = 0
	thin := nycCandidate()
	thin.Edge = 0.04

	sum, err := f.exec.RunSession(context.Background(), "s1", []Candidate{zero, thin}, 0)
	require.NoError(t, err)
	assert.Zero(t, sum.Placed)
	assert.Equal(t, []string{"no trades with positive net edge after transaction costs"}, sum.Messages)
}

func TestRunSessionGuardBlocks(t *testing.T) {
	f := newFixture(t, batchOptions(2), 0)
	noSigma := nycCandidate()
	noSigma.MarketSigma = nil
	okc := Candidate{
		Station: "KOKC", Ticker: "KXHIGHOKC-26FEB10-T60", Side: "no",
		Price: 0.4, Edge: 0.2, Contracts: 3, MarketSigma: ptr(6.0), Date: "2026-02-10",
	}

	sum, err := f.exec.RunSession(context.Background(), "s2", []Candidate{noSigma, okc}, 1)
	require.NoError(t, err)

	assert.Zero(t, sum.Placed)
	assert.Equal(t, 3, sum.Blocked)
	require.Len(t, sum.Messages, 2)
	assert.Contains(t, sum.Messages[0], "no market sigma data")
	assert.Contains(t, sum.Messages[1], "not in tradeable whitelist")

	hist, err := f.history.Summary()
	require.NoError(t, err)
	assert.Equal(t, journal.KindDecisions, hist[2].Kind)
	assert.Equal(t, 2, hist[2].Records)
}

func TestRunSessionHaltedByRisk(t *testing.T) {
	f := newFixture(t, batchOptions(1), 0)
	for _, c := range []string{"A-T1", "B-T1", "C-T1", "D-T1", "E-T1"} {
		_, err := f.led.ExecuteTrade(ledger.TradeRequest{Contract: c, Side: "yes", Qty: 1, Price: 0.1})
		require.NoError(t, err)
	}

	sum, err := f.exec.RunSession(context.Background(), "s3", []Candidate{nycCandidate()}, 0)
	require.NoError(t, err)
	assert.True(t, sum.Halted)
	assert.Zero(t, sum.Placed)
	require.NotEmpty(t, sum.Messages)
	assert.Contains(t, sum.Messages[0], "open positions 5 >= max 5")
}

func TestRunSessionRiskBlocksTrade(t *testing.T) {
	f := newFixture(t, batchOptions(1), 0)
	big := nycCandidate()
	big.DollarRisk = 75

	sum, err := f.exec.RunSession(context.Background(), "s4", []Candidate{big}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Blocked)
	assert.Contains(t, sum.Messages[0], "blocked by risk limits")
}

func TestRunSessionPanicCountsAsFailure(t *testing.T) {
	f := newFixture(t, batchOptions(2), 0)
	f.exec.Guard = nil
	crypto := Candidate{
		Strategy: ledger.StrategyCrypto, Ticker: "KXBTCD-26FEB10-T100000", Side: "no",
		Price: 0.4, Edge: 0.1, Contracts: 2,
	}

	sum, err := f.exec.RunSession(context.Background(), "s5", []Candidate{nycCandidate(), crypto}, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Placed)
	require.Len(t, sum.Trades, 1)
	assert.Equal(t, ledger.StrategyCrypto, sum.Trades[0].Strategy)
	assert.Contains(t, sum.Messages[0], "execution failed")
}

func TestRunSessionCanceled(t *testing.T) {
	f := newFixture(t, batchOptions(1), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.exec.RunSession(ctx, "s6", []Candidate{nycCandidate()}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSessionDatesCandidateFromTicker(t *testing.T) {
	f := newFixture(t, batchOptions(1), 0)
	_, err := f.led.ExecuteTrade(ledger.TradeRequest{
		Station: "KNYC", Contract: "KXHIGHNY-26FEB11-T50", Side: "yes", Qty: 2, Price: 0.30,
	})
	require.NoError(t, err)

	tomorrow := nycCandidate()
	tomorrow.Ticker = "KXHIGHNY-26FEB11-T52"
	tomorrow.Date = ""

	sum, err := f.exec.RunSession(context.Background(), "s7", []Candidate{tomorrow}, 0)
	require.NoError(t, err)
	assert.Zero(t, sum.Placed)
	assert.Equal(t, 1, sum.Blocked)
	require.NotEmpty(t, sum.Messages)
	assert.Contains(t, sum.Messages[0], "already 1 open trade(s) for KNYC on 2026-02-11")
}

func TestCandidateContractDate(t *testing.T) {
	c := nycCandidate()
	assert.Equal(t, "2026-02-10", c.contractDate())
	c.Date = ""
	c.Ticker = "KXHIGHNY-26FEB11-T52"
	assert.Equal(t, "2026-02-11", c.contractDate())
	c.Ticker = "garbage"
	assert.Empty(t, c.contractDate())
}

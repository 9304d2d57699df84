package settlement

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/wxtrader/journal"
	"github.com/rustyeddy/wxtrader/ledger"
)

const date = "2026-02-10"

var now = time.Date(2026, 2, 11, 13, 0, 0, 0, time.UTC)

type fakeObserver struct {
	mu    sync.Mutex
	obs   map[string]*ledger.Observation
	errs  map[string]error
	calls []string
}

func (f *fakeObserver) Observe(ctx context.Context, station, d string) (*ledger.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, station)
	if err := f.errs[station]; err != nil {
		return nil, err
	}
	return f.obs[station], nil
}

type fixture struct {
	led     *ledger.Store
	history *journal.JSONL
	eng     *Engine
	obs     *fakeObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	led := ledger.NewStore(filepath.Join(dir, "ledger.json"), 1000, ledger.WithClock(func() time.Time { return now }))
	hist, err := journal.NewJSONL(filepath.Join(dir, "history"))
	require.NoError(t, err)
	obs := &fakeObserver{obs: map[string]*ledger.Observation{}, errs: map[string]error{}}
	return &fixture{
		led:     led,
		history: hist,
		obs:     obs,
		eng:     New(led, obs, journal.NewRecorder(hist)).WithConcurrency(2),
	}
}

func (f *fixture) trade(t *testing.T, station, contract, side string, qty int, price float64, meta map[string]float64) ledger.Trade {
	t.Helper()
	tr, err := f.led.ExecuteTrade(ledger.TradeRequest{
		Station: station, Contract: contract, Side: side, Qty: qty, Price: price, Metadata: meta,
	})
	require.NoError(t, err)
	return tr
}

func TestSettleWinRestoresBalance(t *testing.T) {
	f := newFixture(t)
	f.trade(t, "KNYC", "KXHIGHNY-26FEB10-T52", "yes", 40, 1.00, map[string]float64{"forecast": 53})
	f.obs.obs["KNYC"] = &ledger.Observation{HighF: 55, LowF: 38, Observations: 24}

	rep, err := f.eng.Settle(context.Background(), date)
	require.NoError(t, err)

	assert.Empty(t, rep.Error)
	assert.Equal(t, []string{"KNYC"}, rep.Stations)
	require.Len(t, rep.Results, 1)
	assert.True(t, rep.Results[0].Won)
	assert.Equal(t, 40.0, rep.Results[0].Payout)
	assert.Equal(t, 0.0, rep.PnL())
	assert.Equal(t, 1, rep.Wins())
	assert.Equal(t, 1000.0, rep.Balance)

	l, err := f.led.Load()
	require.NoError(t, err)
	assert.True(t, l.Trades[0].Settled)
	assert.Equal(t, 1000.0, l.Balance)

	sum, err := f.history.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1, sum[3].Records)
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.trade(t, "KNYC", "KXHIGHNY-26FEB10-B52", "no", 10, 0.30, nil)
	f.obs.obs["KNYC"] = &ledger.Observation{HighF: 52.4}

	first, err := f.eng.Settle(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, first.Results, 1)
	assert.False(t, first.Results[0].Won)
	assert.Equal(t, 997.0, first.Balance)

	second, err := f.eng.Settle(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, NoObservations, second.Error, "no open trades left to fetch for")
	assert.Empty(t, second.Results)

	l, err := f.led.Load()
	require.NoError(t, err)
	assert.Equal(t, 997.0, l.Balance)
	assert.Len(t, l.Settlements, 1)
}

func TestSettleNoObservationsLeavesLedger(t *testing.T) {
	f := newFixture(t)
	f.trade(t, "KNYC", "KXHIGHNY-26FEB10-T52", "yes", 2, 0.40, nil)
	f.trade(t, "KMIA", "KXHIGHMIA-26FEB10-T80", "no", 2, 0.40, nil)
	f.obs.errs["KNYC"] = errors.New("timeout")

	rep, err := f.eng.Settle(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, NoObservations, rep.Error)
	assert.Equal(t, "timeout", rep.Unavailable["KNYC"])
	assert.Equal(t, "no data", rep.Unavailable["KMIA"])

	l, err := f.led.Load()
	require.NoError(t, err)
	assert.Empty(t, l.Settlements)
	assert.Len(t, l.Open(), 2)
}

func TestSettlePartialObservations(t *testing.T) {
	f := newFixture(t)
	f.trade(t, "KNYC", "KXHIGHNY-26FEB10-T52", "yes", 2, 0.40, nil)
	f.trade(t, "KMIA", "KXHIGHMIA-26FEB10-T80", "no", 2, 0.40, nil)
	f.obs.errs["KNYC"] = errors.New("502")
	f.obs.obs["KMIA"] = &ledger.Observation{HighF: 78}

	rep, err := f.eng.Settle(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "KMIA", rep.Results[0].Station)
	assert.True(t, rep.Results[0].Won)
	assert.ElementsMatch(t, []string{"KMIA", "KNYC"}, f.obs.calls)

	l, err := f.led.Load()
	require.NoError(t, err)
	require.Len(t, l.Open(), 1)
	assert.Equal(t, "KNYC", l.Open()[0].Station)
}

func TestVerifyDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	f.trade(t, "KNYC", "KXHIGHNY-26FEB10-T52", "yes", 5, 0.40, nil)
	f.obs.obs["KNYC"] = &ledger.Observation{HighF: 51}

	rep, err := f.eng.Verify(context.Background(), date)
	require.NoError(t, err)
	assert.True(t, rep.Preview)
	require.Len(t, rep.Results, 1)
	assert.False(t, rep.Results[0].Won)
	assert.Equal(t, -2.0, rep.PnL())
	assert.Equal(t, 998.0, rep.Balance)

	l, err := f.led.Load()
	require.NoError(t, err)
	assert.False(t, l.Trades[0].Settled)
	assert.Empty(t, l.Settlements)

	sum, err := f.history.Summary()
	require.NoError(t, err)
	assert.Zero(t, sum[3].Records)
}

func TestSettleReportsAnomalies(t *testing.T) {
	f := newFixture(t)
	f.trade(t, "KNYC", "KXHIGHNY-26FEB10-X52", "yes", 1, 0.40, nil)
	f.obs.obs["KNYC"] = &ledger.Observation{HighF: 51}

	rep, err := f.eng.Settle(context.Background(), date)
	require.NoError(t, err)
	assert.Empty(t, rep.Results)
	require.Len(t, rep.Anomalies, 1)
	assert.Contains(t, rep.Anomalies[0].Reason, "neither threshold")
}

func TestSettleBadDate(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.Settle(context.Background(), "yesterday")
	assert.Error(t, err)
	assert.Empty(t, f.obs.calls)
}

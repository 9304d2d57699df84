package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryWhitelist(t *testing.T) {
	r := DefaultRegistry()

	assert.True(t, r.Tradeable("KNYC"))
	assert.True(t, r.Tradeable("knyc"))
	assert.False(t, r.Tradeable("KMDW"), "disabled station")
	assert.False(t, r.Tradeable("KOKC"), "tier C station")
	assert.False(t, r.Tradeable("KXYZ"))

	ids := r.TradeableIDs()
	assert.Contains(t, ids, "KMIA")
	assert.NotContains(t, ids, "KMDW")
	assert.IsIncreasing(t, ids)
}

func TestCorrelationAdjacency(t *testing.T) {
	r := DefaultRegistry()

	assert.True(t, r.Correlated("KDFW", "KAUS"))
	assert.True(t, r.Correlated("KAUS", "KDFW"))
	assert.False(t, r.Correlated("KDFW", "KDFW"))
	assert.False(t, r.Correlated("KDFW", "KNYC"))
	assert.False(t, r.Correlated("KMIA", "KATL"))
	assert.Equal(t, []string{"KDCA", "KPHL"}, r.CorrelatedWith("KNYC"))
}

func TestEffectiveSigma(t *testing.T) {
	r, err := NewRegistry([]Station{
		{ID: "KAAA", Tier: "A", BaseSigma: 2.0, BaseSigmaLow: 3.0},
		{ID: "KBBB", Tier: "A"},
		{ID: "KCCC", Tier: "A", BaseSigma: 2.0, RunningMAE: 2.0, RunningN: 30},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      string
		month   int
		horizon int
		want    float64
	}{
		{"summer same day", "KAAA", 7, 0, 2.0},
		{"winter bump", "KAAA", 1, 0, 2.5},
		{"november is winter", "KAAA", 11, 1, 2.5},
		{"two day horizon", "KAAA", 7, 2, 2.6},
		{"long horizon clamps", "KAAA", 7, 10, 3.1},
		{"uncalibrated default", "KBBB", 7, 0, 3.5},
		{"unknown station", "KZZZ", 7, 0, 3.5},
		{"bayesian shrink", "KCCC", 7, 0, 2.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, r.EffectiveSigma(tt.id, tt.month, tt.horizon), 1e-9)
		})
	}
	assert.InDelta(t, 3.0, r.EffectiveSigmaLow("KAAA", 7, 0), 1e-9)
}

func TestBayesianSigma(t *testing.T) {
	assert.Equal(t, 2.0, BayesianSigma(2.0, 0, 100))
	assert.Equal(t, 2.0, BayesianSigma(2.0, 3.0, 4))
	// (30*2 + 30*2.506) / 60 = 2.253
	assert.Equal(t, 2.25, BayesianSigma(2.0, 2.0, 30))
}

func TestClimNormalAndCalibration(t *testing.T) {
	r := DefaultRegistry()

	n, ok := r.ClimNormal("KNYC", 2)
	require.True(t, ok)
	assert.Equal(t, 40.0, n)

	_, ok = r.ClimNormal("KZZZ", 2)
	assert.False(t, ok)

	assert.True(t, r.InCalibrationWindow("KNYC", 1))
	assert.False(t, r.InCalibrationWindow("KNYC", 7))
	assert.True(t, r.InCalibrationWindow("KZZZ", 7))
}

func TestResolve(t *testing.T) {
	r := DefaultRegistry()

	for arg, want := range map[string]string{"knyc": "KNYC", "NY": "KNYC", "NYC": "KNYC", "mia": "KMIA"} {
		got, ok := r.Resolve(arg)
		assert.True(t, ok, arg)
		assert.Equal(t, want, got, arg)
	}
	_, ok := r.Resolve("nowhere")
	assert.False(t, ok)

	c, err := ParseContract("KXLOWTNYC-26JAN03-T20")
	require.NoError(t, err)
	id, ok := r.StationForContract(c)
	assert.True(t, ok)
	assert.Equal(t, "KNYC", id)
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.yaml")
	doc := `stations:
  KAAA:
    tier: A
    correlation_group: g
  KBBB:
    tier: B
    enabled: false
    correlation_group: g
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"KAAA", "KBBB"}, r.IDs())
	assert.Equal(t, []string{"KAAA"}, r.TradeableIDs())
	assert.True(t, r.Correlated("KAAA", "KBBB"))

	s, ok := r.Get("KAAA")
	require.True(t, ok)
	assert.Equal(t, "KAAA", s.ObservationStation)
}

func TestNewRegistryRejectsBadInput(t *testing.T) {
	_, err := NewRegistry([]Station{{ID: "KAAA"}, {ID: "kaaa"}})
	assert.Error(t, err)

	_, err = NewRegistry([]Station{{ID: "KAAA", CalibrationMonths: []int{13}}})
	assert.Error(t, err)

	_, err = ParseRegistry([]byte("stations: {}\n"))
	assert.Error(t, err)
}

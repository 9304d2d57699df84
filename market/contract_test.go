package market

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContract(t *testing.T) {
	tests := []struct {
		ticker string
		want   Contract
	}{
		{
			ticker: "KXHIGHNY-26FEB10-T52",
			want:   Contract{Series: "KXHIGHNY", City: "NY", Date: "2026-02-10", Kind: Threshold, Strike: 52},
		},
		{
			ticker: "KXHIGHMIA-26FEB09-B72.5",
			want:   Contract{Series: "KXHIGHMIA", City: "MIA", Date: "2026-02-09", Kind: Bracket, Strike: 72.5},
		},
		{
			ticker: "KXLOWTNYC-26JAN03-T20",
			want:   Contract{Series: "KXLOWTNYC", City: "NYC", Date: "2026-01-03", Kind: Threshold, Strike: 20, Low: true},
		},
		{
			ticker: "KXBTCD-26FEB09-T100000",
			want:   Contract{Series: "KXBTCD", Date: "2026-02-09", Kind: Threshold, Strike: 100000},
		},
		{
			ticker: "CUSTOM-T28.5",
			want:   Contract{Series: "CUSTOM", Kind: Threshold, Strike: 28.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.ticker, func(t *testing.T) {
			got, err := ParseContract(tt.ticker)
			require.NoError(t, err)
			tt.want.Ticker = tt.ticker
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseContractUnrecognized(t *testing.T) {
	for _, ticker := range []string{"", "KXHIGHNY-26FEB10", "KXHIGHNY-26FEB10-X52", "KXHIGHNY-26FEB10-T1.2.3"} {
		_, err := ParseContract(ticker)
		assert.True(t, errors.Is(err, ErrUnrecognizedContract), ticker)
	}
}

func TestBracketRange(t *testing.T) {
	tests := []struct {
		strike float64
		lo, hi float64
	}{
		{72, 72, 73},
		{72.5, 72, 74},
		{0.5, 0, 2},
	}
	for _, tt := range tests {
		lo, hi := Contract{Kind: Bracket, Strike: tt.strike}.BracketRange()
		assert.Equal(t, tt.lo, lo)
		assert.Equal(t, tt.hi, hi)
	}
}

func TestWins(t *testing.T) {
	th := Contract{Kind: Threshold, Strike: 52}
	assert.True(t, th.Wins("yes", 52))
	assert.False(t, th.Wins("yes", 51.9))
	assert.True(t, th.Wins("no", 51.9))
	assert.False(t, th.Wins("NO", 60))

	br := Contract{Kind: Bracket, Strike: 72.5}
	assert.True(t, br.Wins("yes", 72))
	assert.True(t, br.Wins("yes", 73.9))
	assert.False(t, br.Wins("yes", 74))
	assert.True(t, br.Wins("no", 71.9))
}

package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitBuy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		side  string
		price float64
		yes   int
		no    int
	}{
		{"yes side", "YES", 0.35, 35, 0},
		{"no side", "no", 0.62, 0, 62},
		{"rounds to cent", "yes", 0.287, 29, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := LimitBuy("KXHIGHNY-26FEB10-T52", tt.side, 3, tt.price)
			assert.Equal(t, "buy", o.Action)
			assert.Equal(t, "limit", o.Type)
			assert.Equal(t, tt.yes, o.YesPrice)
			assert.Equal(t, tt.no, o.NoPrice)
			assert.Equal(t, max(tt.yes, tt.no), o.PriceCents())
		})
	}
}

func TestMarketIsOpen(t *testing.T) {
	t.Parallel()

	assert.True(t, Market{}.IsOpen())
	assert.True(t, Market{Status: "open"}.IsOpen())
	assert.True(t, Market{Status: "Active"}.IsOpen())
	assert.False(t, Market{Status: "closed"}.IsOpen())
	assert.False(t, Market{Status: "settled"}.IsOpen())
}

func TestPaperBroker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewPaper(10)

	b, err := p.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, b.Dollars())

	fill, err := p.PlaceOrder(ctx, LimitBuy("A-T1", "yes", 10, 0.40))
	require.NoError(t, err)
	assert.NotEmpty(t, fill.OrderID)
	assert.Equal(t, 10, fill.Count)

	b, _ = p.Balance(ctx)
	assert.Equal(t, int64(600), b.Cents)

	_, err = p.PlaceOrder(ctx, LimitBuy("A-T1", "yes", 10, 0.70))
	assert.True(t, errors.Is(err, ErrRejected))

	p.SetMarket(Market{Ticker: "B-T1", Status: StatusClosed})
	m, err := p.Market(ctx, "B-T1")
	require.NoError(t, err)
	assert.False(t, m.IsOpen())
	_, err = p.PlaceOrder(ctx, LimitBuy("B-T1", "no", 1, 0.10))
	assert.True(t, errors.Is(err, ErrRejected))

	assert.Len(t, p.Orders(), 1)
}

package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rustyeddy/wxtrader/pkg/id"
)

// Paper is an in-memory exchange. It debits its cash on every order and
// never fills against real liquidity.
type Paper struct {
	mu      sync.Mutex
	cents   int64
	markets map[string]Market
	orders  []OrderRequest
}

// NewPaper returns a paper exchange holding dollars of cash.
func NewPaper(dollars float64) *Paper {
	return &Paper{cents: int64(dollars*100 + 0.5), markets: make(map[string]Market)}
}

// SetMarket registers or replaces a market.
func (p *Paper) SetMarket(m Market) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markets[m.Ticker] = m
}

// Orders returns the orders placed so far.
func (p *Paper) Orders() []OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]OrderRequest(nil), p.orders...)
}

func (p *Paper) Balance(ctx context.Context) (Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Balance{Cents: p.cents}, nil
}

// Market returns a registered market. Unregistered tickers are reported as
// open so the paper exchange accepts any contract.
func (p *Paper) Market(ctx context.Context, ticker string) (Market, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.markets[ticker]; ok {
		return m, nil
	}
	return Market{Ticker: ticker, Status: StatusOpen}, nil
}

func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (OrderFill, error) {
	if err := ctx.Err(); err != nil {
		return OrderFill{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.markets[req.Ticker]; ok && !m.IsOpen() {
		return OrderFill{}, fmt.Errorf("%w: market %s is %s", ErrRejected, req.Ticker, m.Status)
	}
	cost := int64(req.Count) * int64(req.PriceCents())
	if cost > p.cents {
		return OrderFill{}, fmt.Errorf("%w: need %d¢, have %d¢", ErrRejected, cost, p.cents)
	}
	p.cents -= cost
	p.orders = append(p.orders, req)
	return OrderFill{OrderID: id.New(), Status: "executed", Ticker: req.Ticker, Side: req.Side, Count: req.Count}, nil
}

// Package broker defines the exchange surface the executor places orders
// through.
package broker

import (
	"context"
	"errors"
	"math"
	"strings"
)

var (
	ErrMarketNotFound = errors.New("market not found")
	ErrRejected       = errors.New("order rejected")
)

// Market status values.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

type Broker interface {
	Balance(ctx context.Context) (Balance, error)
	Market(ctx context.Context, ticker string) (Market, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderFill, error)
}

// Balance is the available cash in cents.
type Balance struct {
	Cents int64 `json:"balance"`
}

// Dollars converts the balance to dollars.
func (b Balance) Dollars() float64 { return float64(b.Cents) / 100 }

// Market is the subset of exchange market state the executor reads.
type Market struct {
	Ticker string `json:"ticker"`
	Status string `json:"status"`
	YesBid int    `json:"yes_bid"`
	YesAsk int    `json:"yes_ask"`
	NoBid  int    `json:"no_bid"`
	NoAsk  int    `json:"no_ask"`
	Volume int    `json:"volume"`
}

// IsOpen reports whether the market accepts orders. An empty status is
// treated as open.
func (m Market) IsOpen() bool {
	return m.Status == "" || strings.EqualFold(m.Status, StatusOpen) || strings.EqualFold(m.Status, "active")
}

// OrderRequest is a limit order. Prices are in cents.
type OrderRequest struct {
	Ticker        string `json:"ticker"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// LimitBuy builds a buy order for side at price dollars.
func LimitBuy(ticker, side string, count int, price float64) OrderRequest {
	side = strings.ToLower(side)
	cents := int(math.Round(price * 100))
	o := OrderRequest{Ticker: ticker, Side: side, Action: "buy", Count: count, Type: "limit"}
	if side == "no" {
		o.NoPrice = cents
	} else {
		o.YesPrice = cents
	}
	return o
}

// PriceCents returns the limit price on the order's side.
func (o OrderRequest) PriceCents() int {
	if o.Side == "no" {
		return o.NoPrice
	}
	return o.YesPrice
}

// OrderFill is the exchange acknowledgement of a placed order.
type OrderFill struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Ticker  string `json:"ticker"`
	Side    string `json:"side"`
	Count   int    `json:"count"`
}

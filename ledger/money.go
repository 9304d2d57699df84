package ledger

import "github.com/shopspring/decimal"

// FaceValue is the payout per winning contract in dollars.
const FaceValue = 1.0

// Cents rounds a dollar amount to the nearest cent.
func Cents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Cost returns qty*price rounded to the cent. The stored trade cost and the
// balance debit both use this value, so sub-cent prices cannot make them drift.
func Cost(qty int, price float64) float64 {
	return decimal.NewFromInt(int64(qty)).Mul(decimal.NewFromFloat(price)).Round(2).InexactFloat64()
}

func add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

func sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

func sum(vals ...float64) float64 {
	total := decimal.Zero
	for _, v := range vals {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

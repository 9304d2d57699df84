package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var tradeHeader = []string{
	"date", "timestamp", "session", "strategy", "mode", "station", "contract",
	"side", "qty", "price", "expected_edge", "market_sigma", "our_sigma",
}

// WriteTradesCSV writes trade records as CSV with a header row.
func WriteTradesCSV(w io.Writer, recs []TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range recs {
		err := cw.Write([]string{
			t.Date,
			t.Timestamp.UTC().Format(time.RFC3339),
			t.Session,
			t.Strategy,
			t.Mode,
			t.Station,
			t.Contract,
			t.Side,
			strconv.Itoa(t.Qty),
			f(t.Price),
			f(t.ExpectedEdge),
			f(t.MarketSigma),
			f(t.OurSigma),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 4, 64)
}

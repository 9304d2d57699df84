package market

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnrecognizedContract is returned for tickers that encode neither a
// threshold nor a bracket strike.
var ErrUnrecognizedContract = errors.New("contract encodes neither threshold nor bracket")

// ContractKind distinguishes threshold and bracket contracts.
type ContractKind string

const (
	Threshold ContractKind = "threshold"
	Bracket   ContractKind = "bracket"
)

// Contract is the parsed form of an exchange ticker such as
// KXHIGHNY-26FEB10-T52 or KXHIGHMIA-26FEB09-B72.5.
type Contract struct {
	Ticker string       `json:"ticker"`
	Series string       `json:"series"`
	City   string       `json:"city,omitempty"`
	Date   string       `json:"date,omitempty"` // YYYY-MM-DD; empty when the ticker has no date segment
	Kind   ContractKind `json:"kind"`
	Strike float64      `json:"strike"`
	Low    bool         `json:"low,omitempty"` // settles on the daily low
}

var (
	thresholdRe = regexp.MustCompile(`-T([\d.]+)$`)
	bracketRe   = regexp.MustCompile(`-B([\d.]+)$`)
	dateRe      = regexp.MustCompile(`-(\d{2})([A-Z]{3})(\d{2})-`)
)

var months = map[string]string{
	"JAN": "01", "FEB": "02", "MAR": "03", "APR": "04", "MAY": "05", "JUN": "06",
	"JUL": "07", "AUG": "08", "SEP": "09", "OCT": "10", "NOV": "11", "DEC": "12",
}

const (
	highPrefix = "KXHIGH"
	lowPrefix  = "KXLOWT"
)

// ParseContract extracts the strike and, when present, the contract date and
// city from a ticker.
func ParseContract(ticker string) (Contract, error) {
	c := Contract{Ticker: ticker}

	var m []string
	if m = thresholdRe.FindStringSubmatch(ticker); m != nil {
		c.Kind = Threshold
	} else if m = bracketRe.FindStringSubmatch(ticker); m != nil {
		c.Kind = Bracket
	} else {
		return c, fmt.Errorf("%s: %w", ticker, ErrUnrecognizedContract)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return c, fmt.Errorf("%s: bad strike %q: %w", ticker, m[1], ErrUnrecognizedContract)
	}
	c.Strike = v

	series, _, _ := strings.Cut(ticker, "-")
	c.Series = series
	switch {
	case strings.HasPrefix(series, lowPrefix):
		c.Low = true
		c.City = strings.TrimPrefix(series, lowPrefix)
	case strings.HasPrefix(series, highPrefix):
		c.City = strings.TrimPrefix(series, highPrefix)
	}

	if d := dateRe.FindStringSubmatch(ticker); d != nil {
		if mm, ok := months[d[2]]; ok {
			c.Date = "20" + d[1] + "-" + mm + "-" + d[3]
		}
	}
	return c, nil
}

// BracketRange returns the half-open range [lo, hi) a bracket contract pays
// YES on. An integral strike B72 covers [72, 73); B72.5 covers [72, 74).
func (c Contract) BracketRange() (lo, hi float64) {
	lo = math.Floor(c.Strike)
	hi = math.Ceil(c.Strike)
	if c.Strike == lo {
		hi++
	}
	return lo, hi
}

// YesWins reports whether the YES side wins given the observed value.
func (c Contract) YesWins(actual float64) bool {
	if c.Kind == Threshold {
		return actual >= c.Strike
	}
	lo, hi := c.BracketRange()
	return actual >= lo && actual < hi
}

// Wins reports whether side ("yes" or "no") wins given the observed value.
func (c Contract) Wins(side string, actual float64) bool {
	yes := c.YesWins(actual)
	if strings.EqualFold(side, "no") {
		return !yes
	}
	return yes
}

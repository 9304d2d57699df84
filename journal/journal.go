// Package journal keeps the append-only trading history: executions,
// trades, admission decisions and settlement observations.
package journal

import (
	"fmt"
	"time"

	"github.com/rustyeddy/wxtrader/broker"
	"github.com/rustyeddy/wxtrader/config"
)

// Version is stamped on every record.
const Version = 1

// Kind names one history stream.
type Kind string

const (
	KindExecutions   Kind = "executions"
	KindTrades       Kind = "trades"
	KindDecisions    Kind = "decisions"
	KindObservations Kind = "observations"
)

// Kinds lists every stream in display order.
var Kinds = []Kind{KindExecutions, KindTrades, KindDecisions, KindObservations}

// Execution results.
const (
	ResultDryRun            = "dry_run"
	ResultPlaced            = "placed"
	ResultInsufficientFunds = "insufficient_funds"
	ResultMarketClosed      = "market_closed"
	ResultRiskBlocked       = "risk_blocked"
	ResultError             = "error"
)

// ExecutionRecord logs one attempt to execute an approved recommendation.
type ExecutionRecord struct {
	V         int                 `json:"v"`
	Date      string              `json:"date"`
	TradeID   string              `json:"tradeId"`
	Order     broker.OrderRequest `json:"order"`
	DryRun    bool                `json:"dryRun"`
	Result    string              `json:"result"`
	Error     string              `json:"error,omitempty"`
	Response  *broker.OrderFill   `json:"orderResponse,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// TradeRecord logs a trade written to the ledger.
type TradeRecord struct {
	V            int       `json:"v"`
	Date         string    `json:"date"`
	Session      string    `json:"session,omitempty"`
	Strategy     string    `json:"strategy,omitempty"`
	Mode         string    `json:"mode,omitempty"`
	Station      string    `json:"station"`
	Contract     string    `json:"contract"`
	Side         string    `json:"side"`
	Qty          int       `json:"qty"`
	Price        float64   `json:"price"`
	ExpectedEdge float64   `json:"expectedEdge,omitempty"`
	MarketSigma  float64   `json:"marketSigma,omitempty"`
	OurSigma     float64   `json:"ourSigma,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Decision actions.
const (
	ActionTrade   = "trade"
	ActionBlocked = "blocked"
	ActionSkip    = "skip"
)

// DecisionRecord logs the admission outcome for one candidate.
type DecisionRecord struct {
	V         int       `json:"v"`
	Date      string    `json:"date"`
	Session   string    `json:"session,omitempty"`
	Station   string    `json:"station"`
	Contract  string    `json:"contract,omitempty"`
	Action    string    `json:"action"`
	Guards    []string  `json:"guards"`
	NetEdge   float64   `json:"netEdge"`
	Timestamp time.Time `json:"timestamp"`
}

// ObservationRecord logs a realized value used in settlement.
type ObservationRecord struct {
	V             int       `json:"v"`
	Date          string    `json:"date"`
	Station       string    `json:"station"`
	Contract      string    `json:"contract,omitempty"`
	Actual        float64   `json:"actual"`
	ForecastError *float64  `json:"forecastError,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// KindSummary describes the contents of one stream.
type KindSummary struct {
	Kind     Kind     `json:"kind"`
	Records  int      `json:"totalRecords"`
	First    string   `json:"start,omitempty"`
	Last     string   `json:"end,omitempty"`
	Stations []string `json:"stations,omitempty"`
}

// Journal is an append-only history sink that can be summarized and queried.
type Journal interface {
	RecordExecution(ExecutionRecord) error
	RecordTrade(TradeRecord) error
	RecordDecision(DecisionRecord) error
	RecordObservation(ObservationRecord) error

	// Summary returns one entry per Kind, in Kinds order.
	Summary() ([]KindSummary, error)
	// Trades returns trade records dated within [from, to]. Empty bounds
	// are open.
	Trades(from, to string) ([]TradeRecord, error)

	Close() error
}

// Open builds the journal named by cfg.
func Open(cfg config.JournalConfig) (Journal, error) {
	switch cfg.Type {
	case "", "none":
		return Nop{}, nil
	case "jsonl":
		return NewJSONL(cfg.Dir)
	case "sqlite":
		return NewSQLite(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordExecution(ExecutionRecord) error     { return nil }
func (Nop) RecordTrade(TradeRecord) error             { return nil }
func (Nop) RecordDecision(DecisionRecord) error       { return nil }
func (Nop) RecordObservation(ObservationRecord) error { return nil }
func (Nop) Trades(string, string) ([]TradeRecord, error) {
	return nil, nil
}
func (Nop) Close() error { return nil }

func (Nop) Summary() ([]KindSummary, error) {
	out := make([]KindSummary, 0, len(Kinds))
	for _, k := range Kinds {
		out = append(out, KindSummary{Kind: k})
	}
	return out, nil
}

func inRange(date, from, to string) bool {
	if from != "" && date < from {
		return false
	}
	if to != "" && date > to {
		return false
	}
	return true
}

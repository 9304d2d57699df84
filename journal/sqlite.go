package journal

import (
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores the history streams as tables in one database file.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordExecution(e ExecutionRecord) error {
	var resp any
	if e.Response != nil {
		b, err := json.Marshal(e.Response)
		if err != nil {
			return fmt.Errorf("encode order response: %w", err)
		}
		resp = string(b)
	}
	_, err := j.db.Exec(`
		INSERT INTO executions
		(v, date, trade_id, ticker, side, count, price_cents, dry_run, result, error, response, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		Version, e.Date, e.TradeID, e.Order.Ticker, e.Order.Side, e.Order.Count,
		e.Order.PriceCents(), e.DryRun, e.Result, e.Error, resp, e.Timestamp,
	)
	return err
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(v, date, session, strategy, mode, station, contract, side, qty, price, expected_edge, market_sigma, our_sigma, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		Version, t.Date, t.Session, t.Strategy, t.Mode, t.Station, t.Contract, t.Side,
		t.Qty, t.Price, t.ExpectedEdge, t.MarketSigma, t.OurSigma, t.Timestamp,
	)
	return err
}

func (j *SQLite) RecordDecision(d DecisionRecord) error {
	guards := d.Guards
	if guards == nil {
		guards = []string{}
	}
	b, err := json.Marshal(guards)
	if err != nil {
		return fmt.Errorf("encode guards: %w", err)
	}
	_, err = j.db.Exec(`
		INSERT INTO decisions
		(v, date, session, station, contract, action, guards, net_edge, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		Version, d.Date, d.Session, d.Station, d.Contract, d.Action, string(b), d.NetEdge, d.Timestamp,
	)
	return err
}

func (j *SQLite) RecordObservation(o ObservationRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO observations
		(v, date, station, contract, actual, forecast_error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		Version, o.Date, o.Station, o.Contract, o.Actual, o.ForecastError, o.Timestamp,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

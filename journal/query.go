package journal

import (
	"fmt"
)

// tables maps each stream to its table and whether it carries a station.
var tables = map[Kind]struct {
	name       string
	hasStation bool
}{
	KindExecutions:   {"executions", false},
	KindTrades:       {"trades", true},
	KindDecisions:    {"decisions", true},
	KindObservations: {"observations", true},
}

// Summary counts the records in every table.
func (j *SQLite) Summary() ([]KindSummary, error) {
	out := make([]KindSummary, 0, len(Kinds))
	for _, k := range Kinds {
		t := tables[k]
		s := KindSummary{Kind: k}

		row := j.db.QueryRow(fmt.Sprintf(
			`SELECT COUNT(*), COALESCE(MIN(date), ''), COALESCE(MAX(date), '') FROM %s`, t.name))
		if err := row.Scan(&s.Records, &s.First, &s.Last); err != nil {
			return nil, fmt.Errorf("summarize %s: %w", k, err)
		}

		if t.hasStation {
			rows, err := j.db.Query(fmt.Sprintf(
				`SELECT DISTINCT station FROM %s WHERE station != '' ORDER BY station`, t.name))
			if err != nil {
				return nil, fmt.Errorf("list %s stations: %w", k, err)
			}
			for rows.Next() {
				var st string
				if err := rows.Scan(&st); err != nil {
					rows.Close()
					return nil, err
				}
				s.Stations = append(s.Stations, st)
			}
			err = rows.Err()
			rows.Close()
			if err != nil {
				return nil, err
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// Trades returns trade records dated within [from, to] in insertion order.
func (j *SQLite) Trades(from, to string) ([]TradeRecord, error) {
	if from == "" {
		from = "0000-00-00"
	}
	if to == "" {
		to = "9999-99-99"
	}
	rows, err := j.db.Query(`
		SELECT v, date, session, strategy, mode, station, contract, side, qty, price,
		       expected_edge, market_sigma, our_sigma, timestamp
		FROM trades
		WHERE date >= ? AND date <= ?
		ORDER BY id ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := rows.Scan(
			&rec.V,
			&rec.Date,
			&rec.Session,
			&rec.Strategy,
			&rec.Mode,
			&rec.Station,
			&rec.Contract,
			&rec.Side,
			&rec.Qty,
			&rec.Price,
			&rec.ExpectedEdge,
			&rec.MarketSigma,
			&rec.OurSigma,
			&rec.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// JSONL appends one JSON document per line to <dir>/<kind>.jsonl.
type JSONL struct {
	mu  sync.Mutex
	dir string
}

// NewJSONL creates dir if needed and returns a journal writing into it.
func NewJSONL(dir string) (*JSONL, error) {
	if dir == "" {
		return nil, fmt.Errorf("jsonl journal: empty dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &JSONL{dir: dir}, nil
}

// Dir returns the history directory.
func (j *JSONL) Dir() string { return j.dir }

func (j *JSONL) path(k Kind) string {
	return filepath.Join(j.dir, string(k)+".jsonl")
}

func (j *JSONL) append(k Kind, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", k, err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path(k), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s journal: %w", k, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append %s record: %w", k, err)
	}
	return f.Close()
}

func (j *JSONL) RecordExecution(r ExecutionRecord) error {
	r.V = Version
	return j.append(KindExecutions, r)
}

func (j *JSONL) RecordTrade(r TradeRecord) error {
	r.V = Version
	return j.append(KindTrades, r)
}

func (j *JSONL) RecordDecision(r DecisionRecord) error {
	r.V = Version
	if r.Guards == nil {
		r.Guards = []string{}
	}
	return j.append(KindDecisions, r)
}

func (j *JSONL) RecordObservation(r ObservationRecord) error {
	r.V = Version
	return j.append(KindObservations, r)
}

// each decodes every line of a stream into a fresh T and passes it to fn.
// A missing file is an empty stream.
func each[T any](j *JSONL, k Kind, fn func(T)) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path(k))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s journal: %w", k, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return fmt.Errorf("%s.jsonl line %d: %w", k, n, err)
		}
		fn(v)
	}
	return sc.Err()
}

// header holds the fields every record shares.
type header struct {
	Date    string `json:"date"`
	Station string `json:"station"`
}

func (j *JSONL) Summary() ([]KindSummary, error) {
	out := make([]KindSummary, 0, len(Kinds))
	for _, k := range Kinds {
		s := KindSummary{Kind: k}
		seen := map[string]bool{}
		err := each(j, k, func(h header) {
			s.Records++
			if h.Date != "" {
				if s.First == "" || h.Date < s.First {
					s.First = h.Date
				}
				if h.Date > s.Last {
					s.Last = h.Date
				}
			}
			if h.Station != "" && !seen[h.Station] {
				seen[h.Station] = true
				s.Stations = append(s.Stations, h.Station)
			}
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(s.Stations)
		out = append(out, s)
	}
	return out, nil
}

func (j *JSONL) Trades(from, to string) ([]TradeRecord, error) {
	var out []TradeRecord
	err := each(j, KindTrades, func(r TradeRecord) {
		if inRange(r.Date, from, to) {
			out = append(out, r)
		}
	})
	return out, err
}

// Close is a no-op; files are opened per append.
func (j *JSONL) Close() error { return nil }

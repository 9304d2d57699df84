package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/rustyeddy/wxtrader/pkg/id"
)

// Store owns the ledger file. Every mutating call loads the document,
// applies the change, and writes it back atomically before returning.
type Store struct {
	mu      sync.Mutex
	path    string
	initial float64
	now     func() time.Time
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides trade id generation.
func WithIDs(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore returns a store backed by path. A missing file is a fresh ledger
// holding initialBalance.
func NewStore(path string, initialBalance float64, opts ...Option) *Store {
	s := &Store{
		path:    path,
		initial: initialBalance,
		now:     time.Now,
		newID:   id.New,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// InitialBalance is the balance of a fresh ledger.
func (s *Store) InitialBalance() float64 { return s.initial }

// Load returns a snapshot of the ledger.
func (s *Store) Load() (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Ledger, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return newLedger(s.initial), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	l := newLedger(s.initial)
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", s.path, err)
	}
	if l.PeakBalance < l.Balance {
		l.PeakBalance = l.Balance
	}
	return l, nil
}

func (s *Store) save(l *Ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// TradeRequest describes a trade to record.
type TradeRequest struct {
	Strategy string
	Station  string
	Contract string
	Side     string
	Qty      int
	Price    float64
	Mode     string
	Metadata map[string]float64
}

func (r TradeRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Contract) == "":
		return fmt.Errorf("%w: contract is required", ErrInvalidTrade)
	case r.Side != SideYes && r.Side != SideNo:
		return fmt.Errorf("%w: side must be yes or no, got %q", ErrInvalidTrade, r.Side)
	case r.Qty <= 0:
		return fmt.Errorf("%w: qty must be positive, got %d", ErrInvalidTrade, r.Qty)
	case r.Price <= 0 || r.Price > FaceValue:
		return fmt.Errorf("%w: price must be in (0, 1], got %.4f", ErrInvalidTrade, r.Price)
	}
	return nil
}

// ExecuteTrade debits the trade cost and appends the trade. It fails with
// ErrInsufficientFunds when the cost exceeds the balance.
func (s *Store) ExecuteTrade(req TradeRequest) (Trade, error) {
	if err := req.validate(); err != nil {
		return Trade{}, err
	}
	if req.Strategy == "" {
		req.Strategy = StrategyWeather
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.load()
	if err != nil {
		return Trade{}, err
	}

	cost := Cost(req.Qty, req.Price)
	if cost > l.Balance {
		return Trade{}, fmt.Errorf("%w: need $%.2f, have $%.2f", ErrInsufficientFunds, cost, l.Balance)
	}

	t := Trade{
		ID:        s.newID(),
		Timestamp: s.now().UTC(),
		Strategy:  req.Strategy,
		Station:   req.Station,
		Contract:  req.Contract,
		Side:      req.Side,
		Qty:       req.Qty,
		Price:     req.Price,
		Cost:      cost,
		Mode:      req.Mode,
		Metadata:  req.Metadata,
	}
	l.Balance = sub(l.Balance, cost)
	l.notePeak()
	l.Trades = append(l.Trades, t)

	if err := s.save(l); err != nil {
		return Trade{}, err
	}
	return t.clone(), nil
}

// OpenPositions returns the unsettled trades.
func (s *Store) OpenPositions() ([]Trade, error) {
	l, err := s.Load()
	if err != nil {
		return nil, err
	}
	return l.Open(), nil
}

// TotalPnL sums realized P&L over settled trades.
func (s *Store) TotalPnL() (float64, error) {
	l, err := s.Load()
	if err != nil {
		return 0, err
	}
	return l.TotalPnL(), nil
}

// Trade returns a trade by id.
func (s *Store) Trade(tradeID string) (Trade, error) {
	l, err := s.Load()
	if err != nil {
		return Trade{}, err
	}
	t, ok := l.Find(tradeID)
	if !ok {
		return Trade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	return t, nil
}

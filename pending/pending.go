// Package pending stores trade proposals awaiting approval. Records expire
// lazily: a pending record read after its expiry is rewritten as expired.
package pending

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/rustyeddy/wxtrader/broker"
	"github.com/rustyeddy/wxtrader/metrics"
	"github.com/rustyeddy/wxtrader/pkg/id"
)

// DefaultTTL is how long a proposal stays approvable.
const DefaultTTL = 30 * time.Minute

var (
	ErrNotFound    = errors.New("recommendation not found")
	ErrNotPending  = errors.New("recommendation is not pending")
	ErrNotApproved = errors.New("recommendation is not approved")
	ErrExpired     = errors.New("recommendation has expired")
	ErrInvalid     = errors.New("invalid recommendation")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusExecuted Status = "executed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExpired || s == StatusExecuted
}

// Fill records how an approved recommendation was executed.
type Fill struct {
	DryRun   bool                `json:"dryRun"`
	TradeID  string              `json:"tradeId,omitempty"`
	Order    broker.OrderRequest `json:"order"`
	Response *broker.OrderFill   `json:"response,omitempty"`
}

// Recommendation is a proposed trade.
type Recommendation struct {
	ID        string     `json:"id"`
	Strategy  string     `json:"strategy"`
	Station   string     `json:"station,omitempty"`
	Contract  string     `json:"contract"`
	Side      string     `json:"side"`
	Qty       int        `json:"qty"`
	Price     float64    `json:"price"`
	Edge      float64    `json:"edge"`
	Reasoning string     `json:"reasoning"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Fill      *Fill      `json:"fill,omitempty"`
}

// Cost is qty*price in dollars.
func (r Recommendation) Cost() float64 { return float64(r.Qty) * r.Price }

// IsExpired reports whether rec is still pending at or past its expiry.
func IsExpired(rec Recommendation, now time.Time) bool {
	return rec.Status == StatusPending && !now.Before(rec.ExpiresAt)
}

// Proposal is the input to Add.
type Proposal struct {
	Strategy  string
	Station   string
	Contract  string
	Side      string
	Qty       int
	Price     float64
	Edge      float64
	Reasoning string
}

func (p Proposal) validate() error {
	switch {
	case strings.TrimSpace(p.Contract) == "":
		return fmt.Errorf("%w: contract is required", ErrInvalid)
	case p.Side != "yes" && p.Side != "no":
		return fmt.Errorf("%w: side must be yes or no, got %q", ErrInvalid, p.Side)
	case p.Qty <= 0:
		return fmt.Errorf("%w: qty must be positive", ErrInvalid)
	case p.Price <= 0 || p.Price > 1:
		return fmt.Errorf("%w: price must be in (0, 1]", ErrInvalid)
	}
	return nil
}

// Store persists recommendations as one JSON list.
type Store struct {
	mu    sync.Mutex
	path  string
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithIDs overrides id generation.
func WithIDs(gen func() string) Option { return func(s *Store) { s.newID = gen } }

// NewStore returns a store backed by path. A non-positive ttl means DefaultTTL.
func NewStore(path string, ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{path: path, ttl: ttl, now: time.Now, newID: id.Short}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) load() ([]Recommendation, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []Recommendation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending: %w", err)
	}
	recs := []Recommendation{}
	if len(data) == 0 {
		return recs, nil
	}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode pending %s: %w", s.path, err)
	}
	return recs, nil
}

func (s *Store) save(recs []Recommendation) error {
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pending: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create pending dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write pending: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// loadFresh loads the list and persists any lazy expiries before returning.
func (s *Store) loadFresh() ([]Recommendation, error) {
	recs, err := s.load()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	changed := false
	for i := range recs {
		if IsExpired(recs[i], now) {
			recs[i].Status = StatusExpired
			recs[i].UpdatedAt = &now
			changed = true
		}
	}
	if changed {
		if err := s.save(recs); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func find(recs []Recommendation, recID string) int {
	for i := range recs {
		if recs[i].ID == recID {
			return i
		}
	}
	return -1
}

// Add stores a new pending recommendation expiring one TTL from now.
func (s *Store) Add(p Proposal) (Recommendation, error) {
	if err := p.validate(); err != nil {
		return Recommendation{}, err
	}
	if p.Strategy == "" {
		p.Strategy = "weather"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.loadFresh()
	if err != nil {
		return Recommendation{}, err
	}
	now := s.now().UTC()
	rec := Recommendation{
		ID:        s.newID(),
		Strategy:  p.Strategy,
		Station:   strings.ToUpper(p.Station),
		Contract:  p.Contract,
		Side:      p.Side,
		Qty:       p.Qty,
		Price:     p.Price,
		Edge:      p.Edge,
		Reasoning: p.Reasoning,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	recs = append(recs, rec)
	if err := s.save(recs); err != nil {
		return Recommendation{}, err
	}
	return rec, nil
}

// Active returns the recommendations still awaiting a decision.
func (s *Store) Active() ([]Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.loadFresh()
	if err != nil {
		return nil, err
	}
	var out []Recommendation
	for _, r := range recs {
		if r.Status == StatusPending {
			out = append(out, r)
		}
	}
	metrics.PendingRecommendations.Set(float64(len(out)))
	return out, nil
}

// All returns every recommendation in any status.
func (s *Store) All() ([]Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadFresh()
}

// Find returns one recommendation.
func (s *Store) Find(recID string) (Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.loadFresh()
	if err != nil {
		return Recommendation{}, err
	}
	i := find(recs, recID)
	if i < 0 {
		return Recommendation{}, fmt.Errorf("%w: %s", ErrNotFound, recID)
	}
	return recs[i], nil
}

// UpdateStatus moves a pending recommendation to approved, rejected, or
// expired. Any record not currently pending is left untouched and an error
// wrapping ErrNotPending is returned.
func (s *Store) UpdateStatus(recID string, status Status) (Recommendation, error) {
	if status != StatusApproved && status != StatusRejected && status != StatusExpired {
		return Recommendation{}, fmt.Errorf("%w: cannot move to %q", ErrInvalid, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.loadFresh()
	if err != nil {
		return Recommendation{}, err
	}
	i := find(recs, recID)
	if i < 0 {
		return Recommendation{}, fmt.Errorf("%w: %s", ErrNotFound, recID)
	}
	rec := &recs[i]
	switch rec.Status {
	case StatusPending:
	case StatusExpired:
		return *rec, fmt.Errorf("%w: %s (%w)", ErrNotPending, recID, ErrExpired)
	default:
		return *rec, fmt.Errorf("%w: %s is %s", ErrNotPending, recID, rec.Status)
	}

	now := s.now().UTC()
	rec.Status = status
	rec.UpdatedAt = &now
	if err := s.save(recs); err != nil {
		return Recommendation{}, err
	}
	return *rec, nil
}

// MarkExecuted attaches fill details to an approved recommendation.
func (s *Store) MarkExecuted(recID string, fill Fill) (Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.loadFresh()
	if err != nil {
		return Recommendation{}, err
	}
	i := find(recs, recID)
	if i < 0 {
		return Recommendation{}, fmt.Errorf("%w: %s", ErrNotFound, recID)
	}
	rec := &recs[i]
	if rec.Status != StatusApproved {
		return *rec, fmt.Errorf("%w: %s is %s", ErrNotApproved, recID, rec.Status)
	}

	now := s.now().UTC()
	rec.Status = StatusExecuted
	rec.UpdatedAt = &now
	rec.Fill = &fill
	if err := s.save(recs); err != nil {
		return Recommendation{}, err
	}
	return *rec, nil
}

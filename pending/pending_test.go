package pending

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/wxtrader/broker"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}
	n := 0
	s := NewStore(filepath.Join(t.TempDir(), "pending.json"), 0,
		WithClock(c.now),
		WithIDs(func() string { n++; return fmt.Sprintf("%08x", n) }))
	return s, c
}

func proposal() Proposal {
	return Proposal{Station: "knyc", Contract: "KXHIGHNY-26FEB10-T52", Side: "yes", Qty: 5, Price: 0.40, Edge: 0.12, Reasoning: "gap 2.1"}
}

func TestAdd(t *testing.T) {
	s, c := newTestStore(t)

	rec, err := s.Add(proposal())
	require.NoError(t, err)
	assert.Equal(t, "00000001", rec.ID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "weather", rec.Strategy)
	assert.Equal(t, "KNYC", rec.Station)
	assert.Equal(t, c.t, rec.CreatedAt)
	assert.Equal(t, c.t.Add(30*time.Minute), rec.ExpiresAt)
	assert.InDelta(t, 2.0, rec.Cost(), 1e-9)

	_, err = s.Add(Proposal{Contract: "X", Side: "maybe", Qty: 1, Price: 0.5})
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestIsExpired(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	rec := Recommendation{Status: StatusPending, ExpiresAt: t0}

	assert.False(t, IsExpired(rec, t0.Add(-time.Second)))
	assert.True(t, IsExpired(rec, t0))
	assert.True(t, IsExpired(rec, t0.Add(time.Hour)))

	rec.Status = StatusApproved
	assert.False(t, IsExpired(rec, t0.Add(time.Hour)))
}

func TestLazyExpiryPersists(t *testing.T) {
	s, c := newTestStore(t)
	rec, err := s.Add(proposal())
	require.NoError(t, err)

	active, err := s.Active()
	require.NoError(t, err)
	assert.Len(t, active, 1)

	c.advance(31 * time.Minute)

	got, err := s.Find(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)

	// A store without the clock sees the persisted status.
	raw, err := NewStore(s.path, 0).load()
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, raw[0].Status)

	active, err = s.Active()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUpdateStatusTransitions(t *testing.T) {
	s, _ := newTestStore(t)
	a, _ := s.Add(proposal())
	b, _ := s.Add(proposal())

	got, err := s.UpdateStatus(a.ID, StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	require.NotNil(t, got.UpdatedAt)

	_, err = s.UpdateStatus(a.ID, StatusRejected)
	assert.True(t, errors.Is(err, ErrNotPending), "approved cannot be rejected")

	got, err = s.UpdateStatus(b.ID, StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)

	_, err = s.UpdateStatus(b.ID, StatusApproved)
	assert.True(t, errors.Is(err, ErrNotPending), "rejected is terminal")

	_, err = s.UpdateStatus("missing", StatusApproved)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.UpdateStatus(a.ID, StatusExecuted)
	assert.True(t, errors.Is(err, ErrInvalid), "executed only via MarkExecuted")
}

func TestUpdateStatusOnNonPendingDoesNotMutate(t *testing.T) {
	s, c := newTestStore(t)
	rec, _ := s.Add(proposal())
	_, err := s.UpdateStatus(rec.ID, StatusRejected)
	require.NoError(t, err)
	before, err := s.Find(rec.ID)
	require.NoError(t, err)

	c.advance(time.Minute)
	for _, st := range []Status{StatusApproved, StatusRejected, StatusExpired} {
		_, err := s.UpdateStatus(rec.ID, st)
		assert.True(t, errors.Is(err, ErrNotPending))
	}

	after, err := s.Find(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApproveAfterExpiry(t *testing.T) {
	s, c := newTestStore(t)
	rec, _ := s.Add(proposal())
	c.advance(30 * time.Minute)

	_, err := s.UpdateStatus(rec.ID, StatusApproved)
	assert.True(t, errors.Is(err, ErrNotPending))
	assert.True(t, errors.Is(err, ErrExpired))
}

func TestMarkExecuted(t *testing.T) {
	s, _ := newTestStore(t)
	rec, _ := s.Add(proposal())

	fill := Fill{DryRun: true, TradeID: "T1", Order: broker.LimitBuy(rec.Contract, rec.Side, rec.Qty, rec.Price)}
	_, err := s.MarkExecuted(rec.ID, fill)
	assert.True(t, errors.Is(err, ErrNotApproved))

	_, err = s.UpdateStatus(rec.ID, StatusApproved)
	require.NoError(t, err)

	got, err := s.MarkExecuted(rec.ID, fill)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
	require.NotNil(t, got.Fill)
	assert.True(t, got.Fill.DryRun)
	assert.Equal(t, 40, got.Fill.Order.YesPrice)

	_, err = s.MarkExecuted(rec.ID, fill)
	assert.True(t, errors.Is(err, ErrNotApproved))
	assert.True(t, StatusExecuted.Terminal())
}

func TestAllKeepsEveryStatus(t *testing.T) {
	s, _ := newTestStore(t)
	a, _ := s.Add(proposal())
	_, _ = s.Add(proposal())
	_, _ = s.UpdateStatus(a.ID, StatusRejected)

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, StatusRejected, all[0].Status)
	assert.Equal(t, StatusPending, all[1].Status)
}

package journal

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/wxtrader/logs"
	"github.com/rustyeddy/wxtrader/metrics"
)

// Recorder is the best-effort front of a Journal. It stamps records and
// never returns an error: failures are logged, counted and passed to the
// optional hook. A nil Recorder discards everything.
type Recorder struct {
	j    Journal
	now  func() time.Time
	hook func(Kind, error)
}

// NewRecorder wraps j. A nil j behaves like Nop.
func NewRecorder(j Journal) *Recorder {
	if j == nil {
		j = Nop{}
	}
	return &Recorder{j: j, now: time.Now}
}

// WithClock overrides the timestamp source.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// OnError registers a hook called for every failed write.
func (r *Recorder) OnError(hook func(Kind, error)) *Recorder {
	r.hook = hook
	return r
}

// Journal returns the wrapped journal.
func (r *Recorder) Journal() Journal {
	if r == nil {
		return Nop{}
	}
	return r.j
}

func (r *Recorder) stamp(ts *time.Time, date *string) {
	now := r.now().UTC()
	if ts.IsZero() {
		*ts = now
	}
	if *date == "" {
		*date = ts.UTC().Format(time.DateOnly)
	}
}

func (r *Recorder) fail(k Kind, err error) {
	metrics.JournalErrors.Inc()
	logs.WithFields(logrus.Fields{"journal": string(k)}).WithError(err).Warn("journal write failed")
	if r.hook != nil {
		r.hook(k, err)
	}
}

func (r *Recorder) Execution(rec ExecutionRecord) {
	if r == nil {
		return
	}
	r.stamp(&rec.Timestamp, &rec.Date)
	if err := r.j.RecordExecution(rec); err != nil {
		r.fail(KindExecutions, err)
	}
}

func (r *Recorder) Trade(rec TradeRecord) {
	if r == nil {
		return
	}
	r.stamp(&rec.Timestamp, &rec.Date)
	if err := r.j.RecordTrade(rec); err != nil {
		r.fail(KindTrades, err)
	}
}

func (r *Recorder) Decision(rec DecisionRecord) {
	if r == nil {
		return
	}
	r.stamp(&rec.Timestamp, &rec.Date)
	if err := r.j.RecordDecision(rec); err != nil {
		r.fail(KindDecisions, err)
	}
}

func (r *Recorder) Observation(rec ObservationRecord) {
	if r == nil {
		return
	}
	r.stamp(&rec.Timestamp, &rec.Date)
	if err := r.j.RecordObservation(rec); err != nil {
		r.fail(KindObservations, err)
	}
}

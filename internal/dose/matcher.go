package dose

import (
	"context"
	"sync/atomic"
	"time"

	logx "pillbot/pkg/logx"
)

// Reminder is emitted when a schedule's active phase is due this minute.
type Reminder struct {
	Slot Slot
	Dose string
}

// ReminderSink delivers reminders. Delivery is fire-and-forget: a returned
// error is logged by the matcher and not retried.
type ReminderSink interface {
	Remind(ctx context.Context, r Reminder) error
}

// TickReport summarises one matcher pass.
type TickReport struct {
	At        time.Time
	Schedules int
	Emitted   int
	Malformed int
	SinkFail  int
	Took      time.Duration
}

// Matcher compares every stored schedule against one tick instant.
//
// It does not suppress repeat ticks inside the same minute: a tick source
// firing twice in one minute produces two reminders. The scheduler in
// internal/task/scheduler ticks once per minute and skips overlapping runs.
// Matcher never writes the ledger.
type Matcher struct {
	store Store
	sink  ReminderSink
	log   logx.Logger
	now   func() time.Time

	last atomic.Pointer[TickReport]
}

func NewMatcher(store Store, sink ReminderSink, log logx.Logger) *Matcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Matcher{store: store, sink: sink, log: log, now: time.Now}
}

// Tick runs one pass for instant at. A store failure aborts the pass with an
// ErrUnavailable-classified error; the next tick simply tries again.
func (m *Matcher) Tick(ctx context.Context, at time.Time) (TickReport, error) {
	started := m.now()
	rep := TickReport{At: at}

	rows, err := m.store.ListSchedules(ctx, AllOwners)
	if err != nil {
		err = Unavailable("list schedules", err)
		m.log.Warn("reminder tick: store unavailable", logx.Time("at", at), logx.Err(err))
		return rep, err
	}
	rep.Schedules = len(rows)

	day := DateOf(at)
	minute := TimeOfDayOf(at)
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		s, derr := row.Decode()
		if derr != nil {
			rep.Malformed++
			m.log.Warn("reminder tick: skipping schedule",
				logx.Int64("schedule_id", row.ID),
				logx.Int64("owner", row.OwnerID),
				logx.String("name", row.Name),
				logx.Err(derr),
			)
			continue
		}
		res, ok := ResolveOn(s, day)
		if !ok || res.Phase.Time != minute {
			continue
		}
		r := Reminder{
			Slot: Slot{OwnerID: s.OwnerID, Name: s.Name, Date: day, Time: minute},
			Dose: res.Phase.Dose,
		}
		rep.Emitted++
		if m.sink == nil {
			continue
		}
		if serr := m.sink.Remind(ctx, r); serr != nil {
			rep.SinkFail++
			m.log.Warn("reminder delivery failed", logx.String("slot", r.Slot.Key()), logx.Err(serr))
		}
	}

	rep.Took = m.now().Sub(started)
	m.last.Store(&rep)
	if rep.Emitted > 0 || rep.Malformed > 0 {
		m.log.Info("reminder tick",
			logx.Int("schedules", rep.Schedules),
			logx.Int("emitted", rep.Emitted),
			logx.Int("malformed", rep.Malformed),
			logx.Duration("took", rep.Took),
		)
	}
	return rep, ctx.Err()
}

// LastReport returns the most recent completed pass.
func (m *Matcher) LastReport() (TickReport, bool) {
	p := m.last.Load()
	if p == nil {
		return TickReport{}, false
	}
	return *p, true
}

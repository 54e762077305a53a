package scheduler

import (
	"context"
	"time"

	"pillbot/internal/dose"
	"pillbot/internal/eventbus"
	"pillbot/pkg/clock"
)

// ReminderJobName is the schedule name of the reminder matcher tick.
const ReminderJobName = "reminder.tick"

// Ticker runs one reminder pass; *dose.Matcher implements it.
type Ticker interface {
	Tick(ctx context.Context, at time.Time) (dose.TickReport, error)
}

// TickJob adapts a Ticker to a Job. Each trigger reads the instant from clk,
// so the matcher sees the configured local clock rather than the cron
// runner's own fire time.
func TickJob(t Ticker, clk clock.Clock, bus eventbus.Bus) Job {
	return func(ctx context.Context) error {
		rep, err := t.Tick(ctx, clk.Now())
		if bus != nil {
			bus.Publish(eventbus.Event{Type: eventbus.TypeTickDone, Data: rep})
		}
		return err
	}
}

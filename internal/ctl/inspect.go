package ctl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pillbot/internal/dose"
	logx "pillbot/pkg/logx"
)

type ResolveCmd struct {
	Owner int64  `arg:"" help:"Telegram user id."`
	Name  string `arg:"" help:"Schedule name."`
	At    string `help:"Instant to resolve at (RFC 3339 or 'YYYY-MM-DD HH:MM'), default now."`
}

func (c *ResolveCmd) Run(ctx *Context) error {
	at, err := parseAt(c.At, ctx.Clock.Now())
	if err != nil {
		return err
	}
	good, _, err := dose.LoadSchedules(ctx.Ctx, ctx.Store, c.Owner)
	if err != nil {
		return err
	}
	for _, s := range good {
		if !strings.EqualFold(s.Name, strings.TrimSpace(c.Name)) {
			continue
		}
		res, ok := dose.Resolve(s, at)
		if !ok {
			fmt.Fprintf(ctx.Out, "%s has no active phase on %s\n", s.Name, dose.DateOf(at))
			return nil
		}
		p := res.Phase
		fmt.Fprintf(ctx.Out, "%s on %s: phase %d/%d, %s at %s (%s, from day %d)\n",
			s.Name, dose.DateOf(at), res.Index+1, len(s.Phases), p.Dose, p.Time, phaseSpan(p), res.Offset)
		return nil
	}
	return fmt.Errorf("no schedule named %q for owner %d", c.Name, c.Owner)
}

type PendingCmd struct {
	Owner int64  `arg:"" help:"Telegram user id."`
	At    string `help:"Instant to evaluate (RFC 3339 or 'YYYY-MM-DD HH:MM'), default now."`
	All   bool   `help:"List every dose due that day, taken ones included."`
}

func (c *PendingCmd) Run(ctx *Context) error {
	at, err := parseAt(c.At, ctx.Clock.Now())
	if err != nil {
		return err
	}
	pl := dose.NewPlanner(ctx.Store, ctx.Log)
	var items []dose.Item
	if c.All {
		items, err = pl.DueOn(ctx.Ctx, c.Owner, at)
	} else {
		items, err = pl.PendingFor(ctx.Ctx, c.Owner, at)
	}
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintf(ctx.Out, "Nothing due for owner %d on %s\n", c.Owner, dose.DateOf(at))
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		status := warnStyle.Render("pending")
		if it.Taken {
			status = okStyle.Render("taken")
		}
		rows = append(rows, []string{it.Time.String(), it.Name, it.Dose, status})
	}
	render(ctx.Out, []string{"Time", "Name", "Dose", "Status"}, rows)
	return nil
}

type LogCmd struct {
	Owner int64  `arg:"" help:"Telegram user id."`
	Name  string `arg:"" help:"Schedule name."`
	Time  string `arg:"" help:"Dose time, HH:MM."`
	Date  string `help:"Dose date (YYYY-MM-DD), default today."`
}

func (c *LogCmd) Run(ctx *Context) error {
	now := ctx.Clock.Now()
	day := dose.DateOf(now)
	if strings.TrimSpace(c.Date) != "" {
		d, err := dose.ParseDate(c.Date)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		day = d
	}
	tod, err := dose.ParseTimeOfDay(c.Time)
	if err != nil {
		return err
	}
	slot := dose.Slot{OwnerID: c.Owner, Name: strings.TrimSpace(c.Name), Date: day, Time: tod}
	err = dose.NewLedger(ctx.Store).RecordTaken(ctx.Ctx, slot, now)
	if errors.Is(err, dose.ErrAlreadyLogged) {
		fmt.Fprintf(ctx.Out, "%s %s at %s on %s was already logged\n", warnStyle.Render("!"), slot.Name, tod, day)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "%s logged %s at %s on %s\n", okStyle.Render("✓"), slot.Name, tod, day)
	return nil
}

type TickCmd struct {
	At string `help:"Tick instant (RFC 3339 or 'YYYY-MM-DD HH:MM'), default now."`
}

// printSink prints reminders instead of sending them.
type printSink struct{ ctx *Context }

func (p printSink) Remind(_ context.Context, r dose.Reminder) error {
	fmt.Fprintf(p.ctx.Out, "→ owner %d: %s (%s) at %s\n", r.Slot.OwnerID, r.Slot.Name, r.Dose, r.Slot.Time)
	return nil
}

func (c *TickCmd) Run(ctx *Context) error {
	at, err := parseAt(c.At, ctx.Clock.Now())
	if err != nil {
		return err
	}
	m := dose.NewMatcher(ctx.Store, printSink{ctx: ctx}, ctx.Log)
	rep, err := m.Tick(ctx.Ctx, at)
	if err != nil {
		return err
	}
	ctx.Log.Debug("tick done", logx.Int("schedules", rep.Schedules), logx.Duration("took", rep.Took))
	fmt.Fprintln(ctx.Out, dimStyle.Render(fmt.Sprintf("dry run at %s: %d schedule(s), %d reminder(s), %d malformed",
		at.Format("2006-01-02 15:04 MST"), rep.Schedules, rep.Emitted, rep.Malformed)))
	return nil
}

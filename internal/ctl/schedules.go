package ctl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pillbot/internal/dose"
	logx "pillbot/pkg/logx"
)

type SchedulesCmd struct {
	Owner int64 `help:"Only this owner's schedules (0 lists everyone)." default:"0"`
}

func (c *SchedulesCmd) Run(ctx *Context) error {
	var (
		good []dose.Schedule
		bad  []error
		err  error
	)
	if c.Owner == 0 {
		good, bad, err = dose.LoadAllSchedules(ctx.Ctx, ctx.Store)
	} else {
		good, bad, err = dose.LoadSchedules(ctx.Ctx, ctx.Store, c.Owner)
	}
	if err != nil {
		return err
	}
	for _, e := range bad {
		ctx.Log.Warn("skipping malformed schedule", logx.Err(e))
	}
	if len(good) == 0 {
		fmt.Fprintln(ctx.Out, "No schedules found")
		return nil
	}
	today := dose.DateOf(ctx.Clock.Now())
	rows := make([][]string, 0, len(good))
	for _, s := range good {
		for i, p := range s.Phases {
			active := ""
			if res, ok := dose.ResolveOn(s, today); ok && res.Index == i {
				active = okStyle.Render("active")
			}
			rows = append(rows, []string{
				strconv.FormatInt(s.OwnerID, 10), s.Name, s.Start.String(),
				strconv.Itoa(i + 1), phaseSpan(p), p.Dose, p.Time.String(), active,
			})
		}
	}
	render(ctx.Out, []string{"Owner", "Name", "Start", "#", "Span", "Dose", "Time", ""}, rows)
	if len(bad) > 0 {
		fmt.Fprintln(ctx.Out, warnStyle.Render(fmt.Sprintf("%d malformed row(s) skipped", len(bad))))
	}
	return nil
}

type AddCmd struct {
	Owner  int64    `arg:"" help:"Telegram user id."`
	Name   string   `arg:"" help:"Pill or task name."`
	Start  string   `help:"Start date (YYYY-MM-DD), default today."`
	Phases []string `name:"phase" short:"p" required:"" help:"Phase as DAYS:DOSE@HH:MM, repeatable, in order. DAYS may be 'ongoing'."`
}

func (c *AddCmd) Run(ctx *Context) error {
	if !dose.ValidOwner(c.Owner) {
		return fmt.Errorf("%w: %d", dose.ErrInvalidOwner, c.Owner)
	}
	start := dose.DateOf(ctx.Clock.Now())
	if strings.TrimSpace(c.Start) != "" {
		d, err := dose.ParseDate(c.Start)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		start = d
	}
	s := dose.Schedule{OwnerID: c.Owner, Name: strings.TrimSpace(c.Name), Start: start}
	for _, raw := range c.Phases {
		p, err := ParsePhase(raw)
		if err != nil {
			return err
		}
		s.Phases = append(s.Phases, p)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := ctx.Store.InsertSchedule(ctx.Ctx, s); err != nil {
		if errors.Is(err, dose.ErrScheduleExists) {
			return fmt.Errorf("owner %d already has a schedule named %q; delete it first", s.OwnerID, s.Name)
		}
		return err
	}
	fmt.Fprintf(ctx.Out, "%s added %q for owner %d (%d phase(s) from %s)\n",
		okStyle.Render("✓"), s.Name, s.OwnerID, len(s.Phases), s.Start)
	return nil
}

type DeleteCmd struct {
	Owner int64  `arg:"" help:"Telegram user id."`
	Name  string `arg:"" help:"Schedule name; every phase is removed."`
}

func (c *DeleteCmd) Run(ctx *Context) error {
	n, err := dose.DeleteSchedule(ctx.Ctx, ctx.Store, c.Owner, c.Name)
	if errors.Is(err, dose.ErrNotFound) {
		return fmt.Errorf("no schedule named %q for owner %d", c.Name, c.Owner)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "%s deleted %q (%d row(s))\n", okStyle.Render("✓"), c.Name, n)
	return nil
}

package dose

import (
	"context"
	"sort"
	"time"

	logx "pillbot/pkg/logx"
)

// Item is one due dose for a day.
type Item struct {
	Name  string
	Dose  string
	Time  TimeOfDay
	Taken bool
}

// Planner builds per-owner day views. The status view and the manual log
// prompt both go through PendingFor so they agree on what is outstanding.
type Planner struct {
	store Store
	log   logx.Logger
}

func NewPlanner(store Store, log logx.Logger) *Planner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Planner{store: store, log: log}
}

// DueOn lists every dose due for owner on asOf's calendar day, marking the
// ones already taken. Items are ordered by time, then name.
func (p *Planner) DueOn(ctx context.Context, ownerID int64, asOf time.Time) ([]Item, error) {
	schedules, bad, err := LoadSchedules(ctx, p.store, ownerID)
	if err != nil {
		return nil, err
	}
	for _, e := range bad {
		p.log.Warn("skipping malformed schedule", logx.Int64("owner", ownerID), logx.Err(e))
	}
	day := DateOf(asOf)
	taken, err := p.store.ListTaken(ctx, ownerID, day)
	if err != nil {
		return nil, Unavailable("list taken", err)
	}

	items := make([]Item, 0, len(schedules))
	for _, s := range schedules {
		res, ok := ResolveOn(s, day)
		if !ok {
			continue
		}
		items = append(items, Item{
			Name:  s.Name,
			Dose:  res.Phase.Dose,
			Time:  res.Phase.Time,
			Taken: taken.Has(s.Name, res.Phase.Time),
		})
	}
	sortItems(items)
	return items, nil
}

// PendingFor is DueOn minus the slots already in the ledger.
func (p *Planner) PendingFor(ctx context.Context, ownerID int64, asOf time.Time) ([]Item, error) {
	due, err := p.DueOn(ctx, ownerID, asOf)
	if err != nil {
		return nil, err
	}
	out := due[:0]
	for _, it := range due {
		if !it.Taken {
			out = append(out, it)
		}
	}
	return out, nil
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Time != b.Time {
			return a.Time.minutes() < b.Time.minutes()
		}
		return a.Name < b.Name
	})
}

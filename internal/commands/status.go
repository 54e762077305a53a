package commands

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"pillbot/internal/transport/telegram/router"
	"pillbot/pkg/tgui"
)

func (b *Bot) cmdStatus(ctx context.Context, req *router.Request) error {
	now := b.now()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mb := tgui.New().Title("🏥", "Bot Status")
	mb.KV("Uptime", durRel(now.Sub(b.started)))
	mb.KV("Goroutines", fmt.Sprint(runtime.NumGoroutine()))
	mb.KV("Heap", fmt.Sprintf("%.1f MiB", float64(m.HeapAlloc)/(1<<20)))
	mb.KV("Conversations", fmt.Sprint(b.sessions.len()))

	mb.Blank().HTML(tgui.B("Reminders"))
	if b.d.Ticks != nil {
		if rep, ok := b.d.Ticks.LastReport(); ok {
			mb.KV("Last tick", fmt.Sprintf("%s (%s ago)", rep.At.Format("15:04:05"), durRel(now.Sub(rep.At))))
			mb.KV("Schedules", fmt.Sprint(rep.Schedules))
			mb.KV("Emitted", fmt.Sprint(rep.Emitted))
			if rep.Malformed > 0 || rep.SinkFail > 0 {
				mb.KV("Malformed / failed", fmt.Sprintf("%d / %d", rep.Malformed, rep.SinkFail))
			}
		} else {
			mb.Line("• no tick yet")
		}
	}
	if b.d.Scheduler != nil {
		snap := b.d.Scheduler.Snapshot()
		mb.KV("Scheduler", fmt.Sprintf("enabled=%t tz=%s", snap.Enabled, snap.Timezone))
		for _, it := range snap.Schedules {
			line := fmt.Sprintf("%s [%s]", it.Name, it.Spec)
			if !it.Next.IsZero() {
				line += " next " + it.Next.Format("15:04:05")
			}
			if it.Skipped > 0 {
				line += fmt.Sprintf(" skipped=%d", it.Skipped)
			}
			mb.Line("  " + line)
		}
		if n := len(snap.History); n > 0 {
			if last := snap.History[n-1]; last.Err != "" {
				mb.KV("Last error", tgui.TruncRunes(last.Err, 200))
			}
		}
	}

	if b.d.Notifier != nil {
		mb.Blank().HTML(tgui.B("Notifier"))
		mb.KV("Enabled", fmt.Sprint(b.d.Notifier.Enabled()))
		hist := b.d.Notifier.History()
		mb.KV("Recent sends", fmt.Sprint(len(hist)))
		if n := len(hist); n > 0 {
			mb.KV("Last send", hist[n-1].At.Format("15:04:05"))
		}
	}

	if b.d.Supervisors != nil {
		sups := b.d.Supervisors()
		names := make([]string, 0, len(sups))
		for n := range sups {
			names = append(names, n)
		}
		sort.Strings(names)
		mb.Blank().HTML(tgui.B("Workers"))
		for _, n := range names {
			snap := sups[n].Snapshot()
			line := fmt.Sprintf("active=%d started=%d", snap.Counters.Active, snap.Counters.Started)
			var restarts, panics uint64
			for _, g := range snap.Goroutines {
				restarts += g.Restarts
				panics += g.Panics
			}
			if restarts > 0 || panics > 0 {
				line += fmt.Sprintf(" restarts=%d panics=%d", restarts, panics)
			}
			if snap.FirstError != "" {
				line += " err=" + tgui.TruncRunes(snap.FirstError, 120)
			}
			mb.KV(n, line)
		}
	}

	_, err := mb.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	parts = append(parts, d.String())
	return strings.Join(parts, " ")
}

package app

import (
	"context"
	"strings"
	"time"

	"pillbot/internal/config"
	"pillbot/internal/eventbus"
	"pillbot/internal/task/scheduler"
	"pillbot/pkg/clock"
	logx "pillbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.apply(ctx, last, next)
			last = next
		}
	}
}

// apply pushes a committed config into the running components. Sections
// listed in Change.RestartRequired are only logged.
func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	ch := config.SummarizeChange(prev, next)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)...)
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}

	// Target first, so Apply does not warn when chat logging is enabled.
	a.logs.SetTelegramTarget(groupLogChat(next), next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogging(next))

	a.router.SetAccess(next.Telegram.OwnerUserIDs, next.Telegram.AllowedUserIDs)
	a.bot.Apply(next.Telegram.DeveloperChatID, sessionTTL(next))

	if ch.Has("parser") {
		a.parser.apply(mapParser(next))
	}

	if ch.Has("reminder") {
		if loc, err := clock.LoadLocation(next.Reminder.Timezone); err == nil {
			a.loc.Store(loc)
		}
		a.sched.Apply(ctx, mapScheduler(next))
		if strings.TrimSpace(prev.Reminder.Schedule) != strings.TrimSpace(next.Reminder.Schedule) {
			if err := a.sched.Add(scheduler.ReminderJobName, next.Reminder.Schedule, reminderTimeout, a.tickJob()); err != nil {
				a.log.Warn("reminder schedule rejected; keeping previous", logx.Err(err))
			}
		}
	}

	if ch.Has("notifier") {
		ncfg, err := mapNotifier(next)
		if err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			wasEnabled := a.notif.Enabled()
			a.notif.Apply(ncfg)
			switch {
			case wasEnabled && !ncfg.Enabled:
				a.log.Info("notifier disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.notif.Stop(stopCtx)
				cancel()
			case !wasEnabled && ncfg.Enabled:
				a.log.Info("notifier enabled via config")
				a.notif.Start(ctx)
			}
		}
	}

	if ch.Has("http_api") {
		hc, err := mapHTTPAPI(next)
		if err == nil {
			err = a.api.Apply(ctx, hc)
		}
		if err != nil {
			a.log.Warn("http api reconfigure failed", logx.Err(err))
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigApplied, Data: ch.Sections})
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)...)
}

// Package app wires the bot together: config, logging, storage, the
// Telegram transport, the reminder tick, the chat flows and the HTTP API.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"pillbot/internal/commands"
	"pillbot/internal/config"
	"pillbot/internal/dose"
	"pillbot/internal/eventbus"
	"pillbot/internal/httpapi"
	"pillbot/internal/notifier"
	rtsup "pillbot/internal/runtime/supervisor"
	"pillbot/internal/storage"
	"pillbot/internal/task/scheduler"
	kit "pillbot/internal/transport"
	telegram "pillbot/internal/transport/telegram/adapter"
	"pillbot/internal/transport/telegram/router"
	"pillbot/pkg/clock"
	logx "pillbot/pkg/logx"
	"pillbot/pkg/tgui"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	adapter *telegram.Adapter
	router  *router.Manager
	bot     *commands.Bot

	sched   *scheduler.Service
	notif   *notifier.Service
	matcher *dose.Matcher
	parser  *liveParser
	api     *httpapi.Server

	// loc is the reminder timezone; every component reads "now" through it.
	loc atomic.Pointer[time.Location]

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(mapAdapter(cfg), bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies immediately; keep chat logging off until the target
	// is set so Apply does not warn about a missing chat.
	logCfg := mapLogging(cfg)
	enableChat := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	logSvc, log := logx.New(logCfg, ad)
	logSvc.SetTelegramTarget(groupLogChat(cfg), cfg.Logging.Telegram.ThreadID)
	logCfg.Telegram.Enabled = enableChat
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}
	loc, err := clock.LoadLocation(cfg.Reminder.Timezone)
	if err != nil {
		return nil, err
	}
	a.loc.Store(loc)

	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = st
	log.Info("storage ready", logx.String("driver", sc.Driver))

	ncfg, err := mapNotifier(cfg)
	if err != nil {
		return nil, err
	}
	a.notif = notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), a.bus, st)

	tokens := tgui.NewTokenStore(notifier.TokenTTL, 0)
	a.matcher = dose.NewMatcher(st, notifier.NewReminders(a.notif, tokens), log.With(logx.String("comp", "matcher")))

	a.sched = scheduler.New(mapScheduler(cfg), log.With(logx.String("comp", "scheduler")), a.bus)
	if err := a.sched.Add(scheduler.ReminderJobName, cfg.Reminder.Schedule, reminderTimeout, a.tickJob()); err != nil {
		return nil, fmt.Errorf("reminder.schedule: %w", err)
	}

	a.parser = newLiveParser(mapParser(cfg), log.With(logx.String("comp", "parser")))

	a.router = router.New(log.With(logx.String("comp", "router")), ad)
	a.router.SetAccess(cfg.Telegram.OwnerUserIDs, cfg.Telegram.AllowedUserIDs)
	a.bot = commands.New(commands.Deps{
		Store:           st,
		Parser:          a.parser,
		Clock:           a.clock(),
		Notifier:        a.notif,
		Tokens:          tokens,
		Bus:             a.bus,
		Log:             log,
		DeveloperChatID: cfg.Telegram.DeveloperChatID,
		SessionTTL:      sessionTTL(cfg),
		Ticks:           a.matcher,
		Scheduler:       a.sched,
		Supervisors:     a.supervisors,
	})

	a.api = httpapi.New(httpapi.Deps{
		Store:  st,
		Ledger: a.bot.Ledger(),
		Clock:  a.clock(),
	}, log)

	return a, nil
}

// validate holds the checks that need other packages; config.Validate
// covers the rest.
func validate(cfg *config.Config) error {
	if _, err := scheduler.ParseSchedule(cfg.Reminder.Schedule); err != nil {
		return fmt.Errorf("reminder.schedule: %w", err)
	}
	if _, err := mapNotifier(cfg); err != nil {
		return err
	}
	hc, err := mapHTTPAPI(cfg)
	if err != nil {
		return err
	}
	if hc.Enabled {
		return httpapi.CheckBind(hc)
	}
	return nil
}

// clock reads the wall clock in the current reminder timezone.
func (a *App) clock() clock.Clock {
	return clock.Func(func() time.Time { return time.Now().In(a.loc.Load()) })
}

func (a *App) tickJob() scheduler.Job {
	return scheduler.TickJob(a.matcher, a.clock(), a.bus)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// supervisors lists the live goroutine owners for /status.
func (a *App) supervisors() map[string]*rtsup.Supervisor {
	out := map[string]*rtsup.Supervisor{}
	add := func(name string, s *rtsup.Supervisor) {
		if s != nil {
			out[name] = s
		}
	}
	add("app", a.sup)
	add("telegram.adapter", a.adapter.Supervisor())
	add("router", a.router.Supervisor())
	add("notifier", a.notif.Supervisor())
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	run := a.sup.Context()
	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(run)
	}
	if a.sched.Enabled() {
		a.sched.Start(run)
	}
	a.bot.Register(run, a.router)

	cfg := a.cfgm.Get()
	if hc, err := mapHTTPAPI(cfg); err == nil {
		if err := a.api.Apply(run, hc); err != nil {
			return fmt.Errorf("http api: %w", err)
		}
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.notifyReady()
	a.log.Info("app started")
	return nil
}

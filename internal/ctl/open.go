package ctl

import (
	"context"
	"strings"

	"pillbot/internal/config"
	"pillbot/internal/storage"
	"pillbot/pkg/clock"
	logx "pillbot/pkg/logx"
)

// Open builds a command Context from the bot's config file. The file is
// parsed but not validated, so a missing bot token does not block
// store maintenance. tz overrides reminder.timezone when set.
func Open(ctx context.Context, cfgPath, tz string, log logx.Logger) (*Context, func() error, error) {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(tz) == "" {
		tz = cfg.Reminder.Timezone
	}
	loc, err := clock.LoadLocation(strings.TrimSpace(tz))
	if err != nil {
		return nil, nil, err
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, nil, err
	}
	st, err := storage.Open(storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		DSN:         strings.TrimSpace(cfg.Storage.DSN),
		BusyTimeout: busy,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return &Context{Ctx: ctx, Store: st, Clock: clock.Real(loc), Cfg: cfg, Log: log}, st.Close, nil
}

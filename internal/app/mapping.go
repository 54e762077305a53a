package app

import (
	"strconv"
	"strings"
	"time"

	"pillbot/internal/config"
	"pillbot/internal/httpapi"
	"pillbot/internal/notifier"
	"pillbot/internal/parser"
	"pillbot/internal/storage"
	"pillbot/internal/task/scheduler"
	telegram "pillbot/internal/transport/telegram/adapter"
	logx "pillbot/pkg/logx"
)

// reminderTimeout bounds one matcher pass; it stays under the default
// one-minute tick so a stuck store never stacks runs.
const reminderTimeout = 50 * time.Second

func mapAdapter(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:       strings.TrimSpace(cfg.Telegram.Token),
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, 10*time.Second),
	}
}

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
			Burst:      l.Telegram.Burst,
		},
	}
}

// groupLogChat parses telegram.group_log. Zero clears the log target.
func groupLogChat(cfg *config.Config) int64 {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, nil
}

func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	n := config.NotifierDefaults()
	if cfg.Notifier != nil {
		n = *cfg.Notifier
	}
	out := notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
		HistorySize:     n.HistorySize,
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Reminder.IsEnabled(),
		Timezone: strings.TrimSpace(cfg.Reminder.Timezone),
	}
}

func mapParser(cfg *config.Config) parser.Config {
	p := cfg.Parser
	return parser.Config{
		APIKey:   strings.TrimSpace(p.APIKey),
		Model:    strings.TrimSpace(p.Model),
		Endpoint: strings.TrimSpace(p.Endpoint),
		Timeout:  config.DurationOr(p.Timeout, 30*time.Second),
	}
}

func mapHTTPAPI(cfg *config.Config) (httpapi.Config, error) {
	h := cfg.HTTPAPI
	out := httpapi.Config{
		Enabled:       h.Enabled,
		Addr:          strings.TrimSpace(h.Addr),
		JWTSecret:     strings.TrimSpace(h.JWTSecret),
		AllowInsecure: h.AllowInsecure,
		Pprof:         h.Pprof,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationField("http_api.read_timeout", h.ReadTimeout); err != nil {
		return httpapi.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationField("http_api.write_timeout", h.WriteTimeout); err != nil {
		return httpapi.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationField("http_api.idle_timeout", h.IdleTimeout); err != nil {
		return httpapi.Config{}, err
	}
	return out, nil
}

func sessionTTL(cfg *config.Config) time.Duration {
	return config.DurationOr(cfg.Conversation.TTL, config.DefaultConversationTTL)
}

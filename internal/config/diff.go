package config

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	logx "pillbot/pkg/logx"
)

// Change summarises a reload. Fields never carry secrets: tokens, API keys
// and the JWT secret are reported only as set/unset.
type Change struct {
	Sections []string
	Fields   []logx.Field
	// RestartRequired lists changed sections that only take effect after a
	// process restart.
	RestartRequired []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func (c Change) Has(section string) bool { return slices.Contains(c.Sections, section) }

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		c.Sections = append(c.Sections, section)
		c.Fields = append(c.Fields, fields...)
		if restart {
			c.RestartRequired = append(c.RestartRequired, section)
		}
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token)
	if tokenChanged || trim(ot.PollTimeout) != trim(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		!reflect.DeepEqual(ot.AllowedUserIDs, nt.AllowedUserIDs) ||
		ot.DeveloperChatID != nt.DeveloperChatID || trim(ot.GroupLog) != trim(nt.GroupLog) {
		mark("telegram", tokenChanged || trim(ot.PollTimeout) != trim(nt.PollTimeout),
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Int("telegram.allowed_count", len(nt.AllowedUserIDs)),
			logx.Bool("telegram.developer_chat_set", nt.DeveloperChatID != 0),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	or, nr := oldCfg.Reminder, newCfg.Reminder
	if or.IsEnabled() != nr.IsEnabled() || trim(or.Schedule) != trim(nr.Schedule) || trim(or.Timezone) != trim(nr.Timezone) {
		mark("reminder", false,
			logx.Bool("reminder.enabled", nr.IsEnabled()),
			logx.String("reminder.schedule", trim(nr.Schedule)),
			logx.String("reminder.timezone", trim(nr.Timezone)),
		)
	}

	on, nn := notifierOrDefault(oldCfg.Notifier), notifierOrDefault(newCfg.Notifier)
	if on != nn {
		mark("notifier", false,
			logx.Bool("notifier.enabled", nn.Enabled),
			logx.Int("notifier.workers", nn.Workers),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
			logx.String("notifier.dedup_window", nn.DedupWindow),
			logx.Bool("notifier.persist_dedup", nn.PersistDedup),
		)
	}

	ost, nst := oldCfg.Storage, newCfg.Storage
	if trim(ost.Driver) != trim(nst.Driver) || trim(ost.Path) != trim(nst.Path) || trim(ost.DSN) != trim(nst.DSN) || trim(ost.BusyTimeout) != trim(nst.BusyTimeout) {
		mark("storage", true,
			logx.String("storage.driver", trim(nst.Driver)),
			logx.Bool("storage.path_set", trim(nst.Path) != ""),
			logx.Bool("storage.dsn_set", trim(nst.DSN) != ""),
		)
	}

	op, np := oldCfg.Parser, newCfg.Parser
	if op != np {
		mark("parser", false,
			logx.Bool("parser.api_key_set", trim(np.APIKey) != ""),
			logx.String("parser.model", np.Model),
			logx.String("parser.timeout", np.Timeout),
		)
	}

	if oldCfg.Conversation != newCfg.Conversation {
		mark("conversation", false, logx.String("conversation.ttl", newCfg.Conversation.TTL))
	}

	oh, nh := oldCfg.HTTPAPI, newCfg.HTTPAPI
	if oh != nh {
		mark("http_api", false,
			logx.Bool("http_api.enabled", nh.Enabled),
			logx.String("http_api.addr", trim(nh.Addr)),
			logx.Bool("http_api.jwt_secret_set", trim(nh.JWTSecret) != ""),
			logx.Bool("http_api.allow_insecure", nh.AllowInsecure),
			logx.Bool("http_api.pprof", nh.Pprof),
		)
	}

	sort.Strings(c.Sections)
	sort.Strings(c.RestartRequired)
	return c
}

// NotifierDefaults is the runtime notifier config when the section is omitted.
func NotifierDefaults() NotifierConfig {
	return NotifierConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      20,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "2m",
		DedupMaxEntries: 5000,
		HistorySize:     300,
	}
}

func notifierOrDefault(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierDefaults()
	}
	return *n
}

func trim(s string) string { return strings.TrimSpace(s) }

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultReminderSchedule = "0 * * * * *"
	DefaultStoragePath      = "./data/pillbot.db"
	DefaultParserModel      = "gemini-2.0-flash-001"
	DefaultParserEndpoint   = "https://generativelanguage.googleapis.com"
	DefaultConversationTTL  = 30 * time.Minute
	DefaultHTTPAddr         = "127.0.0.1:8088"
)

// applyEnv fills secrets left empty in the file from the environment.
func applyEnv(cfg *Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		cfg.Telegram.Token = strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))
	}
	if strings.TrimSpace(cfg.Parser.APIKey) == "" {
		cfg.Parser.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if cfg.Telegram.DeveloperChatID == 0 {
		if raw := strings.TrimSpace(os.Getenv("DEVELOPER_CHAT_ID")); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("DEVELOPER_CHAT_ID: %w", err)
			}
			cfg.Telegram.DeveloperChatID = id
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Reminder.Schedule) == "" {
		cfg.Reminder.Schedule = DefaultReminderSchedule
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Driver != "postgres" && strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if strings.TrimSpace(cfg.Parser.Model) == "" {
		cfg.Parser.Model = DefaultParserModel
	}
	if strings.TrimSpace(cfg.Parser.Endpoint) == "" {
		cfg.Parser.Endpoint = DefaultParserEndpoint
	}
	if strings.TrimSpace(cfg.HTTPAPI.Addr) == "" {
		cfg.HTTPAPI.Addr = DefaultHTTPAddr
	}
}

// Validate checks a parsed config. It is also the hot-reload gate: a file
// that fails here is never published.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or set TELEGRAM_TOKEN)"))
	}
	check := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	check("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	check("storage.busy_timeout", cfg.Storage.BusyTimeout)
	check("parser.timeout", cfg.Parser.Timeout)
	check("conversation.ttl", cfg.Conversation.TTL)
	check("http_api.token_ttl", cfg.HTTPAPI.TokenTTL)
	check("http_api.read_timeout", cfg.HTTPAPI.ReadTimeout)
	check("http_api.write_timeout", cfg.HTTPAPI.WriteTimeout)
	check("http_api.idle_timeout", cfg.HTTPAPI.IdleTimeout)
	if n := cfg.Notifier; n != nil {
		check("notifier.retry_base", n.RetryBase)
		check("notifier.retry_max_delay", n.RetryMaxDelay)
		check("notifier.dedup_window", n.DedupWindow)
	}
	if tz := strings.TrimSpace(cfg.Reminder.Timezone); tz != "" && tz != "Local" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("reminder.timezone: %w", err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "file":
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	return errors.Join(errs...)
}

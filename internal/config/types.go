package config

// Config is the whole bot configuration. Durations are Go duration strings
// ("500ms", "10s", "1m") parsed where they are consumed.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Reminder     ReminderConfig     `json:"reminder"`
	Notifier     *NotifierConfig    `json:"notifier,omitempty"`
	Storage      StorageConfig      `json:"storage"`
	Parser       ParserConfig       `json:"parser"`
	Conversation ConversationConfig `json:"conversation"`
	HTTPAPI      HTTPAPIConfig      `json:"http_api"`
}

// TelegramConfig.
//
// Token falls back to $TELEGRAM_TOKEN and DeveloperChatID to
// $DEVELOPER_CHAT_ID when left empty.
type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerUserIDs may run operator commands such as /status.
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// AllowedUserIDs restricts the pill commands. Empty allows everyone.
	AllowedUserIDs  []int64 `json:"allowed_user_ids,omitempty"`
	DeveloperChatID int64   `json:"developer_chat_id,omitempty"`
	GroupLog        string  `json:"group_log,omitempty"`
	PollTimeout     string  `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
	Burst      int    `json:"burst,omitempty"`
}

// ReminderConfig controls the per-minute reminder tick.
//
// Schedule accepts a cron expression (5 or 6 fields, descriptors like
// "@every 1m") or a plain interval ("60s"). Timezone is the single local
// clock every schedule time is read in.
type ReminderConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"` // default true
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone,omitempty"`
}

func (r ReminderConfig) IsEnabled() bool { return r.Enabled == nil || *r.Enabled }

// NotifierConfig controls the async delivery pipeline. If the whole section
// is omitted the notifier runs with defaults.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

// StorageConfig.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/pillbot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@db/pillbot?sslmode=disable" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// ParserConfig configures the free-text schedule parser. APIKey falls back to
// $GEMINI_API_KEY.
type ParserConfig struct {
	APIKey   string `json:"api_key"`
	Model    string `json:"model,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type ConversationConfig struct {
	// TTL abandons an unfinished /addpill, /logpill or /deletepill flow.
	TTL string `json:"ttl,omitempty"`
}

// HTTPAPIConfig controls the optional owner-scoped JSON API.
//
// Security note: a non-loopback Addr requires JWTSecret or AllowInsecure.
type HTTPAPIConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`       // default "127.0.0.1:8088"
	JWTSecret     string `json:"jwt_secret,omitempty"` // do not log
	TokenTTL      string `json:"token_ttl,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

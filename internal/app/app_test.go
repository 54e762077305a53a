package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pillbot/internal/config"
	"pillbot/internal/dose"
	"pillbot/internal/parser"
	logx "pillbot/pkg/logx"
)

func decode(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Decode("config.yaml", []byte(yaml))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return cfg
}

func TestMapNotifierDefaults(t *testing.T) {
	t.Parallel()
	cfg := decode(t, "telegram:\n  token: x\n")
	n, err := mapNotifier(cfg)
	if err != nil {
		t.Fatalf("mapNotifier: %v", err)
	}
	if !n.Enabled || n.Workers != 2 || n.RetryBase != 500*time.Millisecond || n.DedupWindow != 2*time.Minute {
		t.Fatalf("defaults not applied: %+v", n)
	}
}

func TestMapNotifierRejectsBadDuration(t *testing.T) {
	t.Parallel()
	cfg := decode(t, "telegram:\n  token: x\nnotifier:\n  enabled: true\n  retry_base: soon\n")
	if _, err := mapNotifier(cfg); err == nil || !strings.Contains(err.Error(), "notifier.retry_base") {
		t.Fatalf("err = %v", err)
	}
}

func TestMapLoggingAndStorage(t *testing.T) {
	t.Parallel()
	cfg := decode(t, `
telegram:
  token: x
  group_log: "-100123"
logging:
  level: debug
  file: {enabled: true, path: ./bot.log, max_size_mb: 5, compress: true}
  telegram: {enabled: true, thread_id: 7, min_level: warn, rate_per_sec: 2, burst: 4}
storage:
  driver: SQLite
  path: ./data/x.db
  busy_timeout: 3s
`)
	lc := mapLogging(cfg)
	if !lc.File.Enabled || lc.File.MaxSizeMB != 5 || !lc.File.Compress || lc.Telegram.Burst != 4 || lc.Telegram.ThreadID != 7 {
		t.Fatalf("logging: %+v", lc)
	}
	if got := groupLogChat(cfg); got != -100123 {
		t.Fatalf("group log chat = %d", got)
	}
	sc, err := mapStorage(cfg)
	if err != nil {
		t.Fatalf("mapStorage: %v", err)
	}
	if sc.Driver != "sqlite" || sc.Path != "./data/x.db" || sc.BusyTimeout != 3*time.Second {
		t.Fatalf("storage: %+v", sc)
	}
}

func TestGroupLogChatInvalid(t *testing.T) {
	t.Parallel()
	cfg := decode(t, "telegram:\n  token: x\n  group_log: general\n")
	if got := groupLogChat(cfg); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestMapSchedulerAndSessionTTL(t *testing.T) {
	t.Parallel()
	cfg := decode(t, "telegram:\n  token: x\nreminder:\n  enabled: false\n  timezone: Asia/Jakarta\nconversation:\n  ttl: 5m\n")
	sc := mapScheduler(cfg)
	if sc.Enabled || sc.Timezone != "Asia/Jakarta" {
		t.Fatalf("scheduler: %+v", sc)
	}
	if got := sessionTTL(cfg); got != 5*time.Minute {
		t.Fatalf("ttl = %v", got)
	}
	if got := sessionTTL(decode(t, "telegram:\n  token: x\n")); got != config.DefaultConversationTTL {
		t.Fatalf("default ttl = %v", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"defaults", "telegram:\n  token: x\n", ""},
		{"interval schedule", "telegram:\n  token: x\nreminder:\n  schedule: 30s\n", ""},
		{"bad schedule", "telegram:\n  token: x\nreminder:\n  schedule: whenever\n", "reminder.schedule"},
		{"public api without secret", "telegram:\n  token: x\nhttp_api:\n  enabled: true\n  addr: 0.0.0.0:8088\n", "not loopback"},
		{"public api with secret", "telegram:\n  token: x\nhttp_api:\n  enabled: true\n  addr: 0.0.0.0:8088\n  jwt_secret: s3cret\n", ""},
		{"disabled api ignores bind", "telegram:\n  token: x\nhttp_api:\n  enabled: false\n  addr: 0.0.0.0:8088\n", ""},
		{"bad api timeout", "telegram:\n  token: x\nhttp_api:\n  read_timeout: forever\n", "http_api.read_timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := validate(decode(t, tc.yaml))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestLiveParserSwap(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[{\"name\":\"Zinc\",\"start_date\":\"2024-03-05\",\"schedule\":[{\"duration_days\":9999,\"dosage\":\"1 tab\",\"time\":\"08:00\"}]}]"}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	p := newLiveParser(parser.Config{}, logx.Nop())
	today := dose.Date{Year: 2024, Month: time.March, Day: 5}
	if _, err := p.Parse(context.Background(), 1, today, []string{"zinc daily"}); !errors.Is(err, parser.ErrNotConfigured) {
		t.Fatalf("unconfigured err = %v", err)
	}

	p.apply(parser.Config{APIKey: "k", Model: "m", Endpoint: srv.URL})
	got, err := p.Parse(context.Background(), 1, today, []string{"zinc daily"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Zinc" || got[0].OwnerID != 1 {
		t.Fatalf("got %+v", got)
	}
}

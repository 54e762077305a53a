package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pillbot/internal/dose"
	logx "pillbot/pkg/logx"
)

// Store is the persistence API used by the engine and the notifier.
type Store interface {
	dose.Store

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}

// Open initializes the configured store. An empty driver means sqlite. There
// is no storeless mode: the bot cannot run without schedules.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log.With(logx.String("driver", "sqlite")))
	case "postgres", "postgresql", "pg":
		return openPostgres(cfg, log.With(logx.String("driver", "postgres")))
	case "file":
		return openFile(cfg, log.With(logx.String("driver", "file")))
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

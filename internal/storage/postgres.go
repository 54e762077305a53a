package storage

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"pillbot/internal/dose"
	logx "pillbot/pkg/logx"
)

//go:embed migrations_postgres.sql
var postgresDDL string

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres")
	}
	if hasPassword(dsn) {
		log.Warn("postgres dsn embeds a password; prefer PGPASSWORD or .pgpass")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dose.Unavailable("connect postgres", err)
	}

	st := &sqlStore{db: db, log: log, pruneEvery: 500}
	if err := st.migrate(ctx, postgresDDL); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("postgres store ready")
	return st, nil
}

// hasPassword reports whether a URL or key=value DSN carries a password.
func hasPassword(dsn string) bool {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		rest := dsn[strings.Index(dsn, "://")+3:]
		at := strings.IndexByte(rest, '@')
		return at > 0 && strings.Contains(rest[:at], ":")
	}
	for _, part := range strings.Fields(dsn) {
		k, _, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(k, "password") {
			return true
		}
	}
	return false
}

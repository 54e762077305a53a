package storage

import (
	"errors"
	"time"
)

// ErrDisabled is returned by a sqlStore whose database handle is gone.
var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
type Config struct {
	Driver      string
	Path        string        // sqlite database file, or file-driver prefix
	DSN         string        // postgres connection string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

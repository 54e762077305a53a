package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"pillbot/internal/eventbus"
	logx "pillbot/pkg/logx"
)

type Config struct {
	Enabled     bool
	Timezone    string // IANA TZ, e.g. "Asia/Jakarta"
	HistorySize int
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    ParsedSpec
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	running *atomic.Bool
	skipped *atomic.Uint64
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	c    *cron.Cron
	defs []*scheduleDef

	// hmu guards history and runCtx. Runs never take mu: stopping the cron
	// runner under mu waits for them.
	hmu      sync.Mutex
	history  []HistoryItem
	runCtx   context.Context
	histSize atomic.Int64
	wg       sync.WaitGroup
}

// HistoryItem records one finished (or skipped) run.
type HistoryItem struct {
	Name    string        `json:"name"`
	Started time.Time     `json:"started"`
	Took    time.Duration `json:"took"`
	Err     string        `json:"err,omitempty"`
	Skipped bool          `json:"skipped,omitempty"`
}

type ScheduleInfo struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Running bool          `json:"running"`
	Skipped uint64        `json:"skipped"`
	Next    time.Time     `json:"next"`
	Prev    time.Time     `json:"prev"`
}

type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
	History   []HistoryItem  `json:"history"`
}

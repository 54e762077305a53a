package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"pillbot/internal/eventbus"
	logx "pillbot/pkg/logx"
)

const defaultHistorySize = 32

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{cfg: cfg, log: log, bus: bus}
	s.histSize.Store(int64(cfg.HistorySize))
	return s
}

// Enabled reports the current config flag. Apply may run concurrently.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Add registers job under name, replacing any earlier job with that name.
// Before Start the definition is kept and registered when the runner starts.
func (s *Service) Add(name, schedule string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &scheduleDef{
		name:    name,
		spec:    ps,
		timeout: timeout,
		job:     job,
		running: &atomic.Bool{},
		skipped: &atomic.Uint64{},
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		if err := s.registerLocked(d); err != nil {
			return err
		}
		s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", ps.String()), logx.String("next", s.previewLocked(d, 3)))
	}
	return nil
}

// Remove unschedules name and reports whether it existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return
	}
	s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithLocation(s.loc))
	s.hmu.Lock()
	s.runCtx = ctx
	s.hmu.Unlock()
	s.histSize.Store(int64(s.cfg.HistorySize))
	for _, d := range s.defs {
		if err := s.registerLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("name", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop halts triggering and waits for in-flight runs or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop: runs still in flight", logx.Err(ctx.Err()))
	}
	s.log.Info("scheduler stopped")
}

// Apply swaps the config. A timezone change or an enable toggle restarts the
// cron runner with the same definitions.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	s.histSize.Store(int64(cfg.HistorySize))
	running := s.c != nil

	switch {
	case running && !cfg.Enabled:
		<-s.c.Stop().Done()
		s.c = nil
		s.log.Info("scheduler disabled by config")
	case !running && cfg.Enabled:
		s.startLocked(ctx)
	case running && strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone):
		<-s.c.Stop().Done()
		s.startLocked(ctx)
	}
}

func (s *Service) registerLocked(d *scheduleDef) error {
	sched, err := d.spec.schedule()
	if err != nil {
		return fmt.Errorf("schedule %s: %w", d.name, err)
	}
	d.entryID = s.c.Schedule(sched, cron.FuncJob(func() { s.run(d) }))
	return nil
}

// run executes one trigger. Overlapping triggers are skipped.
func (s *Service) run(d *scheduleDef) {
	started := time.Now()
	if !d.running.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		s.log.Warn("schedule skipped: previous run still active", logx.String("name", d.name))
		s.record(HistoryItem{Name: d.name, Started: started, Skipped: true})
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer d.running.Store(false)

	s.hmu.Lock()
	parent := s.runCtx
	s.hmu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := parent, context.CancelFunc(func() {})
	if d.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, d.timeout)
	}
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("schedule panicked", logx.String("name", d.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return d.job(ctx)
	}()

	it := HistoryItem{Name: d.name, Started: started, Took: time.Since(started)}
	if err != nil {
		it.Err = err.Error()
		s.log.Warn("schedule run failed", logx.String("name", d.name), logx.Duration("took", it.Took), logx.Err(err))
	}
	s.record(it)
}

func (s *Service) record(it HistoryItem) {
	size := int(s.histSize.Load())
	if size <= 0 {
		size = defaultHistorySize
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if over := len(s.history) - size; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	s.hmu.Unlock()
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewLocked lists the next n fire times for debug logging.
func (s *Service) previewLocked(d *scheduleDef, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	sched, err := d.spec.schedule()
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		parts = append(parts, t.Format("2006-01-02 15:04:05"))
	}
	return strings.Join(parts, ", ")
}

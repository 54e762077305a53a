package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"pillbot/internal/dose"
	"pillbot/internal/eventbus"
	"pillbot/pkg/clock"
	logx "pillbot/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		kind    SpecKind
		every   time.Duration
		wantErr bool
	}{
		{in: "0 * * * * *", kind: SpecCron},
		{in: "*/5 * * * *", kind: SpecCron},
		{in: "@every 1m", kind: SpecCron},
		{in: "cron:@hourly", kind: SpecCron},
		{in: "60s", kind: SpecInterval, every: time.Minute},
		{in: "every:2m", kind: SpecInterval, every: 2 * time.Minute},
		{in: "", wantErr: true},
		{in: "500ms", wantErr: true},
		{in: "61 * * * *", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseSchedule(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseSchedule(%q) expected error, got %+v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
		}
		if got.Kind != tc.kind || got.Every != tc.every {
			t.Fatalf("ParseSchedule(%q)=%+v", tc.in, got)
		}
	}
}

func TestRunSkipsOverlap(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true}, logx.Nop(), nil)
	release := make(chan struct{})
	var calls atomic.Int32
	d := &scheduleDef{
		name:    "slow",
		job:     func(context.Context) error { calls.Add(1); <-release; return nil },
		running: &atomic.Bool{},
		skipped: &atomic.Uint64{},
	}

	done := make(chan struct{})
	go func() {
		s.run(d)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !d.running.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("first run never started")
		}
		time.Sleep(time.Millisecond)
	}
	s.run(d)
	close(release)
	<-done

	if calls.Load() != 1 || d.skipped.Load() != 1 {
		t.Fatalf("calls=%d skipped=%d", calls.Load(), d.skipped.Load())
	}
	hist := s.Snapshot().History
	if len(hist) != 2 || !hist[0].Skipped {
		t.Fatalf("history=%+v", hist)
	}
}

func TestRunRecordsErrorAndPanic(t *testing.T) {
	t.Parallel()

	s := New(Config{HistorySize: 1}, logx.Nop(), nil)
	mk := func(job Job) *scheduleDef {
		return &scheduleDef{name: "j", job: job, running: &atomic.Bool{}, skipped: &atomic.Uint64{}}
	}
	s.run(mk(func(context.Context) error { return errors.New("nope") }))
	s.run(mk(func(context.Context) error { panic("bad") }))

	hist := s.Snapshot().History
	if len(hist) != 1 || hist[0].Err != "panic: bad" {
		t.Fatalf("history=%+v", hist)
	}
}

func TestAddReplacesByName(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true}, logx.Nop(), nil)
	noop := func(context.Context) error { return nil }
	if err := s.Add("tick", "1m", 0, noop); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("tick", "0 * * * * *", 0, noop); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("tick", "nonsense", 0, noop); err == nil {
		t.Fatalf("expected parse error")
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "0 * * * * *" {
		t.Fatalf("schedules=%+v", snap.Schedules)
	}
	if !s.Remove("tick") || s.Remove("tick") {
		t.Fatalf("Remove should report existence once")
	}
}

func TestStartFiresIntervalJob(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), nil)
	fired := make(chan struct{}, 1)
	if err := s.Add("fast", "1s", time.Second, func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not fire")
	}
	if got := s.Snapshot().Timezone; got != "UTC" {
		t.Fatalf("timezone=%q", got)
	}
}

type fakeTicker struct{ at time.Time }

func (f *fakeTicker) Tick(_ context.Context, at time.Time) (dose.TickReport, error) {
	f.at = at
	return dose.TickReport{At: at, Emitted: 2}, nil
}

func TestTickJobUsesClockAndPublishes(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	ft := &fakeTicker{}
	if err := TickJob(ft, clock.Fixed(at), bus)(context.Background()); err != nil {
		t.Fatalf("job: %v", err)
	}
	if !ft.at.Equal(at) {
		t.Fatalf("ticker saw %v", ft.at)
	}
	e := <-ch
	rep, ok := e.Data.(dose.TickReport)
	if e.Type != eventbus.TypeTickDone || !ok || rep.Emitted != 2 {
		t.Fatalf("event=%+v", e)
	}
}

package ctl

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pillbot/internal/config"
	"pillbot/internal/dose"
	"pillbot/internal/storage"
	"pillbot/pkg/clock"
	logx "pillbot/pkg/logx"
)

func newTestContext(t *testing.T) (*Context, *bytes.Buffer) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "pills")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	out := &bytes.Buffer{}
	now := time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)
	return &Context{
		Ctx:   context.Background(),
		Store: st,
		Clock: clock.Fixed(now),
		Cfg:   &config.Config{},
		Out:   out,
		Log:   logx.Nop(),
	}, out
}

func TestParsePhase(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    dose.Phase
		wantErr bool
	}{
		{in: "5:2 tablets@08:00", want: dose.Phase{Days: 5, Dose: "2 tablets", Time: dose.TimeOfDay{Hour: 8}}},
		{in: "ongoing:1 tab@7:05", want: dose.Phase{Days: dose.OpenEnded, Dose: "1 tab", Time: dose.TimeOfDay{Hour: 7, Minute: 5}}},
		{in: "3:ratio 1:2@21:30", want: dose.Phase{Days: 3, Dose: "ratio 1:2", Time: dose.TimeOfDay{Hour: 21, Minute: 30}}},
		{in: "5:2 tablets", wantErr: true},
		{in: "0:1 tab@08:00", wantErr: true},
		{in: "x:1 tab@08:00", wantErr: true},
		{in: "5:@08:00", wantErr: true},
		{in: "5:1 tab@25:00", wantErr: true},
		{in: "1 tab@08:00", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePhase(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePhase: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseAt(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("WIB", 7*3600)
	now := time.Date(2024, time.March, 5, 8, 0, 0, 0, loc)

	got, err := parseAt("", now)
	if err != nil || !got.Equal(now) {
		t.Fatalf("empty: %v %v", got, err)
	}
	got, err = parseAt("2024-03-06 09:30", now)
	if err != nil || got.Hour() != 9 || got.Location() != loc {
		t.Fatalf("local layout: %v %v", got, err)
	}
	got, err = parseAt("2024-03-06T02:30:00Z", now)
	if err != nil || got.Hour() != 9 || got.Day() != 6 {
		t.Fatalf("rfc3339 not moved into loc: %v %v", got, err)
	}
	if _, err := parseAt("tomorrow", now); err == nil {
		t.Fatal("want error for free text")
	}
}

func TestAddListResolveDelete(t *testing.T) {
	t.Parallel()
	c, out := newTestContext(t)

	add := &AddCmd{Owner: 42, Name: "Prednisone", Start: "2024-03-01", Phases: []string{"3:40mg@08:00", "ongoing:20mg@08:00"}}
	if err := add.Run(c); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out.String(), `added "Prednisone"`) {
		t.Fatalf("add output: %q", out.String())
	}
	if err := add.Run(c); err == nil || !strings.Contains(err.Error(), "already has a schedule") {
		t.Fatalf("duplicate add: %v", err)
	}

	out.Reset()
	if err := (&SchedulesCmd{Owner: 42}).Run(c); err != nil {
		t.Fatalf("schedules: %v", err)
	}
	for _, want := range []string{"Prednisone", "40mg", "20mg", "ongoing", "active"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("schedules output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := (&ResolveCmd{Owner: 42, Name: "prednisone", At: "2024-03-02 08:00"}).Run(c); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out.String(), "phase 1/2, 40mg") {
		t.Fatalf("resolve day 2: %q", out.String())
	}
	out.Reset()
	if err := (&ResolveCmd{Owner: 42, Name: "Prednisone"}).Run(c); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out.String(), "phase 2/2, 20mg") {
		t.Fatalf("resolve today: %q", out.String())
	}
	if err := (&ResolveCmd{Owner: 7, Name: "Prednisone"}).Run(c); err == nil {
		t.Fatal("other owner must not see the schedule")
	}

	out.Reset()
	if err := (&DeleteCmd{Owner: 42, Name: "Prednisone"}).Run(c); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out.String(), "deleted") {
		t.Fatalf("delete output: %q", out.String())
	}
	if err := (&DeleteCmd{Owner: 42, Name: "Prednisone"}).Run(c); err == nil {
		t.Fatal("second delete should report not found")
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	t.Parallel()
	c, _ := newTestContext(t)
	if err := (&AddCmd{Owner: 1, Name: "A", Start: "2024-13-01", Phases: []string{"1:x@08:00"}}).Run(c); err == nil {
		t.Fatal("bad start date accepted")
	}
	if err := (&AddCmd{Owner: 1, Name: " ", Phases: []string{"1:x@08:00"}}).Run(c); err == nil {
		t.Fatal("blank name accepted")
	}
	if err := (&AddCmd{Owner: 1, Name: "A", Phases: []string{"1:x"}}).Run(c); err == nil {
		t.Fatal("phase without time accepted")
	}
	for _, owner := range []int64{0, -3} {
		if err := (&AddCmd{Owner: owner, Name: "A", Phases: []string{"1:x@08:00"}}).Run(c); !errors.Is(err, dose.ErrInvalidOwner) {
			t.Fatalf("owner %d accepted: %v", owner, err)
		}
	}
}

func TestSchedulesOwnerFilter(t *testing.T) {
	t.Parallel()
	c, out := newTestContext(t)
	for _, a := range []*AddCmd{
		{Owner: 1, Name: "Iron", Phases: []string{"ongoing:1@08:00"}},
		{Owner: 2, Name: "Zinc", Phases: []string{"ongoing:1@09:00"}},
	} {
		if err := a.Run(c); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	out.Reset()
	if err := (&SchedulesCmd{Owner: 2}).Run(c); err != nil {
		t.Fatalf("schedules: %v", err)
	}
	if strings.Contains(out.String(), "Iron") || !strings.Contains(out.String(), "Zinc") {
		t.Fatalf("owner 2 listing:\n%s", out.String())
	}
	out.Reset()
	if err := (&SchedulesCmd{}).Run(c); err != nil {
		t.Fatalf("schedules all: %v", err)
	}
	if !strings.Contains(out.String(), "Iron") || !strings.Contains(out.String(), "Zinc") {
		t.Fatalf("full listing:\n%s", out.String())
	}
	if err := (&SchedulesCmd{Owner: -1}).Run(c); !errors.Is(err, dose.ErrInvalidOwner) {
		t.Fatalf("negative owner: %v", err)
	}
}

func TestPendingAndLog(t *testing.T) {
	t.Parallel()
	c, out := newTestContext(t)
	if err := (&AddCmd{Owner: 9, Name: "Vitamin D", Start: "2024-03-01", Phases: []string{"ongoing:1 cap@09:00"}}).Run(c); err != nil {
		t.Fatalf("add: %v", err)
	}

	out.Reset()
	if err := (&PendingCmd{Owner: 9, At: "2024-03-05 10:00"}).Run(c); err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !strings.Contains(out.String(), "Vitamin D") || !strings.Contains(out.String(), "pending") {
		t.Fatalf("pending output: %q", out.String())
	}

	out.Reset()
	if err := (&LogCmd{Owner: 9, Name: "Vitamin D", Time: "09:00"}).Run(c); err != nil {
		t.Fatalf("log: %v", err)
	}
	if !strings.Contains(out.String(), "logged Vitamin D at 09:00 on 2024-03-05") {
		t.Fatalf("log output: %q", out.String())
	}
	out.Reset()
	if err := (&LogCmd{Owner: 9, Name: "Vitamin D", Time: "09:00"}).Run(c); err != nil {
		t.Fatalf("repeat log: %v", err)
	}
	if !strings.Contains(out.String(), "already logged") {
		t.Fatalf("repeat log output: %q", out.String())
	}

	out.Reset()
	if err := (&PendingCmd{Owner: 9, At: "2024-03-05 10:00"}).Run(c); err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !strings.Contains(out.String(), "Nothing due") {
		t.Fatalf("taken dose still pending: %q", out.String())
	}
	out.Reset()
	if err := (&PendingCmd{Owner: 9, At: "2024-03-05 10:00", All: true}).Run(c); err != nil {
		t.Fatalf("pending --all: %v", err)
	}
	if !strings.Contains(out.String(), "taken") {
		t.Fatalf("pending --all output: %q", out.String())
	}
}

func TestTickDryRun(t *testing.T) {
	t.Parallel()
	c, out := newTestContext(t)
	if err := (&AddCmd{Owner: 3, Name: "Iron", Start: "2024-03-01", Phases: []string{"ongoing:1 tab@08:00"}}).Run(c); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := (&AddCmd{Owner: 4, Name: "Zinc", Start: "2024-03-01", Phases: []string{"ongoing:1 tab@20:00"}}).Run(c); err != nil {
		t.Fatalf("add: %v", err)
	}

	out.Reset()
	if err := (&TickCmd{At: "2024-03-05 08:00"}).Run(c); err != nil {
		t.Fatalf("tick: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "owner 3: Iron (1 tab) at 08:00") || strings.Contains(s, "Zinc") {
		t.Fatalf("tick output: %q", s)
	}
	if !strings.Contains(s, "2 schedule(s), 1 reminder(s)") {
		t.Fatalf("tick summary: %q", s)
	}
}

func TestTokenCmd(t *testing.T) {
	t.Parallel()
	c, out := newTestContext(t)
	if err := (&TokenCmd{Owner: 5}).Run(c); err == nil {
		t.Fatal("token without secret should fail")
	}
	c.Cfg.HTTPAPI.JWTSecret = "s3cret"
	if err := (&TokenCmd{Owner: 5, TTL: "1h"}).Run(c); err != nil {
		t.Fatalf("token: %v", err)
	}
	tok := strings.TrimSpace(out.String())
	if strings.Count(tok, ".") != 2 {
		t.Fatalf("not a JWT: %q", tok)
	}
	if err := (&TokenCmd{Owner: 5, TTL: "soon"}).Run(c); err == nil {
		t.Fatal("bad ttl accepted")
	}
	if err := (&TokenCmd{Owner: 0}).Run(c); !errors.Is(err, dose.ErrInvalidOwner) {
		t.Fatalf("token for owner 0: %v", err)
	}
}

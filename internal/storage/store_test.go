package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pillbot/internal/dose"
	logx "pillbot/pkg/logx"
)

type opener func(t *testing.T, dir string) Store

func drivers(t *testing.T) map[string]opener {
	t.Helper()
	m := map[string]opener{
		"sqlite": func(t *testing.T, dir string) Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "pill.db"), BusyTimeout: time.Second}, logx.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return st
		},
		"file": func(t *testing.T, dir string) Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "pill.json")}, logx.Nop())
			if err != nil {
				t.Fatalf("open file: %v", err)
			}
			return st
		},
	}
	if dsn := os.Getenv("PILLBOT_TEST_POSTGRES_DSN"); dsn != "" {
		m["postgres"] = func(t *testing.T, _ string) Store {
			st, err := Open(Config{Driver: "postgres", DSN: dsn}, logx.Nop())
			if err != nil {
				t.Fatalf("open postgres: %v", err)
			}
			return st
		}
	}
	return m
}

func sample(owner int64, name string) dose.Schedule {
	return dose.Schedule{OwnerID: owner, Name: name, Start: dose.Date{Year: 2024, Month: 1, Day: 1}, Phases: []dose.Phase{
		{Days: 3, Dose: "A", Time: dose.TimeOfDay{Hour: 8}},
		{Days: dose.OpenEnded, Dose: "B", Time: dose.TimeOfDay{Hour: 8}},
	}}
}

func TestStoreContract(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st := open(t, t.TempDir())
			defer st.Close()
			ctx := context.Background()
			// unique owners keep a shared postgres database usable across runs
			base := time.Now().UnixNano() % 1_000_000_000

			owner, other := base+1, base+2
			for _, s := range []dose.Schedule{sample(owner, "Amoxicillin"), sample(owner, "Vitamin D"), sample(other, "Iron")} {
				if err := st.InsertSchedule(ctx, s); err != nil {
					t.Fatalf("InsertSchedule: %v", err)
				}
			}
			if err := st.InsertSchedule(ctx, dose.Schedule{OwnerID: owner}); !errors.Is(err, dose.ErrMalformedSchedule) {
				t.Fatalf("invalid schedule: expected ErrMalformedSchedule, got %v", err)
			}
			if err := st.InsertSchedule(ctx, sample(owner, "Vitamin D")); !errors.Is(err, dose.ErrScheduleExists) || dose.IsOperational(err) {
				t.Fatalf("duplicate name: expected ErrScheduleExists, got %v", err)
			}
			if err := st.InsertSchedule(ctx, sample(other, "Amoxicillin")); err != nil {
				t.Fatalf("same name, other owner: %v", err)
			}

			rows, err := st.ListSchedules(ctx, owner)
			if err != nil || len(rows) != 2 {
				t.Fatalf("ListSchedules(owner)=%d,%v", len(rows), err)
			}
			if rows[0].Name != "Amoxicillin" || rows[0].ID == 0 || rows[0].ID >= rows[1].ID {
				t.Fatalf("rows not in insertion order: %+v", rows)
			}
			got, err := rows[0].Decode()
			if err != nil || len(got.Phases) != 2 || got.Phases[1].Days != dose.OpenEnded {
				t.Fatalf("decode stored row: %+v %v", got, err)
			}

			n, err := st.DeleteSchedule(ctx, owner, "Vitamin D")
			if err != nil || n != 1 {
				t.Fatalf("DeleteSchedule=%d,%v", n, err)
			}
			if n, _ := st.DeleteSchedule(ctx, owner, "Iron"); n != 0 {
				t.Fatalf("deleted another owner's schedule")
			}
			if err := st.InsertSchedule(ctx, sample(owner, "Vitamin D")); err != nil {
				t.Fatalf("re-add after delete: %v", err)
			}

			slot := dose.Slot{OwnerID: owner, Name: "Amoxicillin", Date: dose.Date{Year: 2024, Month: 1, Day: 2}, Time: dose.TimeOfDay{Hour: 8}}
			if err := st.InsertTaken(ctx, dose.TakenRecord{Slot: slot, LoggedAt: time.Now()}); err != nil {
				t.Fatalf("InsertTaken: %v", err)
			}
			if err := st.InsertTaken(ctx, dose.TakenRecord{Slot: slot, LoggedAt: time.Now()}); !errors.Is(err, dose.ErrAlreadyLogged) {
				t.Fatalf("duplicate InsertTaken: expected ErrAlreadyLogged, got %v", err)
			}
			taken, err := st.ListTaken(ctx, owner, slot.Date)
			if err != nil || len(taken) != 1 || !taken.Has("Amoxicillin", slot.Time) {
				t.Fatalf("ListTaken=%v,%v", taken, err)
			}
			if taken, _ := st.ListTaken(ctx, other, slot.Date); len(taken) != 0 {
				t.Fatalf("ledger leaked across owners: %v", taken)
			}

			key := "dedup-" + slot.Key()
			until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			if err := st.PutDedup(ctx, key, until); err != nil {
				t.Fatalf("PutDedup: %v", err)
			}
			u, ok, err := st.GetDedup(ctx, key)
			if err != nil || !ok || !u.Equal(until) {
				t.Fatalf("GetDedup=%v,%v,%v", u, ok, err)
			}
			if _, ok, _ := st.GetDedup(ctx, "missing"); ok {
				t.Fatalf("missing dedup key reported present")
			}
		})
	}
}

func TestStoreConcurrentInsertTaken(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st := open(t, t.TempDir())
			defer st.Close()

			slot := dose.Slot{OwnerID: time.Now().UnixNano()%1_000_000_000 + 7, Name: "Metformin", Date: dose.Date{Year: 2024, Month: 5, Day: 1}, Time: dose.TimeOfDay{Hour: 19, Minute: 30}}
			var wins, dups atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := st.InsertTaken(context.Background(), dose.TakenRecord{Slot: slot, LoggedAt: time.Now()})
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, dose.ErrAlreadyLogged):
						dups.Add(1)
					default:
						t.Errorf("InsertTaken: %v", err)
					}
				}()
			}
			wg.Wait()
			if wins.Load() != 1 || dups.Load() != 15 {
				t.Fatalf("wins=%d dups=%d", wins.Load(), dups.Load())
			}
		})
	}
}

func TestFileStoreSurvivesReopenAndCompaction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "pill.json")
	raw, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	fs := raw.(*fileStore)
	fs.compactEvery = 3
	ctx := context.Background()

	for _, n := range []string{"a", "b", "c", "d"} {
		if err := fs.InsertSchedule(ctx, sample(1, n)); err != nil {
			t.Fatalf("InsertSchedule %s: %v", n, err)
		}
	}
	if _, err := fs.DeleteSchedule(ctx, 1, "b"); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	slot := dose.Slot{OwnerID: 1, Name: "a", Date: dose.Date{Year: 2024, Month: 1, Day: 1}, Time: dose.TimeOfDay{Hour: 8}}
	if err := fs.InsertTaken(ctx, dose.TakenRecord{Slot: slot}); err != nil {
		t.Fatalf("InsertTaken: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pill.snapshot.json")); err != nil {
		t.Fatalf("expected snapshot after compaction: %v", err)
	}

	re, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer re.Close()
	rows, _ := re.ListSchedules(ctx, 1)
	if len(rows) != 3 || rows[0].Name != "a" || rows[1].Name != "c" || rows[2].Name != "d" {
		t.Fatalf("rows after reopen: %+v", rows)
	}
	if err := re.InsertTaken(ctx, dose.TakenRecord{Slot: slot}); !errors.Is(err, dose.ErrAlreadyLogged) {
		t.Fatalf("ledger lost across reopen: %v", err)
	}
	if err := re.InsertSchedule(ctx, sample(1, "e")); err != nil {
		t.Fatalf("InsertSchedule after reopen: %v", err)
	}
	rows, _ = re.ListSchedules(ctx, 1)
	if rows[len(rows)-1].ID <= rows[len(rows)-2].ID {
		t.Fatalf("ids not monotonic after reopen: %+v", rows)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if st, err := Open(Config{Driver: "none"}, logx.Nop()); err == nil || st != nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("driver none: store=%v err=%v", st, err)
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for postgres without dsn")
	}
}

func TestHasPassword(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"postgres://bot:secret@db/pill":        true,
		"postgres://bot@db/pill":               false,
		"host=db user=bot password=x dbname=p": true,
		"host=db user=bot dbname=p":            false,
	}
	for dsn, want := range cases {
		if got := hasPassword(dsn); got != want {
			t.Fatalf("hasPassword(%q)=%v want %v", dsn, got, want)
		}
	}
}

package dose

import (
	"testing"
	"time"
)

func twoPhase(t *testing.T) Schedule {
	return Schedule{OwnerID: 1, Name: "course", Start: mustDate(t, "2024-01-01"), Phases: []Phase{
		{Days: 3, Dose: "A", Time: mustTime(t, "08:00")},
		{Days: OpenEnded, Dose: "B", Time: mustTime(t, "08:00")},
	}}
}

func at(t *testing.T, day, hhmm string) time.Time {
	t.Helper()
	v, err := time.ParseInLocation("2006-01-02 15:04", day+" "+hhmm, time.UTC)
	if err != nil {
		t.Fatalf("parse instant: %v", err)
	}
	return v
}

func TestResolveTwoPhaseCourse(t *testing.T) {
	t.Parallel()

	s := twoPhase(t)
	cases := []struct {
		day       string
		wantDose  string
		wantFound bool
		wantOff   int
	}{
		{"2023-12-31", "", false, 0},
		{"2024-01-01", "A", true, 0},
		{"2024-01-02", "A", true, 0},
		{"2024-01-03", "A", true, 0},
		{"2024-01-04", "B", true, 3},
		{"2024-01-05", "B", true, 3},
		{"2024-06-01", "B", true, 3},
		{"2060-06-01", "B", true, 3},
	}
	for _, tc := range cases {
		res, ok := Resolve(s, at(t, tc.day, "23:59"))
		if ok != tc.wantFound {
			t.Fatalf("%s: found=%v want %v", tc.day, ok, tc.wantFound)
		}
		if !ok {
			continue
		}
		if res.Phase.Dose != tc.wantDose || res.Offset != tc.wantOff {
			t.Fatalf("%s: got dose=%s offset=%d want %s/%d", tc.day, res.Phase.Dose, res.Offset, tc.wantDose, tc.wantOff)
		}
	}
}

func TestResolveFiniteScheduleEnds(t *testing.T) {
	t.Parallel()

	s := Schedule{Name: "taper", Start: mustDate(t, "2024-03-01"), Phases: []Phase{
		{Days: 2, Dose: "20mg", Time: mustTime(t, "09:00")},
		{Days: 2, Dose: "10mg", Time: mustTime(t, "09:00")},
	}}
	if r, ok := ResolveOn(s, mustDate(t, "2024-03-04")); !ok || r.Index != 1 || r.Offset != 2 {
		t.Fatalf("last day: got %+v,%v", r, ok)
	}
	if _, ok := ResolveOn(s, mustDate(t, "2024-03-05")); ok {
		t.Fatalf("expected no active phase after the last finite phase")
	}
}

func TestResolveTruncatesToCalendarDay(t *testing.T) {
	t.Parallel()

	s := twoPhase(t)
	// 00:00 and 23:59 of the same day resolve identically.
	a, _ := Resolve(s, at(t, "2024-01-03", "00:00"))
	b, _ := Resolve(s, at(t, "2024-01-03", "23:59"))
	if a != b || a.Phase.Dose != "A" {
		t.Fatalf("same day resolved differently: %+v vs %+v", a, b)
	}
}

func TestResolveIsPure(t *testing.T) {
	t.Parallel()

	s := twoPhase(t)
	when := at(t, "2024-01-04", "08:00")
	first, ok1 := Resolve(s, when)
	for i := 0; i < 10; i++ {
		got, ok := Resolve(s, when)
		if got != first || ok != ok1 {
			t.Fatalf("call %d differs: %+v,%v vs %+v,%v", i, got, ok, first, ok1)
		}
	}
}

func TestResolveAtMostOnePhaseForContiguousWindows(t *testing.T) {
	t.Parallel()

	s := Schedule{Name: "p", Start: mustDate(t, "2024-01-01"), Phases: []Phase{
		{Days: 1, Dose: "a", Time: TimeOfDay{8, 0}},
		{Days: 5, Dose: "b", Time: TimeOfDay{9, 0}},
		{Days: 2, Dose: "c", Time: TimeOfDay{10, 0}},
	}}
	for d := 0; d < 10; d++ {
		day := s.Start.AddDays(d)
		matches := 0
		cum := 0
		for _, p := range s.Phases {
			if d >= cum && d < cum+p.Days {
				matches++
			}
			cum += p.Days
		}
		r, ok := ResolveOn(s, day)
		if matches > 1 {
			t.Fatalf("day %d: windows overlap", d)
		}
		if ok != (matches == 1) {
			t.Fatalf("day %d: resolve found=%v, windows matched=%d", d, ok, matches)
		}
		if ok && (d < r.Offset || d >= r.Offset+r.Phase.Days) {
			t.Fatalf("day %d: resolved window [%d,%d) does not contain it", d, r.Offset, r.Offset+r.Phase.Days)
		}
	}
}

func TestResolveFirstMatchWinsAfterOngoingPhase(t *testing.T) {
	t.Parallel()

	s := Schedule{Name: "odd", Start: mustDate(t, "2024-01-01"), Phases: []Phase{
		{Days: OpenEnded, Dose: "forever", Time: TimeOfDay{7, 0}},
		{Days: 3, Dose: "unreachable", Time: TimeOfDay{7, 0}},
	}}
	r, ok := ResolveOn(s, mustDate(t, "2050-01-01"))
	if !ok || r.Index != 0 {
		t.Fatalf("expected phase 0, got %+v,%v", r, ok)
	}
}

package dose

import (
	"errors"
	"testing"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func mustTime(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q): %v", s, err)
	}
	return tod
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "08:00", want: "08:00"},
		{in: "8:05", want: "08:05"},
		{in: " 23:59 ", want: "23:59"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:5", wantErr: true},
		{in: "12:0x", wantErr: true},
		{in: "1200", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseTimeOfDay(%q) expected error, got %s", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParseTimeOfDay(%q)=%s want %s", tc.in, got, tc.want)
		}
	}
}

func TestDaysSince(t *testing.T) {
	t.Parallel()

	cases := []struct {
		start, day string
		want       int
	}{
		{"2024-01-01", "2024-01-01", 0},
		{"2024-01-01", "2024-01-05", 4},
		{"2024-02-28", "2024-03-01", 2}, // leap year
		{"2023-12-31", "2024-01-01", 1},
		{"2024-01-05", "2024-01-01", -4},
		{"0001-01-01", "2024-01-01", 738885},
		{"2024-01-01", "0001-01-01", -738885},
		{"0001-01-01", "9999-12-31", 3652058},
	}
	for _, tc := range cases {
		if got := mustDate(t, tc.day).DaysSince(mustDate(t, tc.start)); got != tc.want {
			t.Fatalf("%s since %s = %d want %d", tc.day, tc.start, got, tc.want)
		}
	}
}

func TestScheduleValidate(t *testing.T) {
	t.Parallel()

	ok := Schedule{OwnerID: 1, Name: "Vitamin D", Start: Date{2024, 1, 1}, Phases: []Phase{{Days: 3, Dose: "1 pill", Time: TimeOfDay{8, 0}}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid schedule: %v", err)
	}

	bad := []Schedule{
		{Name: " ", Start: ok.Start, Phases: ok.Phases},
		{Name: "x", Phases: ok.Phases},
		{Name: "x", Start: ok.Start},
		{Name: "x", Start: ok.Start, Phases: []Phase{{Days: 0, Time: TimeOfDay{8, 0}}}},
		{Name: "x", Start: ok.Start, Phases: []Phase{{Days: 1, Time: TimeOfDay{25, 0}}}},
	}
	for i, s := range bad {
		if err := s.Validate(); !errors.Is(err, ErrMalformedSchedule) {
			t.Fatalf("case %d: expected ErrMalformedSchedule, got %v", i, err)
		}
	}
}

func TestStoredScheduleRoundTripAndMalformed(t *testing.T) {
	t.Parallel()

	s := Schedule{OwnerID: 7, Name: "Amoxicillin", Start: mustDate(t, "2024-01-01"), Phases: []Phase{
		{Days: 3, Dose: "A", Time: mustTime(t, "08:00")},
		{Days: OpenEnded, Dose: "B", Time: mustTime(t, "20:30")},
	}}
	row, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `[{"duration_days":3,"dosage":"A","time":"08:00"},{"duration_days":9999,"dosage":"B","time":"20:30"}]`
	if row.PhasesJSON != want {
		t.Fatalf("PhasesJSON=%s want %s", row.PhasesJSON, want)
	}
	got, err := row.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Name != s.Name || got.Start != s.Start || len(got.Phases) != 2 || got.Phases[1] != s.Phases[1] {
		t.Fatalf("decoded %+v", got)
	}

	for _, r := range []StoredSchedule{
		{Name: "a", StartDate: "2024-13-01", PhasesJSON: want},
		{Name: "b", StartDate: "2024-01-01", PhasesJSON: "{"},
		{Name: "c", StartDate: "2024-01-01", PhasesJSON: `[{"duration_days":1,"dosage":"x","time":"8am"}]`},
		{Name: "d", StartDate: "2024-01-01", PhasesJSON: `[]`},
	} {
		if _, err := r.Decode(); !errors.Is(err, ErrMalformedSchedule) {
			t.Fatalf("row %s: expected ErrMalformedSchedule, got %v", r.Name, err)
		}
	}
}

func TestSlotKeyDistinguishesNames(t *testing.T) {
	t.Parallel()

	d := Date{2024, 1, 1}
	a := Slot{OwnerID: 1, Name: "a/08:00", Date: d, Time: TimeOfDay{8, 0}}
	b := Slot{OwnerID: 1, Name: "a", Date: d, Time: TimeOfDay{8, 0}}
	if a.Key() == b.Key() {
		t.Fatalf("distinct slots share key %s", a.Key())
	}
	if a.Key() != (Slot{OwnerID: 1, Name: "a/08:00", Date: d, Time: TimeOfDay{8, 0}}).Key() {
		t.Fatalf("equal slots produced different keys")
	}
}

func TestCompactSlotRoundTrip(t *testing.T) {
	t.Parallel()

	s := Slot{OwnerID: 9, Name: "Vitamin D|x", Date: Date{2024, 3, 3}, Time: TimeOfDay{7, 5}}
	if got := s.Compact(); got != "20240303|0705|Vitamin D|x" {
		t.Fatalf("Compact=%q", got)
	}
	back, err := ParseCompactSlot(9, s.Compact())
	if err != nil || back != s {
		t.Fatalf("ParseCompactSlot=%+v err=%v", back, err)
	}
	for _, bad := range []string{"", "20240303|0705|", "2024033|0705|a", "20241303|0705|a", "20240303|2505|a"} {
		if _, err := ParseCompactSlot(9, bad); err == nil {
			t.Fatalf("ParseCompactSlot(%q) accepted", bad)
		}
	}
}

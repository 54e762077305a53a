package clock

import (
	"testing"
	"time"
)

func TestFixedAndFunc(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	if got := Fixed(at).Now(); !got.Equal(at) {
		t.Fatalf("Fixed.Now=%v want %v", got, at)
	}
	calls := 0
	f := Func(func() time.Time { calls++; return at.Add(time.Duration(calls) * time.Minute) })
	if got := f.Now(); !got.Equal(at.Add(time.Minute)) {
		t.Fatalf("Func.Now=%v", got)
	}
}

func TestRealUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("X", 3*3600)
	if got := Real(loc).Now().Location(); got != loc {
		t.Fatalf("location=%v want %v", got, loc)
	}
	if l, err := LoadLocation(""); err != nil || l != time.Local {
		t.Fatalf("LoadLocation(\"\")=%v,%v", l, err)
	}
	if _, err := LoadLocation("Not/AZone"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

// Package clock lets components read wall-clock time through an injectable
// source. Reminder matching and pending lists depend on the local calendar
// day, so tests pin time with Fixed.
package clock

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{ loc *time.Location }

func (c realClock) Now() time.Time {
	if c.loc == nil {
		return time.Now()
	}
	return time.Now().In(c.loc)
}

// Real returns the system clock, reported in loc (nil keeps time.Local).
func Real(loc *time.Location) Clock { return realClock{loc: loc} }

// Fixed always returns t.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Func adapts a function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// LoadLocation resolves an IANA zone name; empty means the process local zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

var (
	_ Clock = realClock{}
	_ Clock = Fixed{}
	_ Clock = Func(nil)
)

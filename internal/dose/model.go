package dose

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OpenEnded is the duration sentinel for a phase that never ends.
const OpenEnded = 9999

const dateLayout = "2006-01-02"

// Date is a calendar day without a time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) utc() time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC) }

func (d Date) Before(o Date) bool { return d.utc().Before(o.utc()) }

func (d Date) AddDays(n int) Date { return DateOf(d.utc().AddDate(0, 0, n)) }

// DaysSince counts whole calendar days from start to d. Negative when d is
// before start.
func (d Date) DaysSince(start Date) int {
	return int((d.utc().Unix() - start.utc().Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// TimeOfDay is a wall-clock time with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses HH:MM (24h). A single-digit hour is accepted.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || !digits(hs, 1, 2) || !digits(ms, 2, 2) {
		return TimeOfDay{}, fmt.Errorf("parse time %q: want HH:MM", s)
	}
	h, _ := strconv.Atoi(hs)
	m, _ := strconv.Atoi(ms)
	tod := TimeOfDay{Hour: h, Minute: m}
	if !tod.Valid() {
		return TimeOfDay{}, fmt.Errorf("parse time %q: out of range", s)
	}
	return tod, nil
}

func digits(s string, minN, maxN int) bool {
	if len(s) < minN || len(s) > maxN {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// TimeOfDayOf truncates t to its minute in t's own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// Phase is one contiguous span of a schedule.
type Phase struct {
	Days int
	Dose string
	Time TimeOfDay
}

// Ongoing reports whether the phase never ends.
func (p Phase) Ongoing() bool { return p.Days >= OpenEnded }

// Schedule is a named multi-phase plan anchored at Start. Phase order is
// significant: phases are consumed back to back from Start.
type Schedule struct {
	OwnerID int64
	Name    string
	Start   Date
	Phases  []Phase
}

// Validate checks the invariants a schedule must satisfy before it is stored.
func (s Schedule) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return malformed("empty name")
	}
	if s.Start.IsZero() {
		return malformed("%q: missing start date", s.Name)
	}
	if len(s.Phases) == 0 {
		return malformed("%q: no phases", s.Name)
	}
	for i, p := range s.Phases {
		if p.Days <= 0 {
			return malformed("%q phase %d: duration must be positive, got %d", s.Name, i+1, p.Days)
		}
		if !p.Time.Valid() {
			return malformed("%q phase %d: invalid time %s", s.Name, i+1, p.Time)
		}
	}
	return nil
}

package dose

import (
	"fmt"
	"strings"
	"time"
)

// Slot identifies one occurrence requiring acknowledgement: this owner's
// named item, on this calendar day, at this time of day. Slot is comparable
// and usable as a map key directly.
type Slot struct {
	OwnerID int64
	Name    string
	Date    Date
	Time    TimeOfDay
}

// Key renders the slot as a string. The name goes last and quoted so distinct
// slots never collide.
func (s Slot) Key() string {
	return fmt.Sprintf("%d/%s/%s/%q", s.OwnerID, s.Date, s.Time, s.Name)
}

// Compact renders the owner-less part of the slot as "YYYYMMDD|HHMM|name",
// short enough for chat button payloads.
func (s Slot) Compact() string {
	return fmt.Sprintf("%04d%02d%02d|%02d%02d|%s", s.Date.Year, int(s.Date.Month), s.Date.Day, s.Time.Hour, s.Time.Minute, s.Name)
}

// ParseCompactSlot reverses Compact for owner.
func ParseCompactSlot(owner int64, v string) (Slot, error) {
	day, rest, ok1 := strings.Cut(v, "|")
	hm, name, ok2 := strings.Cut(rest, "|")
	if !ok1 || !ok2 || len(day) != 8 || len(hm) != 4 || name == "" {
		return Slot{}, fmt.Errorf("compact slot %q: %w", v, ErrMalformedSchedule)
	}
	d, err := ParseDate(day[:4] + "-" + day[4:6] + "-" + day[6:])
	if err != nil {
		return Slot{}, fmt.Errorf("compact slot %q: %w", v, err)
	}
	tod, err := ParseTimeOfDay(hm[:2] + ":" + hm[2:])
	if err != nil {
		return Slot{}, fmt.Errorf("compact slot %q: %w", v, err)
	}
	return Slot{OwnerID: owner, Name: name, Date: d, Time: tod}, nil
}

// TakenKey is the per-day part of a slot, as returned by Store.ListTaken.
type TakenKey struct {
	Name string
	Time TimeOfDay
}

// TakenSet holds the slots logged for one owner on one day.
type TakenSet map[TakenKey]struct{}

func (t TakenSet) Has(name string, tod TimeOfDay) bool {
	_, ok := t[TakenKey{Name: name, Time: tod}]
	return ok
}

// TakenRecord is one ledger entry.
type TakenRecord struct {
	Slot     Slot
	LoggedAt time.Time
}

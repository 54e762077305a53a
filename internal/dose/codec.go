package dose

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WirePhase is the persisted and parser-facing shape of a phase.
type WirePhase struct {
	DurationDays int    `json:"duration_days"`
	Dosage       string `json:"dosage"`
	Time         string `json:"time"`
}

// WireSchedule is the shape produced by the schedule parser.
type WireSchedule struct {
	Name      string      `json:"name"`
	StartDate string      `json:"start_date"`
	Schedule  []WirePhase `json:"schedule"`
}

// StoredSchedule is a schedule row as persisted. PhasesJSON is kept raw so a
// corrupt row surfaces as ErrMalformedSchedule at decode time instead of
// failing the whole listing.
type StoredSchedule struct {
	ID         int64  `db:"id" json:"id"`
	OwnerID    int64  `db:"user_id" json:"user_id"`
	Name       string `db:"name" json:"name"`
	StartDate  string `db:"start_date" json:"start_date"`
	PhasesJSON string `db:"schedule_json" json:"schedule_json"`
}

// Decode turns a row into a validated Schedule.
func (r StoredSchedule) Decode() (Schedule, error) {
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return Schedule{}, malformed("%q: %v", r.Name, err)
	}
	var wire []WirePhase
	if err := json.Unmarshal([]byte(r.PhasesJSON), &wire); err != nil {
		return Schedule{}, malformed("%q: phases: %v", r.Name, err)
	}
	phases, err := PhasesFromWire(wire)
	if err != nil {
		return Schedule{}, malformed("%q: %v", r.Name, err)
	}
	s := Schedule{OwnerID: r.OwnerID, Name: r.Name, Start: start, Phases: phases}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// Encode produces the persisted row for s. The ID is assigned by the store.
func Encode(s Schedule) (StoredSchedule, error) {
	if err := s.Validate(); err != nil {
		return StoredSchedule{}, err
	}
	b, err := json.Marshal(PhasesToWire(s.Phases))
	if err != nil {
		return StoredSchedule{}, fmt.Errorf("encode phases: %w", err)
	}
	return StoredSchedule{
		OwnerID:    s.OwnerID,
		Name:       strings.TrimSpace(s.Name),
		StartDate:  s.Start.String(),
		PhasesJSON: string(b),
	}, nil
}

func PhasesFromWire(in []WirePhase) ([]Phase, error) {
	out := make([]Phase, 0, len(in))
	for i, w := range in {
		tod, err := ParseTimeOfDay(w.Time)
		if err != nil {
			return nil, fmt.Errorf("phase %d: %w", i+1, err)
		}
		out = append(out, Phase{Days: w.DurationDays, Dose: strings.TrimSpace(w.Dosage), Time: tod})
	}
	return out, nil
}

func PhasesToWire(in []Phase) []WirePhase {
	out := make([]WirePhase, 0, len(in))
	for _, p := range in {
		out = append(out, WirePhase{DurationDays: p.Days, Dosage: p.Dose, Time: p.Time.String()})
	}
	return out
}

// FromWire converts a parsed schedule for owner, validating it.
func FromWire(owner int64, w WireSchedule) (Schedule, error) {
	start, err := ParseDate(w.StartDate)
	if err != nil {
		return Schedule{}, malformed("%q: %v", w.Name, err)
	}
	phases, err := PhasesFromWire(w.Schedule)
	if err != nil {
		return Schedule{}, malformed("%q: %v", w.Name, err)
	}
	s := Schedule{OwnerID: owner, Name: strings.TrimSpace(w.Name), Start: start, Phases: phases}
	return s, s.Validate()
}

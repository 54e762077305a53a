package ctl

import (
	"fmt"
	"strconv"
	"strings"

	"pillbot/internal/dose"
)

// ParsePhase reads one --phase flag: "DAYS:DOSE@HH:MM". DAYS may be
// "ongoing" for an open-ended phase. The dose may itself contain ':'.
func ParsePhase(raw string) (dose.Phase, error) {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return dose.Phase{}, fmt.Errorf("phase %q: missing @HH:MM", raw)
	}
	head, clock := raw[:at], strings.TrimSpace(raw[at+1:])
	colon := strings.Index(head, ":")
	if colon < 0 {
		return dose.Phase{}, fmt.Errorf("phase %q: want DAYS:DOSE@HH:MM", raw)
	}
	daysRaw, doseText := strings.TrimSpace(head[:colon]), strings.TrimSpace(head[colon+1:])

	var days int
	switch strings.ToLower(daysRaw) {
	case "ongoing", "*":
		days = dose.OpenEnded
	default:
		n, err := strconv.Atoi(daysRaw)
		if err != nil || n <= 0 {
			return dose.Phase{}, fmt.Errorf("phase %q: days must be a positive number or \"ongoing\"", raw)
		}
		days = n
	}
	if doseText == "" {
		return dose.Phase{}, fmt.Errorf("phase %q: empty dose", raw)
	}
	tod, err := dose.ParseTimeOfDay(clock)
	if err != nil {
		return dose.Phase{}, fmt.Errorf("phase %q: %w", raw, err)
	}
	return dose.Phase{Days: days, Dose: doseText, Time: tod}, nil
}

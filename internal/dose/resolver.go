package dose

import "time"

// Resolution is the active phase of a schedule at some instant.
type Resolution struct {
	Phase  Phase
	Index  int // position in Schedule.Phases
	Offset int // cumulative day offset at which the phase starts
}

// Resolve returns the phase active at asOf, judged by asOf's calendar day in
// its own location. It reports false before the start date and after the
// last finite phase.
func Resolve(s Schedule, asOf time.Time) (Resolution, bool) {
	return ResolveOn(s, DateOf(asOf))
}

// ResolveOn is Resolve for a calendar day.
func ResolveOn(s Schedule, day Date) (Resolution, bool) {
	elapsed := day.DaysSince(s.Start)
	if elapsed < 0 {
		return Resolution{}, false
	}
	w := foldPhases(s.Phases, window{}, func(w window, i int, p Phase) (window, bool) {
		if elapsed >= w.cum && (p.Ongoing() || elapsed < w.cum+p.Days) {
			w.hit = Resolution{Phase: p, Index: i, Offset: w.cum}
			w.found = true
			return w, true
		}
		w.cum += max(p.Days, 0)
		return w, false
	})
	return w.hit, w.found
}

// window is the fold state: days consumed so far and the match, if any.
type window struct {
	cum   int
	found bool
	hit   Resolution
}

// foldPhases threads acc through phases in order, stopping as soon as step
// reports done. The first matching phase therefore always wins.
func foldPhases[A any](phases []Phase, acc A, step func(A, int, Phase) (A, bool)) A {
	for i, p := range phases {
		var done bool
		if acc, done = step(acc, i, p); done {
			break
		}
	}
	return acc
}

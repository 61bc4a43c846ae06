package annotate

import "time"

// GraceWindow is how long a stale detection set stays rendered after the
// last successful inference before fading out completely.
const GraceWindow = 1500 * time.Millisecond

// Opacity returns the overlay opacity for a detection set last updated at
// lastAt. It is 1 when now == lastAt, decreases linearly, and reaches 0 at
// the end of the grace window. Applied uniformly to stroke, fill and label
// so the whole overlay fades in lockstep.
func Opacity(now, lastAt time.Time) float64 {
	elapsed := now.Sub(lastAt)
	if elapsed <= 0 {
		return 1
	}
	if elapsed >= GraceWindow {
		return 0
	}
	return 1 - float64(elapsed)/float64(GraceWindow)
}

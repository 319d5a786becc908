// Package domain contains core business types and interfaces.
//
// This file defines the quota accounting window. Usage counters reset at a
// fixed local midnight, anchored to a constant UTC offset rather than the
// server's timezone, so every instance of the service agrees on the boundary.
package domain

import "time"

// DefaultResetOffset is the UTC offset used to anchor the daily reset
// boundary when none is configured.
const DefaultResetOffset = 5*time.Hour + 30*time.Minute

// Window resolves the daily accounting window for a fixed UTC offset.
// The offset is constant; it is deliberately not DST-aware.
type Window struct {
	loc *time.Location
}

// NewWindow creates a window resolver anchored at midnight in the given
// fixed UTC offset.
func NewWindow(offset time.Duration) Window {
	return Window{loc: time.FixedZone("reset", int(offset/time.Second))}
}

// Start returns the beginning of the 24h window containing now.
// Idempotent for any now within the same window.
func (w Window) Start(now time.Time) time.Time {
	local := now.In(w.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, w.loc)
}

// End returns the next reset instant: exactly 24h after Start.
func (w Window) End(now time.Time) time.Time {
	return w.Start(now).Add(24 * time.Hour)
}

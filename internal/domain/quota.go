// Package domain contains core business types and interfaces.
//
// This file defines quota types for metering chat usage against the
// account's subscription tier.
package domain

import "time"

// QuotaCounter is the per-account daily usage counter. LastReset is an
// absolute instant, not a day number: a counter whose LastReset predates
// the current window start is stale and reads as zero.
type QuotaCounter struct {
	AccountID string
	Count     int64
	LastReset time.Time
}

// Usage is the snapshot returned with every admission decision so callers
// can render remaining quota and a countdown without a second call.
type Usage struct {
	Current   int64
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	// Degraded is set when the metering store was unreachable and the
	// decision fell open. Callers may choose to warn.
	Degraded bool
}

// Admission is the result of a rate-limit check.
type Admission struct {
	Allowed bool
	Usage   Usage
}

// Stats extends Usage with tier identity for the account dashboard.
type Stats struct {
	Tier       Tier
	Used       int64
	Limit      int64
	Remaining  int64
	Percentage float64
	ResetAt    time.Time
}

// NewUsage builds a usage snapshot from a raw count and tier limit.
// Remaining is clamped at zero: counts may legitimately run past the
// limit when increments raced or a downgrade lowered the limit.
func NewUsage(current int64, limit int64, resetAt time.Time) Usage {
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Current:   current,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

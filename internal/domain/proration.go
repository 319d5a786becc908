package domain

import (
	"math"
	"time"
)

// BillingCycleDays is the length of a paid subscription period.
const BillingCycleDays = 30

// ProrationCredit computes the day-prorated credit for unused time on the
// old plan when upgrading mid-cycle. The credit is linear in remaining
// whole days, never negative, and capped at the old plan's price: a clock
// skewed expiry can never credit more than was ever paid.
func ProrationCredit(oldPrice int64, expiresAt, now time.Time) int64 {
	if oldPrice <= 0 || !expiresAt.After(now) {
		return 0
	}

	remainingDays := int64(math.Ceil(expiresAt.Sub(now).Hours() / 24))
	if remainingDays > BillingCycleDays {
		remainingDays = BillingCycleDays
	}

	dailyRate := float64(oldPrice) / BillingCycleDays
	credit := int64(math.Round(dailyRate * float64(remainingDays)))
	if credit > oldPrice {
		credit = oldPrice
	}
	return credit
}

// ProratedAmount returns the amount to charge for the new plan after
// applying the proration credit. Never negative.
func ProratedAmount(newPrice, credit int64) int64 {
	amount := newPrice - credit
	if amount < 0 {
		return 0
	}
	return amount
}

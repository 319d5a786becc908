// Package domain contains core business types and interfaces.
//
// This file defines the subscription tier catalog: the closed set of
// entitlement levels and the daily message allowance each one grants.
package domain

// Tier represents the entitlement level of an account.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierMaxx Tier = "maxx"
)

// TierLimits defines the allowance and pricing for a tier.
type TierLimits struct {
	DisplayName   string
	DailyMessages int
	// Price is the plan price in the gateway's minor currency unit
	// for a 30-day cycle. Zero for the free tier.
	Price int64
}

// tierCatalog is immutable configuration, not a database table.
// The top tier allowance is large enough to be effectively unlimited but
// stays a finite integer so comparison logic never needs a sentinel.
var tierCatalog = map[Tier]TierLimits{
	TierFree: {DisplayName: "Free", DailyMessages: 10, Price: 0},
	TierPro:  {DisplayName: "Pro", DailyMessages: 200, Price: 499},
	TierMaxx: {DisplayName: "Maxx", DailyMessages: 5000, Price: 999},
}

// GetTierLimits returns the catalog entry for a tier, defaulting to the
// free tier for unknown values.
func GetTierLimits(tier Tier) TierLimits {
	if limits, ok := tierCatalog[tier]; ok {
		return limits
	}
	return tierCatalog[TierFree]
}

// ParseTier normalizes an externally supplied tier string. Unknown values
// resolve to the free tier rather than propagating arbitrary strings.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierFree, TierPro, TierMaxx:
		return Tier(s)
	default:
		return TierFree
	}
}

// Valid reports whether the tier is a member of the catalog.
func (t Tier) Valid() bool {
	_, ok := tierCatalog[t]
	return ok
}

// IsPaid reports whether the tier carries a nonzero price.
func (t Tier) IsPaid() bool {
	return GetTierLimits(t).Price > 0
}

// DailyMessageLimit returns the daily allowance for the tier.
func (t Tier) DailyMessageLimit() int {
	return GetTierLimits(t).DailyMessages
}

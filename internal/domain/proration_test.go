package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProrationCredit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		oldPrice  int64
		expiresAt time.Time
		want      int64
	}{
		{
			name:      "ten days remaining on pro",
			oldPrice:  499,
			expiresAt: now.Add(10 * 24 * time.Hour),
			want:      166, // round(499/30 * 10)
		},
		{
			name:      "full cycle remaining credits the whole price",
			oldPrice:  499,
			expiresAt: now.Add(30 * 24 * time.Hour),
			want:      499,
		},
		{
			name:      "partial day rounds up to a whole day",
			oldPrice:  499,
			expiresAt: now.Add(36 * time.Hour),
			want:      33, // ceil(1.5) = 2 days, round(499/30*2)
		},
		{
			name:      "already expired gives no credit",
			oldPrice:  499,
			expiresAt: now.Add(-time.Hour),
			want:      0,
		},
		{
			name:      "expiry equal to now gives no credit",
			oldPrice:  499,
			expiresAt: now,
			want:      0,
		},
		{
			name:      "corrupted expiry capped at old price",
			oldPrice:  499,
			expiresAt: now.Add(90 * 24 * time.Hour),
			want:      499,
		},
		{
			name:      "zero old price",
			oldPrice:  0,
			expiresAt: now.Add(15 * 24 * time.Hour),
			want:      0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProrationCredit(tt.oldPrice, tt.expiresAt, now))
		})
	}
}

func TestProratedAmount_NeverNegative(t *testing.T) {
	assert.Equal(t, int64(833), ProratedAmount(999, 166))
	assert.Equal(t, int64(0), ProratedAmount(499, 499))
	assert.Equal(t, int64(0), ProratedAmount(499, 999))
}

// Bound check over the whole supported range: the final amount always
// stays within [0, newPrice].
func TestProration_Bounds(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	prices := []int64{0, 1, 29, 30, 499, 999, 100000}

	for _, oldPrice := range prices {
		for _, newPrice := range prices {
			for days := 0; days <= 30; days++ {
				expires := now.Add(time.Duration(days) * 24 * time.Hour)
				credit := ProrationCredit(oldPrice, expires, now)
				final := ProratedAmount(newPrice, credit)

				assert.GreaterOrEqual(t, credit, int64(0))
				assert.LessOrEqual(t, credit, oldPrice)
				assert.GreaterOrEqual(t, final, int64(0))
				assert.LessOrEqual(t, final, newPrice)
			}
		}
	}
}

func TestSubscription_EffectiveTier(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(5 * 24 * time.Hour)
	past := now.Add(-time.Minute)

	tests := []struct {
		name string
		sub  *Subscription
		want Tier
	}{
		{"nil subscription", nil, TierFree},
		{
			"active paid",
			&Subscription{Tier: TierPro, Status: SubscriptionStatusActive, ExpiresAt: &future},
			TierPro,
		},
		{
			"cancelled but unexpired keeps paid tier",
			&Subscription{Tier: TierMaxx, Status: SubscriptionStatusCancelled, ExpiresAt: &future, CancelledAt: &now},
			TierMaxx,
		},
		{
			"expired paid is free-equivalent",
			&Subscription{Tier: TierPro, Status: SubscriptionStatusActive, ExpiresAt: &past},
			TierFree,
		},
		{
			"missing expiry on paid tier is free-equivalent",
			&Subscription{Tier: TierPro, Status: SubscriptionStatusActive},
			TierFree,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.EffectiveTier(now))
		})
	}
}

// Package domain contains core business types and interfaces.
//
// This file defines the Account, Subscription and PlanAudit types that back
// entitlement decisions. These are the domain representations, decoupled
// from the store layer's row types.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the lifecycle state of a paid subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Account represents a user of the chat service. The identifier is the
// stable subject issued by the identity provider; profile fields are
// display-only and play no part in entitlement logic.
type Account struct {
	ID          string
	Email       string
	DisplayName string
	// Tier is a denormalized cache of the Subscription state. It is
	// mutated only inside the same transaction that mutates Subscription.
	Tier      Tier
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription is the at-most-one paid subscription row per account.
// A cancelled subscription keeps its tier and expiry: access persists
// through to ExpiresAt (grace-period policy).
type Subscription struct {
	AccountID   string
	Tier        Tier
	Status      SubscriptionStatus
	StartedAt   time.Time
	ExpiresAt   *time.Time // nil for the free tier
	CancelledAt *time.Time
}

// ActiveAt reports whether the subscription still grants its tier at the
// given instant. Cancellation does not revoke access before expiry; an
// expired subscription is free-equivalent without any background sweep.
func (s *Subscription) ActiveAt(now time.Time) bool {
	if s == nil || !s.Tier.IsPaid() {
		return false
	}
	return s.ExpiresAt != nil && s.ExpiresAt.After(now)
}

// EffectiveTier resolves the tier that governs admission at the given
// instant, applying the lazy-expiry rule.
func (s *Subscription) EffectiveTier(now time.Time) Tier {
	if s.ActiveAt(now) {
		return s.Tier
	}
	return TierFree
}

// PlanAction tags a PlanAudit entry with the kind of transition.
type PlanAction string

const (
	PlanActionUpgrade PlanAction = "UPGRADE"
	PlanActionRenew   PlanAction = "RENEW"
	PlanActionCancel  PlanAction = "CANCEL"
)

// PlanAudit is an append-only record of a tier transition. Rows are never
// mutated or deleted; ordering is by CreatedAt.
type PlanAudit struct {
	ID        uuid.UUID
	AccountID string
	OldTier   Tier
	NewTier   Tier
	Action    PlanAction
	CreatedAt time.Time
}

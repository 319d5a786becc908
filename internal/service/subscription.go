// Package service contains the business logic layer.
//
// This file implements the subscription service: the tier transition
// state machine (purchase, upgrade with proration, cancellation with a
// grace period) and the payment order round trip. Every transition
// commits the tier write and its audit record as one unit; store errors
// on these paths are surfaced, never swallowed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/charlahq/charla/internal/billing"
	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/metrics"
	"github.com/charlahq/charla/internal/store"
)

// =============================================================================
// Store interface
// =============================================================================

// SubscriptionStore persists subscriptions, tier transitions and payment
// orders. ApplyTierTransition must be transactional: subscription row,
// denormalized account tier, audit record and the optional payment order
// claim commit together or not at all.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, accountID string) (*domain.Subscription, error)
	ApplyTierTransition(ctx context.Context, t store.TierTransition) error
	ListPlanAudits(ctx context.Context, accountID string) ([]domain.PlanAudit, error)

	CreatePaymentOrder(ctx context.Context, order store.PaymentOrder) error
	GetPaymentOrder(ctx context.Context, orderID string) (*store.PaymentOrder, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// PaymentQuote is the result of preparing a plan purchase: the gateway
// order plus the prorated amount actually charged.
type PaymentQuote struct {
	OrderID     string
	Plan        domain.Tier
	FinalAmount int64
	Discount    int64
}

// SubscriptionService defines tier transition operations.
type SubscriptionService interface {
	// ApplyPayment validates the requested plan, folds the proration
	// credit for any unexpired paid subscription into the amount, and
	// creates a gateway order for the result. No tier mutation happens
	// here.
	ApplyPayment(ctx context.Context, accountID, planName string, amount int64) (*PaymentQuote, error)

	// VerifyAndConfirm checks the payment callback signature, then
	// claims the order and applies the tier transition as one atomic
	// unit. Returns a verification error (and mutates nothing) on
	// signature mismatch; a failed transition leaves the order claimable
	// so a retry can complete the purchase.
	VerifyAndConfirm(ctx context.Context, orderID, paymentID, signature string) (*domain.Subscription, error)

	// ConfirmSubscription applies the tier transition for a verified
	// payment: tier, status=active, expiry 30 days out, audit appended.
	ConfirmSubscription(ctx context.Context, accountID, planName string) (*domain.Subscription, error)

	// CancelSubscription marks the subscription cancelled. Access
	// persists until the stored expiry (grace-period policy) unless the
	// service was configured to revoke immediately.
	CancelSubscription(ctx context.Context, accountID string) error
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	subs    SubscriptionStore
	gateway billing.Gateway
	logger  *slog.Logger
	now     func() time.Time

	// cancelImmediate switches cancellation from grace-until-expiry to
	// revoke-now. Off by default.
	cancelImmediate bool
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(subs SubscriptionStore, gateway billing.Gateway, logger *slog.Logger, cancelImmediate bool) SubscriptionService {
	return &subscriptionService{
		subs:            subs,
		gateway:         gateway,
		logger:          logger,
		now:             time.Now,
		cancelImmediate: cancelImmediate,
	}
}

func (s *subscriptionService) ApplyPayment(ctx context.Context, accountID, planName string, amount int64) (*PaymentQuote, error) {
	const op = "subscription.apply_payment"

	if accountID == "" {
		return nil, domain.Unauthorized(op, "account identifier is required")
	}

	plan := domain.Tier(planName)
	if !plan.Valid() || !plan.IsPaid() {
		return nil, domain.Invalid(op, "unknown or unpurchasable plan: "+planName)
	}

	limits := domain.GetTierLimits(plan)
	if amount != limits.Price {
		return nil, domain.Invalid(op, "amount does not match plan price")
	}

	now := s.now()
	discount := int64(0)
	// An unexpired paid subscription makes this an upgrade/renewal:
	// credit the unused days of the old plan.
	if current, err := s.subs.GetSubscription(ctx, accountID); err == nil {
		if current.ActiveAt(now) && current.ExpiresAt != nil {
			oldPrice := domain.GetTierLimits(current.Tier).Price
			discount = domain.ProrationCredit(oldPrice, *current.ExpiresAt, now)
		}
	} else if !store.IsNotFound(err) {
		return nil, domain.Unavailable(err, op)
	}

	finalAmount := domain.ProratedAmount(limits.Price, discount)

	orderID, err := s.gateway.CreateOrder(ctx, finalAmount, billing.OrderMetadata{
		AccountID: accountID,
		Plan:      string(plan),
	})
	if err != nil {
		return nil, domain.PaymentFailed(op, "failed to create payment order")
	}

	if err := s.subs.CreatePaymentOrder(ctx, store.PaymentOrder{
		OrderID:   orderID,
		AccountID: accountID,
		Plan:      plan,
		Amount:    finalAmount,
		Status:    store.OrderStatusCreated,
	}); err != nil {
		return nil, domain.Internal(err, op, "failed to record payment order")
	}

	metrics.PaymentOrdersCreated.WithLabelValues(string(plan)).Inc()
	s.logger.Info("payment order created",
		"account_id", accountID, "plan", plan, "amount", finalAmount, "discount", discount)

	return &PaymentQuote{
		OrderID:     orderID,
		Plan:        plan,
		FinalAmount: finalAmount,
		Discount:    discount,
	}, nil
}

func (s *subscriptionService) VerifyAndConfirm(ctx context.Context, orderID, paymentID, signature string) (*domain.Subscription, error) {
	const op = "subscription.verify_payment"

	order, err := s.subs.GetPaymentOrder(ctx, orderID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NotFound(op, "payment order", orderID)
		}
		return nil, domain.Unavailable(err, op)
	}

	ok, err := s.gateway.VerifyPayment(orderID, paymentID, signature)
	if err != nil {
		return nil, domain.Internal(err, op, "payment verification errored")
	}
	if !ok {
		metrics.PaymentVerificationFailures.Inc()
		s.logger.Warn("payment verification failed",
			"order_id", orderID, "account_id", order.AccountID)
		return nil, domain.VerificationFailed(op)
	}

	// The order claim rides inside the transition transaction: a
	// transient transition failure rolls the claim back, so the retry
	// (gateway webhook or client verify) can still confirm the purchase.
	return s.confirm(ctx, order.AccountID, string(order.Plan), orderID)
}

func (s *subscriptionService) ConfirmSubscription(ctx context.Context, accountID, planName string) (*domain.Subscription, error) {
	return s.confirm(ctx, accountID, planName, "")
}

func (s *subscriptionService) confirm(ctx context.Context, accountID, planName, orderID string) (*domain.Subscription, error) {
	const op = "subscription.confirm"

	if accountID == "" {
		return nil, domain.Unauthorized(op, "account identifier is required")
	}

	plan := domain.Tier(planName)
	if !plan.Valid() || !plan.IsPaid() {
		return nil, domain.Invalid(op, "unknown or unpurchasable plan: "+planName)
	}

	now := s.now()
	oldTier := domain.TierFree
	if current, err := s.subs.GetSubscription(ctx, accountID); err == nil {
		oldTier = current.EffectiveTier(now)
	} else if !store.IsNotFound(err) {
		return nil, domain.Unavailable(err, op)
	}

	action := domain.PlanActionUpgrade
	if oldTier == plan {
		action = domain.PlanActionRenew
	}

	expiresAt := now.Add(domain.BillingCycleDays * 24 * time.Hour)
	sub := domain.Subscription{
		AccountID: accountID,
		Tier:      plan,
		Status:    domain.SubscriptionStatusActive,
		StartedAt: now,
		ExpiresAt: &expiresAt,
	}

	err := s.subs.ApplyTierTransition(ctx, store.TierTransition{
		Subscription: sub,
		Audit: domain.PlanAudit{
			ID:        uuid.New(),
			AccountID: accountID,
			OldTier:   oldTier,
			NewTier:   plan,
			Action:    action,
			CreatedAt: now,
		},
		OrderID: orderID,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, domain.Conflict(op, "payment order already processed")
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "payment order", orderID)
		}
		// Silently failing to record a paid upgrade is unacceptable.
		return nil, domain.Internal(err, op, "failed to apply tier transition")
	}

	metrics.TierTransitions.WithLabelValues(string(action)).Inc()
	s.logger.Info("subscription confirmed",
		"account_id", accountID, "old_tier", oldTier, "new_tier", plan,
		"action", action, "expires_at", expiresAt)

	return &sub, nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, accountID string) error {
	const op = "subscription.cancel"

	if accountID == "" {
		return domain.Unauthorized(op, "account identifier is required")
	}

	now := s.now()
	current, err := s.subs.GetSubscription(ctx, accountID)
	if err != nil {
		if store.IsNotFound(err) {
			return domain.NotFound(op, "subscription", accountID)
		}
		return domain.Unavailable(err, op)
	}
	if !current.ActiveAt(now) {
		return domain.NotFound(op, "active subscription", accountID)
	}
	if current.Status == domain.SubscriptionStatusCancelled {
		return domain.Conflict(op, "subscription is already cancelled")
	}

	cancelled := *current
	cancelled.Status = domain.SubscriptionStatusCancelled
	cancelled.CancelledAt = &now

	newTier := current.Tier
	if s.cancelImmediate {
		// Alternative policy: revoke access now instead of at expiry.
		cancelled.ExpiresAt = &now
		newTier = domain.TierFree
	}

	err = s.subs.ApplyTierTransition(ctx, store.TierTransition{
		Subscription: cancelled,
		Audit: domain.PlanAudit{
			ID:        uuid.New(),
			AccountID: accountID,
			OldTier:   current.Tier,
			NewTier:   newTier,
			Action:    domain.PlanActionCancel,
			CreatedAt: now,
		},
	})
	if err != nil {
		return domain.Internal(err, op, "failed to cancel subscription")
	}

	metrics.TierTransitions.WithLabelValues(string(domain.PlanActionCancel)).Inc()
	s.logger.Info("subscription cancelled",
		"account_id", accountID, "tier", current.Tier,
		"expires_at", current.ExpiresAt, "immediate", s.cancelImmediate)

	return nil
}

// Package service contains the business logic layer.
//
// This file implements the quota service: the admission-control decision
// made before serving a metered chat request, and the explicit usage
// increment charged after the response completes.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/metrics"
	"github.com/charlahq/charla/internal/store"
)

// =============================================================================
// Store interfaces
// =============================================================================

// QuotaStore is the durable per-account counter. Implementations must make
// both operations atomic per account: two concurrent Increment calls must
// never both observe the pre-increment value.
type QuotaStore interface {
	// CheckAndMaybeReset reads the counter, persisting a reset first when
	// the stored last-reset predates windowStart.
	CheckAndMaybeReset(ctx context.Context, accountID string, windowStart time.Time) (count int64, lastReset time.Time, err error)

	// Increment applies the same staleness check, then atomically adds 1.
	Increment(ctx context.Context, accountID string, windowStart time.Time) (int64, error)
}

// SubscriptionReader resolves the subscription that governs an account's
// tier. Returns store.ErrNotFound when the account never purchased a plan.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, accountID string) (*domain.Subscription, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService defines admission control and usage metering operations.
type QuotaService interface {
	// CheckRateLimit decides whether the account may send another message
	// in the current window. It never increments. On a metering-store
	// outage the decision fails open with Usage.Degraded set.
	CheckRateLimit(ctx context.Context, accountID string) (*domain.Admission, error)

	// IncrementUsage charges one message against the account's counter.
	// Called only after the chat response was produced; at-least-once
	// semantics are accepted over double-charging. The counter keeps
	// incrementing past the limit for audit purposes.
	IncrementUsage(ctx context.Context, accountID string) (int64, error)

	// GetUserStats returns the account's tier and usage snapshot.
	GetUserStats(ctx context.Context, accountID string) (*domain.Stats, error)
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	quotas QuotaStore
	subs   SubscriptionReader
	window domain.Window
	logger *slog.Logger
	now    func() time.Time
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(quotas QuotaStore, subs SubscriptionReader, window domain.Window, logger *slog.Logger) QuotaService {
	return &quotaService{
		quotas: quotas,
		subs:   subs,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// CheckRateLimit resolves the effective tier, reads the counter for the
// current window and compares strictly: current == limit is already a
// denial. Counts above the limit (raced increments, tier downgrades) stay
// denied without special handling.
func (s *quotaService) CheckRateLimit(ctx context.Context, accountID string) (*domain.Admission, error) {
	const op = "quota.check_rate_limit"

	if accountID == "" {
		return nil, domain.Unauthorized(op, "account identifier is required")
	}

	now := s.now()
	tier := s.effectiveTier(ctx, accountID, now)
	limit := int64(tier.DailyMessageLimit())

	count, _, err := s.quotas.CheckAndMaybeReset(ctx, accountID, s.window.Start(now))
	if err != nil {
		// Fail open: blocking all chat on a metering outage is worse
		// than temporary over-admission. The degraded flag lets callers
		// warn, and money-sensitive paths never take this branch.
		s.logger.Error("quota check failed, admitting without metering",
			"op", op, "account_id", accountID, "error", err)
		metrics.QuotaStoreErrors.Inc()

		usage := domain.NewUsage(0, limit, s.window.End(now))
		usage.Degraded = true
		metrics.AdmissionDecisions.WithLabelValues(string(tier), "degraded").Inc()
		return &domain.Admission{Allowed: true, Usage: usage}, nil
	}

	allowed := count < limit
	usage := domain.NewUsage(count, limit, s.window.End(now))

	decision := "allowed"
	if !allowed {
		decision = "denied"
		s.logger.Info("quota exhausted",
			"account_id", accountID, "tier", tier, "used", count, "limit", limit)
	}
	metrics.AdmissionDecisions.WithLabelValues(string(tier), decision).Inc()

	return &domain.Admission{Allowed: allowed, Usage: usage}, nil
}

// IncrementUsage bumps the counter for the current window. Unlike the
// check path this surfaces store errors: the caller logs and moves on, but
// the miss is visible.
func (s *quotaService) IncrementUsage(ctx context.Context, accountID string) (int64, error) {
	const op = "quota.increment"

	if accountID == "" {
		return 0, domain.Unauthorized(op, "account identifier is required")
	}

	count, err := s.quotas.Increment(ctx, accountID, s.window.Start(s.now()))
	if err != nil {
		metrics.QuotaStoreErrors.Inc()
		return 0, domain.Unavailable(err, op)
	}

	metrics.UsageIncrements.Inc()
	return count, nil
}

// GetUserStats returns a dashboard snapshot: tier, usage and the next
// reset instant. Cheap and idempotent; clients may poll it.
func (s *quotaService) GetUserStats(ctx context.Context, accountID string) (*domain.Stats, error) {
	const op = "quota.get_stats"

	if accountID == "" {
		return nil, domain.Unauthorized(op, "account identifier is required")
	}

	now := s.now()
	tier := s.effectiveTier(ctx, accountID, now)
	limit := int64(tier.DailyMessageLimit())

	count, _, err := s.quotas.CheckAndMaybeReset(ctx, accountID, s.window.Start(now))
	if err != nil {
		return nil, domain.Unavailable(err, op)
	}

	usage := domain.NewUsage(count, limit, s.window.End(now))
	percentage := 0.0
	if limit > 0 {
		percentage = float64(count) / float64(limit) * 100
		if percentage > 100 {
			percentage = 100
		}
	}

	return &domain.Stats{
		Tier:       tier,
		Used:       count,
		Limit:      limit,
		Remaining:  usage.Remaining,
		Percentage: percentage,
		ResetAt:    usage.ResetAt,
	}, nil
}

// effectiveTier applies the lazy-expiry rule: a cancelled-but-unexpired
// subscription keeps its paid tier; anything else is free. A subscription
// read failure downgrades to free for this decision rather than failing
// the chat request.
func (s *quotaService) effectiveTier(ctx context.Context, accountID string, now time.Time) domain.Tier {
	sub, err := s.subs.GetSubscription(ctx, accountID)
	if err != nil {
		if !store.IsNotFound(err) {
			s.logger.Warn("subscription lookup failed, using free tier",
				"account_id", accountID, "error", err)
		}
		return domain.TierFree
	}
	return sub.EffectiveTier(now)
}

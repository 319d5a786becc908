package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/charlahq/charla/internal/domain"
)

// TierTransition bundles the writes that must commit as one unit: the
// subscription row, the denormalized account tier cache, and the
// append-only audit record. A tier change without an audit trail, or an
// audit row for a change that didn't happen, are both invariant
// violations.
//
// When OrderID is set the transition also claims that payment order,
// flipping it from created to paid inside the same transaction. The
// claim is single-shot: an already-claimed order aborts the whole unit
// with ErrConflict, and a transition failure rolls the order back to
// created so a later retry can still confirm the purchase.
type TierTransition struct {
	Subscription domain.Subscription
	Audit        domain.PlanAudit
	OrderID      string
}

// GetSubscription returns the account's subscription row, or ErrNotFound
// if the account has never purchased a paid plan.
func (p *Postgres) GetSubscription(ctx context.Context, accountID string) (*domain.Subscription, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT account_id, tier, status, started_at, expires_at, cancelled_at
		FROM subscriptions WHERE account_id = $1`,
		accountID,
	)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

// ApplyTierTransition commits the subscription upsert, the account tier
// cache update, the audit insert and (when t.OrderID is set) the payment
// order claim in a single transaction.
func (p *Postgres) ApplyTierTransition(ctx context.Context, t TierTransition) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if t.OrderID != "" {
		tag, err := tx.Exec(ctx, `
			UPDATE payment_orders SET status = $2 WHERE order_id = $1 AND status = $3`,
			t.OrderID, string(OrderStatusPaid), string(OrderStatusCreated),
		)
		if err != nil {
			return fmt.Errorf("claim payment order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM payment_orders WHERE order_id = $1)`,
				t.OrderID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("claim payment order: %w", err)
			}
			if exists {
				return ErrConflict
			}
			return ErrNotFound
		}
	}

	sub := t.Subscription
	_, err = tx.Exec(ctx, `
		INSERT INTO subscriptions (account_id, tier, status, started_at, expires_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			expires_at = EXCLUDED.expires_at,
			cancelled_at = EXCLUDED.cancelled_at`,
		sub.AccountID, string(sub.Tier), string(sub.Status), sub.StartedAt, sub.ExpiresAt, sub.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts SET tier = $2, updated_at = now() WHERE id = $1`,
		sub.AccountID, string(sub.Tier),
	)
	if err != nil {
		return fmt.Errorf("update account tier: %w", err)
	}

	a := t.Audit
	_, err = tx.Exec(ctx, `
		INSERT INTO plan_audits (id, account_id, old_tier, new_tier, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.AccountID, string(a.OldTier), string(a.NewTier), string(a.Action), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert plan audit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// ListPlanAudits returns the audit trail for an account, oldest first.
func (p *Postgres) ListPlanAudits(ctx context.Context, accountID string) ([]domain.PlanAudit, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, account_id, old_tier, new_tier, action, created_at
		FROM plan_audits WHERE account_id = $1
		ORDER BY created_at ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list plan audits: %w", err)
	}
	defer rows.Close()

	var audits []domain.PlanAudit
	for rows.Next() {
		var a domain.PlanAudit
		var oldTier, newTier, action string
		if err := rows.Scan(&a.ID, &a.AccountID, &oldTier, &newTier, &action, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan audit: %w", err)
		}
		a.OldTier = domain.Tier(oldTier)
		a.NewTier = domain.Tier(newTier)
		a.Action = domain.PlanAction(action)
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var tier, status string
	if err := row.Scan(&sub.AccountID, &tier, &status, &sub.StartedAt, &sub.ExpiresAt, &sub.CancelledAt); err != nil {
		return nil, err
	}
	sub.Tier = domain.ParseTier(tier)
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}

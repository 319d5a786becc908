package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/charlahq/charla/internal/domain"
)

// OrderStatus tracks a payment order through the gateway round trip.
type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "created"
	OrderStatusPaid    OrderStatus = "paid"
)

// PaymentOrder records an order handed to the payment gateway so the
// verified callback can be tied back to the plan it purchases.
type PaymentOrder struct {
	OrderID   string
	AccountID string
	Plan      domain.Tier
	Amount    int64
	Status    OrderStatus
	CreatedAt time.Time
}

// CreatePaymentOrder persists a freshly created gateway order.
func (p *Postgres) CreatePaymentOrder(ctx context.Context, order PaymentOrder) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO payment_orders (order_id, account_id, plan, amount, status)
		VALUES ($1, $2, $3, $4, $5)`,
		order.OrderID, order.AccountID, string(order.Plan), order.Amount, string(order.Status),
	)
	if err != nil {
		return fmt.Errorf("create payment order: %w", err)
	}
	return nil
}

// GetPaymentOrder returns an order by its gateway identifier, or ErrNotFound.
func (p *Postgres) GetPaymentOrder(ctx context.Context, orderID string) (*PaymentOrder, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT order_id, account_id, plan, amount, status, created_at
		FROM payment_orders WHERE order_id = $1`,
		orderID,
	)
	var o PaymentOrder
	var plan, status string
	if err := row.Scan(&o.OrderID, &o.AccountID, &plan, &o.Amount, &status, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment order: %w", err)
	}
	o.Plan = domain.ParseTier(plan)
	o.Status = OrderStatus(status)
	return &o, nil
}

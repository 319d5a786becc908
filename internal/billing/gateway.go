// Package billing integrates the payment gateway used for plan purchases.
//
// The core consumes the gateway through a narrow interface: create an
// order for an amount, and verify the signature of a payment callback.
// No tier mutation may happen before verification succeeds.
package billing

import (
	"context"
	"errors"
)

// ErrVerificationFailed indicates a payment callback signature mismatch.
var ErrVerificationFailed = errors.New("billing: payment verification failed")

// OrderMetadata is attached to an order at creation and echoed back by
// the gateway on callbacks.
type OrderMetadata struct {
	AccountID string
	Plan      string
}

// Gateway defines the interface for payment gateway operations.
type Gateway interface {
	// CreateOrder registers an order for the given amount (minor currency
	// units) and returns the gateway's order identifier.
	CreateOrder(ctx context.Context, amount int64, metadata OrderMetadata) (string, error)

	// VerifyPayment checks the callback signature for an order/payment
	// pair. Returns false on mismatch; an error only for transport-level
	// failures.
	VerifyPayment(orderID, paymentID, signature string) (bool, error)
}

package billing

import (
	"context"
	"fmt"
	"sync/atomic"
)

// MockGateway is a deterministic gateway for development and tests.
// Order IDs are sequential; any signature equal to "valid" verifies.
type MockGateway struct {
	seq atomic.Int64

	// FailVerification forces every verification to return false.
	FailVerification bool
}

// NewMockGateway creates a mock payment gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (g *MockGateway) CreateOrder(_ context.Context, amount int64, _ OrderMetadata) (string, error) {
	if amount < 0 {
		return "", fmt.Errorf("billing: negative order amount %d", amount)
	}
	return fmt.Sprintf("order_mock_%d", g.seq.Add(1)), nil
}

func (g *MockGateway) VerifyPayment(orderID, paymentID, signature string) (bool, error) {
	if g.FailVerification {
		return false, nil
	}
	return orderID != "" && paymentID != "" && signature == "valid", nil
}

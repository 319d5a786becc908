package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/service"
)

type mockSubscriptionService struct {
	ApplyPaymentFunc     func(ctx context.Context, accountID, planName string, amount int64) (*service.PaymentQuote, error)
	VerifyAndConfirmFunc func(ctx context.Context, orderID, paymentID, signature string) (*domain.Subscription, error)
	CancelFunc           func(ctx context.Context, accountID string) error
}

func (m *mockSubscriptionService) ApplyPayment(ctx context.Context, accountID, planName string, amount int64) (*service.PaymentQuote, error) {
	if m.ApplyPaymentFunc != nil {
		return m.ApplyPaymentFunc(ctx, accountID, planName, amount)
	}
	return &service.PaymentQuote{OrderID: "order_1", Plan: domain.TierPro, FinalAmount: amount}, nil
}

func (m *mockSubscriptionService) VerifyAndConfirm(ctx context.Context, orderID, paymentID, signature string) (*domain.Subscription, error) {
	if m.VerifyAndConfirmFunc != nil {
		return m.VerifyAndConfirmFunc(ctx, orderID, paymentID, signature)
	}
	expires := time.Now().Add(30 * 24 * time.Hour)
	return &domain.Subscription{
		Tier: domain.TierPro, Status: domain.SubscriptionStatusActive,
		StartedAt: time.Now(), ExpiresAt: &expires,
	}, nil
}

func (m *mockSubscriptionService) ConfirmSubscription(ctx context.Context, accountID, planName string) (*domain.Subscription, error) {
	return nil, nil
}

func (m *mockSubscriptionService) CancelSubscription(ctx context.Context, accountID string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, accountID)
	}
	return nil
}

// =============================================================================
// Billing Tests
// =============================================================================

func TestCreateOrder_ReturnsQuote(t *testing.T) {
	subs := &mockSubscriptionService{
		ApplyPaymentFunc: func(ctx context.Context, accountID, planName string, amount int64) (*service.PaymentQuote, error) {
			if accountID != "acct_1" {
				t.Errorf("expected authenticated account, got %q", accountID)
			}
			return &service.PaymentQuote{
				OrderID: "order_42", Plan: domain.TierMaxx,
				Discount: 166, FinalAmount: 833,
			}, nil
		},
	}
	h := NewBillingHandler(subs, handlerLogger())

	rec := httptest.NewRecorder()
	h.CreateOrder(rec, authedRequest("POST", "/api/billing/order", `{"plan":"maxx","amount":999}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp createOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.OrderID != "order_42" || resp.FinalAmount != 833 || resp.Discount != 166 {
		t.Errorf("unexpected quote %+v", resp)
	}
}

func TestCreateOrder_UnknownPlan(t *testing.T) {
	subs := &mockSubscriptionService{
		ApplyPaymentFunc: func(ctx context.Context, accountID, planName string, amount int64) (*service.PaymentQuote, error) {
			return nil, domain.Invalid("subscription.apply_payment", "unknown plan")
		},
	}
	h := NewBillingHandler(subs, handlerLogger())

	rec := httptest.NewRecorder()
	h.CreateOrder(rec, authedRequest("POST", "/api/billing/order", `{"plan":"platinum","amount":1}`))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreateOrder_Unauthenticated(t *testing.T) {
	h := NewBillingHandler(&mockSubscriptionService{}, handlerLogger())

	req := httptest.NewRequest("POST", "/api/billing/order", strings.NewReader(`{"plan":"pro","amount":499}`))
	rec := httptest.NewRecorder()
	h.CreateOrder(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestVerifyPayment_Success(t *testing.T) {
	h := NewBillingHandler(&mockSubscriptionService{}, handlerLogger())

	rec := httptest.NewRecorder()
	h.VerifyPayment(rec, authedRequest("POST", "/api/billing/verify",
		`{"orderId":"order_1","paymentId":"pay_1","signature":"sig"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp subscriptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Tier != "pro" || resp.Status != "active" {
		t.Errorf("unexpected subscription %+v", resp)
	}
	if resp.ExpiresAt == nil {
		t.Error("expected expiry in response")
	}
}

func TestVerifyPayment_BadSignature(t *testing.T) {
	subs := &mockSubscriptionService{
		VerifyAndConfirmFunc: func(ctx context.Context, orderID, paymentID, signature string) (*domain.Subscription, error) {
			return nil, domain.Errorf(domain.EVERIFICATION, "subscription.verify", "payment signature verification failed")
		},
	}
	h := NewBillingHandler(subs, handlerLogger())

	rec := httptest.NewRecorder()
	h.VerifyPayment(rec, authedRequest("POST", "/api/billing/verify",
		`{"orderId":"order_1","paymentId":"pay_1","signature":"forged"}`))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad signature, got %d", rec.Code)
	}
}

func TestVerifyPayment_MissingFields(t *testing.T) {
	h := NewBillingHandler(&mockSubscriptionService{}, handlerLogger())

	rec := httptest.NewRecorder()
	h.VerifyPayment(rec, authedRequest("POST", "/api/billing/verify", `{"orderId":"order_1"}`))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCancelSubscription(t *testing.T) {
	cancelled := ""
	subs := &mockSubscriptionService{
		CancelFunc: func(ctx context.Context, accountID string) error {
			cancelled = accountID
			return nil
		},
	}
	h := NewBillingHandler(subs, handlerLogger())

	rec := httptest.NewRecorder()
	h.CancelSubscription(rec, authedRequest("POST", "/api/billing/cancel", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cancelled != "acct_1" {
		t.Errorf("expected cancel for acct_1, got %q", cancelled)
	}
	if !strings.Contains(rec.Body.String(), `"cancelled":true`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestCancelSubscription_NoSubscription(t *testing.T) {
	subs := &mockSubscriptionService{
		CancelFunc: func(ctx context.Context, accountID string) error {
			return domain.NotFound("subscription.cancel", "subscription", accountID)
		},
	}
	h := NewBillingHandler(subs, handlerLogger())

	rec := httptest.NewRecorder()
	h.CancelSubscription(rec, authedRequest("POST", "/api/billing/cancel", ""))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

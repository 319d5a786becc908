// Package handler contains the HTTP handlers for the Charla API.
//
// This file implements plan purchase handlers backed by the payment
// gateway.
//
// Routes handled:
//   - POST /api/billing/order  -> CreateOrder
//   - POST /api/billing/verify -> VerifyPayment
//   - POST /api/billing/cancel -> CancelSubscription
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/identity"
	"github.com/charlahq/charla/internal/service"
)

// BillingHandler handles plan purchase and cancellation HTTP requests.
type BillingHandler struct {
	subs   service.SubscriptionService
	logger *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(subs service.SubscriptionService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		subs:   subs,
		logger: logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireAccount func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/order", requireAccount(http.HandlerFunc(h.CreateOrder)))
	mux.Handle("POST /api/billing/verify", requireAccount(http.HandlerFunc(h.VerifyPayment)))
	mux.Handle("POST /api/billing/cancel", requireAccount(http.HandlerFunc(h.CancelSubscription)))
}

type createOrderRequest struct {
	Plan   string `json:"plan"`
	Amount int64  `json:"amount"`
}

type createOrderResponse struct {
	OrderID     string `json:"orderId"`
	Plan        string `json:"plan"`
	FinalAmount int64  `json:"finalAmount"`
	Discount    int64  `json:"discount"`
}

// CreateOrder prepares a gateway order for a plan purchase, folding in
// any proration credit from an unexpired paid subscription.
func (h *BillingHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing_order"

	acct := identity.GetAccount(r.Context())
	if acct == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid request body"))
		return
	}

	quote, err := h.subs.ApplyPayment(r.Context(), acct.ID, req.Plan, req.Amount)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, createOrderResponse{
		OrderID:     quote.OrderID,
		Plan:        string(quote.Plan),
		FinalAmount: quote.FinalAmount,
		Discount:    quote.Discount,
	})
}

type verifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

type subscriptionResponse struct {
	Tier      string     `json:"tier"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// VerifyPayment checks the payment callback signature and, on success,
// applies the tier transition.
func (h *BillingHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing_verify"

	acct := identity.GetAccount(r.Context())
	if acct == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid request body"))
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "orderId, paymentId and signature are required"))
		return
	}

	sub, err := h.subs.VerifyAndConfirm(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionResponse{
		Tier:      string(sub.Tier),
		Status:    string(sub.Status),
		StartedAt: sub.StartedAt,
		ExpiresAt: sub.ExpiresAt,
	})
}

// CancelSubscription marks the caller's subscription cancelled. Paid
// access persists until the stored expiry.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	acct := identity.GetAccount(r.Context())
	if acct == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if err := h.subs.CancelSubscription(r.Context(), acct.ID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

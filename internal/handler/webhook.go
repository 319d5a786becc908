// Package handler contains the HTTP handlers for the Charla API.
//
// This file implements the payment gateway webhook handler.
//
// Route:
//   - POST /webhooks/payment -> HandlePaymentWebhook
//
// This route is PUBLIC (no auth middleware) because the gateway calls it
// directly. Authentication is via the payment signature carried in the
// event payload.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/service"
)

// WebhookHandler handles incoming events from the payment gateway.
type WebhookHandler struct {
	subs   service.SubscriptionService
	logger *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(subs service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		subs:   subs,
		logger: logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC — no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/payment", h.HandlePaymentWebhook)
}

type paymentEvent struct {
	Event     string `json:"event"`
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// HandlePaymentWebhook processes payment gateway events. Captured
// payments confirm the pending order server-to-server so a client that
// dropped offline after paying still gets its tier.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var event paymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("malformed payment webhook", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("payment webhook received", "event", event.Event, "order_id", event.OrderID)

	switch event.Event {
	case "payment.captured":
		h.handlePaymentCaptured(r, event)
	case "payment.failed":
		h.logger.Warn("payment failed event", "order_id", event.OrderID)
	default:
		h.logger.Debug("unhandled payment event type", "event", event.Event)
	}

	// Always 200 so the gateway stops retrying; failures are logged and
	// the client verify path remains available.
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handlePaymentCaptured(r *http.Request, event paymentEvent) {
	if event.OrderID == "" || event.PaymentID == "" {
		h.logger.Warn("payment captured event missing identifiers")
		return
	}

	sub, err := h.subs.VerifyAndConfirm(r.Context(), event.OrderID, event.PaymentID, event.Signature)
	if err != nil {
		// A conflict means the client verify path already confirmed it.
		if domain.ErrorCode(err) == domain.ECONFLICT {
			h.logger.Debug("order already confirmed", "order_id", event.OrderID)
			return
		}
		h.logger.Error("failed to confirm payment from webhook",
			"order_id", event.OrderID, "error", err)
		return
	}

	h.logger.Info("subscription confirmed from webhook",
		"order_id", event.OrderID, "tier", sub.Tier)
}

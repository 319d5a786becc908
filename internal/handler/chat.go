package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/charlahq/charla/internal/ai"
	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/identity"
	"github.com/charlahq/charla/internal/service"
)

// ChatHandler serves metered chat completions. Every request passes
// admission control first; usage is charged only after a reply was
// produced.
type ChatHandler struct {
	quotas   service.QuotaService
	provider ai.Provider
	logger   *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(quotas service.QuotaService, provider ai.Provider, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		quotas:   quotas,
		provider: provider,
		logger:   logger,
	}
}

type chatRequest struct {
	PersonaID string        `json:"personaId"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Reply string       `json:"reply"`
	Usage usagePayload `json:"usage"`
	Model string       `json:"model,omitempty"`
}

type usagePayload struct {
	Current   int64     `json:"current"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Degraded  bool      `json:"degraded,omitempty"`
}

func newUsagePayload(u domain.Usage) usagePayload {
	return usagePayload{
		Current:   u.Current,
		Limit:     u.Limit,
		Remaining: u.Remaining,
		ResetAt:   u.ResetAt,
		Degraded:  u.Degraded,
	}
}

// Complete handles POST /api/chat.
func (h *ChatHandler) Complete(w http.ResponseWriter, r *http.Request) {
	const op = "handler.chat"

	acct := identity.GetAccount(r.Context())
	if acct == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid request body"))
		return
	}
	if req.PersonaID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "personaId is required"))
		return
	}
	if len(req.Messages) == 0 {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "at least one message is required"))
		return
	}
	for _, m := range req.Messages {
		if !domain.MessageRole(m.Role).Valid() {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "message role must be user or assistant"))
			return
		}
	}

	admission, err := h.quotas.CheckRateLimit(r.Context(), acct.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if !admission.Allowed {
		// Denials carry the usage snapshot so clients can render the
		// limit and the reset instant without a second request.
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]string{
				"code":    domain.ERATELIMIT,
				"message": "Daily message limit reached",
			},
			"usage": newUsagePayload(admission.Usage),
		})
		return
	}

	messages := make([]ai.PromptMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, ai.PromptMessage{Role: m.Role, Content: m.Content})
	}

	completion, err := h.provider.Complete(r.Context(), ai.CompletionParams{
		PersonaID: req.PersonaID,
		Messages:  messages,
	})
	if err != nil {
		h.logger.Error("completion failed", "op", op, "account_id", acct.ID, "error", err)
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op))
		return
	}

	// Charge after the reply exists. If the increment fails the reply is
	// still returned; the miss is logged and counted.
	usage := admission.Usage
	if count, err := h.quotas.IncrementUsage(r.Context(), acct.ID); err != nil {
		h.logger.Error("usage increment failed after completion",
			"op", op, "account_id", acct.ID, "error", err)
	} else {
		usage = domain.NewUsage(count, admission.Usage.Limit, admission.Usage.ResetAt)
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply: completion.Text,
		Usage: newUsagePayload(usage),
		Model: completion.Usage.Model,
	})
}

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

// ConversationHandler serves the client-cache sync endpoints.
type ConversationHandler struct {
	convs  service.ConversationService
	logger *slog.Logger
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(convs service.ConversationService, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		convs:  convs,
		logger: logger,
	}
}

type syncRequest struct {
	PersonaID      string        `json:"personaId"`
	ConversationID string        `json:"conversationId"`
	Title          string        `json:"title"`
	Messages       []syncMessage `json:"messages"`
}

type syncMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Sync handles POST /api/conversations/sync.
func (h *ConversationHandler) Sync(w http.ResponseWriter, r *http.Request) {
	const op = "handler.conversation_sync"

	acct := identity.GetAccount(r.Context())
	if acct == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid request body"))
		return
	}

	messages := make([]service.IncomingMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, service.IncomingMessage{
			ID:      m.ID,
			Role:    domain.MessageRole(m.Role),
			Content: m.Content,
		})
	}

	err := h.convs.SyncConversation(r.Context(), service.SyncParams{
		AccountID:      acct.ID,
		PersonaID:      req.PersonaID,
		ConversationID: req.ConversationID,
		Title:          req.Title,
		Messages:       messages,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"synced": true})
}

type conversationResponse struct {
	ID        string           `json:"id"`
	PersonaID string           `json:"personaId"`
	Title     string           `json:"title"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Messages  []messagePayload `json:"messages"`
}

type messagePayload struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Latest handles GET /api/conversations?personaId=...
func (h *ConversationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	const op = "handler.conversation_latest"

	acct := identity.GetAccount(r.Context())
	if acct == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	personaID := r.URL.Query().Get("personaId")
	if personaID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "personaId is required"))
		return
	}

	view, err := h.convs.GetConversation(r.Context(), acct.ID, personaID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := conversationResponse{
		ID:        view.Conversation.ID,
		PersonaID: view.Conversation.PersonaID,
		Title:     view.Conversation.Title,
		UpdatedAt: view.Conversation.UpdatedAt,
		Messages:  make([]messagePayload, 0, len(view.Messages)),
	}
	for _, m := range view.Messages {
		resp.Messages = append(resp.Messages, messagePayload{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

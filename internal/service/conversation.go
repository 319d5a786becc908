// Package service contains the business logic layer.
//
// This file implements the conversation sync merger: it reconciles the
// message list a client holds against the server's copy, inserting only
// the messages the server lacks. The server is the source of truth; the
// client is a cache.
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
// Store interface
// =============================================================================

// ConversationStore persists conversations and their messages.
// UpsertConversation must tolerate two syncs racing to create the same
// conversation; InsertMessages must never duplicate an identifier.
type ConversationStore interface {
	UpsertConversation(ctx context.Context, conv domain.Conversation) (*domain.Conversation, error)
	GetLatestConversation(ctx context.Context, accountID, personaID string) (*domain.Conversation, error)
	ListMessageIDs(ctx context.Context, conversationID string) (map[string]struct{}, error)
	InsertMessages(ctx context.Context, msgs []domain.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// IncomingMessage is a client-held message submitted for merging.
type IncomingMessage struct {
	ID      string
	Role    domain.MessageRole
	Content string
}

// SyncParams describes one sync request.
type SyncParams struct {
	AccountID      string
	PersonaID      string
	ConversationID string
	Title          string
	Messages       []IncomingMessage
}

// ConversationView pairs a conversation with its messages in creation order.
type ConversationView struct {
	Conversation domain.Conversation
	Messages     []domain.Message
}

// ConversationService defines the sync merger operations.
type ConversationService interface {
	// SyncConversation creates or touches the conversation, then merges
	// in the messages the server does not yet hold. Replaying the same
	// message list is a no-op for every message.
	SyncConversation(ctx context.Context, params SyncParams) error

	// GetConversation returns the account's latest conversation with a
	// persona and its messages ordered by creation instant.
	GetConversation(ctx context.Context, accountID, personaID string) (*ConversationView, error)
}

// =============================================================================
// Implementation
// =============================================================================

type conversationService struct {
	convs  ConversationStore
	logger *slog.Logger
	now    func() time.Time
}

// NewConversationService creates a new ConversationService.
func NewConversationService(convs ConversationStore, logger *slog.Logger) ConversationService {
	return &conversationService{
		convs:  convs,
		logger: logger,
		now:    time.Now,
	}
}

func (s *conversationService) SyncConversation(ctx context.Context, params SyncParams) error {
	const op = "conversation.sync"

	if params.AccountID == "" {
		return domain.Unauthorized(op, "account identifier is required")
	}
	if params.PersonaID == "" {
		return domain.Invalid(op, "persona identifier is required")
	}
	if params.ConversationID == "" {
		return domain.Invalid(op, "conversation identifier is required")
	}
	for _, m := range params.Messages {
		if m.ID == "" {
			return domain.Invalid(op, "message identifier is required")
		}
		if !m.Role.Valid() {
			return domain.Invalid(op, "message role must be user or assistant")
		}
	}

	title := params.Title
	if title == "" {
		title = domain.DefaultConversationTitle
	}

	conv, err := s.convs.UpsertConversation(ctx, domain.Conversation{
		ID:        params.ConversationID,
		AccountID: params.AccountID,
		PersonaID: params.PersonaID,
		Title:     title,
	})
	if err != nil {
		return domain.Internal(err, op, "failed to upsert conversation")
	}
	if conv.AccountID != params.AccountID {
		return domain.Errorf(domain.EFORBIDDEN, op, "conversation belongs to another account")
	}

	held, err := s.convs.ListMessageIDs(ctx, conv.ID)
	if err != nil {
		return domain.Internal(err, op, "failed to list held messages")
	}

	// Set difference by identifier. Creation instants are spaced a
	// millisecond apart so retrieval (ordered by creation instant, not
	// request position) preserves the client's relative order for the
	// newly inserted run.
	base := s.now()
	var missing []domain.Message
	seen := make(map[string]struct{}, len(params.Messages))
	for _, m := range params.Messages {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if _, ok := held[m.ID]; ok {
			continue
		}
		missing = append(missing, domain.Message{
			ID:             m.ID,
			ConversationID: conv.ID,
			Role:           m.Role,
			Content:        m.Content,
			CreatedAt:      base.Add(time.Duration(len(missing)) * time.Millisecond),
		})
	}

	if len(missing) > 0 {
		if err := s.convs.InsertMessages(ctx, missing); err != nil {
			return domain.Internal(err, op, "failed to insert messages")
		}
		metrics.MessagesMerged.Add(float64(len(missing)))
	}

	metrics.ConversationSyncs.Inc()
	s.logger.Debug("conversation synced",
		"conversation_id", conv.ID, "submitted", len(params.Messages), "inserted", len(missing))

	return nil
}

func (s *conversationService) GetConversation(ctx context.Context, accountID, personaID string) (*ConversationView, error) {
	const op = "conversation.get"

	if accountID == "" {
		return nil, domain.Unauthorized(op, "account identifier is required")
	}
	if personaID == "" {
		return nil, domain.Invalid(op, "persona identifier is required")
	}

	conv, err := s.convs.GetLatestConversation(ctx, accountID, personaID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NotFound(op, "conversation", personaID)
		}
		return nil, domain.Internal(err, op, "failed to load conversation")
	}

	msgs, err := s.convs.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load messages")
	}

	return &ConversationView{Conversation: *conv, Messages: msgs}, nil
}

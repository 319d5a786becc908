package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/charlahq/charla/internal/domain"
)

// UpsertConversation creates the conversation on first sight or advances
// its update instant. Two syncs racing to create the same conversation
// both succeed: the loser's insert turns into a touch. The touch is
// guarded by ownership, so a caller colliding with another account's
// conversation gets that row back unmodified and the caller's ownership
// check rejects the sync without having reordered the owner's listing.
func (p *Postgres) UpsertConversation(ctx context.Context, conv domain.Conversation) (*domain.Conversation, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, account_id, persona_id, title, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			updated_at = GREATEST(conversations.updated_at, now())
		WHERE conversations.account_id = EXCLUDED.account_id
		RETURNING id, account_id, persona_id, title, updated_at, created_at`,
		conv.ID, conv.AccountID, conv.PersonaID, conv.Title,
	)
	upserted, err := scanConversation(row)
	if err == nil {
		return upserted, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Guard fired: the row belongs to another account. Return it as is.
	row = p.pool.QueryRow(ctx, `
		SELECT id, account_id, persona_id, title, updated_at, created_at
		FROM conversations WHERE id = $1`,
		conv.ID,
	)
	existing, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return existing, nil
}

// GetLatestConversation returns the most recently updated conversation an
// account holds with a persona, or ErrNotFound.
func (p *Postgres) GetLatestConversation(ctx context.Context, accountID, personaID string) (*domain.Conversation, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, account_id, persona_id, title, updated_at, created_at
		FROM conversations
		WHERE account_id = $1 AND persona_id = $2
		ORDER BY updated_at DESC
		LIMIT 1`,
		accountID, personaID,
	)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

// ListMessageIDs returns the identifiers of all messages the server holds
// for a conversation. Used by the sync merger's set difference.
func (p *Postgres) ListMessageIDs(ctx context.Context, conversationID string) (map[string]struct{}, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id FROM messages WHERE conversation_id = $1`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list message ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// InsertMessages appends messages. ON CONFLICT DO NOTHING backstops the
// merger's set difference: a replayed identifier never produces a second
// row even when two syncs race.
func (p *Postgres) InsertMessages(ctx context.Context, msgs []domain.Message) error {
	for _, m := range msgs {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (conversation_id, id) DO NOTHING`,
			m.ID, m.ConversationID, string(m.Role), m.Content, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}
	return nil
}

// ListMessages returns a conversation's messages ordered by creation
// instant ascending, not by client array position.
func (p *Postgres) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = domain.MessageRole(role)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := row.Scan(&conv.ID, &conv.AccountID, &conv.PersonaID, &conv.Title, &conv.UpdatedAt, &conv.CreatedAt); err != nil {
		return nil, err
	}
	return &conv, nil
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/store"
)

func newConversationServiceAt(t *testing.T, mem *store.Memory, now time.Time) *conversationService {
	t.Helper()
	svc := NewConversationService(mem, testLogger()).(*conversationService)
	svc.now = func() time.Time { return now }
	return svc
}

func syncMessages(ids ...string) []IncomingMessage {
	msgs := make([]IncomingMessage, 0, len(ids))
	for i, id := range ids {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msgs = append(msgs, IncomingMessage{ID: id, Role: role, Content: "msg " + id})
	}
	return msgs
}

// =============================================================================
// SyncConversation Tests
// =============================================================================

func TestSyncConversation_CreatesAndMerges(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newConversationServiceAt(t, mem, time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))

	err := svc.SyncConversation(ctx, SyncParams{
		AccountID:      "acct_1",
		PersonaID:      "persona_a",
		ConversationID: "conv_1",
		Title:          "First chat",
		Messages:       syncMessages("m1", "m2", "m3"),
	})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	view, err := svc.GetConversation(ctx, "acct_1", "persona_a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if view.Conversation.Title != "First chat" {
		t.Errorf("unexpected title %q", view.Conversation.Title)
	}
	if len(view.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(view.Messages))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if view.Messages[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, view.Messages[i].ID)
		}
	}
}

func TestSyncConversation_ReplayIsNoop(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newConversationServiceAt(t, mem, time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))

	params := SyncParams{
		AccountID:      "acct_1",
		PersonaID:      "persona_a",
		ConversationID: "conv_1",
		Messages:       syncMessages("m1", "m2"),
	}

	for i := 0; i < 3; i++ {
		if err := svc.SyncConversation(ctx, params); err != nil {
			t.Fatalf("replay %d failed: %v", i, err)
		}
	}

	view, err := svc.GetConversation(ctx, "acct_1", "persona_a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(view.Messages) != 2 {
		t.Errorf("replay must not duplicate, expected 2 messages, got %d", len(view.Messages))
	}
}

func TestSyncConversation_MergesOnlyMissing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	svc := newConversationServiceAt(t, mem, now)

	base := SyncParams{
		AccountID:      "acct_1",
		PersonaID:      "persona_a",
		ConversationID: "conv_1",
		Messages:       syncMessages("m1", "m2"),
	}
	if err := svc.SyncConversation(ctx, base); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	// Second sync resends the old pair plus two new messages.
	svc.now = func() time.Time { return now.Add(time.Minute) }
	base.Messages = syncMessages("m1", "m2", "m3", "m4")
	if err := svc.SyncConversation(ctx, base); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	view, _ := svc.GetConversation(ctx, "acct_1", "persona_a")
	if len(view.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(view.Messages))
	}
	for i, want := range []string{"m1", "m2", "m3", "m4"} {
		if view.Messages[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, view.Messages[i].ID)
		}
	}
}

func TestSyncConversation_DuplicateIDsInPayload(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newConversationServiceAt(t, mem, time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))

	err := svc.SyncConversation(ctx, SyncParams{
		AccountID:      "acct_1",
		PersonaID:      "persona_a",
		ConversationID: "conv_1",
		Messages:       syncMessages("m1", "m1", "m2"),
	})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	view, _ := svc.GetConversation(ctx, "acct_1", "persona_a")
	if len(view.Messages) != 2 {
		t.Errorf("in-payload duplicates must collapse, expected 2, got %d", len(view.Messages))
	}
}

func TestSyncConversation_OwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newConversationServiceAt(t, mem, time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))

	// The owner holds an older and a newer conversation with the persona.
	if err := svc.SyncConversation(ctx, SyncParams{
		AccountID:      "acct_1",
		PersonaID:      "persona_a",
		ConversationID: "conv_1",
		Messages:       syncMessages("m1"),
	}); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := svc.SyncConversation(ctx, SyncParams{
		AccountID:      "acct_1",
		PersonaID:      "persona_a",
		ConversationID: "conv_2",
		Messages:       syncMessages("n1"),
	}); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	err := svc.SyncConversation(ctx, SyncParams{
		AccountID:      "acct_2",
		PersonaID:      "persona_a",
		ConversationID: "conv_1",
		Messages:       syncMessages("x1"),
	})
	if domain.ErrorCode(err) != domain.EFORBIDDEN {
		t.Errorf("expected EFORBIDDEN for foreign conversation, got %v", err)
	}

	// The rejected sync must not have touched the owner's row: conv_2 is
	// still the latest, and conv_1 carries no injected message.
	view, err := svc.GetConversation(ctx, "acct_1", "persona_a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if view.Conversation.ID != "conv_2" {
		t.Errorf("rejected sync reordered the owner's conversations, latest is %s", view.Conversation.ID)
	}
	msgs, err := mem.ListMessages(ctx, "conv_1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("foreign conversation contents changed: %v", msgs)
	}
}

func TestSyncConversation_Validation(t *testing.T) {
	mem := store.NewMemory()
	svc := newConversationServiceAt(t, mem, time.Now())
	ctx := context.Background()

	tests := []struct {
		name   string
		params SyncParams
	}{
		{"missing account", SyncParams{PersonaID: "p", ConversationID: "c"}},
		{"missing persona", SyncParams{AccountID: "a", ConversationID: "c"}},
		{"missing conversation", SyncParams{AccountID: "a", PersonaID: "p"}},
		{"missing message id", SyncParams{AccountID: "a", PersonaID: "p", ConversationID: "c",
			Messages: []IncomingMessage{{Role: domain.RoleUser, Content: "hi"}}}},
		{"bad role", SyncParams{AccountID: "a", PersonaID: "p", ConversationID: "c",
			Messages: []IncomingMessage{{ID: "m1", Role: "system", Content: "hi"}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.SyncConversation(ctx, tc.params); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSyncConversation_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newConversationServiceAt(t, mem, time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.SyncConversation(ctx, SyncParams{
				AccountID:      "acct_1",
				PersonaID:      "persona_a",
				ConversationID: "conv_race",
				Messages:       syncMessages("m1", "m2"),
			})
			if err != nil {
				t.Errorf("concurrent sync failed: %v", err)
			}
		}()
	}
	wg.Wait()

	view, err := svc.GetConversation(ctx, "acct_1", "persona_a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(view.Messages) != 2 {
		t.Errorf("racing syncs must converge on 2 messages, got %d", len(view.Messages))
	}
}

// =============================================================================
// GetConversation Tests
// =============================================================================

func TestGetConversation_NotFound(t *testing.T) {
	mem := store.NewMemory()
	svc := newConversationServiceAt(t, mem, time.Now())

	_, err := svc.GetConversation(context.Background(), "acct_1", "persona_missing")
	if domain.ErrorCode(err) != domain.ENOTFOUND {
		t.Errorf("expected ENOTFOUND, got %v", err)
	}
}

func TestGetConversation_ReturnsLatestPerPersona(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	svc := newConversationServiceAt(t, mem, now)

	if err := svc.SyncConversation(ctx, SyncParams{
		AccountID: "acct_1", PersonaID: "persona_a", ConversationID: "conv_old",
		Messages: syncMessages("m1"),
	}); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	svc.now = func() time.Time { return now.Add(time.Hour) }
	if err := svc.SyncConversation(ctx, SyncParams{
		AccountID: "acct_1", PersonaID: "persona_a", ConversationID: "conv_new",
		Messages: syncMessages("n1"),
	}); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	view, err := svc.GetConversation(ctx, "acct_1", "persona_a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if view.Conversation.ID != "conv_new" {
		t.Errorf("expected most recently updated conversation, got %s", view.Conversation.ID)
	}
}

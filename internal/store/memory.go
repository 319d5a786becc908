package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charlahq/charla/internal/domain"
)

// Memory is an in-process store used by unit tests and local development.
// It provides the same linearizability guarantees as the Postgres store:
// a single mutex serializes every read-modify-write, so concurrent
// increments for the same account never lose an update.
type Memory struct {
	mu            sync.Mutex
	accounts      map[string]*domain.Account
	counters      map[string]*domain.QuotaCounter
	subscriptions map[string]*domain.Subscription
	audits        []domain.PlanAudit
	conversations map[string]*domain.Conversation
	messages      map[string][]domain.Message // conversationID -> messages
	orders        map[string]*PaymentOrder
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts:      make(map[string]*domain.Account),
		counters:      make(map[string]*domain.QuotaCounter),
		subscriptions: make(map[string]*domain.Subscription),
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]domain.Message),
		orders:        make(map[string]*PaymentOrder),
	}
}

// =============================================================================
// Accounts
// =============================================================================

func (m *Memory) EnsureAccount(_ context.Context, params domain.Account) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct, ok := m.accounts[params.ID]; ok {
		acct.Email = params.Email
		acct.DisplayName = params.DisplayName
		acct.UpdatedAt = time.Now()
		clone := *acct
		return &clone, nil
	}

	acct := params
	acct.Tier = domain.ParseTier(string(params.Tier))
	acct.CreatedAt = time.Now()
	acct.UpdatedAt = acct.CreatedAt
	m.accounts[acct.ID] = &acct
	clone := acct
	return &clone, nil
}

func (m *Memory) GetAccount(_ context.Context, accountID string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *acct
	return &clone, nil
}

// =============================================================================
// Quota counters
// =============================================================================

func (m *Memory) CheckAndMaybeReset(_ context.Context, accountID string, windowStart time.Time) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[accountID]
	if !ok {
		return 0, windowStart, nil
	}
	if c.LastReset.Before(windowStart) {
		c.Count = 0
		c.LastReset = windowStart
	}
	return c.Count, c.LastReset, nil
}

func (m *Memory) Increment(_ context.Context, accountID string, windowStart time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[accountID]
	if !ok {
		c = &domain.QuotaCounter{AccountID: accountID, LastReset: windowStart}
		m.counters[accountID] = c
	}
	if c.LastReset.Before(windowStart) {
		c.Count = 0
		c.LastReset = windowStart
	}
	c.Count++
	return c.Count, nil
}

// =============================================================================
// Subscriptions and audits
// =============================================================================

func (m *Memory) GetSubscription(_ context.Context, accountID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *sub
	return &clone, nil
}

func (m *Memory) ApplyTierTransition(_ context.Context, t TierTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Claim the order before touching anything else so a failed claim
	// leaves the store unmodified, matching the transactional rollback of
	// the Postgres store.
	if t.OrderID != "" {
		o, ok := m.orders[t.OrderID]
		if !ok {
			return ErrNotFound
		}
		if o.Status != OrderStatusCreated {
			return ErrConflict
		}
		o.Status = OrderStatusPaid
	}

	sub := t.Subscription
	m.subscriptions[sub.AccountID] = &sub

	if acct, ok := m.accounts[sub.AccountID]; ok {
		acct.Tier = sub.Tier
		acct.UpdatedAt = time.Now()
	}

	m.audits = append(m.audits, t.Audit)
	return nil
}

func (m *Memory) ListPlanAudits(_ context.Context, accountID string) ([]domain.PlanAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var audits []domain.PlanAudit
	for _, a := range m.audits {
		if a.AccountID == accountID {
			audits = append(audits, a)
		}
	}
	sort.SliceStable(audits, func(i, j int) bool {
		return audits[i].CreatedAt.Before(audits[j].CreatedAt)
	})
	return audits, nil
}

// =============================================================================
// Conversations and messages
// =============================================================================

func (m *Memory) UpsertConversation(_ context.Context, conv domain.Conversation) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, ok := m.conversations[conv.ID]; ok {
		// The touch is ownership-guarded: a collision with another
		// account's conversation returns the row unmodified.
		if existing.AccountID == conv.AccountID && now.After(existing.UpdatedAt) {
			existing.UpdatedAt = now
		}
		clone := *existing
		return &clone, nil
	}

	conv.CreatedAt = now
	conv.UpdatedAt = now
	m.conversations[conv.ID] = &conv
	clone := conv
	return &clone, nil
}

func (m *Memory) GetLatestConversation(_ context.Context, accountID, personaID string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *domain.Conversation
	for _, c := range m.conversations {
		if c.AccountID != accountID || c.PersonaID != personaID {
			continue
		}
		if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (m *Memory) ListMessageIDs(_ context.Context, conversationID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make(map[string]struct{})
	for _, msg := range m.messages[conversationID] {
		ids[msg.ID] = struct{}{}
	}
	return ids, nil
}

func (m *Memory) InsertMessages(_ context.Context, msgs []domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range msgs {
		exists := false
		for _, held := range m.messages[msg.ConversationID] {
			if held.ID == msg.ID {
				exists = true
				break
			}
		}
		if !exists {
			m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
		}
	}
	return nil
}

func (m *Memory) ListMessages(_ context.Context, conversationID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]domain.Message, len(m.messages[conversationID]))
	copy(msgs, m.messages[conversationID])
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// =============================================================================
// Payment orders
// =============================================================================

func (m *Memory) CreatePaymentOrder(_ context.Context, order PaymentOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.OrderID]; ok {
		return ErrConflict
	}
	order.CreatedAt = time.Now()
	m.orders[order.OrderID] = &order
	return nil
}

func (m *Memory) GetPaymentOrder(_ context.Context, orderID string) (*PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *o
	return &clone, nil
}

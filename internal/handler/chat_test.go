package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charlahq/charla/internal/ai"
	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/identity"
)

// =============================================================================
// Mocks
// =============================================================================

type mockQuotaService struct {
	CheckRateLimitFunc func(ctx context.Context, accountID string) (*domain.Admission, error)
	IncrementUsageFunc func(ctx context.Context, accountID string) (int64, error)
	GetUserStatsFunc   func(ctx context.Context, accountID string) (*domain.Stats, error)

	IncrementCalls int
}

func (m *mockQuotaService) CheckRateLimit(ctx context.Context, accountID string) (*domain.Admission, error) {
	if m.CheckRateLimitFunc != nil {
		return m.CheckRateLimitFunc(ctx, accountID)
	}
	return &domain.Admission{Allowed: true, Usage: domain.NewUsage(0, 10, time.Now().Add(time.Hour))}, nil
}

func (m *mockQuotaService) IncrementUsage(ctx context.Context, accountID string) (int64, error) {
	m.IncrementCalls++
	if m.IncrementUsageFunc != nil {
		return m.IncrementUsageFunc(ctx, accountID)
	}
	return 1, nil
}

func (m *mockQuotaService) GetUserStats(ctx context.Context, accountID string) (*domain.Stats, error) {
	if m.GetUserStatsFunc != nil {
		return m.GetUserStatsFunc(ctx, accountID)
	}
	return &domain.Stats{Tier: domain.TierFree, Limit: 10}, nil
}

type mockProvider struct {
	CompleteFunc  func(ctx context.Context, params ai.CompletionParams) (*ai.Completion, error)
	CompleteCalls int
}

func (m *mockProvider) Complete(ctx context.Context, params ai.CompletionParams) (*ai.Completion, error) {
	m.CompleteCalls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, params)
	}
	return &ai.Completion{Text: "hello there", Usage: ai.UsageInfo{Model: "mock"}}, nil
}

func handlerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func chatRequestBody() string {
	return `{"personaId":"persona_a","messages":[{"role":"user","content":"hi"}]}`
}

func authedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(identity.SetAccount(req.Context(), &domain.Account{ID: "acct_1"}))
}

// =============================================================================
// Chat Tests
// =============================================================================

func TestChat_Success(t *testing.T) {
	quotas := &mockQuotaService{}
	provider := &mockProvider{}
	h := NewChatHandler(quotas, provider, handlerLogger())

	rec := httptest.NewRecorder()
	h.Complete(rec, authedRequest("POST", "/api/chat", chatRequestBody()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Reply string `json:"reply"`
		Usage struct {
			Current int64 `json:"current"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Reply != "hello there" {
		t.Errorf("unexpected reply %q", resp.Reply)
	}
	if quotas.IncrementCalls != 1 {
		t.Errorf("expected exactly one increment, got %d", quotas.IncrementCalls)
	}
	if resp.Usage.Current != 1 {
		t.Errorf("response should reflect the post-increment count, got %d", resp.Usage.Current)
	}
}

func TestChat_DeniedOverLimit(t *testing.T) {
	quotas := &mockQuotaService{
		CheckRateLimitFunc: func(ctx context.Context, accountID string) (*domain.Admission, error) {
			return &domain.Admission{
				Allowed: false,
				Usage:   domain.NewUsage(10, 10, time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)),
			}, nil
		},
	}
	provider := &mockProvider{}
	h := NewChatHandler(quotas, provider, handlerLogger())

	rec := httptest.NewRecorder()
	h.Complete(rec, authedRequest("POST", "/api/chat", chatRequestBody()))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if provider.CompleteCalls != 0 {
		t.Error("provider must not be called on denial")
	}
	if quotas.IncrementCalls != 0 {
		t.Error("denied requests must not be charged")
	}

	// Denial body carries the usage snapshot.
	var resp struct {
		Usage struct {
			Limit   int64  `json:"limit"`
			ResetAt string `json:"resetAt"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Usage.Limit != 10 {
		t.Errorf("expected limit in denial body, got %d", resp.Usage.Limit)
	}
	if resp.Usage.ResetAt == "" {
		t.Error("expected reset instant in denial body")
	}
}

func TestChat_ProviderFailureNotCharged(t *testing.T) {
	quotas := &mockQuotaService{}
	provider := &mockProvider{
		CompleteFunc: func(ctx context.Context, params ai.CompletionParams) (*ai.Completion, error) {
			return nil, errors.New("upstream down")
		},
	}
	h := NewChatHandler(quotas, provider, handlerLogger())

	rec := httptest.NewRecorder()
	h.Complete(rec, authedRequest("POST", "/api/chat", chatRequestBody()))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if quotas.IncrementCalls != 0 {
		t.Error("failed completions must not be charged")
	}
}

func TestChat_IncrementFailureStillReturnsReply(t *testing.T) {
	quotas := &mockQuotaService{
		IncrementUsageFunc: func(ctx context.Context, accountID string) (int64, error) {
			return 0, errors.New("store down")
		},
	}
	h := NewChatHandler(quotas, &mockProvider{}, handlerLogger())

	rec := httptest.NewRecorder()
	h.Complete(rec, authedRequest("POST", "/api/chat", chatRequestBody()))

	if rec.Code != http.StatusOK {
		t.Fatalf("reply must survive a failed increment, got %d", rec.Code)
	}
}

func TestChat_Unauthenticated(t *testing.T) {
	h := NewChatHandler(&mockQuotaService{}, &mockProvider{}, handlerLogger())

	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(chatRequestBody()))
	rec := httptest.NewRecorder()
	h.Complete(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestChat_Validation(t *testing.T) {
	h := NewChatHandler(&mockQuotaService{}, &mockProvider{}, handlerLogger())

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing persona", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"no messages", `{"personaId":"p"}`},
		{"bad role", `{"personaId":"p","messages":[{"role":"system","content":"hi"}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Complete(rec, authedRequest("POST", "/api/chat", tc.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

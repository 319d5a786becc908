// Package mock provides a canned chat provider for testing and development.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/charlahq/charla/internal/ai"
)

// Provider is a mock chat provider for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	CompleteResponse *ai.Completion
	CompleteError    error

	// Call tracking for testing
	CompleteCalls int
}

// New creates a new mock provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Complete returns a canned reply that echoes the last user message.
func (p *Provider) Complete(ctx context.Context, params ai.CompletionParams) (*ai.Completion, error) {
	p.CompleteCalls++

	if p.CompleteError != nil {
		return nil, p.CompleteError
	}
	if p.CompleteResponse != nil {
		return p.CompleteResponse, nil
	}

	last := ""
	for i := len(params.Messages) - 1; i >= 0; i-- {
		if params.Messages[i].Role == "user" {
			last = params.Messages[i].Content
			break
		}
	}

	return &ai.Completion{
		Text: fmt.Sprintf("I hear you saying: %s", last),
		Usage: ai.UsageInfo{
			Model:        "mock-ai-v1",
			InputTokens:  120,
			OutputTokens: 40,
			Duration:     50 * time.Millisecond,
		},
	}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.CompleteCalls = 0
	p.CompleteResponse = nil
	p.CompleteError = nil
}

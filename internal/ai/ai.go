// Package ai defines the chat completion provider interface.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider generates assistant replies for persona chat.
type Provider interface {
	// Complete generates a single assistant reply for the given
	// conversation history.
	Complete(ctx context.Context, params CompletionParams) (*Completion, error)
}

// PromptMessage is one turn of conversation history sent to the model.
type PromptMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// CompletionParams contains parameters for a completion request.
type CompletionParams struct {
	PersonaID string          // Persona whose voice the reply is written in
	System    string          // System prompt override; empty uses the persona default
	Messages  []PromptMessage // Conversation history, oldest first
	MaxTokens int             // Response token cap; 0 uses the provider default
}

// Completion is a generated assistant reply.
type Completion struct {
	Text  string    // Reply text
	Usage UsageInfo // Token usage information
}

// UsageInfo tracks model usage for monitoring.
type UsageInfo struct {
	Model        string        // Model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for providers.
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIContentPolicy indicates the request violates content policy
	EAIContentPolicy = errors.New("request violates content policy")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

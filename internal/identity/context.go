// Package identity integrates the external identity provider.
//
// The provider issues signed bearer tokens carrying a stable account
// identifier and display-only profile fields. This package verifies
// tokens and provides the request-context helpers shared by middleware
// and handlers without import cycles.
package identity

import (
	"context"

	"github.com/charlahq/charla/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const accountContextKey contextKey = "account"

// GetAccount retrieves the authenticated account from the context.
// Returns nil if no account is authenticated.
func GetAccount(ctx context.Context) *domain.Account {
	acct, ok := ctx.Value(accountContextKey).(*domain.Account)
	if !ok {
		return nil
	}
	return acct
}

// SetAccount stores an account in the context. Called by the auth
// middleware after token verification.
func SetAccount(ctx context.Context, acct *domain.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, acct)
}

// Package middleware contains HTTP middleware for the Charla API.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/identity"
	"github.com/charlahq/charla/internal/service"
)

// AuthMiddleware authenticates requests with identity provider bearer
// tokens and provisions the account row on first sight.
type AuthMiddleware struct {
	verifier *identity.Verifier
	accounts service.AccountService
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(verifier *identity.Verifier, accounts service.AccountService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		accounts: accounts,
		logger:   logger,
	}
}

// WithAccount attempts to resolve the account from the Authorization
// header and stores it in the request context. The request continues
// regardless of authentication status.
func (m *AuthMiddleware) WithAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Debug("token verification failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		acct, err := m.accounts.EnsureAccount(r.Context(), domain.Account{
			ID:          claims.Subject,
			Email:       claims.Email,
			DisplayName: claims.DisplayName,
			Tier:        domain.ParseTier(claims.TierHint),
		})
		if err != nil {
			m.logger.Error("account provisioning failed",
				"account_id", claims.Subject, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(identity.SetAccount(r.Context(), acct)))
	})
}

// RequireAccount rejects requests without a resolved account.
// Must run after WithAccount.
func (m *AuthMiddleware) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity.GetAccount(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"Authentication required"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Stack composes multiple middleware functions into a single middleware.
// The first middleware in the slice is the outermost.
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

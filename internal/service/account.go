// Package service contains the business logic layer.
//
// This file implements the account service. Accounts mirror identities
// issued by the external identity provider: one is created on first
// sight of a verified token, and the profile fields are refreshed on
// subsequent sights. Tier is only advisory at creation; afterwards it is
// owned by the subscription service.
package service

import (
	"context"
	"log/slog"

	"github.com/charlahq/charla/internal/domain"
	"github.com/charlahq/charla/internal/store"
)

// AccountStore persists account rows.
type AccountStore interface {
	EnsureAccount(ctx context.Context, params domain.Account) (*domain.Account, error)
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
}

// AccountService defines account lookup and provisioning operations.
type AccountService interface {
	// EnsureAccount creates the account on first sight of an identity,
	// or refreshes its profile fields. The tier on params is a hint that
	// only applies at creation.
	EnsureAccount(ctx context.Context, params domain.Account) (*domain.Account, error)

	// GetByID retrieves an account. Returns domain.ENOTFOUND if absent.
	GetByID(ctx context.Context, accountID string) (*domain.Account, error)
}

type accountService struct {
	accounts AccountStore
	logger   *slog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(accounts AccountStore, logger *slog.Logger) AccountService {
	return &accountService{
		accounts: accounts,
		logger:   logger,
	}
}

func (s *accountService) EnsureAccount(ctx context.Context, params domain.Account) (*domain.Account, error) {
	const op = "account.ensure"

	if params.ID == "" {
		return nil, domain.Unauthorized(op, "account identifier is required")
	}

	// Unknown tier hints normalize to free rather than propagating
	// arbitrary strings into the catalog.
	params.Tier = domain.ParseTier(string(params.Tier))

	acct, err := s.accounts.EnsureAccount(ctx, params)
	if err != nil {
		return nil, domain.Unavailable(err, op)
	}
	return acct, nil
}

func (s *accountService) GetByID(ctx context.Context, accountID string) (*domain.Account, error) {
	const op = "account.get"

	if accountID == "" {
		return nil, domain.Unauthorized(op, "account identifier is required")
	}

	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NotFound(op, "account", accountID)
		}
		return nil, domain.Unavailable(err, op)
	}
	return acct, nil
}

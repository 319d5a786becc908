package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/charlahq/charla/internal/domain"
)

// EnsureAccount creates the account row on first sight of an identity
// token, or returns the existing row. The tier on params is advisory and
// only applies at creation; later tier changes go through the tier
// transition path exclusively.
func (p *Postgres) EnsureAccount(ctx context.Context, params domain.Account) (*domain.Account, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, tier)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			updated_at = now()
		RETURNING id, email, display_name, tier, created_at, updated_at`,
		params.ID, params.Email, params.DisplayName, string(params.Tier),
	)
	return scanAccount(row)
}

// GetAccount returns the account row, or ErrNotFound.
func (p *Postgres) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, email, display_name, tier, created_at, updated_at
		FROM accounts WHERE id = $1`,
		accountID,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return acct, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var acct domain.Account
	var tier string
	if err := row.Scan(&acct.ID, &acct.Email, &acct.DisplayName, &tier, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	acct.Tier = domain.ParseTier(tier)
	return &acct, nil
}

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ProviderTokenRepository handles provider_tokens database operations.
type ProviderTokenRepository struct {
	pool Pool
}

// Get retrieves the sealed token for a user and provider.
func (r *ProviderTokenRepository) Get(ctx context.Context, userID, provider string) (*ProviderToken, error) {
	query := `
		SELECT user_id, provider, sealed, updated_at
		FROM provider_tokens
		WHERE user_id = $1 AND provider = $2
	`
	var t ProviderToken
	err := r.pool.QueryRow(ctx, query, userID, provider).Scan(&t.UserID, &t.Provider, &t.Sealed, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying provider token: %w", err)
	}
	return &t, nil
}

// Upsert creates or replaces the sealed token for a user and provider.
func (r *ProviderTokenRepository) Upsert(ctx context.Context, t *ProviderToken) error {
	query := `
		INSERT INTO provider_tokens (user_id, provider, sealed, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, provider) DO UPDATE SET
			sealed = EXCLUDED.sealed,
			updated_at = NOW()
		RETURNING updated_at
	`
	if err := r.pool.QueryRow(ctx, query, t.UserID, t.Provider, t.Sealed).Scan(&t.UpdatedAt); err != nil {
		return fmt.Errorf("upserting provider token: %w", err)
	}
	return nil
}

// Delete removes the token for a user and provider. Missing rows are not an error.
func (r *ProviderTokenRepository) Delete(ctx context.Context, userID, provider string) error {
	query := `DELETE FROM provider_tokens WHERE user_id = $1 AND provider = $2`
	if _, err := r.pool.Exec(ctx, query, userID, provider); err != nil {
		return fmt.Errorf("deleting provider token: %w", err)
	}
	return nil
}

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ProfileRepository handles profile database operations.
type ProfileRepository struct {
	pool Pool
}

// Get retrieves a profile by user ID.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	query := `
		SELECT user_id, email, storage_quota, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`
	var p Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.Email,
		&p.StorageQuota,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return &p, nil
}

// Upsert creates or updates a profile.
func (r *ProfileRepository) Upsert(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (user_id, email, storage_quota, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			storage_quota = EXCLUDED.storage_quota,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query, p.UserID, p.Email, p.StorageQuota).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

// StorageUsed returns the total size in bytes of all tracks owned by the user.
func (r *ProfileRepository) StorageUsed(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COALESCE(SUM(file_size), 0)::bigint FROM tracks WHERE user_id = $1`
	var used int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&used); err != nil {
		return 0, fmt.Errorf("summing storage usage: %w", err)
	}
	return used, nil
}

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InviteRepository handles invite database operations.
type InviteRepository struct {
	pool Pool
}

// CodeExists reports whether an invite with the code already exists.
func (r *InviteRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invites WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking invite code: %w", err)
	}
	return exists, nil
}

// Create inserts a new invite.
func (r *InviteRepository) Create(ctx context.Context, inv *Invite) error {
	query := `
		INSERT INTO invites (code, email, created_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query, inv.Code, inv.Email, inv.CreatedBy, inv.ExpiresAt).Scan(&inv.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting invite: %w", err)
	}
	return nil
}

// Get retrieves an invite by code.
func (r *InviteRepository) Get(ctx context.Context, code string) (*Invite, error) {
	query := `
		SELECT code, email, created_by, expires_at, created_at, redeemed_at
		FROM invites
		WHERE code = $1
	`
	var inv Invite
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&inv.Code,
		&inv.Email,
		&inv.CreatedBy,
		&inv.ExpiresAt,
		&inv.CreatedAt,
		&inv.RedeemedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying invite: %w", err)
	}
	return &inv, nil
}

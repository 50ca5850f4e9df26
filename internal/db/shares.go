package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Share statuses.
const (
	ShareStatusPending  = "pending"
	ShareStatusAccepted = "accepted"
	ShareStatusActive   = "active"
)

// ShareRepository handles playlist_shares database operations.
type ShareRepository struct {
	pool Pool
}

// NormalizeEmail lower-cases and trims an email for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new share. The recipient email is stored normalized.
func (r *ShareRepository) Create(ctx context.Context, s *PlaylistShare) error {
	query := `
		INSERT INTO playlist_shares (id, playlist_id, shared_with_email, shared_by, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (playlist_id, shared_with_email) DO UPDATE SET
			shared_by = EXCLUDED.shared_by
		RETURNING id, status, created_at
	`
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = ShareStatusPending
	}
	s.SharedWithEmail = NormalizeEmail(s.SharedWithEmail)

	err := r.pool.QueryRow(ctx, query,
		s.ID,
		s.PlaylistID,
		s.SharedWithEmail,
		s.SharedBy,
		s.Status,
	).Scan(&s.ID, &s.Status, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting share: %w", err)
	}
	return nil
}

// Get retrieves a share by ID.
func (r *ShareRepository) Get(ctx context.Context, id string) (*PlaylistShare, error) {
	query := `
		SELECT id, playlist_id, shared_with_email, shared_by, status, created_at, accepted_at
		FROM playlist_shares
		WHERE id = $1
	`
	var s PlaylistShare
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.PlaylistID,
		&s.SharedWithEmail,
		&s.SharedBy,
		&s.Status,
		&s.CreatedAt,
		&s.AcceptedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying share: %w", err)
	}
	return &s, nil
}

// UpdateStatus sets a share's status, stamping accepted_at on acceptance.
func (r *ShareRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE playlist_shares
		SET status = $2,
			accepted_at = CASE WHEN $2 = 'accepted' THEN NOW() ELSE accepted_at END
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("updating share status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PlaylistIDsForEmail returns the IDs of playlists shared with the email at
// the given status. Matching is case-insensitive on both sides.
func (r *ShareRepository) PlaylistIDsForEmail(ctx context.Context, email, status string) ([]string, error) {
	query := `
		SELECT playlist_id
		FROM playlist_shares
		WHERE lower(shared_with_email) = $1 AND status = $2
	`
	rows, err := r.pool.Query(ctx, query, NormalizeEmail(email), status)
	if err != nil {
		return nil, fmt.Errorf("querying shared playlists: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning shared playlist: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

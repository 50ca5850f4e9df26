package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TrackRepository handles track database operations.
type TrackRepository struct {
	pool Pool
}

const trackColumns = `id, user_id, title, file_name, storage_path, file_size, category, created_at`

// Create inserts a new track.
func (r *TrackRepository) Create(ctx context.Context, track *Track) error {
	query := `
		INSERT INTO tracks (id, user_id, title, file_name, storage_path, file_size, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		track.ID,
		track.UserID,
		track.Title,
		track.FileName,
		track.StoragePath,
		track.FileSize,
		track.Category,
	).Scan(&track.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting track: %w", err)
	}
	return nil
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(ctx context.Context, id string) (*Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = $1`
	track, err := scanTrack(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return track, nil
}

// GetMany retrieves the tracks with the given IDs, keyed by ID.
// Missing IDs are absent from the result.
func (r *TrackRepository) GetMany(ctx context.Context, ids []string) (map[string]Track, error) {
	result := make(map[string]Track, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ANY($1::text[])`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		result[track.ID] = *track
	}
	return result, rows.Err()
}

// ListForUser retrieves all tracks owned by a user, newest first.
func (r *TrackRepository) ListForUser(ctx context.Context, userID string) ([]Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user tracks: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, *track)
	}
	return tracks, rows.Err()
}

// OwnedBy returns the subset of ids whose track is owned by userID.
func (r *TrackRepository) OwnedBy(ctx context.Context, userID string, ids []string) (map[string]bool, error) {
	owned := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return owned, nil
	}

	query := `SELECT id FROM tracks WHERE user_id = $1 AND id = ANY($2::text[])`
	rows, err := r.pool.Query(ctx, query, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("querying owned tracks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning track id: %w", err)
		}
		owned[id] = true
	}
	return owned, rows.Err()
}

func scanTrack(row pgx.Row) (*Track, error) {
	var t Track
	if err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.FileName,
		&t.StoragePath,
		&t.FileSize,
		&t.Category,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PlaylistRepository handles playlist and playlist_tracks database operations.
type PlaylistRepository struct {
	pool Pool
}

// Create inserts a new playlist.
func (r *PlaylistRepository) Create(ctx context.Context, p *Playlist) error {
	query := `
		INSERT INTO playlists (id, user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, query, p.ID, p.UserID, p.Name, p.Description).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting playlist: %w", err)
	}
	return nil
}

// Get retrieves a playlist by ID.
func (r *PlaylistRepository) Get(ctx context.Context, id string) (*Playlist, error) {
	query := `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM playlists
		WHERE id = $1
	`
	var p Playlist
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Description,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying playlist: %w", err)
	}
	return &p, nil
}

// ListByIDs retrieves the playlists with the given IDs, ordered by name.
func (r *PlaylistRepository) ListByIDs(ctx context.Context, ids []string) ([]Playlist, error) {
	if len(ids) == 0 {
		return []Playlist{}, nil
	}

	query := `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM playlists
		WHERE id = ANY($1::text[])
		ORDER BY name ASC
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("querying playlists: %w", err)
	}
	defer rows.Close()

	playlists := []Playlist{}
	for rows.Next() {
		var p Playlist
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// TrackIDs returns the playlist's track IDs ordered by position.
func (r *PlaylistRepository) TrackIDs(ctx context.Context, playlistID string) ([]string, error) {
	query := `
		SELECT track_id
		FROM playlist_tracks
		WHERE playlist_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("querying playlist tracks: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning playlist track: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetTracks replaces the playlist's tracks, assigning positions 0..n-1 in
// the given order.
func (r *PlaylistRepository) SetTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM playlist_tracks WHERE playlist_id = $1`, playlistID); err != nil {
		return fmt.Errorf("clearing playlist tracks: %w", err)
	}

	if len(trackIDs) > 0 {
		positions := make([]int32, len(trackIDs))
		for i := range trackIDs {
			positions[i] = int32(i)
		}
		query := `
			INSERT INTO playlist_tracks (playlist_id, track_id, position)
			SELECT $1, * FROM unnest($2::text[], $3::int[])
		`
		if _, err := tx.Exec(ctx, query, playlistID, trackIDs, positions); err != nil {
			return fmt.Errorf("inserting playlist tracks: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE playlists SET updated_at = NOW() WHERE id = $1`, playlistID); err != nil {
		return fmt.Errorf("touching playlist: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ContainsTrack reports whether any of the playlists contains the track.
func (r *PlaylistRepository) ContainsTrack(ctx context.Context, playlistIDs []string, trackID string) (bool, error) {
	if len(playlistIDs) == 0 {
		return false, nil
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM playlist_tracks
			WHERE playlist_id = ANY($1::text[]) AND track_id = $2
		)
	`
	var found bool
	if err := r.pool.QueryRow(ctx, query, playlistIDs, trackID).Scan(&found); err != nil {
		return false, fmt.Errorf("checking playlist membership: %w", err)
	}
	return found, nil
}

// TrackIDsIn returns the distinct track IDs contained in any of the playlists.
func (r *PlaylistRepository) TrackIDsIn(ctx context.Context, playlistIDs []string) ([]string, error) {
	if len(playlistIDs) == 0 {
		return []string{}, nil
	}

	query := `
		SELECT DISTINCT track_id
		FROM playlist_tracks
		WHERE playlist_id = ANY($1::text[])
	`
	rows, err := r.pool.Query(ctx, query, playlistIDs)
	if err != nil {
		return nil, fmt.Errorf("querying shared tracks: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning shared track: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

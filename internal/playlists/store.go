package playlists

import (
	"context"

	"github.com/justestif/coretet/internal/db"
)

// DBStore implements Store on the PostgreSQL repositories.
type DBStore struct {
	db *db.DB
}

var _ Store = (*DBStore)(nil)

// NewDBStore creates a Store backed by database.
func NewDBStore(database *db.DB) *DBStore {
	return &DBStore{db: database}
}

func (s *DBStore) CreatePlaylist(ctx context.Context, p *db.Playlist) error {
	return s.db.Playlists().Create(ctx, p)
}

func (s *DBStore) GetPlaylist(ctx context.Context, id string) (*db.Playlist, error) {
	return s.db.Playlists().Get(ctx, id)
}

func (s *DBStore) ListPlaylists(ctx context.Context, ids []string) ([]db.Playlist, error) {
	return s.db.Playlists().ListByIDs(ctx, ids)
}

func (s *DBStore) TrackIDs(ctx context.Context, playlistID string) ([]string, error) {
	return s.db.Playlists().TrackIDs(ctx, playlistID)
}

func (s *DBStore) SetTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	return s.db.Playlists().SetTracks(ctx, playlistID, trackIDs)
}

func (s *DBStore) OwnedTracks(ctx context.Context, userID string, ids []string) (map[string]bool, error) {
	return s.db.Tracks().OwnedBy(ctx, userID, ids)
}

func (s *DBStore) CreateShare(ctx context.Context, sh *db.PlaylistShare) error {
	return s.db.Shares().Create(ctx, sh)
}

func (s *DBStore) GetShare(ctx context.Context, id string) (*db.PlaylistShare, error) {
	return s.db.Shares().Get(ctx, id)
}

func (s *DBStore) SetShareStatus(ctx context.Context, id, status string) error {
	return s.db.Shares().UpdateStatus(ctx, id, status)
}

func (s *DBStore) AcceptedPlaylistIDs(ctx context.Context, email string) ([]string, error) {
	return s.db.Shares().PlaylistIDsForEmail(ctx, email, db.ShareStatusAccepted)
}

package library

import (
	"context"
	"errors"

	"github.com/justestif/coretet/internal/db"
)

// Store is the persistence the library service needs.
type Store interface {
	// GetTrack returns db.ErrNotFound when the track does not exist.
	GetTrack(ctx context.Context, id string) (*db.Track, error)
	GetTracks(ctx context.Context, ids []string) (map[string]db.Track, error)
	CreateTrack(ctx context.Context, t *db.Track) error
	ListTracks(ctx context.Context, userID string) ([]db.Track, error)

	// AcceptedPlaylistIDs returns playlists with an accepted share for email.
	AcceptedPlaylistIDs(ctx context.Context, email string) ([]string, error)
	PlaylistsContain(ctx context.Context, playlistIDs []string, trackID string) (bool, error)
	TrackIDsIn(ctx context.Context, playlistIDs []string) ([]string, error)

	StorageUsed(ctx context.Context, userID string) (int64, error)

	// StorageQuota returns the user's quota and false when no profile exists.
	StorageQuota(ctx context.Context, userID string) (int64, bool, error)
}

// DBStore implements Store on the PostgreSQL repositories.
type DBStore struct {
	db *db.DB
}

var _ Store = (*DBStore)(nil)

// NewDBStore creates a Store backed by database.
func NewDBStore(database *db.DB) *DBStore {
	return &DBStore{db: database}
}

func (s *DBStore) GetTrack(ctx context.Context, id string) (*db.Track, error) {
	return s.db.Tracks().Get(ctx, id)
}

func (s *DBStore) GetTracks(ctx context.Context, ids []string) (map[string]db.Track, error) {
	return s.db.Tracks().GetMany(ctx, ids)
}

func (s *DBStore) CreateTrack(ctx context.Context, t *db.Track) error {
	return s.db.Tracks().Create(ctx, t)
}

func (s *DBStore) ListTracks(ctx context.Context, userID string) ([]db.Track, error) {
	return s.db.Tracks().ListForUser(ctx, userID)
}

func (s *DBStore) AcceptedPlaylistIDs(ctx context.Context, email string) ([]string, error) {
	return s.db.Shares().PlaylistIDsForEmail(ctx, email, db.ShareStatusAccepted)
}

func (s *DBStore) PlaylistsContain(ctx context.Context, playlistIDs []string, trackID string) (bool, error) {
	return s.db.Playlists().ContainsTrack(ctx, playlistIDs, trackID)
}

func (s *DBStore) TrackIDsIn(ctx context.Context, playlistIDs []string) ([]string, error) {
	return s.db.Playlists().TrackIDsIn(ctx, playlistIDs)
}

func (s *DBStore) StorageUsed(ctx context.Context, userID string) (int64, error) {
	return s.db.Profiles().StorageUsed(ctx, userID)
}

func (s *DBStore) StorageQuota(ctx context.Context, userID string) (int64, bool, error) {
	p, err := s.db.Profiles().Get(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return p.StorageQuota, true, nil
}

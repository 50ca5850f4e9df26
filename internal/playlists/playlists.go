// Package playlists manages playlists, their track order and email shares.
package playlists

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/justestif/coretet/internal/apperr"
	"github.com/justestif/coretet/internal/auth"
	"github.com/justestif/coretet/internal/db"
	"github.com/justestif/coretet/internal/events"
)

// Store is the persistence the playlist service needs. Lookups return
// db.ErrNotFound for missing rows.
type Store interface {
	CreatePlaylist(ctx context.Context, p *db.Playlist) error
	GetPlaylist(ctx context.Context, id string) (*db.Playlist, error)
	ListPlaylists(ctx context.Context, ids []string) ([]db.Playlist, error)
	TrackIDs(ctx context.Context, playlistID string) ([]string, error)
	SetTracks(ctx context.Context, playlistID string, trackIDs []string) error
	OwnedTracks(ctx context.Context, userID string, ids []string) (map[string]bool, error)

	CreateShare(ctx context.Context, s *db.PlaylistShare) error
	GetShare(ctx context.Context, id string) (*db.PlaylistShare, error)
	SetShareStatus(ctx context.Context, id, status string) error
	AcceptedPlaylistIDs(ctx context.Context, email string) ([]string, error)
}

// View is a playlist together with its ordered track ids.
type View struct {
	db.Playlist
	TrackIDs []string
}

// Service implements playlist operations for an authenticated caller.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *log.Logger
}

// NewService creates a playlist Service. A nil publisher discards events.
func NewService(store Store, publisher events.Publisher, logger *log.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: store, publisher: publisher, logger: logger}
}

// Create creates an empty playlist owned by the caller.
func (s *Service) Create(ctx context.Context, caller auth.Identity, name, description string) (*View, error) {
	if caller.ID == "" {
		return nil, apperr.ErrUnauthorized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}

	p := db.Playlist{UserID: caller.ID, Name: name, Description: description}
	if err := s.store.CreatePlaylist(ctx, &p); err != nil {
		return nil, fmt.Errorf("%w: creating playlist: %v", apperr.ErrUpstream, err)
	}
	return &View{Playlist: p, TrackIDs: []string{}}, nil
}

// Get returns a playlist the caller owns or holds an accepted share for.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id string) (*View, error) {
	p, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if p.UserID != caller.ID {
		ok, err := s.sharedWith(ctx, caller.Email, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.ErrForbidden
		}
	}

	ids, err := s.store.TrackIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: loading playlist tracks: %v", apperr.ErrUpstream, err)
	}
	return &View{Playlist: *p, TrackIDs: ids}, nil
}

// SetTracks replaces the playlist's track order. Only the owner may reorder,
// and every track must belong to the owner.
func (s *Service) SetTracks(ctx context.Context, caller auth.Identity, id string, trackIDs []string) (*View, error) {
	p, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != caller.ID {
		return nil, apperr.ErrForbidden
	}

	seen := make(map[string]bool, len(trackIDs))
	for _, tid := range trackIDs {
		if tid == "" {
			return nil, fmt.Errorf("%w: empty track id", apperr.ErrValidation)
		}
		if seen[tid] {
			return nil, fmt.Errorf("%w: duplicate track %s", apperr.ErrValidation, tid)
		}
		seen[tid] = true
	}

	owned, err := s.store.OwnedTracks(ctx, caller.ID, trackIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: checking track ownership: %v", apperr.ErrUpstream, err)
	}
	for _, tid := range trackIDs {
		if !owned[tid] {
			return nil, fmt.Errorf("%w: track %s is not yours", apperr.ErrValidation, tid)
		}
	}

	if err := s.store.SetTracks(ctx, id, trackIDs); err != nil {
		return nil, fmt.Errorf("%w: saving playlist tracks: %v", apperr.ErrUpstream, err)
	}
	if trackIDs == nil {
		trackIDs = []string{}
	}
	return &View{Playlist: *p, TrackIDs: trackIDs}, nil
}

// Share invites email to the playlist. The share starts pending.
func (s *Service) Share(ctx context.Context, caller auth.Identity, id, email string) (*db.PlaylistShare, error) {
	p, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != caller.ID {
		return nil, apperr.ErrForbidden
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email", apperr.ErrValidation)
	}
	recipient := db.NormalizeEmail(addr.Address)
	if recipient == db.NormalizeEmail(caller.Email) {
		return nil, fmt.Errorf("%w: cannot share a playlist with yourself", apperr.ErrValidation)
	}

	share := db.PlaylistShare{
		PlaylistID:      id,
		SharedWithEmail: recipient,
		SharedBy:        caller.ID,
		Status:          db.ShareStatusPending,
	}
	if err := s.store.CreateShare(ctx, &share); err != nil {
		return nil, fmt.Errorf("%w: creating share: %v", apperr.ErrUpstream, err)
	}

	s.publisher.Publish(ctx, events.Event{
		Type:   events.PlaylistShared,
		UserID: caller.ID,
		Payload: map[string]any{
			"playlistId": id,
			"shareId":    share.ID,
			"email":      recipient,
		},
	})
	return &share, nil
}

// Accept accepts a pending share addressed to the caller's email.
// Accepting an already accepted share is a no-op.
func (s *Service) Accept(ctx context.Context, caller auth.Identity, shareID string) (*db.PlaylistShare, error) {
	if caller.ID == "" {
		return nil, apperr.ErrUnauthorized
	}

	share, err := s.store.GetShare(ctx, shareID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("share %s: %w", shareID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading share: %v", apperr.ErrUpstream, err)
	}

	if db.NormalizeEmail(share.SharedWithEmail) != db.NormalizeEmail(caller.Email) {
		return nil, apperr.ErrForbidden
	}
	if share.Status == db.ShareStatusAccepted {
		return share, nil
	}

	if err := s.store.SetShareStatus(ctx, shareID, db.ShareStatusAccepted); err != nil {
		return nil, fmt.Errorf("%w: accepting share: %v", apperr.ErrUpstream, err)
	}
	share.Status = db.ShareStatusAccepted

	s.publisher.Publish(ctx, events.Event{
		Type:   events.PlaylistShareAccept,
		UserID: caller.ID,
		Payload: map[string]any{
			"playlistId": share.PlaylistID,
			"shareId":    share.ID,
		},
	})
	return share, nil
}

// SharedWithMe lists playlists with an accepted share for the caller.
func (s *Service) SharedWithMe(ctx context.Context, caller auth.Identity) ([]db.Playlist, error) {
	if caller.ID == "" {
		return nil, apperr.ErrUnauthorized
	}
	email := db.NormalizeEmail(caller.Email)
	if email == "" {
		return []db.Playlist{}, nil
	}

	ids, err := s.store.AcceptedPlaylistIDs(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: loading shares: %v", apperr.ErrUpstream, err)
	}
	list, err := s.store.ListPlaylists(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: loading playlists: %v", apperr.ErrUpstream, err)
	}
	return list, nil
}

func (s *Service) load(ctx context.Context, caller auth.Identity, id string) (*db.Playlist, error) {
	if caller.ID == "" {
		return nil, apperr.ErrUnauthorized
	}
	p, err := s.store.GetPlaylist(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("playlist %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading playlist: %v", apperr.ErrUpstream, err)
	}
	return p, nil
}

func (s *Service) sharedWith(ctx context.Context, email, playlistID string) (bool, error) {
	email = db.NormalizeEmail(email)
	if email == "" {
		return false, nil
	}
	ids, err := s.store.AcceptedPlaylistIDs(ctx, email)
	if err != nil {
		return false, fmt.Errorf("%w: loading shares: %v", apperr.ErrUpstream, err)
	}
	for _, id := range ids {
		if id == playlistID {
			return true, nil
		}
	}
	return false, nil
}

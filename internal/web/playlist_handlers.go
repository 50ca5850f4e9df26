package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/justestif/coretet/internal/auth"
	"github.com/justestif/coretet/internal/db"
	"github.com/justestif/coretet/internal/playlists"
)

// PlaylistService manages playlists and shares.
type PlaylistService interface {
	Create(ctx context.Context, caller auth.Identity, name, description string) (*playlists.View, error)
	Get(ctx context.Context, caller auth.Identity, id string) (*playlists.View, error)
	SetTracks(ctx context.Context, caller auth.Identity, id string, trackIDs []string) (*playlists.View, error)
	Share(ctx context.Context, caller auth.Identity, id, email string) (*db.PlaylistShare, error)
	Accept(ctx context.Context, caller auth.Identity, shareID string) (*db.PlaylistShare, error)
	SharedWithMe(ctx context.Context, caller auth.Identity) ([]db.Playlist, error)
}

var _ PlaylistService = (*playlists.Service)(nil)

type playlistResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TrackIDs    []string  `json:"trackIds,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newPlaylistResponse(p db.Playlist, trackIDs []string) playlistResponse {
	return playlistResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		Name:        p.Name,
		Description: p.Description,
		TrackIDs:    trackIDs,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func viewResponse(v *playlists.View) playlistResponse {
	ids := v.TrackIDs
	if ids == nil {
		ids = []string{}
	}
	return newPlaylistResponse(v.Playlist, ids)
}

type shareResponse struct {
	ID              string     `json:"id"`
	PlaylistID      string     `json:"playlistId"`
	SharedWithEmail string     `json:"sharedWithEmail"`
	SharedBy        string     `json:"sharedBy"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	AcceptedAt      *time.Time `json:"acceptedAt,omitempty"`
}

func newShareResponse(s *db.PlaylistShare) shareResponse {
	return shareResponse{
		ID:              s.ID,
		PlaylistID:      s.PlaylistID,
		SharedWithEmail: s.SharedWithEmail,
		SharedBy:        s.SharedBy,
		Status:          s.Status,
		CreatedAt:       s.CreatedAt,
		AcceptedAt:      s.AcceptedAt,
	}
}

// CreatePlaylist handles POST /playlists.
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	v, err := h.playlists.Create(r.Context(), identity(r), body.Name, body.Description)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewResponse(v))
}

// GetPlaylist handles GET /playlists/{id}.
func (h *Handlers) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	v, err := h.playlists.Get(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse(v))
}

// SetPlaylistTracks handles PUT /playlists/{id}/tracks.
func (h *Handlers) SetPlaylistTracks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackIDs []string `json:"trackIds"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	v, err := h.playlists.SetTracks(r.Context(), identity(r), chi.URLParam(r, "id"), body.TrackIDs)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse(v))
}

// SharePlaylist handles POST /playlists/{id}/shares.
func (h *Handlers) SharePlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	share, err := h.playlists.Share(r.Context(), identity(r), chi.URLParam(r, "id"), body.Email)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newShareResponse(share))
}

// AcceptShare handles POST /shares/{id}/accept.
func (h *Handlers) AcceptShare(w http.ResponseWriter, r *http.Request) {
	share, err := h.playlists.Accept(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newShareResponse(share))
}

// SharedPlaylists handles GET /playlists/shared.
func (h *Handlers) SharedPlaylists(w http.ResponseWriter, r *http.Request) {
	list, err := h.playlists.SharedWithMe(r.Context(), identity(r))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	out := make([]playlistResponse, 0, len(list))
	for _, p := range list {
		out = append(out, newPlaylistResponse(p, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": out})
}

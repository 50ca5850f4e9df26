package web

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/coretet/internal/auth"
	"github.com/justestif/coretet/internal/db"
	"github.com/justestif/coretet/internal/feedback"
	"github.com/justestif/coretet/internal/invites"
	"github.com/justestif/coretet/internal/library"
)

// TrackService issues track URLs and admits uploads.
type TrackService interface {
	TrackURL(ctx context.Context, caller auth.Identity, trackID string) (string, error)
	TrackURLs(ctx context.Context, caller auth.Identity, trackIDs []string) (*library.BatchResult, error)
	IntakeUpload(ctx context.Context, caller auth.Identity, req library.UploadRequest) (*library.Upload, error)
	ListTracks(ctx context.Context, caller auth.Identity) ([]db.Track, error)
}

// InviteService generates invite codes.
type InviteService interface {
	Generate(ctx context.Context, caller auth.Identity, req invites.Request) (*db.Invite, error)
}

// FeedbackService relays feedback.
type FeedbackService interface {
	Submit(ctx context.Context, caller auth.Identity, fb feedback.Feedback) error
}

var (
	_ TrackService    = (*library.Service)(nil)
	_ InviteService   = (*invites.Service)(nil)
	_ FeedbackService = (*feedback.Service)(nil)
)

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	tracks    TrackService
	playlists PlaylistService
	invites   InviteService
	feedback  FeedbackService
	providers ProviderSessions
	consent   ConsentFlow
	logger    *log.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, logger *log.Logger) *Handlers {
	return &Handlers{
		tracks:    deps.Tracks,
		playlists: deps.Playlists,
		invites:   deps.Invites,
		feedback:  deps.Feedback,
		providers: deps.Providers,
		consent:   deps.Consent,
		logger:    logger,
	}
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type trackResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	FileName    string    `json:"fileName"`
	StoragePath string    `json:"storagePath"`
	FileSize    int64     `json:"fileSize"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newTrackResponse(t db.Track) trackResponse {
	return trackResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		FileName:    t.FileName,
		StoragePath: t.StoragePath,
		FileSize:    t.FileSize,
		Category:    t.Category,
		CreatedAt:   t.CreatedAt,
	}
}

// GetTrackURL handles POST /functions/v1/get-track-url.
func (h *Handlers) GetTrackURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackID string `json:"trackId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "trackId is required")
		return
	}

	url, err := h.tracks.TrackURL(r.Context(), identity(r), body.TrackID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// GetTrackURLs handles POST /functions/v1/get-track-urls.
func (h *Handlers) GetTrackURLs(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackIDs []string `json:"trackIds"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.TrackIDs) == 0 {
		writeError(w, http.StatusBadRequest, "trackIds must be a non-empty array")
		return
	}

	res, err := h.tracks.TrackURLs(r.Context(), identity(r), body.TrackIDs)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadTrack handles POST /functions/v1/upload-track.
func (h *Handlers) UploadTrack(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FileName string `json:"fileName"`
		FileSize int64  `json:"fileSize"`
		Category string `json:"category"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	up, err := h.tracks.IntakeUpload(r.Context(), identity(r), library.UploadRequest{
		FileName: body.FileName,
		FileSize: body.FileSize,
		Category: body.Category,
	})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"track":     newTrackResponse(up.Track),
		"uploadUrl": up.UploadURL,
		"path":      up.Path,
		"token":     up.Token,
	})
}

// ListTracks handles GET /tracks.
func (h *Handlers) ListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.tracks.ListTracks(r.Context(), identity(r))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	out := make([]trackResponse, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, newTrackResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": out})
}

// GenerateInvite handles POST /functions/v1/generate-invite.
func (h *Handlers) GenerateInvite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email         string `json:"email"`
		ExpiresInDays int    `json:"expiresInDays"`
	}
	if !decodeOptionalJSON(w, r, &body) {
		return
	}

	inv, err := h.invites.Generate(r.Context(), identity(r), invites.Request{
		Email:         body.Email,
		ExpiresInDays: body.ExpiresInDays,
	})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code":      inv.Code,
		"email":     inv.Email,
		"expiresAt": inv.ExpiresAt,
		"createdAt": inv.CreatedAt,
	})
}

// SendFeedback handles POST /functions/v1/send-feedback.
func (h *Handlers) SendFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
		Message  string `json:"message"`
		PageURL  string `json:"pageUrl"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	err := h.feedback.Submit(r.Context(), identity(r), feedback.Feedback{
		Category: body.Category,
		Message:  body.Message,
		PageURL:  body.PageURL,
	})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

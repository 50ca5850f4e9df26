// Package library issues signed retrieval URLs for tracks and admits new
// uploads. Access to a track is granted to its owner and to any caller whose
// email holds an accepted share of a playlist containing it.
package library

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/justestif/coretet/internal/apperr"
	"github.com/justestif/coretet/internal/auth"
	"github.com/justestif/coretet/internal/db"
	"github.com/justestif/coretet/internal/events"
	"github.com/justestif/coretet/internal/objectstore"
)

// Defaults.
const (
	DefaultURLTTL       = time.Hour
	DefaultMaxFileSize  = 100 * 1024 * 1024 // 104,857,600 bytes
	DefaultStorageQuota = 1024 * 1024 * 1024
	DefaultCategory     = "songs"
)

// Per-item reasons reported by TrackURLs.
const (
	ReasonAccessDenied = "Access denied"
	ReasonNotFound     = "Track not found"
	ReasonMintFailed   = "Failed to generate URL"
)

// Categories lists the accepted track categories.
var Categories = map[string]bool{
	"songs":             true,
	"demos":             true,
	"ideas":             true,
	"voice-memos":       true,
	"final-versions":    true,
	"live-performances": true,
}

var allowedExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".flac": true,
}

// Service implements the signed-URL issuers and upload intake.
type Service struct {
	store        Store
	objects      objectstore.Store
	publisher    events.Publisher
	logger       *log.Logger
	urlTTL       time.Duration
	maxFileSize  int64
	defaultQuota int64
	newID        func() string
}

// Option configures a Service.
type Option func(*Service)

// WithURLTTL sets the lifetime of minted retrieval URLs.
func WithURLTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.urlTTL = d
		}
	}
}

// WithMaxFileSize sets the per-upload byte limit.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFileSize = n
		}
	}
}

// WithDefaultQuota sets the quota for users without a profile.
func WithDefaultQuota(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultQuota = n
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a library Service.
func NewService(store Store, objects objectstore.Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		objects:      objects,
		publisher:    events.Nop{},
		logger:       log.Default(),
		urlTTL:       DefaultURLTTL,
		maxFileSize:  DefaultMaxFileSize,
		defaultQuota: DefaultStorageQuota,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TrackURL returns a signed retrieval URL for a single track.
func (s *Service) TrackURL(ctx context.Context, caller auth.Identity, trackID string) (string, error) {
	if caller.ID == "" {
		return "", apperr.ErrUnauthorized
	}
	if trackID == "" {
		return "", fmt.Errorf("%w: trackId is required", apperr.ErrValidation)
	}

	track, err := s.store.GetTrack(ctx, trackID)
	if errors.Is(err, db.ErrNotFound) {
		return "", fmt.Errorf("track %s: %w", trackID, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%w: loading track: %v", apperr.ErrUpstream, err)
	}

	if track.UserID != caller.ID {
		ok, err := s.sharedWith(ctx, caller.Email, trackID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", apperr.ErrForbidden
		}
	}

	url, err := s.objects.SignedURL(ctx, track.StoragePath, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("%w: signing url: %v", apperr.ErrUpstream, err)
	}
	return url, nil
}

// ListTracks returns the caller's own tracks, newest first.
func (s *Service) ListTracks(ctx context.Context, caller auth.Identity) ([]db.Track, error) {
	if caller.ID == "" {
		return nil, apperr.ErrUnauthorized
	}
	tracks, err := s.store.ListTracks(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing tracks: %v", apperr.ErrUpstream, err)
	}
	if tracks == nil {
		tracks = []db.Track{}
	}
	return tracks, nil
}

func (s *Service) sharedWith(ctx context.Context, email, trackID string) (bool, error) {
	email = db.NormalizeEmail(email)
	if email == "" {
		return false, nil
	}
	playlistIDs, err := s.store.AcceptedPlaylistIDs(ctx, email)
	if err != nil {
		return false, fmt.Errorf("%w: loading shares: %v", apperr.ErrUpstream, err)
	}
	if len(playlistIDs) == 0 {
		return false, nil
	}
	ok, err := s.store.PlaylistsContain(ctx, playlistIDs, trackID)
	if err != nil {
		return false, fmt.Errorf("%w: checking playlists: %v", apperr.ErrUpstream, err)
	}
	return ok, nil
}

// BatchResult partitions requested track ids. Every requested id appears in
// exactly one of the two maps.
type BatchResult struct {
	URLs   map[string]string `json:"urls"`
	Errors map[string]string `json:"errors"`
}

// TrackURLs returns signed URLs for each requested track the caller may
// access. Per-track failures are reported in Errors and never abort the batch.
func (s *Service) TrackURLs(ctx context.Context, caller auth.Identity, trackIDs []string) (*BatchResult, error) {
	if caller.ID == "" {
		return nil, apperr.ErrUnauthorized
	}
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: trackIds must be a non-empty list", apperr.ErrValidation)
	}

	shared, err := s.sharedTrackSet(ctx, caller.Email)
	if err != nil {
		return nil, err
	}

	tracks, err := s.store.GetTracks(ctx, trackIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: loading tracks: %v", apperr.ErrUpstream, err)
	}

	result := &BatchResult{
		URLs:   make(map[string]string, len(trackIDs)),
		Errors: make(map[string]string),
	}
	for _, id := range trackIDs {
		if _, done := result.URLs[id]; done {
			continue
		}
		if _, done := result.Errors[id]; done {
			continue
		}

		track, ok := tracks[id]
		if !ok {
			result.Errors[id] = ReasonNotFound
			continue
		}
		if track.UserID != caller.ID && !shared[id] {
			result.Errors[id] = ReasonAccessDenied
			continue
		}

		url, err := s.objects.SignedURL(ctx, track.StoragePath, s.urlTTL)
		if err != nil {
			s.logger.Error("signing track url", "track", id, "err", err)
			result.Errors[id] = ReasonMintFailed
			continue
		}
		result.URLs[id] = url
	}
	return result, nil
}

// sharedTrackSet loads the ids of every track reachable through the caller's
// accepted shares: shared playlist ids first, then their track ids.
func (s *Service) sharedTrackSet(ctx context.Context, email string) (map[string]bool, error) {
	set := make(map[string]bool)
	email = db.NormalizeEmail(email)
	if email == "" {
		return set, nil
	}

	playlistIDs, err := s.store.AcceptedPlaylistIDs(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: loading shares: %v", apperr.ErrUpstream, err)
	}
	if len(playlistIDs) == 0 {
		return set, nil
	}

	trackIDs, err := s.store.TrackIDsIn(ctx, playlistIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: loading shared tracks: %v", apperr.ErrUpstream, err)
	}
	for _, id := range trackIDs {
		set[id] = true
	}
	return set, nil
}

// UploadRequest describes a file the caller intends to upload.
type UploadRequest struct {
	FileName string
	FileSize int64
	Category string
}

// Upload is the result of a successful intake.
type Upload struct {
	Track     db.Track
	UploadURL string
	Path      string
	Token     string
}

// IntakeUpload validates an upload, creates its track record and returns a
// signed upload URL. If the insert fails after the URL is minted, the URL is
// left unused; there is no compensation.
func (s *Service) IntakeUpload(ctx context.Context, caller auth.Identity, req UploadRequest) (*Upload, error) {
	if caller.ID == "" {
		return nil, apperr.ErrUnauthorized
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, caller.ID, req.FileSize); err != nil {
		return nil, err
	}

	trackID := s.newID()
	storagePath := caller.ID + "/" + trackID + "/" + req.FileName

	signed, err := s.objects.SignedUploadURL(ctx, storagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: signing upload url: %v", apperr.ErrUpstream, err)
	}

	category := req.Category
	if category == "" {
		category = DefaultCategory
	}
	track := db.Track{
		ID:          trackID,
		UserID:      caller.ID,
		Title:       strings.TrimSuffix(req.FileName, path.Ext(req.FileName)),
		FileName:    req.FileName,
		StoragePath: storagePath,
		FileSize:    req.FileSize,
		Category:    category,
	}
	if err := s.store.CreateTrack(ctx, &track); err != nil {
		s.logger.Error("track insert failed after upload url was minted",
			"track", trackID, "path", storagePath, "err", err)
		return nil, fmt.Errorf("%w: creating track: %v", apperr.ErrUpstream, err)
	}

	s.publisher.Publish(ctx, events.Event{
		Type:   events.TrackCreated,
		UserID: caller.ID,
		Payload: map[string]any{
			"trackId":  track.ID,
			"fileSize": track.FileSize,
			"category": track.Category,
		},
	})

	return &Upload{
		Track:     track,
		UploadURL: signed.URL,
		Path:      storagePath,
		Token:     signed.Token,
	}, nil
}

func (s *Service) validate(req UploadRequest) error {
	name := req.FileName
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: fileName is required", apperr.ErrValidation)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: fileName must not contain path separators", apperr.ErrValidation)
	}
	ext := strings.ToLower(path.Ext(name))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: %q, allowed: .mp3, .m4a, .wav, .flac", apperr.ErrUnsupportedType, ext)
	}
	if req.FileSize <= 0 {
		return fmt.Errorf("%w: fileSize must be positive", apperr.ErrValidation)
	}
	if req.FileSize > s.maxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", apperr.ErrTooLarge, req.FileSize, s.maxFileSize)
	}
	if req.Category != "" && !Categories[req.Category] {
		return fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, req.Category)
	}
	return nil
}

func (s *Service) checkQuota(ctx context.Context, userID string, size int64) error {
	quota, ok, err := s.store.StorageQuota(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: loading quota: %v", apperr.ErrUpstream, err)
	}
	if !ok {
		quota = s.defaultQuota
	}

	used, err := s.store.StorageUsed(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: loading usage: %v", apperr.ErrUpstream, err)
	}

	if used+size > quota {
		return fmt.Errorf("%w: %d of %d bytes used", apperr.ErrQuotaExceeded, used, quota)
	}
	return nil
}

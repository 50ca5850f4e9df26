package db

import (
	"time"
)

// Profile holds per-user account settings.
type Profile struct {
	UserID       string
	Email        string
	StorageQuota int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Track represents an uploaded audio file.
type Track struct {
	ID          string
	UserID      string
	Title       string
	FileName    string
	StoragePath string
	FileSize    int64
	Category    string
	CreatedAt   time.Time
}

// Playlist represents a user-owned playlist.
type Playlist struct {
	ID          string
	UserID      string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PlaylistShare links a playlist to a recipient email.
type PlaylistShare struct {
	ID              string
	PlaylistID      string
	SharedWithEmail string
	SharedBy        string
	Status          string
	CreatedAt       time.Time
	AcceptedAt      *time.Time // nullable
}

// Invite represents a generated invite code.
type Invite struct {
	Code       string
	Email      *string // nullable
	CreatedBy  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RedeemedAt *time.Time // nullable
}

// ProviderToken holds a sealed OAuth token for an external storage provider.
type ProviderToken struct {
	UserID    string
	Provider  string
	Sealed    []byte
	UpdatedAt time.Time
}

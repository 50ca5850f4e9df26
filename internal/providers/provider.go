// Package providers abstracts external storage providers (Google Drive,
// Dropbox, OneDrive) behind a uniform capability interface, and tracks per
// user which providers are connected and which one is active.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justestif/coretet/internal/apperr"
)

// Name identifies a storage provider.
type Name string

// Known providers.
const (
	GoogleDrive Name = "google_drive"
	Dropbox     Name = "dropbox"
	OneDrive    Name = "onedrive"
)

// Names lists every known provider in display order.
var Names = []Name{GoogleDrive, Dropbox, OneDrive}

var (
	// ErrAuthorizationRequired is returned by Connect when the user has not
	// yet granted the provider access.
	ErrAuthorizationRequired = errors.New("authorization required")

	// ErrNotConnected is returned when an operation needs a connected provider.
	ErrNotConnected = errors.New("provider not connected")
)

// ParseName validates a provider name.
func ParseName(s string) (Name, error) {
	for _, n := range Names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: unknown provider %q", apperr.ErrNotFound, s)
}

// Quota is a provider's storage usage in bytes. Total is 0 when unlimited.
type Quota struct {
	Used  int64 `json:"used"`
	Total int64 `json:"total"`
}

// File is an audio file stored in a provider.
type File struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Provider is the capability set every storage provider exposes.
// Providers that are declared but not built return apperr.ErrNotImplemented.
type Provider interface {
	Name() Name
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	Quota(ctx context.Context) (*Quota, error)
	List(ctx context.Context) ([]File, error)
}

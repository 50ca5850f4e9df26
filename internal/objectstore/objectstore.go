// Package objectstore mints signed retrieval and upload URLs for audio objects.
package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/justestif/coretet/internal/config"
)

// UploadURL is a signed, single-object upload grant.
type UploadURL struct {
	URL   string
	Token string
}

// Store mints capability URLs for object paths.
type Store interface {
	// SignedURL returns a URL granting read access to path for ttl.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// SignedUploadURL returns a URL granting write access to path.
	SignedUploadURL(ctx context.Context, path string) (UploadURL, error)
}

// NewFromConfig creates a Store based on the storage config type.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig, publicURL string) (Store, error) {
	switch cfg.Type {
	case "memory":
		key := cfg.SigningKey
		if key == "" {
			key = "coretet-dev-signing-key"
		}
		return NewMemoryStore(publicURL, []byte(key), cfg.UploadURLTTL.Duration), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"

	"github.com/justestif/coretet/internal/db"
	"github.com/justestif/coretet/internal/secrets"
)

// TokenStore persists OAuth tokens per user and provider.
type TokenStore interface {
	// Load returns (nil, nil) when no token is stored.
	Load(ctx context.Context, userID string, provider Name) (*oauth2.Token, error)
	Save(ctx context.Context, userID string, provider Name, token *oauth2.Token) error
	// Delete is a no-op when no token is stored.
	Delete(ctx context.Context, userID string, provider Name) error
}

// ============================================================================
// File Token Store (for development)
// ============================================================================

// FileTokenStore keeps tokens as JSON files under dir/{userID}/{provider}.json.
type FileTokenStore struct {
	dir string
}

// DefaultFileTokenStore returns a FileTokenStore under the user config
// directory: ~/.config/coretet/tokens.
func DefaultFileTokenStore() (*FileTokenStore, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting user config dir: %w", err)
	}
	return NewFileTokenStore(filepath.Join(configDir, "coretet", "tokens")), nil
}

// NewFileTokenStore creates a FileTokenStore rooted at dir.
func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{dir: dir}
}

func (s *FileTokenStore) path(userID string, provider Name) (string, error) {
	if userID == "" || strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	return filepath.Join(s.dir, userID, string(provider)+".json"), nil
}

// Load reads a token from disk.
func (s *FileTokenStore) Load(_ context.Context, userID string, provider Name) (*oauth2.Token, error) {
	path, err := s.path(userID, provider)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}
	return &token, nil
}

// Save writes the token to disk, creating parent directories if needed.
func (s *FileTokenStore) Save(_ context.Context, userID string, provider Name, token *oauth2.Token) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}
	path, err := s.path(userID, provider)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// Delete removes the token file.
func (s *FileTokenStore) Delete(_ context.Context, userID string, provider Name) error {
	path, err := s.path(userID, provider)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// ============================================================================
// Database Token Store
// ============================================================================

// TokenRepository is the subset of db.ProviderTokenRepository used here.
type TokenRepository interface {
	Get(ctx context.Context, userID, provider string) (*db.ProviderToken, error)
	Upsert(ctx context.Context, t *db.ProviderToken) error
	Delete(ctx context.Context, userID, provider string) error
}

// DBTokenStore keeps tokens in provider_tokens, sealed with a Sealer.
type DBTokenStore struct {
	repo   TokenRepository
	sealer secrets.Sealer
}

// NewDBTokenStore creates a database-backed token store.
func NewDBTokenStore(repo TokenRepository, sealer secrets.Sealer) *DBTokenStore {
	return &DBTokenStore{repo: repo, sealer: sealer}
}

// Load reads and unseals a token.
func (s *DBTokenStore) Load(ctx context.Context, userID string, provider Name) (*oauth2.Token, error) {
	row, err := s.repo.Get(ctx, userID, string(provider))
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	plain, err := s.sealer.Open(row.Sealed)
	if err != nil {
		return nil, fmt.Errorf("unsealing token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(plain, &token); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	return &token, nil
}

// Save seals and stores a token.
func (s *DBTokenStore) Save(ctx context.Context, userID string, provider Name, token *oauth2.Token) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}
	plain, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return fmt.Errorf("sealing token: %w", err)
	}
	return s.repo.Upsert(ctx, &db.ProviderToken{
		UserID:   userID,
		Provider: string(provider),
		Sealed:   sealed,
	})
}

// Delete removes a stored token.
func (s *DBTokenStore) Delete(ctx context.Context, userID string, provider Name) error {
	return s.repo.Delete(ctx, userID, string(provider))
}

var (
	_ TokenStore      = (*FileTokenStore)(nil)
	_ TokenStore      = (*DBTokenStore)(nil)
	_ TokenRepository = (*db.ProviderTokenRepository)(nil)
)

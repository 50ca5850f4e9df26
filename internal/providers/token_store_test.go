package providers

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/coretet/internal/db"
	"github.com/justestif/coretet/internal/secrets"
)

func testTokens() []*oauth2.Token {
	return []*oauth2.Token{
		{
			AccessToken:  "test-access-token",
			TokenType:    "Bearer",
			RefreshToken: "test-refresh-token",
			Expiry:       time.Now().Add(time.Hour),
		},
		{
			AccessToken: "access-only",
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(30 * time.Minute),
		},
	}
}

func TestFileTokenStore_SaveAndLoad(t *testing.T) {
	for _, token := range testTokens() {
		t.Run(token.AccessToken, func(t *testing.T) {
			store := NewFileTokenStore(t.TempDir())
			ctx := context.Background()

			if err := store.Save(ctx, "user-1", GoogleDrive, token); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			loaded, err := store.Load(ctx, "user-1", GoogleDrive)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded == nil {
				t.Fatal("Load() returned nil token")
			}
			if loaded.AccessToken != token.AccessToken {
				t.Errorf("AccessToken = %q, want %q", loaded.AccessToken, token.AccessToken)
			}
			if loaded.RefreshToken != token.RefreshToken {
				t.Errorf("RefreshToken = %q, want %q", loaded.RefreshToken, token.RefreshToken)
			}
		})
	}
}

func TestFileTokenStore_LoadMissing(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "nonexistent"))

	token, err := store.Load(context.Background(), "user-1", GoogleDrive)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if token != nil {
		t.Errorf("Load() = %v, want nil", token)
	}
}

func TestFileTokenStore_Permissions(t *testing.T) {
	dir := t.TempDir()
	store := NewFileTokenStore(dir)

	if err := store.Save(context.Background(), "user-1", GoogleDrive, testTokens()[0]); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "user-1", "google_drive.json"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestFileTokenStore_Delete(t *testing.T) {
	store := NewFileTokenStore(t.TempDir())
	ctx := context.Background()

	if err := store.Save(ctx, "user-1", GoogleDrive, testTokens()[0]); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "user-1", GoogleDrive); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if tok, _ := store.Load(ctx, "user-1", GoogleDrive); tok != nil {
		t.Error("token still present after Delete()")
	}
	// Deleting again is fine.
	if err := store.Delete(ctx, "user-1", GoogleDrive); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestFileTokenStore_RejectsTraversal(t *testing.T) {
	store := NewFileTokenStore(t.TempDir())
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		if err := store.Save(context.Background(), id, GoogleDrive, testTokens()[0]); err == nil {
			t.Errorf("Save(%q) should fail", id)
		}
	}
}

func TestFileTokenStore_SaveNil(t *testing.T) {
	store := NewFileTokenStore(t.TempDir())
	if err := store.Save(context.Background(), "user-1", GoogleDrive, nil); err == nil {
		t.Error("Save(nil) should fail")
	}
}

type fakeTokenRepo struct {
	rows map[string]db.ProviderToken
}

func (f *fakeTokenRepo) Get(_ context.Context, userID, provider string) (*db.ProviderToken, error) {
	row, ok := f.rows[userID+"/"+provider]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &row, nil
}

func (f *fakeTokenRepo) Upsert(_ context.Context, t *db.ProviderToken) error {
	t.UpdatedAt = time.Now()
	f.rows[t.UserID+"/"+t.Provider] = *t
	return nil
}

func (f *fakeTokenRepo) Delete(_ context.Context, userID, provider string) error {
	delete(f.rows, userID+"/"+provider)
	return nil
}

func newSealer(t *testing.T) *secrets.AgeSealer {
	t.Helper()
	key, err := secrets.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	s, err := secrets.NewAgeSealer(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDBTokenStore_RoundTrip(t *testing.T) {
	repo := &fakeTokenRepo{rows: map[string]db.ProviderToken{}}
	store := NewDBTokenStore(repo, newSealer(t))
	ctx := context.Background()

	if tok, err := store.Load(ctx, "u1", GoogleDrive); err != nil || tok != nil {
		t.Fatalf("Load() on empty = %v, %v", tok, err)
	}

	token := testTokens()[0]
	if err := store.Save(ctx, "u1", GoogleDrive, token); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	row := repo.rows["u1/google_drive"]
	if bytes.Contains(row.Sealed, []byte(token.AccessToken)) {
		t.Error("stored token is not sealed")
	}

	loaded, err := store.Load(ctx, "u1", GoogleDrive)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.AccessToken != token.AccessToken || loaded.RefreshToken != token.RefreshToken {
		t.Errorf("Load() = %+v", loaded)
	}

	if err := store.Delete(ctx, "u1", GoogleDrive); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if tok, _ := store.Load(ctx, "u1", GoogleDrive); tok != nil {
		t.Error("token still present after Delete()")
	}
}

func TestDBTokenStore_WrongKey(t *testing.T) {
	repo := &fakeTokenRepo{rows: map[string]db.ProviderToken{}}
	ctx := context.Background()

	if err := NewDBTokenStore(repo, newSealer(t)).Save(ctx, "u1", GoogleDrive, testTokens()[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDBTokenStore(repo, newSealer(t)).Load(ctx, "u1", GoogleDrive); err == nil {
		t.Error("Load() with a different key should fail")
	}
}

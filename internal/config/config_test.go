package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Upload.MaxFileSize != 104857600 {
		t.Errorf("MaxFileSize = %d, want 104857600", cfg.Upload.MaxFileSize)
	}
	if cfg.Storage.SignedURLTTL.Duration != time.Hour {
		t.Errorf("SignedURLTTL = %v, want 1h", cfg.Storage.SignedURLTTL)
	}
	if cfg.Invites.DefaultExpiry.Duration != 7*24*time.Hour {
		t.Errorf("DefaultExpiry = %v, want 168h", cfg.Invites.DefaultExpiry)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coretet.toml")
	data := `
[server]
addr = "0.0.0.0:9000"
read_timeout = "5s"

[database]
url = "postgres://file/db"

[storage]
type = "s3"
bucket = "tracks"
request_timeout = "3s"

[auth]
admin_emails = ["root@example.com"]
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, "0.0.0.0:9000")
	}
	if cfg.Server.ReadTimeout.Duration != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if cfg.Database.URL != "postgres://env/db" {
		t.Errorf("Database.URL = %q, want env override", cfg.Database.URL)
	}
	if cfg.Storage.RequestTimeout.Duration != 3*time.Second {
		t.Errorf("Storage.RequestTimeout = %v, want 3s", cfg.Storage.RequestTimeout)
	}
	if len(cfg.Auth.AdminEmails) != 1 || cfg.Auth.AdminEmails[0] != "root@example.com" {
		t.Errorf("AdminEmails = %v", cfg.Auth.AdminEmails)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("DEFAULT_STORAGE_QUOTA", "lots")

	_, err := Load("")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing database url",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "s" },
			wantErr: ErrMissingDatabaseURL,
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Database.URL = "postgres://x" },
			wantErr: ErrMissingJWTSecret,
		},
		{
			name: "unknown storage type",
			mutate: func(c *Config) {
				c.Database.URL = "postgres://x"
				c.Auth.JWTSecret = "s"
				c.Storage.Type = "ftp"
			},
			wantErr: ErrInvalidConfig,
		},
		{
			name: "unknown token store",
			mutate: func(c *Config) {
				c.Database.URL = "postgres://x"
				c.Auth.JWTSecret = "s"
				c.Providers.TokenStore = "memory"
			},
			wantErr: ErrInvalidConfig,
		},
		{
			name: "valid",
			mutate: func(c *Config) {
				c.Database.URL = "postgres://x"
				c.Auth.JWTSecret = "s"
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

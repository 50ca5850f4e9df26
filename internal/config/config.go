// Package config loads CoreTet configuration from defaults, an optional TOML
// file, and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var (
	// ErrMissingDatabaseURL is returned when no database URL is configured.
	ErrMissingDatabaseURL = errors.New("missing DATABASE_URL")

	// ErrMissingJWTSecret is returned when no JWT signing secret is configured.
	ErrMissingJWTSecret = errors.New("missing JWT_SECRET")

	// ErrInvalidConfig is returned when a configured value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config represents the full application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Auth      AuthConfig      `toml:"auth"`
	Storage   StorageConfig   `toml:"storage"`
	Upload    UploadConfig    `toml:"upload"`
	Providers ProvidersConfig `toml:"providers"`
	Invites   InvitesConfig   `toml:"invites"`
	Feedback  FeedbackConfig  `toml:"feedback"`
	Redis     RedisConfig     `toml:"redis"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr         string   `toml:"addr"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	IdleTimeout  Duration `toml:"idle_timeout"`
	AllowOrigin  string   `toml:"allow_origin"`
	// PublicURL is used to build OAuth redirect URLs.
	PublicURL string `toml:"public_url"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL            string   `toml:"url"`
	ConnectTimeout Duration `toml:"connect_timeout"`
	MaxConns       int32    `toml:"max_conns"`
}

// AuthConfig contains bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	// AdminEmails are granted admin rights in addition to role claims.
	AdminEmails []string `toml:"admin_emails"`
}

// StorageConfig selects and configures the object store backend.
// Type is "s3" or "memory"; the S3 fields only apply to "s3".
type StorageConfig struct {
	Type            string   `toml:"type"`
	Bucket          string   `toml:"bucket"`
	Region          string   `toml:"region"`
	Endpoint        string   `toml:"endpoint"`
	AccessKeyID     string   `toml:"access_key_id"`
	SecretAccessKey string   `toml:"secret_access_key"`
	UsePathStyle    bool     `toml:"use_path_style"`
	SignedURLTTL    Duration `toml:"signed_url_ttl"`
	UploadURLTTL    Duration `toml:"upload_url_ttl"`
	// RequestTimeout bounds every call to the object store.
	RequestTimeout Duration `toml:"request_timeout"`
	// SigningKey is used by the memory backend only.
	SigningKey string `toml:"signing_key"`
}

// UploadConfig contains upload intake limits.
type UploadConfig struct {
	MaxFileSize  int64 `toml:"max_file_size"`
	DefaultQuota int64 `toml:"default_quota"`
}

// ProvidersConfig configures external storage providers.
type ProvidersConfig struct {
	Google GoogleConfig `toml:"google"`
	// TokenStore is "database" or "file".
	TokenStore string `toml:"token_store"`
	TokenDir   string `toml:"token_dir"`
	// TokenKey is an age X25519 identity used to seal tokens at rest.
	TokenKey string `toml:"token_key"`
	// RateLimit is the number of provider API calls allowed per second.
	RateLimit      float64  `toml:"rate_limit"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// GoogleConfig contains Google Drive OAuth client credentials.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// InvitesConfig contains invite code settings.
type InvitesConfig struct {
	DefaultExpiry Duration `toml:"default_expiry"`
}

// FeedbackConfig configures the feedback email relay.
type FeedbackConfig struct {
	To       string `toml:"to"`
	From     string `toml:"from"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// RedisConfig configures event publishing. An empty URL disables it.
type RedisConfig struct {
	URL     string `toml:"url"`
	Channel string `toml:"channel"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration wraps time.Duration so TOML values like "15s" decode directly.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{15 * time.Second},
			IdleTimeout:  Duration{60 * time.Second},
			AllowOrigin:  "*",
			PublicURL:    "http://127.0.0.1:8080",
		},
		Database: DatabaseConfig{
			ConnectTimeout: Duration{10 * time.Second},
			MaxConns:       10,
		},
		Storage: StorageConfig{
			Type:           "memory",
			Bucket:         "audio-files",
			Region:         "us-east-1",
			SignedURLTTL:   Duration{time.Hour},
			UploadURLTTL:   Duration{2 * time.Hour},
			RequestTimeout: Duration{30 * time.Second},
		},
		Upload: UploadConfig{
			MaxFileSize:  100 * 1024 * 1024,
			DefaultQuota: 1024 * 1024 * 1024,
		},
		Providers: ProvidersConfig{
			TokenStore:     "database",
			RateLimit:      5,
			RequestTimeout: Duration{30 * time.Second},
		},
		Invites: InvitesConfig{
			DefaultExpiry: Duration{7 * 24 * time.Hour},
		},
		Feedback: FeedbackConfig{
			SMTPPort: 587,
		},
		Redis: RedisConfig{
			Channel: "coretet:events",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty), and environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides fields with any set environment variables.
func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "ADDR")
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	setString(&c.Server.PublicURL, "PUBLIC_URL")
	setString(&c.Server.AllowOrigin, "CORS_ALLOWED_ORIGIN")

	setString(&c.Database.URL, "DATABASE_URL")

	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	if admins := os.Getenv("ADMIN_EMAILS"); admins != "" {
		c.Auth.AdminEmails = splitList(admins)
	}

	setString(&c.Storage.Type, "STORAGE_TYPE")
	setString(&c.Storage.Bucket, "STORAGE_BUCKET")
	setString(&c.Storage.Region, "STORAGE_REGION")
	setString(&c.Storage.Endpoint, "STORAGE_ENDPOINT")
	setString(&c.Storage.AccessKeyID, "STORAGE_ACCESS_KEY_ID")
	setString(&c.Storage.SecretAccessKey, "STORAGE_SECRET_ACCESS_KEY")
	setString(&c.Storage.SigningKey, "STORAGE_SIGNING_KEY")
	if err := setDuration(&c.Storage.RequestTimeout, "STORAGE_REQUEST_TIMEOUT"); err != nil {
		return err
	}

	if err := setInt64(&c.Upload.DefaultQuota, "DEFAULT_STORAGE_QUOTA"); err != nil {
		return err
	}

	setString(&c.Providers.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Providers.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Providers.TokenStore, "PROVIDER_TOKEN_STORE")
	setString(&c.Providers.TokenDir, "PROVIDER_TOKEN_DIR")
	setString(&c.Providers.TokenKey, "PROVIDER_TOKEN_KEY")

	setString(&c.Feedback.To, "FEEDBACK_TO")
	setString(&c.Feedback.From, "FEEDBACK_FROM")
	setString(&c.Feedback.SMTPHost, "SMTP_HOST")
	setString(&c.Feedback.Username, "SMTP_USER")
	setString(&c.Feedback.Password, "SMTP_PASS")
	if port := os.Getenv("SMTP_PORT"); port != "" {
		v, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: SMTP_PORT=%q", ErrInvalidConfig, port)
		}
		c.Feedback.SMTPPort = v
	}

	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Log.Level, "LOG_LEVEL")

	return nil
}

// Validate checks the settings required to serve requests.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("%w: upload.max_file_size must be positive", ErrInvalidConfig)
	}
	switch c.Storage.Type {
	case "memory", "s3":
	default:
		return fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.Bucket == "" {
		return fmt.Errorf("%w: storage.bucket is required for s3", ErrInvalidConfig)
	}
	switch c.Providers.TokenStore {
	case "database", "file":
	default:
		return fmt.Errorf("%w: unknown provider token store %q", ErrInvalidConfig, c.Providers.TokenStore)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, raw)
	}
	*dst = v
	return nil
}

func setDuration(dst *Duration, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, raw)
	}
	dst.Duration = v
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

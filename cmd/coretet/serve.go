package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/justestif/coretet/internal/auth"
	"github.com/justestif/coretet/internal/config"
	"github.com/justestif/coretet/internal/db"
	"github.com/justestif/coretet/internal/db/migrations"
	"github.com/justestif/coretet/internal/events"
	"github.com/justestif/coretet/internal/feedback"
	"github.com/justestif/coretet/internal/invites"
	"github.com/justestif/coretet/internal/library"
	"github.com/justestif/coretet/internal/objectstore"
	"github.com/justestif/coretet/internal/playlists"
	"github.com/justestif/coretet/internal/providers"
	"github.com/justestif/coretet/internal/secrets"
	"github.com/justestif/coretet/internal/web"
)

const googleCallbackPath = "/providers/google_drive/callback"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		autoMigrate, _ := cmd.Flags().GetBool("migrate")
		return serve(cmd.Context(), autoMigrate)
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "apply pending migrations before serving")
}

func serve(ctx context.Context, autoMigrate bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if autoMigrate {
		if err := migrations.Up(cfg.Database.URL); err != nil {
			return err
		}
	}
	status, err := migrations.Check(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("checking schema: %w", err)
	}
	if !status.Current() {
		logger.Warn("database schema is not current; run `coretet migrate up`",
			"version", status.Version, "latest", status.Latest, "dirty", status.Dirty)
	}

	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	objects, err := objectstore.NewFromConfig(ctx, cfg.Storage, cfg.Server.PublicURL)
	if err != nil {
		return fmt.Errorf("configuring object store: %w", err)
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Redis.URL != "" {
		rp, err := events.Dial(ctx, cfg.Redis.URL, cfg.Redis.Channel, logger.With("component", "events"))
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rp.Close()
		publisher = rp
	}

	tokens, err := newTokenStore(cfg.Providers, database)
	if err != nil {
		return err
	}
	oauth := providers.NewGoogleOAuth(
		cfg.Providers.Google.ClientID,
		cfg.Providers.Google.ClientSecret,
		strings.TrimRight(cfg.Server.PublicURL, "/")+googleCallbackPath,
		tokens,
		&http.Client{Timeout: cfg.Providers.RequestTimeout.Duration},
	)
	if !oauth.Configured() {
		logger.Warn("google drive client credentials not set; drive connect is disabled")
	}
	sessions := providers.NewSessions(providerFactory(cfg.Providers, oauth, tokens), logger.With("component", "providers"), 0)

	tracks := library.NewService(library.NewDBStore(database), objects,
		library.WithURLTTL(cfg.Storage.SignedURLTTL.Duration),
		library.WithMaxFileSize(cfg.Upload.MaxFileSize),
		library.WithDefaultQuota(cfg.Upload.DefaultQuota),
		library.WithPublisher(publisher),
		library.WithLogger(logger.With("component", "library")),
	)

	deps := web.Deps{
		Auth:      auth.NewJWTAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.AdminEmails),
		Tracks:    tracks,
		Playlists: playlists.NewService(playlists.NewDBStore(database), publisher, logger.With("component", "playlists")),
		Invites:   invites.NewService(database.Invites(), cfg.Invites.DefaultExpiry.Duration, logger.With("component", "invites")),
		Feedback: feedback.NewService(
			feedback.NewSender(cfg.Feedback, logger.With("component", "feedback")),
			cfg.Feedback.To,
			logger.With("component", "feedback"),
		),
		Providers: sessions,
		Consent:   oauth,
		Logger:    logger,
	}
	if ms, ok := objects.(*objectstore.MemoryStore); ok {
		logger.Warn("serving objects from memory; uploads are lost on restart", "prefix", objectstore.ObjectPrefix)
		deps.Objects = ms
	}

	return web.NewServer(cfg.Server, deps).Run()
}

// newTokenStore picks where provider OAuth tokens live.
func newTokenStore(cfg config.ProvidersConfig, database *db.DB) (providers.TokenStore, error) {
	if cfg.TokenStore == "file" {
		if cfg.TokenDir != "" {
			return providers.NewFileTokenStore(cfg.TokenDir), nil
		}
		return providers.DefaultFileTokenStore()
	}

	sealer, err := secrets.NewAgeSealer(cfg.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("provider token key: %w (generate one with `coretet keygen`)", err)
	}
	return providers.NewDBTokenStore(database.ProviderTokens(), sealer), nil
}

// providerFactory builds each user's provider set. All Drive clients share
// one limiter since the API quota is per OAuth client.
func providerFactory(cfg config.ProvidersConfig, oauth *providers.GoogleOAuth, tokens providers.TokenStore) providers.Factory {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	limiter := rate.NewLimiter(limit, 1)

	return func(userID string) []providers.Provider {
		return []providers.Provider{
			providers.NewDrive(userID, oauth, tokens, providers.WithLimiter(limiter)),
			providers.NewDropbox(),
			providers.NewOneDrive(),
		}
	}
}


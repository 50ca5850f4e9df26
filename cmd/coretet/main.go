// Command coretet runs the CoreTet API server and its operational tasks.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/justestif/coretet/internal/config"
	"github.com/justestif/coretet/internal/db"
	"github.com/justestif/coretet/internal/logging"
)

var configPath string

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "coretet",
	Short:         "CoreTet music library backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CORETET_CONFIG"), "path to a TOML config file")

	rootCmd.AddCommand(serveCmd)

	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)

	inviteCreateCmd.Flags().String("email", "", "restrict the invite to this email")
	inviteCreateCmd.Flags().Int("days", 0, "expiry in days (default from config)")
	inviteCmd.AddCommand(inviteCreateCmd, inviteShowCmd)
	rootCmd.AddCommand(inviteCmd)

	quotaSetCmd.Flags().String("user", "", "user id")
	quotaSetCmd.Flags().String("email", "", "profile email (kept when omitted)")
	quotaSetCmd.Flags().Int64("bytes", 0, "quota in bytes")
	quotaCmd.AddCommand(quotaSetCmd)
	rootCmd.AddCommand(quotaCmd)

	rootCmd.AddCommand(keygenCmd)
}

// loadConfig reads the config and builds the logger from it.
func loadConfig() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, logger, nil
}

// openDB connects to PostgreSQL. The caller must Close the result.
func openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.Database.URL == "" {
		return nil, config.ErrMissingDatabaseURL
	}
	database, err := db.New(ctx, cfg.Database.URL, db.Options{
		ConnectTimeout: cfg.Database.ConnectTimeout.Duration,
		MaxConns:       cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return database, nil
}

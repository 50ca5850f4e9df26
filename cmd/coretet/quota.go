package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justestif/coretet/internal/db"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Manage per-user storage quotas",
}

var quotaSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set a user's storage quota in bytes",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		email, _ := cmd.Flags().GetString("email")
		bytes, _ := cmd.Flags().GetInt64("bytes")

		if userID == "" {
			return errors.New("--user is required")
		}
		if bytes <= 0 {
			return errors.New("--bytes must be positive")
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		// Keep the stored email when none is given.
		if email == "" {
			existing, err := database.Profiles().Get(cmd.Context(), userID)
			if err != nil && !errors.Is(err, db.ErrNotFound) {
				return err
			}
			if existing != nil {
				email = existing.Email
			}
		}

		profile := &db.Profile{UserID: userID, Email: db.NormalizeEmail(email), StorageQuota: bytes}
		if err := database.Profiles().Upsert(cmd.Context(), profile); err != nil {
			return err
		}
		logger.Info("storage quota set", "user", userID, "bytes", bytes)

		fmt.Fprintf(cmd.OutOrStdout(), "User:  %s\nQuota: %d bytes\n", profile.UserID, profile.StorageQuota)
		return nil
	},
}

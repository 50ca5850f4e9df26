package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justestif/coretet/internal/config"
	"github.com/justestif/coretet/internal/db/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return config.ErrMissingDatabaseURL
		}

		if err := migrations.Up(cfg.Database.URL); err != nil {
			return err
		}
		status, err := migrations.Check(cfg.Database.URL)
		if err != nil {
			return err
		}
		logger.Info("schema up to date", "version", status.Version)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return config.ErrMissingDatabaseURL
		}

		status, err := migrations.Check(cfg.Database.URL)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Version: %d\n", status.Version)
		fmt.Fprintf(cmd.OutOrStdout(), "Latest:  %d\n", status.Latest)
		if status.Dirty {
			fmt.Fprintln(cmd.OutOrStdout(), "State:   dirty (a migration failed part way)")
		} else if status.Current() {
			fmt.Fprintln(cmd.OutOrStdout(), "State:   current")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "State:   pending")
		}
		return nil
	},
}

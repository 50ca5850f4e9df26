package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/justestif/coretet/internal/auth"
	"github.com/justestif/coretet/internal/db"
	"github.com/justestif/coretet/internal/invites"
	"github.com/justestif/coretet/internal/secrets"
)

// cliIdentity is recorded as the creator of invites made from the command line.
var cliIdentity = auth.Identity{ID: "cli", Admin: true}

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Manage invite codes",
}

var inviteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate an invite code",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		days, _ := cmd.Flags().GetInt("days")

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		svc := invites.NewService(database.Invites(), cfg.Invites.DefaultExpiry.Duration, logger)
		inv, err := svc.Generate(cmd.Context(), cliIdentity, invites.Request{Email: email, ExpiresInDays: days})
		if err != nil {
			return err
		}

		writeInvite(cmd.OutOrStdout(), inv, time.Now())
		return nil
	},
}

var inviteShowCmd = &cobra.Command{
	Use:   "show CODE",
	Short: "Show an invite code and whether it has been redeemed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		inv, err := database.Invites().Get(cmd.Context(), args[0])
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("invite %s not found", args[0])
		}
		if err != nil {
			return err
		}
		writeInvite(cmd.OutOrStdout(), inv, time.Now())
		return nil
	},
}

// writeInvite prints an invite in the CLI's key/value layout.
func writeInvite(w io.Writer, inv *db.Invite, now time.Time) {
	fmt.Fprintf(w, "Code:     %s\n", inv.Code)
	if inv.Email != nil {
		fmt.Fprintf(w, "Email:    %s\n", *inv.Email)
	}
	expires := inv.ExpiresAt.Format(time.RFC3339)
	if now.After(inv.ExpiresAt) {
		expires += " (expired)"
	}
	fmt.Fprintf(w, "Expires:  %s\n", expires)
	if inv.RedeemedAt != nil {
		fmt.Fprintf(w, "Redeemed: %s\n", inv.RedeemedAt.Format(time.RFC3339))
	}
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a key for sealing provider tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

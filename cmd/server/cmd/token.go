package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token for a user (development)",
		Long: `Issue a JWT for an existing user and store it as the user's session, as a
successful login would. Any earlier session for the user stops working.

Disabled in production.

Example:
  rsvp token --user 01HZ3Q7N9VJ2K8D4W6X5Y1T0RM`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.IsProduction() {
				return fmt.Errorf("token issuing is disabled in production")
			}
			id, err := ids.Normalize(userID)
			if err != nil {
				return fmt.Errorf("--user must be a ULID: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			pool, err := openPool(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			repo, err := postgres.NewRepository(pool)
			if err != nil {
				return err
			}

			user, err := repo.Users().GetUserByID(ctx, id)
			if err != nil {
				return fmt.Errorf("load user: %w", err)
			}
			token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer).Generate(user.ID, user.Username)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			if err := repo.Users().SetUserToken(ctx, user.ID, token); err != nil {
				return fmt.Errorf("store session: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(out, "\nTest with:\ncurl -H 'Authorization: Bearer %s' %s/api/v1/events\n", token, cfg.Server.BaseURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to issue the token for")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

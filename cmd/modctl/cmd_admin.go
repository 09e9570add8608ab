package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/attaboy/warden/internal/auth"
	"github.com/attaboy/warden/internal/infra"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := infra.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a reporting API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")

			cfg, err := infra.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}
			token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTReporterExpiry).GenerateToken(uuid.New(), name, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("name", "reporter", "display name embedded in the token")
	cmd.Flags().String("role", auth.RoleViewer, "viewer or moderator")
	return cmd
}

package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/platform/auth"
)

// tokenCmd signs a bearer token for a staff member, for scripts and for
// wiring a front desk before an identity provider is in place.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed staff token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("staff-id")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			staffID, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("--staff-id must be a UUID: %w", err)
			}
			for _, r := range roles {
				switch r {
				case auth.RoleAdmin, auth.RoleDoctor, auth.RoleReceptionist:
				default:
					return fmt.Errorf("unknown role %q", r)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is not set")
			}
			tok, err := auth.IssueToken(jwtConfig(cfg), staffID, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("staff-id", "", "Staff member the token identifies")
	cmd.Flags().StringSlice("role", []string{auth.RoleReceptionist}, "Role to grant (repeatable)")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
}

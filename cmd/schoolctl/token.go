package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"schoolhub-backend/internal/config"
	"schoolhub-backend/internal/middleware"
)

var (
	tokenUser   string
	tokenRole   string
	tokenSecret string
	tokenTTL    time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user ID (a new one when empty)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", middleware.RoleTeacher, "admin, teacher or student")
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = config.LoadClient().JWTSecret
		}
		if secret == "" {
			return fmt.Errorf("no signing secret; pass --secret or set JWT_SECRET")
		}

		switch tokenRole {
		case middleware.RoleAdmin, middleware.RoleTeacher, middleware.RoleStudent:
		default:
			return fmt.Errorf("unknown role %q", tokenRole)
		}

		userID := uuid.New()
		if tokenUser != "" {
			var err error
			if userID, err = uuid.Parse(tokenUser); err != nil {
				return fmt.Errorf("invalid user ID: %w", err)
			}
		}

		token, err := middleware.NewJWTAuth(secret).GenerateAccessToken(userID, tokenRole, tokenTTL)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

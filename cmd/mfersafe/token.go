package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mfersafe-core/internal/api"
	"github.com/nerrad567/mfersafe-core/internal/infrastructure/config"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the HTTP API",
	Long: `Mint an HS256 bearer token signed with security.jwt.secret.

The token is accepted by every protected /api/v1 route and by
POST /api/v1/auth/ws-ticket. Without --ttl the token lives for
security.jwt.access_token_ttl minutes.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "host", "subject recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default from config)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.AuthEnabled() {
		return errors.New("security.jwt.secret is not set; the API is unauthenticated")
	}

	ttl := tokenTTL
	if ttl <= 0 {
		ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}

	token, err := api.MintToken(cfg.Security.JWT.Secret, tokenSubject, ttl)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

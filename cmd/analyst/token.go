package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/analysis-runner/internal/auth"
)

var (
	subjectFlag string
	ttlFlag     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token",
	Long: `Mint a bearer token signed with auth.jwt_secret.

Examples:
  analyst token --subject dashboard
  analyst token --subject ci --ttl 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not set, tokens would not be checked")
		}
		tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}

		ttl := ttlFlag
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}
		token, err := tokens.GenerateWithDuration(subjectFlag, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&subjectFlag, "subject", "", "Client the token is issued to")
	tokenCmd.Flags().DurationVar(&ttlFlag, "ttl", 0, "Token lifetime (default: auth.token_ttl)")
	tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

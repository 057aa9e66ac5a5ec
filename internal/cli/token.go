package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helmcode/crew-bus/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token signed with server.jwt_secret",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for server.admin_password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := api.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("subject", "admin", "token subject")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (defaults to server.token_ttl)")
	rootCmd.AddCommand(tokenCmd, hashPasswordCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is not configured")
	}
	subject, _ := cmd.Flags().GetString("subject")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		ttl = cfg.Server.TokenTTL
	}

	token, expires, err := api.IssueToken(cfg.Server.JWTSecret, subject, ttl, time.Now())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), api.LoginResponse{Token: token, ExpiresAt: expires})
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

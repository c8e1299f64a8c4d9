package main

import (
	"fmt"
	"time"

	"github.com/bissquit/incident-radar/internal/auth"
	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			authenticator, err := auth.NewAuthenticator(auth.Config{
				SecretKey:     cfg.JWT.SecretKey,
				Issuer:        cfg.JWT.Issuer,
				TokenDuration: cfg.JWT.TokenDuration,
			})
			if err != nil {
				return err
			}

			token, expiresAt, err := authenticator.IssueToken(subject, domain.Role(role), ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().String("subject", "operator", "Token subject")
	cmd.Flags().String("role", string(domain.RoleAdmin), "Token role (viewer or admin)")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (0 = jwt.token_duration)")
	return cmd
}

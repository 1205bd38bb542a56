package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/showloop/internal/auth"
	"github.com/nerrad567/showloop/internal/infrastructure/config"
)

type tokenOptions struct {
	role    string
	subject string
	ttl     time.Duration
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with the configured secret",
		Long: `Prints a bearer token for the REST API and WebSocket.

Roles:
  operator  full playback control and history
  display   read state and report scene completion
  viewer    read-only state and history`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(getConfigPath(root.configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runToken(cmd.OutOrStdout(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.role, "role", string(auth.RoleOperator), "token role: operator, display, or viewer")
	cmd.Flags().StringVar(&opts.subject, "subject", "", "token subject (default: the role name)")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "token lifetime (default from security.jwt)")
	return cmd
}

func runToken(out io.Writer, cfg *config.Config, opts *tokenOptions) error {
	role := auth.Role(opts.role)
	if !auth.IsValidRole(role) {
		return fmt.Errorf("%w: %q", auth.ErrInvalidRole, opts.role)
	}

	ttl := opts.ttl
	if ttl <= 0 {
		ttl = cfg.GetAccessTokenTTL()
		if role == auth.RoleDisplay {
			ttl = cfg.GetDisplayTokenTTL()
		}
	}
	subject := opts.subject
	if subject == "" {
		subject = string(role)
	}

	token, err := auth.IssueToken(cfg.Security.JWT.Secret, role, subject, cfg.Player.ID, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

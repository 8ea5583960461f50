package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dancode-188/synckit/sdk/go/internal/auth"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	UserID    string
	Email     string
	Secret    string
	ExpiresIn time.Duration
	Admin     bool
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Long: `Mint a JWT access token for development against a server that shares
the same secret. Production tokens come from your auth service, not from
this command.

Example:
  synckit token --user alice --secret "$SYNCKIT_AUTH_SECRET"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id claim")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "signing secret (default: config authSecret)")
	cmd.Flags().DurationVar(&opts.ExpiresIn, "expires-in", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&opts.Admin, "admin", false, "grant admin permissions")

	return cmd
}

func runToken(cmd *cobra.Command, opts *TokenOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	userID := opts.UserID
	if userID == "" {
		userID = cfg.UserID
	}
	if userID == "" {
		return errors.New("a user id is required (--user or config userId)")
	}

	secret := opts.Secret
	if secret == "" {
		secret = cfg.AuthSecret
	}

	token, err := auth.GenerateAccessToken(userID, opts.Email, auth.DocumentPermissions{
		IsAdmin: opts.Admin,
	}, secret, opts.ExpiresIn)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

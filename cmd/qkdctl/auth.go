package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clierrors "github.com/QKD-VITAP/qkdctl/internal/errors"
	"github.com/QKD-VITAP/qkdctl/internal/output"
	"github.com/QKD-VITAP/qkdctl/internal/prompt"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  `Authenticate with the QKD simulation platform using a Google ID token.`,
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthWhoamiCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var idTokenFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a Google ID token",
		Long: `Exchange a Google ID token for a platform session.

The issued bearer token is stored in your system's keyring
(macOS Keychain, Windows Credential Manager, or Linux Secret Service).

You can also set the QKD_TOKEN environment variable to an already
issued bearer token and skip the exchange entirely.`,
		Example: `  qkdctl auth login
  qkdctl auth login --id-token "$(get-google-id-token)"`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			prompter := prompt.New(out)

			if tok := os.Getenv("QKD_TOKEN"); tok != "" {
				out.Info("QKD_TOKEN environment variable is set")
				out.Muted("Environment variable takes precedence over stored credentials")
				out.Println()
			}

			var idToken string
			if idTokenFlag != "" {
				idToken = idTokenFlag
			} else {
				if !prompter.CanPrompt() {
					return clierrors.CannotPrompt("QKD_TOKEN")
				}

				var err error

				idToken, err = prompter.Secret("Paste your Google ID token")
				if err != nil {
					return fmt.Errorf("read id token prompt: %w", err)
				}
			}

			if idToken == "" {
				return clierrors.TokenEmpty()
			}

			spin := out.Spinner("Exchanging credential")
			spin.Start()

			sess, _ := newSession()

			user, err := sess.Exchange(cmd.Context(), idToken)
			if err != nil {
				spin.StopWithFailure("Authentication failed")
				return clierrors.AuthFailed(err)
			}

			spin.Stop()

			out.Success("Authenticated as %s <%s>", user.Name, user.Email)

			return nil
		},
	}

	cmd.Flags().StringVar(&idTokenFlag, "id-token", "", "Google ID token for non-interactive login (prefer a prompt to avoid shell history exposure)")

	return cmd
}

// AuthStatus represents authentication status for JSON output.
type AuthStatus struct {
	Source string `json:"source"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long: `Verify the stored credential against the platform and report the
credential source and the identity it is bound to.`,
		Example: `  qkdctl auth status
  qkdctl auth status --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			sess, _ := newSession()
			if sess.Token() == "" {
				return clierrors.NotAuthenticated()
			}

			spin := out.Spinner("Checking credentials")
			spin.Start()

			ok, err := sess.Verify(cmd.Context())
			if err != nil {
				spin.StopWithFailure("Could not reach the platform")
				return clierrors.APIUnreachable(sess.Client().BaseURL(), err)
			}

			if !ok {
				spin.StopWithFailure("Credentials invalid")
				return clierrors.CredentialsInvalid(nil)
			}

			spin.StopWithSuccess("Authenticated")

			user, err := sess.Client().Whoami(cmd.Context())
			if err != nil {
				return clierrors.APIUnreachable(sess.Client().BaseURL(), err)
			}

			if out.JSON {
				return out.PrintJSON(AuthStatus{
					Source: string(sess.Source()),
					UserID: user.ID,
					Email:  user.Email,
				})
			}

			out.Print("Source: %s\n", sess.Source())
			out.Print("User:   %s\n", user.ID)
			out.Print("Email:  %s\n", user.Email)

			return nil
		},
	}
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		Short:   "Show the identity bound to the current credential",
		Long:    `Fetch the user record associated with the active bearer token.`,
		Example: `  qkdctl auth whoami`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			user, err := sess.Client().Whoami(cmd.Context())
			if err != nil {
				return clierrors.CredentialsInvalid(err)
			}

			if out.JSON {
				return out.PrintJSON(user)
			}

			out.Print("Name:  %s\n", user.Name)
			out.Print("Email: %s\n", user.Email)
			out.Print("ID:    %s\n", user.ID)

			return nil
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the session and clear stored credentials",
		Long: `Invalidate the server-side session and remove the bearer token
from the system keyring. Local credentials are cleared even when
the server cannot be reached.`,
		Example: `  qkdctl auth logout`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			sess, _ := newSession()
			if sess.Token() == "" {
				out.Muted("No stored credentials found")
				return nil
			}

			// Local invalidation happens even when the server call
			// fails; do not block logout on a dead endpoint.
			if err := sess.Logout(cmd.Context()); err != nil {
				out.Warning("Server logout failed; local credentials cleared anyway")
			}

			out.Success("Logged out successfully")

			if os.Getenv("QKD_TOKEN") != "" {
				out.Println()
				out.Warning("QKD_TOKEN environment variable is still set")
			}

			return nil
		},
	}
}

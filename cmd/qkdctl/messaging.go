package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/QKD-VITAP/qkdctl/internal/client"
	clierrors "github.com/QKD-VITAP/qkdctl/internal/errors"
	"github.com/QKD-VITAP/qkdctl/internal/output"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage quantum keys for secure messaging",
	}

	cmd.AddCommand(newKeyGenerateCmd())
	cmd.AddCommand(newKeyShowCmd())
	cmd.AddCommand(newKeyRefreshCmd())
	cmd.AddCommand(newKeySharedCmd())
	cmd.AddCommand(newKeyStatsCmd())

	return cmd
}

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Exchange messages encrypted under quantum keys",
	}

	cmd.AddCommand(newMessageSendCmd())
	cmd.AddCommand(newMessageReceiveCmd())

	return cmd
}

// printKey renders key metadata without ever printing key material.
func printKey(out *output.Writer, key *client.QuantumKey) {
	out.Print("User:       %s\n", key.UserID)
	out.Print("Key length: %d bits\n", key.KeyLength)

	if key.ExpiresAt > 0 {
		expires := time.Unix(int64(key.ExpiresAt), 0)
		out.Print("Expires:    %s\n", expires.Format(time.RFC3339))
	}

	if qber, ok := key.SecurityMetrics["qber"]; ok {
		out.Print("QBER:       %v\n", qber)
	}

	if level, ok := key.SecurityMetrics["security_level"]; ok {
		out.Print("Security:   %v\n", level)
	}
}

func newKeyGenerateCmd() *cobra.Command {
	var (
		user   string
		bits   int
		format string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Derive a fresh quantum key from a BB84 run",
		Long: `Run a BB84 exchange on the platform and distill its sifted key into
an AES key for the named user. The key is held server-side and expires
after the platform's key lifetime.`,
		Example: `  qkdctl key generate --user alice
  qkdctl key generate --user alice --bits 128`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return clierrors.InvalidArgument(err.Error())
			}

			if user == "" {
				return clierrors.InvalidArgument("--user is required")
			}

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			spin := out.Spinner(fmt.Sprintf("Generating quantum key for %s", user))
			spin.Start()

			key, err := sess.Client().GenerateKey(cmd.Context(), user, bits)
			if err != nil {
				spin.StopWithFailure("Key generation failed")
				return clierrors.SubmitFailed(err)
			}

			spin.StopWithSuccess(fmt.Sprintf("Key ready for %s", user))

			if outFormat != output.FormatText {
				return out.PrintFormat(outFormat, key)
			}

			out.Println()
			printKey(out, key)

			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User the key belongs to")
	cmd.Flags().IntVar(&bits, "bits", 256, "Key length in bits: 128, 192, or 256")
	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, yaml, toml")

	return cmd
}

func newKeyShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's current quantum key metadata",
		Long: `Look up the named user's quantum key. Only metadata is shown; key
material never leaves the platform through this command.`,
		Example: `  qkdctl key show alice
  qkdctl key show alice -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return clierrors.InvalidArgument(err.Error())
			}

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			key, err := sess.Client().UserKey(cmd.Context(), args[0])
			if err != nil {
				return clierrors.APIUnreachable(sess.Client().BaseURL(), err)
			}

			if outFormat != output.FormatText {
				return out.PrintFormat(outFormat, key)
			}

			if !key.KeyAvailable {
				out.Warning("No valid quantum key for %s", args[0])
				out.Muted("Generate one with qkdctl key generate --user %s", args[0])

				return nil
			}

			printKey(out, key)

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, yaml, toml")

	return cmd
}

func newKeyRefreshCmd() *cobra.Command {
	var bits int

	cmd := &cobra.Command{
		Use:   "refresh <user-id>",
		Short: "Replace a user's quantum key with a fresh one",
		Long: `Discard the named user's current quantum key and derive a new one
from a fresh BB84 run. Messages encrypted under the old key can no
longer be decrypted.`,
		Example: `  qkdctl key refresh alice
  qkdctl key refresh alice --bits 192`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			spin := out.Spinner(fmt.Sprintf("Refreshing quantum key for %s", args[0]))
			spin.Start()

			key, err := sess.Client().RefreshKey(cmd.Context(), args[0], bits)
			if err != nil {
				spin.StopWithFailure("Key refresh failed")
				return clierrors.SubmitFailed(err)
			}

			spin.StopWithSuccess(fmt.Sprintf("New key ready for %s", args[0]))
			out.Println()
			printKey(out, key)

			return nil
		},
	}

	cmd.Flags().IntVar(&bits, "bits", 256, "Key length in bits: 128, 192, or 256")

	return cmd
}

func newKeySharedCmd() *cobra.Command {
	var bits int

	cmd := &cobra.Command{
		Use:   "shared <user-id> <user-id>",
		Short: "Establish one quantum key shared by two users",
		Long: `Run a BB84 exchange and install the resulting key for both named
users, so messages between them reuse one key instead of deriving a
pairwise key on first send.`,
		Example: `  qkdctl key shared alice bob
  qkdctl key shared alice bob --bits 128`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			spin := out.Spinner(fmt.Sprintf("Establishing shared key for %s and %s", args[0], args[1]))
			spin.Start()

			result, err := sess.Client().GenerateSharedKey(cmd.Context(), client.SharedKeyRequest{
				User1ID:   args[0],
				User2ID:   args[1],
				KeyLength: bits,
			})
			if err != nil {
				spin.StopWithFailure("Shared key generation failed")
				return clierrors.SubmitFailed(err)
			}

			spin.StopWithSuccess(fmt.Sprintf("Shared %d-bit key ready for %s and %s",
				result.KeyLength, result.User1ID, result.User2ID))

			return nil
		},
	}

	cmd.Flags().IntVar(&bits, "bits", 256, "Key length in bits: 128, 192, or 256")

	return cmd
}

func newKeyStatsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate counters for the quantum key store",
		Long: `Report how many users hold keys and how many of those keys are
still within their lifetime.`,
		Example: `  qkdctl key stats
  qkdctl key stats -o json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return clierrors.InvalidArgument(err.Error())
			}

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			stats, err := sess.Client().KeyStatistics(cmd.Context())
			if err != nil {
				return clierrors.APIUnreachable(sess.Client().BaseURL(), err)
			}

			if outFormat != output.FormatText {
				return out.PrintFormat(outFormat, stats)
			}

			out.Print("  %-14s %d\n", "total_users", stats.TotalUsers)
			out.Print("  %-14s %d\n", "active_keys", stats.ActiveKeys)
			out.Print("  %-14s %d\n", "expired_keys", stats.ExpiredKeys)
			out.Print("  %-14s %.0fs\n", "key_lifetime", stats.KeyExpiryTime)

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, yaml, toml")

	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		from string
		to   string
		mode string
		bits int
	)

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message encrypted under a quantum key",
		Long: `Encrypt the message with AES under the sender's quantum key and
store it for the receiver. Keys missing on either side are generated
before encryption. The printed message id is what the receiver passes
to qkdctl message receive.`,
		Example: `  qkdctl message send "rendezvous at noon" --from alice --to bob
  qkdctl message send "hello" --from alice --to bob --mode CBC`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			if from == "" || to == "" {
				return clierrors.InvalidArgument("--from and --to are both required")
			}

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			spin := out.Spinner(fmt.Sprintf("Encrypting message for %s", to))
			spin.Start()

			result, err := sess.Client().SendMessage(cmd.Context(), client.SendMessageRequest{
				SenderID:       from,
				ReceiverID:     to,
				Message:        args[0],
				EncryptionMode: mode,
				KeyLength:      bits,
			})
			if err != nil {
				spin.StopWithFailure("Message could not be sent")
				return clierrors.SubmitFailed(err)
			}

			spin.StopWithSuccess("Message sent")
			out.Println()
			out.Print("Message id: %s\n", result.MessageID)
			out.Muted("Receive it with qkdctl message receive %s --user %s", result.MessageID, to)

			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Sending user")
	cmd.Flags().StringVar(&to, "to", "", "Receiving user")
	cmd.Flags().StringVar(&mode, "mode", "GCM", "AES mode: GCM or CBC")
	cmd.Flags().IntVar(&bits, "bits", 256, "Key length in bits: 128, 192, or 256")

	return cmd
}

func newMessageReceiveCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "receive <message-id>",
		Short: "Receive and decrypt a stored message",
		Long: `Decrypt the identified message with the receiver's quantum key and
print the plaintext. Only the addressed receiver can decrypt it.`,
		Example: `  qkdctl message receive msg_1712345678_1 --user bob`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			if user == "" {
				return clierrors.InvalidArgument("--user is required")
			}

			sess, _, err := newAuthenticatedSession()
			if err != nil {
				return err
			}

			result, err := sess.Client().ReceiveMessage(cmd.Context(), client.ReceiveMessageRequest{
				ReceiverID: user,
				MessageID:  args[0],
			})
			if err != nil {
				return clierrors.SubmitFailed(err)
			}

			out.Print("From:    %s\n", result.SenderID)
			out.Print("Sent:    %s\n", time.Unix(int64(result.Timestamp), 0).Format(time.RFC3339))
			out.Println()
			out.Print("%s\n", result.DecryptedMessage)

			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Receiving user")

	return cmd
}

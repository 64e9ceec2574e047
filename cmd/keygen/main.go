package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/workflow-gateway/internal/auth"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "keygen",
		Short: "Generate credentials for the workflow gateway",
		Long: `keygen creates API key hashes for config.yaml and mints HS256 bearer
tokens signed with auth.jwt.secret.`,
		SilenceUsage: true,
	}
	root.AddCommand(newAPIKeyCmd(), newTokenCmd())
	return root
}

func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey [key]",
		Short: "Hash an API key for config.yaml",
		Long:  "Prints the SHA-256 hash of the given API key. A random key is generated when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user-id")
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")

			var apiKey string
			if len(args) == 1 {
				apiKey = args[0]
			} else {
				generated, err := randomKey()
				if err != nil {
					return fmt.Errorf("generate key: %w", err)
				}
				apiKey = generated
			}
			keyHash := auth.HashAPIKey(apiKey)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API Key: %s\n", apiKey)
			fmt.Fprintf(out, "SHA-256 Hash: %s\n", keyHash)
			fmt.Fprintln(out, "\nAdd this to your config.yaml:")
			fmt.Fprintln(out, "auth:")
			fmt.Fprintln(out, "  api_keys:")
			fmt.Fprintf(out, "    - key_hash: %q\n", keyHash)
			fmt.Fprintf(out, "      user_id: %q\n", userID)
			fmt.Fprintf(out, "      name: %q\n", name)
			if email != "" {
				fmt.Fprintf(out, "      email: %q\n", email)
			}
			return nil
		},
	}
	cmd.Flags().String("user-id", "1", "caller id reported to workflows")
	cmd.Flags().String("name", "api-user", "caller name reported to workflows")
	cmd.Flags().String("email", "", "caller email returned by /me")
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			sub, _ := cmd.Flags().GetString("sub")
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			issuer, _ := cmd.Flags().GetString("issuer")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if secret == "" {
				secret = os.Getenv("GATEWAY_AUTH__JWT__SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret is required (or set GATEWAY_AUTH__JWT__SECRET)")
			}
			if sub == "" {
				return fmt.Errorf("--sub is required")
			}

			token, err := auth.IssueToken(secret, auth.TokenRequest{
				Subject: sub,
				Name:    name,
				Email:   email,
				Issuer:  issuer,
				TTL:     ttl,
			})
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("secret", "", "HMAC secret (auth.jwt.secret)")
	cmd.Flags().String("sub", "", "caller id (token subject)")
	cmd.Flags().String("name", "", "caller name")
	cmd.Flags().String("email", "", "caller email")
	cmd.Flags().String("issuer", "", "token issuer (auth.jwt.issuer)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func randomKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "wg_" + hex.EncodeToString(b), nil
}

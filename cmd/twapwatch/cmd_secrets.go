package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/twapwatch/internal/app"
	"github.com/alanyoungcy/twapwatch/internal/secrets"
)

var (
	secretsIn  string
	secretsOut string
)

// secretsCmd groups secrets bundle operations.
var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage the encrypted notifier credentials bundle",
}

// secretsEncryptCmd seals a plaintext JSON bundle.
var secretsEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt a JSON credentials bundle",
	Long: `Read a JSON bundle such as
  {"telegram_token":"...","discord_webhook_url":"...","webhook_secret":"...","api_key":"..."}
from --in (or stdin) and write the sealed envelope to --out (or stdout).
The password is read from ` + app.SecretsPasswordEnv + `.`,
	Args: cobra.NoArgs,
	RunE: runSecretsEncrypt,
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsEncryptCmd)
	secretsEncryptCmd.Flags().StringVar(&secretsIn, "in", "", "plaintext bundle path (default: stdin)")
	secretsEncryptCmd.Flags().StringVar(&secretsOut, "out", "", "output path (default: stdout)")
}

func runSecretsEncrypt(cmd *cobra.Command, _ []string) error {
	password := os.Getenv(app.SecretsPasswordEnv)
	if password == "" {
		return fmt.Errorf("%s must be set", app.SecretsPasswordEnv)
	}

	var (
		plaintext []byte
		err       error
	)
	if secretsIn == "" {
		plaintext, err = io.ReadAll(cmd.InOrStdin())
	} else {
		plaintext, err = os.ReadFile(secretsIn)
	}
	if err != nil {
		return fmt.Errorf("reading bundle: %w", err)
	}

	sealed, err := secrets.SealBundle(plaintext, password)
	if err != nil {
		return err
	}

	if secretsOut == "" {
		_, err = cmd.OutOrStdout().Write(append(sealed, '\n'))
		return err
	}
	if err := os.WriteFile(secretsOut, sealed, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", secretsOut, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "sealed bundle written to %s\n", secretsOut)
	return nil
}

package commands

import (
	"fmt"

	"keychat/internal/cryptographic/pki"

	"github.com/spf13/cobra"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new secret key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, err := pki.GenerateSecretKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "secret key: %s\n", sk.Hex())
			fmt.Fprintf(out, "public key: %s\n", sk.PublicKey())
			fmt.Fprintln(out, "keep the secret key safe, it is not stored anywhere")
			return nil
		},
	}
}

func pubkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey",
		Short: "Print the public key of the configured secret key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, err := loadSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sk.PublicKey())
			return nil
		},
	}
}

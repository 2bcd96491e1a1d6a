package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goatkit/serverboot/internal/plugin/signing"
)

func newKeygenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 key pair for signing plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}
			pub, priv, err := signing.GenerateKeyPair()
			if err != nil {
				return err
			}
			pubPath, privPath := v.GetString("public"), v.GetString("private")
			if err := signing.WritePublicKey(pubPath, pub); err != nil {
				return err
			}
			if err := signing.WritePrivateKey(privPath, priv); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Public key:  %s\nPrivate key: %s\n", pubPath, privPath)
			return nil
		},
	}

	cmd.Flags().String("public", "serverboot.pub", "Public key output file")
	cmd.Flags().String("private", "serverboot.key", "Private key output file")

	return cmd
}

func newSignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign <plugin>...",
		Short: "Sign plugin binaries",
		Long: `Sign writes <plugin>.sig next to each plugin binary. Hosts started with
--require-signatures only load binaries whose signature verifies against
one of their trusted keys.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}
			key, err := signing.ReadPrivateKey(v.GetString("key"))
			if err != nil {
				return err
			}
			for _, p := range paths {
				sig := signing.DefaultSignaturePath(p)
				if err := signing.SignBinary(p, sig, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed %s -> %s\n", p, sig)
			}
			return nil
		},
	}

	cmd.Flags().String("key", "serverboot.key", "Private key file")

	return cmd
}

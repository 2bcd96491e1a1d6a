package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goatkit/serverboot/internal/config"
)

func newArgsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "args",
		Short: "Print the server core command line for a configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(v.GetString("config"))
			if err != nil {
				return err
			}
			args := cfg.Args(v.GetString("worlds-dir"))
			if v.GetBool("lines") {
				for _, a := range args {
					fmt.Fprintln(cmd.OutOrStdout(), a)
				}
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(args, " "))
			return nil
		},
	}

	cmd.Flags().String("config", "server.json", "Server configuration document")
	cmd.Flags().String("worlds-dir", "worlds", "Directory holding world files")
	cmd.Flags().Bool("lines", false, "Print one argument per line")

	return cmd
}

// Package env holds the environment subcommands: listing, detail and
// lifecycle operations against the local scan root.
package env

import "github.com/spf13/cobra"

func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Inspect and run vulnerability environments",
	}
	cmd.AddCommand(listCmd())
	cmd.AddCommand(showCmd())
	cmd.AddCommand(startCmd())
	cmd.AddCommand(stopCmd())
	cmd.AddCommand(pullCmd())
	cmd.AddCommand(imagesCmd())
	cmd.AddCommand(readyCmd())
	return cmd
}

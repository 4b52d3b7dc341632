// Package cachecmd manages the registry cache.
package cachecmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"vulnlab/cmd/vulnlab/cmdutil"
	"vulnlab/cmd/vulnlab/ui"
)

func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the registry cache",
	}
	cmd.AddCommand(refreshCmd())
	return cmd
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Drop the cache and rescan the root",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdutil.Build()
			if err != nil {
				return err
			}
			defer deps.Close()

			snap, err := deps.Registry.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("rescanned %d environments", len(snap)))
			return nil
		},
	}
}

package env

import (
	"fmt"

	"github.com/spf13/cobra"

	"vulnlab/cmd/vulnlab/cmdutil"
	"vulnlab/cmd/vulnlab/ui"
)

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <environment>",
		Short: "Stop an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdutil.Build()
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.Registry.Stop(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("%s stopped", args[0]))
			return nil
		},
	}
}

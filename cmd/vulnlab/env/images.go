package env

import (
	"fmt"

	"github.com/spf13/cobra"

	"vulnlab/cmd/vulnlab/cmdutil"
	"vulnlab/cmd/vulnlab/ui"
)

func imagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "images <environment>",
		Short: "Check which of an environment's images are local",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdutil.Build()
			if err != nil {
				return err
			}
			defer deps.Close()

			check := deps.Registry.CheckImages(cmd.Context(), args[0])
			if check.Warning != "" {
				fmt.Println(ui.WarnMsg("%s", check.Warning))
			}
			if len(check.Missing) == 0 {
				fmt.Println(ui.SuccessMsg("all images present"))
				return nil
			}
			fmt.Println(ui.WarnMsg("missing images:"))
			for _, img := range check.Missing {
				fmt.Println("  " + img)
			}
			return nil
		},
	}
}

package env

import (
	"fmt"

	"github.com/spf13/cobra"

	"vulnlab/cmd/vulnlab/cmdutil"
	"vulnlab/cmd/vulnlab/ui"
)

func pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <environment>",
		Short: "Pull an environment's images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdutil.Build()
			if err != nil {
				return err
			}
			defer deps.Close()

			stream, err := deps.Registry.Pull(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for line := range stream.Lines() {
				fmt.Println(ui.Muted(line))
			}
			if err := stream.Err(); err != nil {
				return fmt.Errorf("pull images: %w", err)
			}
			fmt.Println(ui.SuccessMsg("images pulled"))
			return nil
		},
	}
}

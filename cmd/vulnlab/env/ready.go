package env

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vulnlab/cmd/vulnlab/cmdutil"
	"vulnlab/cmd/vulnlab/ui"
)

func readyCmd() *cobra.Command {
	var timeout int

	cmd := &cobra.Command{
		Use:   "ready <environment>",
		Short: "Wait until an environment's web service answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdutil.Build()
			if err != nil {
				return err
			}
			defer deps.Close()

			ready, err := deps.Registry.WaitReady(cmd.Context(), args[0], time.Duration(timeout)*time.Second)
			if err != nil {
				return err
			}
			switch {
			case ready.Ready:
				fmt.Println(ui.SuccessMsg("ready on http://127.0.0.1:%d", ready.Port))
			case ready.Port != 0:
				fmt.Println(ui.WarnMsg("port %d published but nothing answered within %ds", ready.Port, timeout))
			default:
				fmt.Println(ui.WarnMsg("no published port discovered within %ds", timeout))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&timeout, "timeout", 20, "Seconds to wait")
	return cmd
}
